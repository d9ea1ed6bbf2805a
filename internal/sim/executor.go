package sim

import (
	"barsim/internal/models"
)

// StepInfo is the diagnostics mapping returned from every step. The
// statistics derive from the reward series in use, not from raw
// account state.
type StepInfo struct {
	ReturnsMean     float64  `json:"returns_mean"`
	UnitSharpeRatio float64  `json:"unit_sharpe_ratio"`
	DrawDown        float64  `json:"draw_down"`
	MaxDrawDown     float64  `json:"max_draw_down"`
	ProfitAndLoss   float64  `json:"profit_and_loss"`
	Messages        []string `json:"messages,omitempty"`
}

// executor replays one trading timestamp per Send call.
type executor interface {
	Send(action []*models.Order) (reward float64, done bool, info StepInfo)
}

// sameBarExecutor settles the bar it just replayed and reads the
// settled daily return as the reward, then advances the clock.
type sameBarExecutor struct {
	sim *Simulation
}

func newSameBarExecutor(s *Simulation) *sameBarExecutor {
	return &sameBarExecutor{sim: s}
}

func (e *sameBarExecutor) Send(action []*models.Order) (float64, bool, StepInfo) {
	s := e.sim
	for _, spec := range sameBarEvents(s.tradingDT) {
		s.publish(spec, action)
	}

	t := s.tracker
	reward := t.DailyReward()
	perf := t.LatestPerformance()
	info := StepInfo{
		ReturnsMean:     perf.ReturnsMean,
		UnitSharpeRatio: perf.UnitSharpeRatio,
		DrawDown:        perf.DrawDown,
		MaxDrawDown:     perf.MaxDrawDown,
		Messages:        t.Messages(),
	}
	if pnl := t.DailyPnL(); len(pnl) > 0 {
		info.ProfitAndLoss = pnl[len(pnl)-1]
	}

	done := s.atLastTime()
	if !done {
		next := s.available[s.timeIndex()+1]
		s.updateTime(next, next)
	}
	return reward, done, info
}

// forwardBarExecutor replays through the settlement of t into the
// PRE_BAR of t+1, where the clock already points, and reads the
// forward mark-to-market move as the reward.
type forwardBarExecutor struct {
	sim *Simulation
	// replay lists keyed by timestamp index; the last timestamp has
	// no list because no further bar exists to judge an action by
	events map[int][]eventSpec
}

func newForwardBarExecutor(s *Simulation) *forwardBarExecutor {
	events := make(map[int][]eventSpec, len(s.available)-1)
	for i := 0; i < len(s.available)-1; i++ {
		events[i] = forwardBarEvents(s.available[i], s.available[i+1])
	}
	return &forwardBarExecutor{sim: s, events: events}
}

func (e *forwardBarExecutor) Send(action []*models.Order) (float64, bool, StepInfo) {
	s := e.sim
	for _, spec := range e.events[s.timeIndex()] {
		s.publish(spec, action)
	}

	t := s.tracker
	reward := t.ForwardReward()
	perf := t.LatestPerformance()
	info := StepInfo{
		ReturnsMean:     perf.ReturnsMean,
		UnitSharpeRatio: perf.UnitSharpeRatio,
		DrawDown:        perf.DrawDown,
		MaxDrawDown:     perf.MaxDrawDown,
		Messages:        t.Messages(),
	}
	if pnl := t.ForwardPnL(); len(pnl) > 0 {
		info.ProfitAndLoss = pnl[len(pnl)-1]
	}
	return reward, s.atLastTime(), info
}
