// Package tracker records what a simulation run produced: accepted
// orders, executed trades, per-bar portfolio snapshots, and the reward
// series the environment reads. The current-bar series is collected
// after each settlement; the forward-bar series is sampled at PRE_BAR
// of the following timestamp and exists only when forward sampling is
// enabled.
package tracker

import (
	"time"

	"barsim/internal/account"
	"barsim/internal/bus"
	"barsim/internal/models"
)

// Clock provides the trading timestamp records are stamped with.
type Clock interface {
	TradingDT() time.Time
}

// PortfolioRecord is a per-bar snapshot of portfolio aggregates.
type PortfolioRecord struct {
	TradingDT          time.Time `json:"trading_dt"`
	Cash               float64   `json:"cash"`
	TotalValue         float64   `json:"total_value"`
	MarketValue        float64   `json:"market_value"`
	UnitNetValue       float64   `json:"unit_net_value"`
	Units              float64   `json:"units"`
	StaticUnitNetValue float64   `json:"static_unit_net_value"`
}

// Tracker is a passive bus subscriber; it never mutates ledger state.
type Tracker struct {
	portfolio *account.Portfolio
	clock     Clock
	forward   bool

	orders []*models.Order
	trades []*models.Trade

	dailyRecords   []PortfolioRecord
	forwardRecords []PortfolioRecord
	tradingDTs     []time.Time

	dailyReturns   []float64
	forwardReturns []float64
	dailyPnL       []float64
	forwardPnL     []float64

	dailyStats   []Performance
	forwardStats []Performance

	pendingDailyPnL float64

	// Forward-reward baseline, advanced every PRE_BAR sample.
	rlStaticUnitNetValue float64
	rlStaticTotalValue   float64
	forwardReward        float64

	messages []string
}

// New creates a tracker. forward enables the PRE_BAR forward-reward
// sampling used by the step environment's forward matching mode.
func New(p *account.Portfolio, clock Clock, forward bool) *Tracker {
	return &Tracker{
		portfolio:            p,
		clock:                clock,
		forward:              forward,
		rlStaticUnitNetValue: 1,
		rlStaticTotalValue:   p.TotalValue(),
	}
}

// Register subscribes the tracker's collectors.
func (t *Tracker) Register(b *bus.Bus) {
	b.Subscribe(bus.KindTrade, func(ev bus.Event) bool {
		t.trades = append(t.trades, ev.(bus.TradeEvent).Trade)
		return false
	})
	b.Subscribe(bus.KindOrderCreationPass, func(ev bus.Event) bool {
		t.orders = append(t.orders, ev.(bus.OrderEvent).Order)
		return false
	})
	// The settlement rollover zeroes the per-day P&L accumulators, so
	// the P&L of the bar is captured just before it.
	b.Subscribe(bus.KindPreSettlement, func(bus.Event) bool {
		t.pendingDailyPnL = t.portfolio.DailyPnL()
		return false
	})
	b.Subscribe(bus.KindPostSettlement, func(bus.Event) bool {
		t.collectDaily()
		return false
	})
	if t.forward {
		b.Subscribe(bus.KindPreBar, func(bus.Event) bool {
			t.sampleForwardReward()
			return false
		})
	}
}

func (t *Tracker) collectDaily() {
	p := t.portfolio
	t.dailyReturns = append(t.dailyReturns, p.DailyReturns())
	t.dailyPnL = append(t.dailyPnL, t.pendingDailyPnL)
	t.dailyRecords = append(t.dailyRecords, t.snapshot())
	t.tradingDTs = append(t.tradingDTs, t.clock.TradingDT())
	t.dailyStats = append(t.dailyStats, Summarize(t.dailyReturns))
}

// sampleForwardReward runs at PRE_BAR of the next timestamp, after the
// ledger has refreshed last prices for the new bar. The reward is the
// unit-net-value change since the previous sample; the baseline then
// advances so each step's reward covers exactly one bar transition.
func (t *Tracker) sampleForwardReward() {
	p := t.portfolio
	unv := p.TotalValue() / p.Units()
	t.forwardReward = unv/t.rlStaticUnitNetValue - 1
	t.forwardReturns = append(t.forwardReturns, t.forwardReward)
	t.forwardPnL = append(t.forwardPnL, p.TotalValue()-t.rlStaticTotalValue)
	t.rlStaticUnitNetValue = unv
	t.rlStaticTotalValue = p.TotalValue()

	t.forwardRecords = append(t.forwardRecords, t.snapshot())
	t.forwardStats = append(t.forwardStats, Summarize(t.forwardReturns))
}

func (t *Tracker) snapshot() PortfolioRecord {
	p := t.portfolio
	return PortfolioRecord{
		TradingDT:          t.clock.TradingDT(),
		Cash:               p.Cash(),
		TotalValue:         p.TotalValue(),
		MarketValue:        p.MarketValue(),
		UnitNetValue:       p.UnitNetValue(),
		Units:              p.Units(),
		StaticUnitNetValue: p.StaticUnitNetValue(),
	}
}

// BeginStep clears the per-step message buffer. Called by the
// environment at the start of each step.
func (t *Tracker) BeginStep() { t.messages = t.messages[:0] }

// AddMessage records a diagnostic for the current step, e.g. an intent
// skipped for missing market data.
func (t *Tracker) AddMessage(msg string) { t.messages = append(t.messages, msg) }

// Messages returns the diagnostics collected since BeginStep.
func (t *Tracker) Messages() []string {
	out := make([]string, len(t.messages))
	copy(out, t.messages)
	return out
}

// DailyReward is the current-bar reward: the portfolio's daily return
// after the most recent settlement.
func (t *Tracker) DailyReward() float64 {
	if len(t.dailyReturns) == 0 {
		return 0
	}
	return t.dailyReturns[len(t.dailyReturns)-1]
}

// ForwardReward is the latest forward-bar reward sample.
func (t *Tracker) ForwardReward() float64 { return t.forwardReward }

// Orders returns the accepted orders in creation order.
func (t *Tracker) Orders() []*models.Order { return t.orders }

// Trades returns every executed trade in execution order.
func (t *Tracker) Trades() []*models.Trade { return t.trades }

// DailyReturns returns the current-bar return series.
func (t *Tracker) DailyReturns() []float64 { return t.dailyReturns }

// ForwardReturns returns the forward-bar return series.
func (t *Tracker) ForwardReturns() []float64 { return t.forwardReturns }

// DailyPnL returns the per-settlement pnl series.
func (t *Tracker) DailyPnL() []float64 { return t.dailyPnL }

// ForwardPnL returns the forward-bar pnl series.
func (t *Tracker) ForwardPnL() []float64 { return t.forwardPnL }

// DailyRecords returns the per-settlement portfolio snapshots.
func (t *Tracker) DailyRecords() []PortfolioRecord { return t.dailyRecords }

// ForwardRecords returns the forward-sampled portfolio snapshots.
func (t *Tracker) ForwardRecords() []PortfolioRecord { return t.forwardRecords }

// TradingDTs returns the settled trading timestamps.
func (t *Tracker) TradingDTs() []time.Time { return t.tradingDTs }

// DailyPerformance returns the running stats of the current-bar series.
func (t *Tracker) DailyPerformance() []Performance { return t.dailyStats }

// ForwardPerformance returns the running stats of the forward series.
func (t *Tracker) ForwardPerformance() []Performance { return t.forwardStats }

// LatestPerformance returns the most recent stats of the series that
// matches the reward semantics in use.
func (t *Tracker) LatestPerformance() Performance {
	if t.forward {
		if n := len(t.forwardStats); n > 0 {
			return t.forwardStats[n-1]
		}
		return Performance{}
	}
	if n := len(t.dailyStats); n > 0 {
		return t.dailyStats[n-1]
	}
	return Performance{}
}
