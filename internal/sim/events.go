package sim

import (
	"time"

	"barsim/internal/bus"
	"barsim/internal/models"
)

// eventSpec is one pre-materialized entry of a bar's replay list.
// Split specs expand into their PRE/MAIN/POST triple; atomic specs
// publish exactly one event.
type eventSpec struct {
	kind       bus.Kind
	calendarDT time.Time
	tradingDT  time.Time
	split      bool
	// bar attaches the step action to the published event
	bar bool
	// updateClock moves the simulation clock to this spec's
	// timestamps before publishing
	updateClock bool
}

var splitMap = map[bus.Kind][3]bus.Kind{
	bus.KindBeforeTrading: {bus.KindPreBeforeTrading, bus.KindBeforeTrading, bus.KindPostBeforeTrading},
	bus.KindBar:           {bus.KindPreBar, bus.KindBar, bus.KindPostBar},
	bus.KindAfterTrading:  {bus.KindPreAfterTrading, bus.KindAfterTrading, bus.KindPostAfterTrading},
	bus.KindSettlement:    {bus.KindPreSettlement, bus.KindSettlement, bus.KindPostSettlement},
}

// sameBarEvents is the replay list of one trading timestamp under
// same-bar reward semantics: the full phase cycle, settled within the
// same step by the executor.
func sameBarEvents(dt time.Time) []eventSpec {
	return []eventSpec{
		{kind: bus.KindBeforeTrading, calendarDT: dt, tradingDT: dt, split: true},
		{kind: bus.KindBar, calendarDT: dt, tradingDT: dt, split: true, bar: true},
		{kind: bus.KindAfterTrading, calendarDT: dt, tradingDT: dt, split: true},
		{kind: bus.KindSettlement, calendarDT: dt, tradingDT: dt, split: true},
	}
}

// forwardBarEvents is the replay list under forward-bar reward
// semantics: timestamp t runs from its BAR through SETTLEMENT, then
// crosses into t+1 up to PRE_BAR, where the forward reward is
// sampled. PRE_BAR of t itself was published at the end of the
// previous step, so the list opens on the MAIN bar event.
func forwardBarEvents(dt, next time.Time) []eventSpec {
	return []eventSpec{
		{kind: bus.KindBar, calendarDT: dt, tradingDT: dt, bar: true},
		{kind: bus.KindPostBar, calendarDT: dt, tradingDT: dt},

		{kind: bus.KindPreAfterTrading, calendarDT: dt, tradingDT: dt},
		{kind: bus.KindAfterTrading, calendarDT: dt, tradingDT: dt},
		{kind: bus.KindPostAfterTrading, calendarDT: dt, tradingDT: dt},

		{kind: bus.KindPreSettlement, calendarDT: dt, tradingDT: dt},
		{kind: bus.KindSettlement, calendarDT: dt, tradingDT: dt},
		{kind: bus.KindPostSettlement, calendarDT: dt, tradingDT: dt},

		{kind: bus.KindPreBeforeTrading, calendarDT: next, tradingDT: next, updateClock: true},
		{kind: bus.KindBeforeTrading, calendarDT: next, tradingDT: next},
		{kind: bus.KindPostBeforeTrading, calendarDT: next, tradingDT: next},

		{kind: bus.KindPreBar, calendarDT: next, tradingDT: next},
	}
}

// publish dispatches one spec through the bus, expanding splits.
func (s *Simulation) publish(spec eventSpec, action []*models.Order) {
	if spec.updateClock {
		s.updateTime(spec.calendarDT, spec.tradingDT)
	}
	kinds := []bus.Kind{spec.kind}
	if spec.split {
		triple := splitMap[spec.kind]
		kinds = triple[:]
	}
	for _, k := range kinds {
		if k == bus.KindBar && spec.bar {
			s.bus.Publish(bus.BarEvent{CalendarDT: spec.calendarDT, TradingDT: spec.tradingDT, Action: action})
			continue
		}
		s.bus.Publish(bus.PhaseEvent{K: k, CalendarDT: spec.calendarDT, TradingDT: spec.tradingDT})
	}
}
