// Package broker turns submitted orders into trades against the
// simulated market. The matcher is full-fill-only: each matching pass
// fills the entire unfilled quantity at a decided price, and anything
// a market order cannot fill by the end of the trading phase is
// cancelled rather than carried.
package broker

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"barsim/internal/account"
	"barsim/internal/bus"
	"barsim/internal/costs"
	"barsim/internal/errors"
	"barsim/internal/models"
)

// Clock exposes the simulation's current timestamps to the matcher.
type Clock interface {
	CalendarDT() time.Time
	TradingDT() time.Time
}

// InstrumentKinds resolves an instrument's behavior class. Satisfied
// by data.Source.
type InstrumentKinds interface {
	InstrumentKind(orderBookID string) models.InstrumentKind
}

// PriceView resolves the current last price of an instrument.
type PriceView interface {
	LastPrice(orderBookID string) float64
}

// PriceDecider chooses the deal price for an instrument during a
// matching pass.
type PriceDecider func(orderBookID string, side models.Side) float64

// NewPriceDecider returns the decided-price policy for a matching
// mode. Both supported modes price at the context's current last
// price; they differ in when orders become matchable, which the
// broker's delayed queue controls.
func NewPriceDecider(mode models.MatchingMode, prices PriceView) (PriceDecider, error) {
	switch mode {
	case models.MatchCurrentBarClose, models.MatchNextBarOpen:
		return func(orderBookID string, _ models.Side) float64 {
			return prices.LastPrice(orderBookID)
		}, nil
	default:
		return nil, errors.NewConfigError(fmt.Sprintf("matching mode %q", mode), errors.ErrUnknownMatchingMode)
	}
}

// Matcher converts one active order into one trade per pass.
type Matcher struct {
	decide   PriceDecider
	costs    *costs.Registry
	kinds    InstrumentKinds
	clock    Clock
	bus      *bus.Bus
	turnover map[string]int64
	logger   zerolog.Logger
}

// NewMatcher creates a matcher with the given deal-price policy.
func NewMatcher(decide PriceDecider, reg *costs.Registry, kinds InstrumentKinds, clock Clock, b *bus.Bus, logger zerolog.Logger) *Matcher {
	return &Matcher{
		decide:   decide,
		costs:    reg,
		kinds:    kinds,
		clock:    clock,
		bus:      b,
		turnover: make(map[string]int64),
		logger:   logger,
	}
}

var supportedEffects = map[models.PositionEffect]bool{
	models.EffectOpen:       true,
	models.EffectClose:      true,
	models.EffectCloseToday: true,
}

// Match fills the order's full unfilled quantity at the decided price,
// charges fees through the registered decider, and publishes the TRADE
// event. A stale price leaves the order open for a later pass. An
// unsupported effect/side combination reaching the matcher is a
// configuration error.
func (m *Matcher) Match(a *account.Account, o *models.Order) error {
	if !supportedEffects[o.PositionEffect()] || (o.Side() != models.SideBuy && o.Side() != models.SideSell) {
		return errors.NewConfigError(
			fmt.Sprintf("side %s with position effect %s", o.Side(), o.PositionEffect()),
			errors.ErrUnsupportedEffect)
	}

	orderBookID := o.OrderBookID()
	price := m.decide(orderBookID, o.Side())
	if math.IsNaN(price) || price <= 0 {
		m.logger.Warn().Str("order_book_id", orderBookID).Uint64("order_id", o.ID()).
			Msg("no valid price for matching, order held open")
		return nil
	}

	fill := o.UnfilledQuantity()
	closeToday := a.CalcCloseTodayAmount(orderBookID, fill, o.PositionDirection())

	trade, err := models.NewTrade(
		o.ID(), orderBookID, o.Side(), o.PositionEffect(),
		price, fill, o.FrozenPrice(), closeToday,
		m.clock.CalendarDT(), m.clock.TradingDT(),
	)
	if err != nil {
		return err
	}

	decider, err := m.costs.Decider(m.kinds.InstrumentKind(orderBookID))
	if err != nil {
		return err
	}
	trade.Commission = decider.TradeCommission(trade)
	trade.Tax = decider.TradeTax(trade)

	if err := o.Fill(trade); err != nil {
		return err
	}
	m.turnover[orderBookID] += fill

	m.bus.Publish(bus.TradeEvent{Account: a, Order: o, Trade: trade})

	if o.Type() == models.OrderTypeMarket && o.UnfilledQuantity() != 0 {
		o.MarkCancelled(fmt.Sprintf(
			"Order Cancelled: market order %s quantity %d exceeds available volume, filled %d",
			orderBookID, o.Quantity(), o.FilledQuantity()))
	}
	return nil
}

// Update clears the per-bar turnover accumulators.
func (m *Matcher) Update() {
	for orderBookID := range m.turnover {
		delete(m.turnover, orderBookID)
	}
}
