// Package intent converts trading intents into concrete market
// orders. Builders never touch ledger state: they read prices and
// positions, apply lot rounding and cash checks, and return the
// order list a caller hands to the step action. An instrument that
// cannot be priced is skipped with a recorded reason; only a caller
// mistake, such as target weights summing above one, is an error.
package intent

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"barsim/internal/account"
	"barsim/internal/costs"
	"barsim/internal/errors"
	"barsim/internal/models"
)

// Clock stamps created orders with the simulation timestamps.
type Clock interface {
	CalendarDT() time.Time
	TradingDT() time.Time
}

// Kinds resolves the instrument behavior class for fee estimates.
type Kinds interface {
	InstrumentKind(orderBookID string) models.InstrumentKind
}

// Messages collects skip reasons for the current step. Satisfied by
// tracker.Tracker. A nil sink discards messages.
type Messages interface {
	AddMessage(msg string)
}

const weightTolerance = 1e-9

// Builder creates orders against one account.
type Builder struct {
	account *account.Account
	market  account.MarketView
	costs   *costs.Registry
	kinds   Kinds
	clock   Clock
	lot     int64
	msgs    Messages
	logger  zerolog.Logger
}

// NewBuilder creates an intent builder. lot is the round-lot size all
// open quantities snap to.
func NewBuilder(a *account.Account, market account.MarketView, reg *costs.Registry, kinds Kinds, clock Clock, lot int64, msgs Messages, logger zerolog.Logger) *Builder {
	return &Builder{
		account: a,
		market:  market,
		costs:   reg,
		kinds:   kinds,
		clock:   clock,
		lot:     lot,
		msgs:    msgs,
		logger:  logger,
	}
}

func (b *Builder) skip(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	b.logger.Info().Msg(msg)
	if b.msgs != nil {
		b.msgs.AddMessage(msg)
	}
}

func validPrice(p float64) bool { return !math.IsNaN(p) && p > 0 }

// roundLot truncates toward zero to a whole number of lots.
func (b *Builder) roundLot(quantity int64) int64 {
	lots := decimal.NewFromInt(quantity).Div(decimal.NewFromInt(b.lot)).IntPart()
	return lots * b.lot
}

// orderShares builds one market order for a signed share delta.
// positionQuantity is the existing long quantity; a sell for exactly
// that quantity bypasses lot rounding so a position can always be
// closed out whole.
func (b *Builder) orderShares(orderBookID string, amount int64, positionQuantity int64) *models.Order {
	price := b.market.LastPrice(orderBookID)
	if !validPrice(price) {
		b.skip("Order Creation Failed: [%s] No market data", orderBookID)
		return nil
	}

	side, effect := models.SideBuy, models.EffectOpen
	if amount < 0 {
		side, effect = models.SideSell, models.EffectClose
	}
	if !(side == models.SideSell && positionQuantity == -amount) {
		rounded := b.roundLot(amount)
		if amount < 0 {
			rounded = -b.roundLot(-amount)
		}
		amount = rounded
	}
	if amount == 0 {
		b.skip("Order Creation Failed: 0 order quantity, order_book_id=%s", orderBookID)
		return nil
	}

	quantity := amount
	if quantity < 0 {
		quantity = -quantity
	}
	o := models.NewMarketOrder(orderBookID, quantity, side, effect, b.clock.CalendarDT(), b.clock.TradingDT())
	if err := o.SetFrozenPrice(price); err != nil {
		b.skip("Order Creation Failed: [%s] %v", orderBookID, err)
		return nil
	}
	return o
}

// estimateCost prices the fees of a hypothetical open order so the
// cash check can include them.
func (b *Builder) estimateCost(orderBookID string, quantity int64, price float64) float64 {
	d, err := b.costs.Decider(b.kinds.InstrumentKind(orderBookID))
	if err != nil {
		return 0
	}
	probe, err := models.NewLimitOrder(orderBookID, quantity, models.SideBuy, models.EffectOpen, price, b.clock.CalendarDT(), b.clock.TradingDT())
	if err != nil {
		return 0
	}
	return d.OrderCost(probe)
}

// OrderValue buys or sells roughly cashAmount worth of the instrument.
// A positive amount is capped at available cash and shrunk lot by lot
// until price times quantity plus estimated fees fits; a negative
// amount is capped at the closable quantity. Returns nil when nothing
// tradable remains.
func (b *Builder) OrderValue(orderBookID string, cashAmount float64) *models.Order {
	if cashAmount > 0 {
		cashAmount = math.Min(cashAmount, b.account.Cash())
	}
	price := b.market.LastPrice(orderBookID)
	if !validPrice(price) {
		b.skip("Order Creation Failed: [%s] No market data", orderBookID)
		return nil
	}

	amount := decimal.NewFromFloat(cashAmount).Div(decimal.NewFromFloat(price)).IntPart()
	if cashAmount > 0 {
		amount = b.roundLot(amount)
		for ; amount > 0; amount -= b.lot {
			if float64(amount)*price+b.estimateCost(orderBookID, amount, price) <= cashAmount {
				break
			}
		}
		if amount <= 0 {
			b.skip("Order Creation Failed: 0 order quantity, order_book_id=%s", orderBookID)
			return nil
		}
	}

	position := b.account.GetPosition(orderBookID, models.DirectionLong)
	if amount < 0 {
		if closable := position.Closable(); amount < -closable {
			amount = -closable
		}
	}
	return b.orderShares(orderBookID, amount, position.Quantity())
}

// OrderTargetValue adjusts the position so its market value reaches
// cashAmount. Zero closes the position.
func (b *Builder) OrderTargetValue(orderBookID string, cashAmount float64) *models.Order {
	position := b.account.GetPosition(orderBookID, models.DirectionLong)
	if cashAmount == 0 {
		if closable := position.Closable(); closable > 0 {
			return b.orderShares(orderBookID, -closable, position.Quantity())
		}
		return nil
	}
	return b.OrderValue(orderBookID, cashAmount-position.MarketValue())
}

// OrderPercent trades percent of the account's total value.
func (b *Builder) OrderPercent(orderBookID string, percent float64) *models.Order {
	return b.OrderValue(orderBookID, b.account.TotalValue()*percent)
}

// OrderTargetPercent adjusts the position toward percent of the
// account's total value. Zero closes the position.
func (b *Builder) OrderTargetPercent(orderBookID string, percent float64) *models.Order {
	if percent == 0 {
		return b.OrderTargetValue(orderBookID, 0)
	}
	position := b.account.GetPosition(orderBookID, models.DirectionLong)
	return b.OrderValue(orderBookID, b.account.TotalValue()*percent-position.MarketValue())
}

// OrderTargetWeights rebalances the whole account toward the given
// weight per instrument. Instruments held but absent from the map are
// closed. Close orders precede open orders so freed cash funds the
// buys. Weights must be non-negative and sum to at most one.
func (b *Builder) OrderTargetWeights(targetWeights map[string]float64) ([]*models.Order, error) {
	var total float64
	for orderBookID, w := range targetWeights {
		if w < 0 {
			return nil, errors.NewConfigError(
				fmt.Sprintf("target weight of %s is %v", orderBookID, w),
				errors.ErrNegativeTargetWeight)
		}
		total += w
	}
	if total > 1+weightTolerance {
		return nil, errors.NewConfigError(
			fmt.Sprintf("total target weight %v", total),
			errors.ErrTargetWeightExceeded)
	}

	accountValue := b.account.TotalValue()
	targetQuantities := make(map[string]int64, len(targetWeights))
	for _, orderBookID := range sortedKeys(targetWeights) {
		price := b.market.LastPrice(orderBookID)
		if !validPrice(price) {
			b.skip("Order Creation Failed: [%s] No market data", orderBookID)
			continue
		}
		target := accountValue * targetWeights[orderBookID] / price
		targetQuantities[orderBookID] = int64(math.Round(target/float64(b.lot))) * b.lot
	}
	return b.targetOrders(targetQuantities, func(id string) bool {
		_, ok := targetWeights[id]
		return ok
	}), nil
}

// OrderTargetQuantities rebalances toward an absolute quantity per
// instrument. Instruments held but absent from the map are closed.
func (b *Builder) OrderTargetQuantities(targetQuantities map[string]int64) []*models.Order {
	return b.targetOrders(targetQuantities, func(id string) bool {
		_, ok := targetQuantities[id]
		return ok
	})
}

// targetOrders nets current long positions against targets: closes
// first, then lot-rounded opens. Iteration is sorted for a
// deterministic order sequence.
func (b *Builder) targetOrders(targetQuantities map[string]int64, targeted func(string) bool) []*models.Order {
	currentQuantities := make(map[string]int64)
	for _, p := range b.account.Positions() {
		if p.Direction() == models.DirectionLong {
			currentQuantities[p.OrderBookID()] = p.Quantity()
		}
	}

	var closeOrders, openOrders []*models.Order
	for _, orderBookID := range sortedKeys(currentQuantities) {
		if !targeted(orderBookID) {
			if o := b.closeOrder(orderBookID, currentQuantities[orderBookID]); o != nil {
				closeOrders = append(closeOrders, o)
			}
		}
	}

	for _, orderBookID := range sortedKeys(targetQuantities) {
		delta := targetQuantities[orderBookID] - currentQuantities[orderBookID]
		switch {
		case delta >= b.lot:
			delta = b.roundLot(delta)
			if o := b.openOrder(orderBookID, delta); o != nil {
				openOrders = append(openOrders, o)
			}
		case delta < 0:
			if o := b.closeOrder(orderBookID, -delta); o != nil {
				closeOrders = append(closeOrders, o)
			}
		}
	}
	return append(closeOrders, openOrders...)
}

func (b *Builder) openOrder(orderBookID string, quantity int64) *models.Order {
	price := b.market.LastPrice(orderBookID)
	if !validPrice(price) {
		b.skip("Order Creation Failed: [%s] No market data", orderBookID)
		return nil
	}
	o := models.NewMarketOrder(orderBookID, quantity, models.SideBuy, models.EffectOpen, b.clock.CalendarDT(), b.clock.TradingDT())
	if err := o.SetFrozenPrice(price); err != nil {
		b.skip("Order Creation Failed: [%s] %v", orderBookID, err)
		return nil
	}
	return o
}

func (b *Builder) closeOrder(orderBookID string, quantity int64) *models.Order {
	price := b.market.LastPrice(orderBookID)
	if !validPrice(price) {
		b.skip("Order Creation Failed: [%s] No market data", orderBookID)
		return nil
	}
	o := models.NewMarketOrder(orderBookID, quantity, models.SideSell, models.EffectClose, b.clock.CalendarDT(), b.clock.TradingDT())
	if err := o.SetFrozenPrice(price); err != nil {
		b.skip("Order Creation Failed: [%s] %v", orderBookID, err)
		return nil
	}
	return o
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
