// Package account implements the ledger: per-instrument positions,
// per-asset-class accounts and the portfolio aggregator. All mutation
// flows through trade application and the settlement rollover, so the
// derived values (cash, market value, total value) can never drift
// from the trades that produced them.
package account

import (
	"fmt"
	"math"

	"barsim/internal/errors"
	"barsim/internal/models"
)

// MarketView is the read-only price capability injected into the
// ledger. Implementations must resolve prices at the simulation's
// current trading timestamp on every call; the ledger never caches
// across bars except through UpdateLastPrice.
type MarketView interface {
	LastPrice(orderBookID string) float64
	PrevClose(orderBookID string) float64
}

// OpenOrderQuery exposes the broker's live order book to the ledger,
// replacing a back-pointer to the broker itself.
type OpenOrderQuery interface {
	OpenOrders(orderBookID string) []*models.Order
}

// Position tracks one side (long or short) of one instrument.
// Quantities split into settled ("old") and intraday ("today")
// inventory; logicalOldQuantity snapshots the settled quantity as of
// the last settlement so position P&L and trading P&L stay separable.
type Position struct {
	orderBookID string
	direction   models.Direction
	kind        models.InstrumentKind

	// tPlus > 0 activates the same-day-close restriction: quantity
	// opened today cannot be closed until the next settlement.
	tPlus int

	oldQuantity        int64
	logicalOldQuantity int64
	todayQuantity      int64
	nonClosable        int64

	avgPrice        float64
	tradeCost       float64
	transactionCost float64
	prevClose       float64
	lastPrice       float64

	market     MarketView
	openOrders OpenOrderQuery
}

func newPosition(orderBookID string, direction models.Direction, kind models.InstrumentKind, tPlus int, initQuantity int64, market MarketView, openOrders OpenOrderQuery) *Position {
	return &Position{
		orderBookID: orderBookID,
		direction:   direction,
		kind:        kind,
		tPlus:       tPlus,
		oldQuantity: initQuantity,
		prevClose:   math.NaN(),
		lastPrice:   math.NaN(),
		market:      market,
		openOrders:  openOrders,
	}
}

// OrderBookID returns the instrument code.
func (p *Position) OrderBookID() string { return p.orderBookID }

// Direction returns LONG or SHORT.
func (p *Position) Direction() models.Direction { return p.direction }

// Quantity returns settled plus intraday quantity.
func (p *Position) Quantity() int64 { return p.oldQuantity + p.todayQuantity }

// OldQuantity returns the quantity settled before this trading day.
func (p *Position) OldQuantity() int64 { return p.oldQuantity }

// TodayQuantity returns the quantity traded today.
func (p *Position) TodayQuantity() int64 { return p.todayQuantity }

// AvgPrice returns the average entry price.
func (p *Position) AvgPrice() float64 { return p.avgPrice }

// TransactionCost returns today's accumulated fees.
func (p *Position) TransactionCost() float64 { return p.transactionCost }

// LastPrice returns the most recent mark, fetching it from the market
// view when the cached value is stale. NaN means no observation
// exists yet for this instrument.
func (p *Position) LastPrice() float64 {
	if math.IsNaN(p.lastPrice) {
		p.lastPrice = p.market.LastPrice(p.orderBookID)
	}
	return p.lastPrice
}

// UpdateLastPrice refreshes the cached mark.
func (p *Position) UpdateLastPrice(price float64) { p.lastPrice = price }

// PrevClose returns the close of the previous bar, fetched lazily.
func (p *Position) PrevClose() float64 {
	if math.IsNaN(p.prevClose) {
		p.prevClose = p.market.PrevClose(p.orderBookID)
	}
	return p.prevClose
}

// MarketValue returns mark-to-market value, 0 for an empty position.
func (p *Position) MarketValue() float64 {
	if p.Quantity() == 0 {
		return 0
	}
	return p.LastPrice() * float64(p.Quantity())
}

// Equity returns the position's contribution to account equity.
func (p *Position) Equity() float64 { return p.MarketValue() }

// Margin returns the margin requirement. Close-only matching carries
// no margining, so this is 0 for every supported instrument kind.
func (p *Position) Margin() float64 { return 0 }

// TradingPnL returns the profit attributable to today's trades.
func (p *Position) TradingPnL() float64 {
	tradeQuantity := p.todayQuantity + (p.oldQuantity - p.logicalOldQuantity)
	if tradeQuantity == 0 {
		return 0
	}
	return (float64(tradeQuantity)*p.LastPrice() - p.tradeCost) * p.direction.Factor()
}

// PositionPnL returns the mark-to-market profit on the inventory held
// since the last settlement.
func (p *Position) PositionPnL() float64 {
	if p.logicalOldQuantity == 0 {
		return 0
	}
	return float64(p.logicalOldQuantity) * (p.LastPrice() - p.PrevClose()) * p.direction.Factor()
}

// PnL returns the cumulative unrealized profit of the position.
func (p *Position) PnL() float64 {
	if p.Quantity() == 0 {
		return 0
	}
	return (p.LastPrice() - p.avgPrice) * float64(p.Quantity()) * p.direction.Factor()
}

func (p *Position) unfilledCloseQuantity(effects ...models.PositionEffect) int64 {
	var sum int64
	for _, o := range p.openOrders.OpenOrders(p.orderBookID) {
		if o.PositionDirection() != p.direction {
			continue
		}
		for _, e := range effects {
			if o.PositionEffect() == e {
				sum += o.UnfilledQuantity()
				break
			}
		}
	}
	return sum
}

// Closable returns the quantity that can still be closed: held
// quantity minus open closing orders, minus the T+1 lock when active.
func (p *Position) Closable() int64 {
	pending := p.unfilledCloseQuantity(models.EffectClose, models.EffectCloseToday, models.EffectExercise)
	closable := p.Quantity() - pending
	if p.tPlus > 0 {
		closable -= p.nonClosable
	}
	return closable
}

// TodayClosable returns today's quantity not already spoken for by
// open close-today orders.
func (p *Position) TodayClosable() int64 {
	return p.todayQuantity - p.unfilledCloseQuantity(models.EffectCloseToday)
}

// CalcCloseTodayAmount returns how much of a closing trade draws on
// today's inventory. Equity-like positions close FIFO against today
// implicitly and report 0; future-like positions report the overlap.
func (p *Position) CalcCloseTodayAmount(amount int64) int64 {
	if p.kind != models.KindFuture {
		return 0
	}
	if amount < p.todayQuantity {
		return amount
	}
	return p.todayQuantity
}

// BeforeTrading is the corporate-action hook (dividends, splits). The
// base engine does nothing here; it returns the cash delta to credit.
func (p *Position) BeforeTrading() float64 { return 0 }

// ApplyTrade mutates the position for one execution and returns the
// cash delta. OPEN grows today's inventory at a cash-weighted average
// price (resetting on a flip through zero); CLOSE draws down today's
// inventory first, then settled inventory.
func (p *Position) ApplyTrade(t *models.Trade) (float64, error) {
	switch t.PositionEffect {
	case models.EffectOpen:
		p.transactionCost += t.TransactionCost()
		if p.Quantity() < 0 {
			if p.Quantity()+t.LastQuantity > 0 {
				p.avgPrice = t.LastPrice
			} else {
				p.avgPrice = 0
			}
		} else {
			cost := float64(p.Quantity())*p.avgPrice + float64(t.LastQuantity)*t.LastPrice
			p.avgPrice = cost / float64(p.Quantity()+t.LastQuantity)
		}
		p.todayQuantity += t.LastQuantity
		p.tradeCost += t.LastPrice * float64(t.LastQuantity)
		if p.tPlus > 0 {
			p.nonClosable += t.LastQuantity
		}
		return -t.LastPrice*float64(t.LastQuantity) - t.TransactionCost(), nil
	case models.EffectClose, models.EffectCloseToday:
		p.transactionCost += t.TransactionCost()
		fromOld := t.LastQuantity
		if fromOld > p.oldQuantity {
			fromOld = p.oldQuantity
		}
		p.todayQuantity -= t.LastQuantity - fromOld
		p.oldQuantity -= fromOld
		p.tradeCost -= t.LastPrice * float64(t.LastQuantity)
		return t.LastPrice*float64(t.LastQuantity) - t.TransactionCost(), nil
	default:
		return 0, errors.NewConfigError(
			fmt.Sprintf("position %s/%s, effect %s", p.orderBookID, p.direction, t.PositionEffect),
			errors.ErrUnsupportedEffect)
	}
}

// Settlement rolls today's quantity into the settled quantity,
// snapshots the logical old quantity, zeroes the per-day accumulators
// and re-bases the previous close. It returns the cash delta (always 0
// in the base engine).
func (p *Position) Settlement() float64 {
	p.oldQuantity += p.todayQuantity
	p.logicalOldQuantity = p.oldQuantity
	p.todayQuantity = 0
	p.tradeCost = 0
	p.transactionCost = 0
	p.nonClosable = 0
	if p.Quantity() != 0 {
		p.prevClose = p.LastPrice()
	}
	return 0
}

// PositionState is the snapshot form of a Position.
type PositionState struct {
	OldQuantity        int64   `json:"old_quantity"`
	LogicalOldQuantity int64   `json:"logical_old_quantity"`
	TodayQuantity      int64   `json:"today_quantity"`
	NonClosable        int64   `json:"non_closable"`
	AvgPrice           float64 `json:"avg_price"`
	TradeCost          float64 `json:"trade_cost"`
	TransactionCost    float64 `json:"transaction_cost"`
	PrevClose          float64 `json:"prev_close"`
}

// State captures the position as primitives.
func (p *Position) State() PositionState {
	return PositionState{
		OldQuantity:        p.oldQuantity,
		LogicalOldQuantity: p.logicalOldQuantity,
		TodayQuantity:      p.todayQuantity,
		NonClosable:        p.nonClosable,
		AvgPrice:           p.avgPrice,
		TradeCost:          p.tradeCost,
		TransactionCost:    p.transactionCost,
		PrevClose:          p.prevClose,
	}
}

// Restore rebuilds the position from a snapshot.
func (p *Position) Restore(s PositionState) {
	p.oldQuantity = s.OldQuantity
	p.logicalOldQuantity = s.LogicalOldQuantity
	p.todayQuantity = s.TodayQuantity
	p.nonClosable = s.NonClosable
	p.avgPrice = s.AvgPrice
	p.tradeCost = s.TradeCost
	p.transactionCost = s.TransactionCost
	p.prevClose = s.PrevClose
	p.lastPrice = math.NaN()
}
