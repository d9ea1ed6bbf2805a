package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"barsim/internal/errors"
)

// Trade is an immutable execution record. Trades are created only by
// the matcher; once published they must not be mutated.
type Trade struct {
	ExecID           string
	OrderID          uint64
	OrderBookID      string
	Side             Side
	PositionEffect   PositionEffect
	LastPrice        float64
	LastQuantity     int64
	Commission       float64
	Tax              float64
	CloseTodayAmount int64
	FrozenPrice      float64
	CalendarDT       time.Time
	TradingDT        time.Time
}

// NewTrade builds a trade for the given execution. NaN price, fee or
// frozen price is a construction error.
func NewTrade(orderID uint64, orderBookID string, side Side, effect PositionEffect, price float64, quantity int64, frozenPrice float64, closeToday int64, calendarDT, tradingDT time.Time) (*Trade, error) {
	for _, v := range []float64{price, frozenPrice} {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("trade for order %d [%s]: %w", orderID, orderBookID, errors.ErrInvalidPrice)
		}
	}
	return &Trade{
		ExecID:           uuid.NewString(),
		OrderID:          orderID,
		OrderBookID:      orderBookID,
		Side:             side,
		PositionEffect:   effect,
		LastPrice:        price,
		LastQuantity:     quantity,
		CloseTodayAmount: closeToday,
		FrozenPrice:      frozenPrice,
		CalendarDT:       calendarDT,
		TradingDT:        tradingDT,
	}, nil
}

// TransactionCost returns commission plus tax.
func (t *Trade) TransactionCost() float64 { return t.Commission + t.Tax }

// PositionDirection returns the direction of the position the trade
// acts on.
func (t *Trade) PositionDirection() Direction {
	return DirectionFor(t.Side, t.PositionEffect)
}
