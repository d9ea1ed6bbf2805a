// Package models holds the value records of the simulation: orders,
// trades, and the enums that describe them.
package models

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"barsim/internal/errors"
)

var orderIDSeq atomic.Uint64

func nextOrderID() uint64 {
	return orderIDSeq.Add(1)
}

// Order is a submitted instruction to trade. Its identity fields are
// fixed at creation; only the fill/status fields mutate, and status
// transitions are forward-only.
type Order struct {
	id             uint64
	calendarDT     time.Time
	tradingDT      time.Time
	orderBookID    string
	quantity       int64
	side           Side
	positionEffect PositionEffect
	orderType      OrderType
	frozenPrice    float64

	filledQuantity  int64
	avgPrice        float64
	transactionCost float64
	status          OrderStatus
	message         string
}

// NewMarketOrder creates a market order in PENDING_NEW state. The
// frozen price is assigned later, when the submission path observes a
// market price.
func NewMarketOrder(orderBookID string, quantity int64, side Side, effect PositionEffect, calendarDT, tradingDT time.Time) *Order {
	return &Order{
		id:             nextOrderID(),
		calendarDT:     calendarDT,
		tradingDT:      tradingDT,
		orderBookID:    orderBookID,
		quantity:       quantity,
		side:           side,
		positionEffect: effect,
		orderType:      OrderTypeMarket,
		status:         OrderPendingNew,
	}
}

// NewLimitOrder creates a limit order in PENDING_NEW state. A NaN or
// non-positive limit price is rejected.
func NewLimitOrder(orderBookID string, quantity int64, side Side, effect PositionEffect, limitPrice float64, calendarDT, tradingDT time.Time) (*Order, error) {
	if math.IsNaN(limitPrice) || limitPrice <= 0 {
		return nil, fmt.Errorf("limit price %v for %s: %w", limitPrice, orderBookID, errors.ErrInvalidPrice)
	}
	o := NewMarketOrder(orderBookID, quantity, side, effect, calendarDT, tradingDT)
	o.orderType = OrderTypeLimit
	o.frozenPrice = limitPrice
	return o, nil
}

// ID returns the monotonic order identifier.
func (o *Order) ID() uint64 { return o.id }

// OrderBookID returns the instrument code.
func (o *Order) OrderBookID() string { return o.orderBookID }

// Side returns the order side.
func (o *Order) Side() Side { return o.side }

// PositionEffect returns the order's position effect.
func (o *Order) PositionEffect() PositionEffect { return o.positionEffect }

// PositionDirection returns the direction of the position this order
// acts on.
func (o *Order) PositionDirection() Direction {
	return DirectionFor(o.side, o.positionEffect)
}

// Quantity returns the total order quantity.
func (o *Order) Quantity() int64 { return o.quantity }

// FilledQuantity returns the quantity filled so far.
func (o *Order) FilledQuantity() int64 { return o.filledQuantity }

// UnfilledQuantity returns the remaining quantity.
func (o *Order) UnfilledQuantity() int64 { return o.quantity - o.filledQuantity }

// Type returns MARKET or LIMIT.
func (o *Order) Type() OrderType { return o.orderType }

// Status returns the current lifecycle state.
func (o *Order) Status() OrderStatus { return o.status }

// Message returns the human-readable reason attached by a rejection
// or cancellation.
func (o *Order) Message() string { return o.message }

// AvgPrice returns the running weighted mean fill price over
// non-MATCH trades.
func (o *Order) AvgPrice() float64 { return o.avgPrice }

// TransactionCost returns accumulated commission plus tax.
func (o *Order) TransactionCost() float64 { return o.transactionCost }

// FrozenPrice is the limit price, or the market price frozen at
// submission for cash-reservation purposes.
func (o *Order) FrozenPrice() float64 { return o.frozenPrice }

// SetFrozenPrice freezes the cash-reservation price of a market order.
// A NaN price is rejected.
func (o *Order) SetFrozenPrice(price float64) error {
	if math.IsNaN(price) {
		return fmt.Errorf("frozen price for order %d: %w", o.id, errors.ErrInvalidPrice)
	}
	o.frozenPrice = price
	return nil
}

// CreatedAt returns the calendar timestamp of creation.
func (o *Order) CreatedAt() time.Time { return o.calendarDT }

// TradingDT returns the trading timestamp the order belongs to.
func (o *Order) TradingDT() time.Time { return o.tradingDT }

// IsFinal reports whether the order reached a terminal state.
func (o *Order) IsFinal() bool {
	switch o.status {
	case OrderFilled, OrderRejected, OrderCancelled:
		return true
	}
	return false
}

// IsActive reports whether the order is live on the book.
func (o *Order) IsActive() bool { return o.status == OrderActive }

// IsPendingCancel reports whether cancellation has been requested.
func (o *Order) IsPendingCancel() bool { return o.status == OrderPendingCancel }

// Activate moves a pending-new order onto the book.
func (o *Order) Activate() {
	if o.status == OrderPendingNew {
		o.status = OrderActive
	}
}

// SetPendingCancel flags cancellation intent. The order is actually
// removed on the next matching pass. No-op once final.
func (o *Order) SetPendingCancel() {
	if !o.IsFinal() {
		o.status = OrderPendingCancel
	}
}

// MarkRejected finalizes the order with a rejection reason. No-op once
// final.
func (o *Order) MarkRejected(reason string) {
	if !o.IsFinal() {
		o.message = reason
		o.status = OrderRejected
	}
}

// MarkCancelled finalizes the order with a cancellation reason. No-op
// once final.
func (o *Order) MarkCancelled(reason string) {
	if !o.IsFinal() {
		o.message = reason
		o.status = OrderCancelled
	}
}

// Fill applies a trade to the order, advancing filled quantity and the
// weighted average fill price. Filling beyond the order quantity or
// filling a final order is an error.
func (o *Order) Fill(t *Trade) error {
	if o.IsFinal() {
		return errors.NewOrderError(o.id, o.orderBookID, errors.ErrOrderFinal)
	}
	if o.filledQuantity+t.LastQuantity > o.quantity {
		return errors.NewOrderError(o.id, o.orderBookID, errors.ErrOverfill)
	}
	newQuantity := o.filledQuantity + t.LastQuantity
	o.transactionCost += t.Commission + t.Tax
	if t.PositionEffect != EffectMatch && newQuantity > 0 {
		o.avgPrice = (o.avgPrice*float64(o.filledQuantity) + t.LastPrice*float64(t.LastQuantity)) / float64(newQuantity)
	}
	o.filledQuantity = newQuantity
	if o.UnfilledQuantity() == 0 {
		o.status = OrderFilled
	}
	return nil
}

// OrderState is the snapshot form of an Order, made of primitives so a
// persistence layer can serialize it.
type OrderState struct {
	OrderID         uint64  `json:"order_id"`
	CalendarDT      int64   `json:"calendar_dt"`
	TradingDT       int64   `json:"trading_dt"`
	OrderBookID     string  `json:"order_book_id"`
	Quantity        int64   `json:"quantity"`
	Side            string  `json:"side"`
	PositionEffect  string  `json:"position_effect"`
	Type            string  `json:"type"`
	FrozenPrice     float64 `json:"frozen_price"`
	FilledQuantity  int64   `json:"filled_quantity"`
	AvgPrice        float64 `json:"avg_price"`
	TransactionCost float64 `json:"transaction_cost"`
	Status          string  `json:"status"`
	Message         string  `json:"message"`
}

// State captures the order as a snapshot of primitives.
func (o *Order) State() OrderState {
	return OrderState{
		OrderID:         o.id,
		CalendarDT:      o.calendarDT.Unix(),
		TradingDT:       o.tradingDT.Unix(),
		OrderBookID:     o.orderBookID,
		Quantity:        o.quantity,
		Side:            string(o.side),
		PositionEffect:  string(o.positionEffect),
		Type:            string(o.orderType),
		FrozenPrice:     o.frozenPrice,
		FilledQuantity:  o.filledQuantity,
		AvgPrice:        o.avgPrice,
		TransactionCost: o.transactionCost,
		Status:          string(o.status),
		Message:         o.message,
	}
}

// Restore rebuilds the order from a snapshot.
func (o *Order) Restore(s OrderState) {
	o.id = s.OrderID
	o.calendarDT = time.Unix(s.CalendarDT, 0).UTC()
	o.tradingDT = time.Unix(s.TradingDT, 0).UTC()
	o.orderBookID = s.OrderBookID
	o.quantity = s.Quantity
	o.side = Side(s.Side)
	o.positionEffect = PositionEffect(s.PositionEffect)
	o.orderType = OrderType(s.Type)
	o.frozenPrice = s.FrozenPrice
	o.filledQuantity = s.FilledQuantity
	o.avgPrice = s.AvgPrice
	o.transactionCost = s.TransactionCost
	o.status = OrderStatus(s.Status)
	o.message = s.Message
}
