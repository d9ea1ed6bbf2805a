package broker

import (
	"github.com/rs/zerolog"

	"barsim/internal/account"
	"barsim/internal/bus"
	"barsim/internal/errors"
	"barsim/internal/models"
)

// AccountResolver routes an order to the ledger that owns its asset
// class. Satisfied by account.Portfolio.
type AccountResolver interface {
	AccountForInstrument(orderBookID string) *account.Account
}

type entry struct {
	account *account.Account
	order   *models.Order
}

// Broker owns the open-order book and drives the matcher from the bus
// lifecycle. With immediate matching (current-bar-close mode) a
// submitted order is activated and matched inside SubmitOrder; with
// delayed matching (next-bar-open mode) it parks on the delayed queue
// until the trading phase rolls over and matches on the following bar.
type Broker struct {
	bus      *bus.Bus
	matcher  *Matcher
	accounts AccountResolver
	logger   zerolog.Logger

	matchImmediately bool
	open             []entry
	delayed          []entry

	// first configuration error hit during bus-driven matching;
	// surfaced to the caller at the step boundary
	err error
}

// New creates a broker. Accounts are resolved lazily through
// BindAccounts because the portfolio is constructed after the broker.
func New(b *bus.Bus, m *Matcher, mode models.MatchingMode, logger zerolog.Logger) *Broker {
	br := &Broker{
		bus:              b,
		matcher:          m,
		logger:           logger,
		matchImmediately: mode == models.MatchCurrentBarClose,
	}
	b.Subscribe(bus.KindBeforeTrading, func(bus.Event) bool {
		br.beforeTrading()
		return false
	})
	b.Subscribe(bus.KindBar, func(bus.Event) bool {
		br.onBar()
		return false
	})
	b.Subscribe(bus.KindAfterTrading, func(bus.Event) bool {
		br.afterTrading()
		return false
	})
	return br
}

// BindAccounts wires the account resolver. Must be called before the
// first SubmitOrder.
func (b *Broker) BindAccounts(r AccountResolver) { b.accounts = r }

// OpenOrders returns the not-yet-final orders for an instrument,
// including the delayed queue. Implements account.OpenOrderQuery.
func (b *Broker) OpenOrders(orderBookID string) []*models.Order {
	var out []*models.Order
	for _, e := range b.open {
		if e.order.OrderBookID() == orderBookID && !e.order.IsFinal() {
			out = append(out, e.order)
		}
	}
	for _, e := range b.delayed {
		if e.order.OrderBookID() == orderBookID && !e.order.IsFinal() {
			out = append(out, e.order)
		}
	}
	return out
}

// SubmitOrder accepts an order into the book. The MATCH effect is
// reserved for option-exercise bookkeeping and is rejected at the
// gate. The PENDING_NEW event runs first so the owning ledger freezes
// cash before any matching can happen.
func (b *Broker) SubmitOrder(o *models.Order) error {
	if o.PositionEffect() == models.EffectMatch {
		return errors.NewOrderError(o.ID(), o.OrderBookID(), errors.ErrMatchEffectReserved)
	}
	acct := b.accounts.AccountForInstrument(o.OrderBookID())
	if acct == nil {
		return errors.NewOrderError(o.ID(), o.OrderBookID(), errors.ErrUnknownAccount)
	}

	b.logger.Debug().Uint64("order_id", o.ID()).Str("order_book_id", o.OrderBookID()).
		Str("side", string(o.Side())).Int64("quantity", o.Quantity()).Msg("submit order")
	b.bus.Publish(bus.OrderEvent{K: bus.KindOrderPendingNew, Account: acct, Order: o})
	if o.IsFinal() {
		// A listener rejected it at creation, e.g. insufficient cash.
		return nil
	}

	if !b.matchImmediately {
		b.delayed = append(b.delayed, entry{account: acct, order: o})
		return nil
	}
	o.Activate()
	b.bus.Publish(bus.OrderEvent{K: bus.KindOrderCreationPass, Account: acct, Order: o})
	b.open = append(b.open, entry{account: acct, order: o})
	return b.matchOpen()
}

// CancelOrder requests cancellation. The order flips to PENDING_CANCEL
// and is cancelled at the next matching pass; fills already in flight
// for this pass stand.
func (b *Broker) CancelOrder(o *models.Order) {
	acct := b.accounts.AccountForInstrument(o.OrderBookID())
	b.bus.Publish(bus.OrderEvent{K: bus.KindOrderPendingCancel, Account: acct, Order: o})
	o.SetPendingCancel()
}

func (b *Broker) beforeTrading() {
	for _, e := range b.open {
		if e.order.Status() == models.OrderPendingNew {
			e.order.Activate()
			b.bus.Publish(bus.OrderEvent{K: bus.KindOrderCreationPass, Account: e.account, Order: e.order})
		}
	}
}

func (b *Broker) onBar() {
	b.matcher.Update()
	if err := b.matchOpen(); err != nil && b.err == nil {
		// Matching errors are configuration mistakes (unknown cost
		// decider, unsupported effect) and cannot be recovered mid-run.
		b.logger.Error().Err(err).Msg("matching failed")
		b.err = err
	}
}

// Err returns the first fatal matching error of the run, if any.
func (b *Broker) Err() error { return b.err }

// afterTrading rejects every order still open at the close and
// promotes the delayed queue so next-bar-open orders become matchable
// on the following trading day.
func (b *Broker) afterTrading() {
	for _, e := range b.open {
		if e.order.IsFinal() {
			continue
		}
		e.order.MarkRejected("Order Rejected: " + e.order.OrderBookID() + " can not match. Market close.")
		b.bus.Publish(bus.OrderEvent{K: bus.KindOrderUnsolicitedUpdate, Account: e.account, Order: e.order})
	}
	b.open = b.open[:0]
	for _, e := range b.delayed {
		if e.order.IsFinal() {
			continue
		}
		b.open = append(b.open, e)
	}
	b.delayed = b.delayed[:0]
}

// matchOpen runs one matching pass. Pending cancels are finalized and
// swept before anything is offered to the matcher, so a cancel
// requested on this bar is never filled on this bar. Orders the
// matcher itself finalizes as rejected or cancelled are announced as
// unsolicited updates, which releases their frozen cash.
func (b *Broker) matchOpen() error {
	live := b.open[:0]
	for _, e := range b.open {
		if e.order.IsPendingCancel() {
			e.order.MarkCancelled("Order Cancelled: cancelled by user")
			b.bus.Publish(bus.OrderEvent{K: bus.KindOrderCancellationPass, Account: e.account, Order: e.order})
			continue
		}
		live = append(live, e)
	}
	b.open = live

	for _, e := range b.open {
		if e.order.IsFinal() {
			continue
		}
		if err := b.matcher.Match(e.account, e.order); err != nil {
			return err
		}
	}

	remaining := b.open[:0]
	for _, e := range b.open {
		if !e.order.IsFinal() {
			remaining = append(remaining, e)
			continue
		}
		switch e.order.Status() {
		case models.OrderRejected, models.OrderCancelled:
			b.bus.Publish(bus.OrderEvent{K: bus.KindOrderUnsolicitedUpdate, Account: e.account, Order: e.order})
		}
	}
	b.open = remaining
	return nil
}
