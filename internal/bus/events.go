package bus

import (
	"time"

	"barsim/internal/models"
)

// Kind identifies a lifecycle event.
type Kind int

const (
	KindPostSystemInit Kind = iota

	KindPreBeforeTrading
	KindBeforeTrading
	KindPostBeforeTrading

	KindPreBar
	KindBar
	KindPostBar

	KindPreAfterTrading
	KindAfterTrading
	KindPostAfterTrading

	KindPreSettlement
	KindSettlement
	KindPostSettlement

	KindOrderPendingNew
	KindOrderCreationPass
	KindOrderCreationReject
	KindOrderPendingCancel
	KindOrderCancellationPass
	KindOrderUnsolicitedUpdate

	KindTrade
)

var kindNames = map[Kind]string{
	KindPostSystemInit:         "post_system_init",
	KindPreBeforeTrading:       "pre_before_trading",
	KindBeforeTrading:          "before_trading",
	KindPostBeforeTrading:      "post_before_trading",
	KindPreBar:                 "pre_bar",
	KindBar:                    "bar",
	KindPostBar:                "post_bar",
	KindPreAfterTrading:        "pre_after_trading",
	KindAfterTrading:           "after_trading",
	KindPostAfterTrading:       "post_after_trading",
	KindPreSettlement:          "pre_settlement",
	KindSettlement:             "settlement",
	KindPostSettlement:         "post_settlement",
	KindOrderPendingNew:        "order_pending_new",
	KindOrderCreationPass:      "order_creation_pass",
	KindOrderCreationReject:    "order_creation_reject",
	KindOrderPendingCancel:     "order_pending_cancel",
	KindOrderCancellationPass:  "order_cancellation_pass",
	KindOrderUnsolicitedUpdate: "order_unsolicited_update",
	KindTrade:                  "trade",
}

func (k Kind) String() string { return kindNames[k] }

// Event is a dispatched message. Each lifecycle event has its own
// immutable variant struct so listeners see exactly the fields that
// exist for that kind. Events are ephemeral: the bus does not retain
// them after dispatch.
type Event interface {
	Kind() Kind
}

// Ledger is the opaque handle events use to address an account without
// the bus depending on the ledger package. Listeners compare it by
// identity against their own account.
type Ledger interface {
	Name() string
}

// PhaseEvent marks a lifecycle phase transition. It carries no payload
// beyond the simulation timestamps.
type PhaseEvent struct {
	K          Kind
	CalendarDT time.Time
	TradingDT  time.Time
}

// Kind returns the phase kind.
func (e PhaseEvent) Kind() Kind { return e.K }

// BarEvent is the MAIN bar event. The caller's action is attached only
// here; a nil action means "submit nothing".
type BarEvent struct {
	CalendarDT time.Time
	TradingDT  time.Time
	Action     []*models.Order
}

// Kind returns KindBar.
func (e BarEvent) Kind() Kind { return KindBar }

// OrderEvent reports an order lifecycle transition on an account.
type OrderEvent struct {
	K       Kind
	Account Ledger
	Order   *models.Order
}

// Kind returns the order event kind.
func (e OrderEvent) Kind() Kind { return e.K }

// TradeEvent reports an execution created by the matcher.
type TradeEvent struct {
	Account Ledger
	Order   *models.Order
	Trade   *models.Trade
}

// Kind returns KindTrade.
func (e TradeEvent) Kind() Kind { return KindTrade }
