package models

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// PositionEffect describes how a trade affects a position.
// MATCH is reserved for the matcher's internally generated
// close-and-open pair when flattening a position through zero.
type PositionEffect string

const (
	EffectOpen       PositionEffect = "OPEN"
	EffectClose      PositionEffect = "CLOSE"
	EffectCloseToday PositionEffect = "CLOSE_TODAY"
	EffectExercise   PositionEffect = "EXERCISE"
	EffectMatch      PositionEffect = "MATCH"
)

// Direction is the side of the book a position sits on.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Directions lists both position directions in a stable order.
var Directions = []Direction{DirectionLong, DirectionShort}

// Factor returns +1 for long positions and -1 for short positions.
func (d Direction) Factor() float64 {
	if d == DirectionShort {
		return -1
	}
	return 1
}

// OrderType is the pricing style of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus is the lifecycle state of an order. Transitions only
// move forward: PENDING_NEW -> ACTIVE -> {FILLED | REJECTED | CANCELLED},
// with ACTIVE -> PENDING_CANCEL -> CANCELLED as the cancellation path.
type OrderStatus string

const (
	OrderPendingNew    OrderStatus = "PENDING_NEW"
	OrderActive        OrderStatus = "ACTIVE"
	OrderFilled        OrderStatus = "FILLED"
	OrderRejected      OrderStatus = "REJECTED"
	OrderPendingCancel OrderStatus = "PENDING_CANCEL"
	OrderCancelled     OrderStatus = "CANCELLED"
)

// InstrumentKind tags the behavior class of a tradable instrument.
type InstrumentKind string

const (
	KindCommonStock InstrumentKind = "CS"
	KindETF         InstrumentKind = "ETF"
	KindIndex       InstrumentKind = "INDX"
	KindFuture      InstrumentKind = "Future"
)

// AccountKind names the pool an instrument's positions live in.
type AccountKind string

const (
	AccountStock  AccountKind = "STOCK"
	AccountFuture AccountKind = "FUTURE"
)

// AccountKindFor maps an instrument kind to the account that holds it.
func AccountKindFor(k InstrumentKind) AccountKind {
	if k == KindFuture {
		return AccountFuture
	}
	return AccountStock
}

// DirectionFor derives the position direction of an order or trade
// from its side and position effect.
func DirectionFor(side Side, effect PositionEffect) Direction {
	switch effect {
	case EffectClose, EffectCloseToday, EffectExercise:
		if side == SideBuy {
			return DirectionShort
		}
		return DirectionLong
	default:
		if side == SideBuy {
			return DirectionLong
		}
		return DirectionShort
	}
}

// MatchingMode selects how the matcher decides a deal price.
type MatchingMode string

const (
	MatchCurrentBarClose MatchingMode = "CURRENT_BAR_CLOSE"
	MatchNextBarOpen     MatchingMode = "NEXT_BAR_OPEN"
)

// TradingDaysAYear is used to annualize per-bar statistics.
const TradingDaysAYear = 252
