package account

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"barsim/internal/bus"
	"barsim/internal/models"
)

// Account is a named pool of positions plus cash for one asset class.
// ApplyTrade is the single mutation entry point for position state; it
// is idempotent per execution id via the backward trade set.
type Account struct {
	kind        models.AccountKind
	totalCash   float64
	frozenCash  float64
	positions   map[string]map[models.Direction]*Position
	backwardSet map[string]struct{}

	// tPlus applies the same-day-close restriction to every equity
	// position in this account.
	tPlus int

	market     MarketView
	openOrders OpenOrderQuery
	logger     zerolog.Logger
}

// New creates an account with starting cash and optional initial
// positions (positive quantity long, negative short).
func New(kind models.AccountKind, totalCash float64, initPositions map[string]int64, tPlus int, market MarketView, openOrders OpenOrderQuery, logger zerolog.Logger) *Account {
	a := &Account{
		kind:        kind,
		totalCash:   totalCash,
		positions:   make(map[string]map[models.Direction]*Position),
		backwardSet: make(map[string]struct{}),
		tPlus:       tPlus,
		market:      market,
		openOrders:  openOrders,
		logger:      logger.With().Str("account", string(kind)).Logger(),
	}
	for orderBookID, quantity := range initPositions {
		direction := models.DirectionLong
		if quantity < 0 {
			direction = models.DirectionShort
			quantity = -quantity
		}
		a.getOrCreate(orderBookID, direction, quantity)
	}
	return a
}

// Name implements bus.Ledger.
func (a *Account) Name() string { return string(a.kind) }

// Kind returns the account's asset class.
func (a *Account) Kind() models.AccountKind { return a.kind }

// Register subscribes the account's listeners. Last-price refresh is
// prepended on BAR so every later BAR listener sees fresh marks.
func (a *Account) Register(b *bus.Bus) {
	b.Subscribe(bus.KindTrade, func(ev bus.Event) bool {
		te := ev.(bus.TradeEvent)
		if acct, ok := te.Account.(*Account); ok && acct == a {
			a.ApplyTrade(te.Trade, te.Order)
		}
		return false
	})
	b.Subscribe(bus.KindOrderPendingNew, a.onOrderPendingNew)
	b.Subscribe(bus.KindOrderCreationReject, a.onOrderUnsolicitedUpdate)
	b.Subscribe(bus.KindOrderCancellationPass, a.onOrderUnsolicitedUpdate)
	b.Subscribe(bus.KindOrderUnsolicitedUpdate, a.onOrderUnsolicitedUpdate)
	b.Subscribe(bus.KindPreBeforeTrading, func(bus.Event) bool {
		a.beforeTrading()
		return false
	})
	b.Subscribe(bus.KindSettlement, func(bus.Event) bool {
		a.settle()
		return false
	})
	// Marks must also be fresh at PRE_BAR, where the forward reward is
	// sampled before the main bar event runs.
	b.Prepend(bus.KindPreBar, func(bus.Event) bool {
		a.updateLastPrices()
		return false
	})
	b.Prepend(bus.KindBar, func(bus.Event) bool {
		a.updateLastPrices()
		return false
	})
}

// GetPosition returns the position for the instrument and direction.
// Unknown instruments yield a detached empty position.
func (a *Account) GetPosition(orderBookID string, direction models.Direction) *Position {
	if directions, ok := a.positions[orderBookID]; ok {
		return directions[direction]
	}
	return newPosition(orderBookID, direction, a.instrumentKind(orderBookID), a.tPlus, 0, a.market, a.openOrders)
}

// Positions returns every position, ordered by instrument then
// direction for deterministic iteration.
func (a *Account) Positions() []*Position {
	ids := make([]string, 0, len(a.positions))
	for orderBookID := range a.positions {
		ids = append(ids, orderBookID)
	}
	sort.Strings(ids)
	out := make([]*Position, 0, 2*len(ids))
	for _, orderBookID := range ids {
		for _, direction := range models.Directions {
			out = append(out, a.positions[orderBookID][direction])
		}
	}
	return out
}

// CalcCloseTodayAmount reports how much of a closing quantity draws on
// today's inventory for the given instrument and direction.
func (a *Account) CalcCloseTodayAmount(orderBookID string, amount int64, direction models.Direction) int64 {
	return a.getOrCreate(orderBookID, direction, 0).CalcCloseTodayAmount(amount)
}

// FrozenCash returns cash reserved against active open orders.
func (a *Account) FrozenCash() float64 { return a.frozenCash }

// TotalCash returns cash net of margin.
func (a *Account) TotalCash() float64 { return a.totalCash - a.Margin() }

// Cash returns cash available for new orders.
func (a *Account) Cash() float64 { return a.totalCash - a.Margin() - a.frozenCash }

// MarketValue returns the signed mark-to-market value of all
// positions.
func (a *Account) MarketValue() float64 {
	var sum float64
	for _, p := range a.Positions() {
		sum += p.MarketValue() * p.direction.Factor()
	}
	return sum
}

// Equity returns the equity of all positions.
func (a *Account) Equity() float64 {
	var sum float64
	for _, p := range a.Positions() {
		sum += p.Equity()
	}
	return sum
}

// Margin returns the total margin requirement.
func (a *Account) Margin() float64 {
	var sum float64
	for _, p := range a.Positions() {
		sum += p.Margin()
	}
	return sum
}

// TransactionCost returns today's accumulated fees.
func (a *Account) TransactionCost() float64 {
	var sum float64
	for _, p := range a.Positions() {
		sum += p.TransactionCost()
	}
	return sum
}

// TradingPnL returns today's trading profit.
func (a *Account) TradingPnL() float64 {
	var sum float64
	for _, p := range a.Positions() {
		sum += p.TradingPnL()
	}
	return sum
}

// PositionPnL returns today's mark-to-market profit on settled
// inventory.
func (a *Account) PositionPnL() float64 {
	var sum float64
	for _, p := range a.Positions() {
		sum += p.PositionPnL()
	}
	return sum
}

// DailyPnL returns trading plus position profit net of fees.
func (a *Account) DailyPnL() float64 {
	return a.TradingPnL() + a.PositionPnL() - a.TransactionCost()
}

// TotalValue returns cash plus equity.
func (a *Account) TotalValue() float64 { return a.totalCash + a.Equity() }

// ApplyTrade applies an execution to the ledger: releases the matching
// frozen cash, mutates the position, and moves cash. Re-applying a
// trade with a known exec id leaves state unchanged.
func (a *Account) ApplyTrade(t *models.Trade, o *models.Order) {
	if _, applied := a.backwardSet[t.ExecID]; applied {
		return
	}
	if o != nil && t.PositionEffect != models.EffectMatch {
		if t.LastQuantity != o.Quantity() {
			a.frozenCash -= float64(t.LastQuantity) / float64(o.Quantity()) * a.frozenCashOfOrder(o)
		} else {
			a.frozenCash -= a.frozenCashOfOrder(o)
		}
	}
	delta, err := a.getOrCreate(t.OrderBookID, t.PositionDirection(), 0).ApplyTrade(t)
	if err != nil {
		// unreachable when trades come from the matcher, which
		// validates effects before constructing them
		panic(err)
	}
	a.totalCash += delta
	a.backwardSet[t.ExecID] = struct{}{}
}

func (a *Account) onOrderPendingNew(ev bus.Event) bool {
	oe := ev.(bus.OrderEvent)
	if acct, ok := oe.Account.(*Account); !ok || acct != a {
		return false
	}
	a.frozenCash += a.frozenCashOfOrder(oe.Order)
	return false
}

func (a *Account) onOrderUnsolicitedUpdate(ev bus.Event) bool {
	oe := ev.(bus.OrderEvent)
	if acct, ok := oe.Account.(*Account); !ok || acct != a {
		return false
	}
	o := oe.Order
	if o.FilledQuantity() != 0 {
		a.frozenCash -= float64(o.UnfilledQuantity()) / float64(o.Quantity()) * a.frozenCashOfOrder(o)
	} else {
		a.frozenCash -= a.frozenCashOfOrder(o)
	}
	return false
}

func (a *Account) beforeTrading() {
	for _, p := range a.Positions() {
		a.totalCash += p.BeforeTrading()
	}
}

// settle rolls every position over, prunes empty positions, clears the
// idempotence set, and applies the forced-liquidation safeguard.
func (a *Account) settle() {
	for _, p := range a.Positions() {
		a.totalCash += p.Settlement()
	}
	for orderBookID, directions := range a.positions {
		empty := true
		for _, p := range directions {
			if p.Quantity() != 0 || p.Equity() != 0 {
				empty = false
				break
			}
		}
		if empty {
			delete(a.positions, orderBookID)
		}
	}
	a.backwardSet = make(map[string]struct{})

	if a.TotalValue() <= 0 {
		if len(a.positions) > 0 {
			a.logger.Warn().Float64("total_value", a.TotalValue()).
				Msg("forced liquidation: clearing positions and cash")
		}
		a.positions = make(map[string]map[models.Direction]*Position)
		a.totalCash = 0
	}
}

func (a *Account) updateLastPrices() {
	for orderBookID, directions := range a.positions {
		price := a.market.LastPrice(orderBookID)
		if math.IsNaN(price) {
			continue
		}
		for _, p := range directions {
			p.UpdateLastPrice(price)
		}
	}
}

// frozenCashOfOrder reserves the full notional at the frozen price for
// opening orders; closing orders reserve nothing.
func (a *Account) frozenCashOfOrder(o *models.Order) float64 {
	if o.PositionEffect() != models.EffectOpen {
		return 0
	}
	return o.FrozenPrice() * float64(o.Quantity())
}

func (a *Account) instrumentKind(string) models.InstrumentKind {
	if a.kind == models.AccountFuture {
		return models.KindFuture
	}
	return models.KindCommonStock
}

func (a *Account) getOrCreate(orderBookID string, direction models.Direction, initQuantity int64) *Position {
	directions, ok := a.positions[orderBookID]
	if !ok {
		kind := a.instrumentKind(orderBookID)
		var longInit, shortInit int64
		if direction == models.DirectionLong {
			longInit = initQuantity
		} else {
			shortInit = initQuantity
		}
		directions = map[models.Direction]*Position{
			models.DirectionLong:  newPosition(orderBookID, models.DirectionLong, kind, a.tPlus, longInit, a.market, a.openOrders),
			models.DirectionShort: newPosition(orderBookID, models.DirectionShort, kind, a.tPlus, shortInit, a.market, a.openOrders),
		}
		a.positions[orderBookID] = directions
	}
	return directions[direction]
}

// AccountState is the snapshot form of an Account.
type AccountState struct {
	TotalCash      float64                              `json:"total_cash"`
	FrozenCash     float64                              `json:"frozen_cash"`
	BackwardTrades []string                             `json:"backward_trade_set"`
	Positions      map[string]map[string]PositionState `json:"positions"`
}

// State captures the account as nested primitives.
func (a *Account) State() AccountState {
	s := AccountState{
		TotalCash:      a.totalCash,
		FrozenCash:     a.frozenCash,
		BackwardTrades: make([]string, 0, len(a.backwardSet)),
		Positions:      make(map[string]map[string]PositionState, len(a.positions)),
	}
	for execID := range a.backwardSet {
		s.BackwardTrades = append(s.BackwardTrades, execID)
	}
	sort.Strings(s.BackwardTrades)
	for orderBookID, directions := range a.positions {
		s.Positions[orderBookID] = map[string]PositionState{
			string(models.DirectionLong):  directions[models.DirectionLong].State(),
			string(models.DirectionShort): directions[models.DirectionShort].State(),
		}
	}
	return s
}

// Restore rebuilds the account from a snapshot.
func (a *Account) Restore(s AccountState) {
	a.totalCash = s.TotalCash
	a.frozenCash = s.FrozenCash
	a.backwardSet = make(map[string]struct{}, len(s.BackwardTrades))
	for _, execID := range s.BackwardTrades {
		a.backwardSet[execID] = struct{}{}
	}
	a.positions = make(map[string]map[models.Direction]*Position, len(s.Positions))
	for orderBookID, directions := range s.Positions {
		for _, direction := range models.Directions {
			p := a.getOrCreate(orderBookID, direction, 0)
			if ps, ok := directions[string(direction)]; ok {
				p.Restore(ps)
			}
		}
	}
}
