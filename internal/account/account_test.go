package account

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"barsim/internal/bus"
	"barsim/internal/models"
)

var testDT = time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)

type fakeMarket struct {
	last map[string]float64
	prev map[string]float64
}

func (m *fakeMarket) LastPrice(orderBookID string) float64 {
	if p, ok := m.last[orderBookID]; ok {
		return p
	}
	return math.NaN()
}

func (m *fakeMarket) PrevClose(orderBookID string) float64 {
	if p, ok := m.prev[orderBookID]; ok {
		return p
	}
	return math.NaN()
}

type noOrders struct{}

func (noOrders) OpenOrders(string) []*models.Order { return nil }

const instrument = "000001.XSHE"

func newTestAccount(cash float64, tPlus int, market *fakeMarket) *Account {
	return New(models.AccountStock, cash, nil, tPlus, market, noOrders{}, zerolog.Nop())
}

func openTrade(t *testing.T, price float64, quantity int64) *models.Trade {
	t.Helper()
	trade, err := models.NewTrade(1, instrument, models.SideBuy, models.EffectOpen,
		price, quantity, price, 0, testDT, testDT)
	if err != nil {
		t.Fatalf("NewTrade: %v", err)
	}
	return trade
}

func closeTrade(t *testing.T, price float64, quantity int64) *models.Trade {
	t.Helper()
	trade, err := models.NewTrade(2, instrument, models.SideSell, models.EffectClose,
		price, quantity, price, 0, testDT, testDT)
	if err != nil {
		t.Fatalf("NewTrade: %v", err)
	}
	return trade
}

func TestApplyTradeOpenMovesCashIntoPosition(t *testing.T) {
	market := &fakeMarket{last: map[string]float64{instrument: 10}}
	a := newTestAccount(100_000, 0, market)

	a.ApplyTrade(openTrade(t, 10, 100), nil)

	if math.Abs(a.TotalCash()-99_000) > 1e-9 {
		t.Fatalf("cash = %v, want 99000", a.TotalCash())
	}
	p := a.GetPosition(instrument, models.DirectionLong)
	if p.Quantity() != 100 || p.TodayQuantity() != 100 {
		t.Fatalf("quantity = %d today = %d, want 100/100", p.Quantity(), p.TodayQuantity())
	}
	if math.Abs(p.AvgPrice()-10) > 1e-12 {
		t.Fatalf("avg price = %v, want 10", p.AvgPrice())
	}
	// trading at the mark with zero fees leaves total value unchanged
	if math.Abs(a.TotalValue()-100_000) > 1e-6 {
		t.Fatalf("total value = %v, want 100000", a.TotalValue())
	}
}

func TestApplyTradeCloseDrawsTodayFirst(t *testing.T) {
	market := &fakeMarket{last: map[string]float64{instrument: 10}}
	a := newTestAccount(100_000, 0, market)

	a.ApplyTrade(openTrade(t, 10, 100), nil)
	a.ApplyTrade(closeTrade(t, 10, 40), nil)

	p := a.GetPosition(instrument, models.DirectionLong)
	if p.Quantity() != 60 {
		t.Fatalf("quantity = %d, want 60", p.Quantity())
	}
	if p.TodayQuantity() != 60 || p.OldQuantity() != 0 {
		t.Fatalf("close must draw down today's inventory first: today=%d old=%d",
			p.TodayQuantity(), p.OldQuantity())
	}
	if math.Abs(a.TotalCash()-99_400) > 1e-9 {
		t.Fatalf("cash = %v, want 99400", a.TotalCash())
	}
}

func TestApplyTradeIdempotentPerExecID(t *testing.T) {
	market := &fakeMarket{last: map[string]float64{instrument: 10}}
	a := newTestAccount(100_000, 0, market)

	trade := openTrade(t, 10, 100)
	a.ApplyTrade(trade, nil)
	cash := a.TotalCash()
	quantity := a.GetPosition(instrument, models.DirectionLong).Quantity()

	a.ApplyTrade(trade, nil)

	if a.TotalCash() != cash {
		t.Fatalf("re-applied trade changed cash: %v -> %v", cash, a.TotalCash())
	}
	if got := a.GetPosition(instrument, models.DirectionLong).Quantity(); got != quantity {
		t.Fatalf("re-applied trade changed quantity: %d -> %d", quantity, got)
	}
}

func TestFrozenCashLifecycle(t *testing.T) {
	market := &fakeMarket{last: map[string]float64{instrument: 10}}
	a := newTestAccount(100_000, 0, market)
	b := bus.New()
	a.Register(b)

	o := models.NewMarketOrder(instrument, 200, models.SideBuy, models.EffectOpen, testDT, testDT)
	if err := o.SetFrozenPrice(10); err != nil {
		t.Fatalf("SetFrozenPrice: %v", err)
	}

	b.Publish(bus.OrderEvent{K: bus.KindOrderPendingNew, Account: a, Order: o})
	if math.Abs(a.FrozenCash()-2_000) > 1e-9 {
		t.Fatalf("frozen = %v, want 2000 reserved at the frozen price", a.FrozenCash())
	}
	if math.Abs(a.Cash()-98_000) > 1e-9 {
		t.Fatalf("available cash = %v, want 98000", a.Cash())
	}

	// partial fill releases the matching share of the reservation
	trade, err := models.NewTrade(o.ID(), instrument, o.Side(), o.PositionEffect(),
		10, 100, o.FrozenPrice(), 0, testDT, testDT)
	if err != nil {
		t.Fatalf("NewTrade: %v", err)
	}
	if err := o.Fill(trade); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	b.Publish(bus.TradeEvent{Account: a, Order: o, Trade: trade})
	if math.Abs(a.FrozenCash()-1_000) > 1e-9 {
		t.Fatalf("frozen after partial fill = %v, want 1000", a.FrozenCash())
	}

	// the unsolicited update on a partially filled order releases the rest
	b.Publish(bus.OrderEvent{K: bus.KindOrderUnsolicitedUpdate, Account: a, Order: o})
	if math.Abs(a.FrozenCash()) > 1e-9 {
		t.Fatalf("frozen after release = %v, want 0", a.FrozenCash())
	}
}

func TestCreationRejectReleasesFullReservation(t *testing.T) {
	market := &fakeMarket{last: map[string]float64{instrument: 10}}
	a := newTestAccount(100_000, 0, market)
	b := bus.New()
	a.Register(b)

	o := models.NewMarketOrder(instrument, 100, models.SideBuy, models.EffectOpen, testDT, testDT)
	if err := o.SetFrozenPrice(10); err != nil {
		t.Fatalf("SetFrozenPrice: %v", err)
	}
	b.Publish(bus.OrderEvent{K: bus.KindOrderPendingNew, Account: a, Order: o})
	b.Publish(bus.OrderEvent{K: bus.KindOrderCreationReject, Account: a, Order: o})

	if math.Abs(a.FrozenCash()) > 1e-9 {
		t.Fatalf("frozen = %v, want 0", a.FrozenCash())
	}
	if math.Abs(a.Cash()-100_000) > 1e-9 {
		t.Fatalf("cash = %v, want the full 100000 back", a.Cash())
	}
}

func TestClosingOrdersReserveNothing(t *testing.T) {
	market := &fakeMarket{last: map[string]float64{instrument: 10}}
	a := newTestAccount(100_000, 0, market)
	b := bus.New()
	a.Register(b)

	o := models.NewMarketOrder(instrument, 100, models.SideSell, models.EffectClose, testDT, testDT)
	if err := o.SetFrozenPrice(10); err != nil {
		t.Fatalf("SetFrozenPrice: %v", err)
	}
	b.Publish(bus.OrderEvent{K: bus.KindOrderPendingNew, Account: a, Order: o})

	if a.FrozenCash() != 0 {
		t.Fatalf("closing order froze %v, want 0", a.FrozenCash())
	}
}

func TestSettlementRollsTodayIntoOld(t *testing.T) {
	market := &fakeMarket{last: map[string]float64{instrument: 10}}
	a := newTestAccount(100_000, 0, market)
	b := bus.New()
	a.Register(b)

	a.ApplyTrade(openTrade(t, 10, 100), nil)

	b.Publish(bus.PhaseEvent{K: bus.KindSettlement, CalendarDT: testDT, TradingDT: testDT})

	p := a.GetPosition(instrument, models.DirectionLong)
	if p.OldQuantity() != 100 || p.TodayQuantity() != 0 {
		t.Fatalf("after settlement old=%d today=%d, want 100/0", p.OldQuantity(), p.TodayQuantity())
	}
	if math.Abs(p.PrevClose()-10) > 1e-12 {
		t.Fatalf("prev close rebased to %v, want the settlement mark 10", p.PrevClose())
	}
	if a.TransactionCost() != 0 {
		t.Fatalf("per-day fee accumulator must reset at settlement")
	}
}

func TestSettlementPrunesEmptyPositions(t *testing.T) {
	market := &fakeMarket{last: map[string]float64{instrument: 10}}
	a := newTestAccount(100_000, 0, market)
	b := bus.New()
	a.Register(b)

	a.ApplyTrade(openTrade(t, 10, 100), nil)
	a.ApplyTrade(closeTrade(t, 10, 100), nil)
	b.Publish(bus.PhaseEvent{K: bus.KindSettlement, CalendarDT: testDT, TradingDT: testDT})

	if got := len(a.Positions()); got != 0 {
		t.Fatalf("flat positions must be pruned at settlement, %d remain", got)
	}
}

func TestTPlusBlocksSameDayClose(t *testing.T) {
	market := &fakeMarket{last: map[string]float64{instrument: 10}}
	a := newTestAccount(100_000, 1, market)
	b := bus.New()
	a.Register(b)

	a.ApplyTrade(openTrade(t, 10, 100), nil)

	p := a.GetPosition(instrument, models.DirectionLong)
	if p.Closable() != 0 {
		t.Fatalf("T+1 closable = %d, want 0 on the open day", p.Closable())
	}

	b.Publish(bus.PhaseEvent{K: bus.KindSettlement, CalendarDT: testDT, TradingDT: testDT})
	if p.Closable() != 100 {
		t.Fatalf("T+1 closable after settlement = %d, want 100", p.Closable())
	}
}

func TestForcedLiquidationOnNonPositiveValue(t *testing.T) {
	market := &fakeMarket{last: map[string]float64{instrument: 4}}
	a := newTestAccount(1_000, 0, market)
	b := bus.New()
	a.Register(b)

	// buys 200 at 10 on borrowed cash; the mark is 4, so total value
	// ends at -1000 + 800 = -200
	a.ApplyTrade(openTrade(t, 10, 200), nil)

	b.Publish(bus.PhaseEvent{K: bus.KindSettlement, CalendarDT: testDT, TradingDT: testDT})

	if len(a.Positions()) != 0 {
		t.Fatalf("forced liquidation must clear every position")
	}
	if a.TotalValue() != 0 {
		t.Fatalf("total value after forced liquidation = %v, want 0", a.TotalValue())
	}
}

func TestGetPositionUnknownInstrumentIsDetached(t *testing.T) {
	market := &fakeMarket{last: map[string]float64{}}
	a := newTestAccount(100_000, 0, market)

	p := a.GetPosition("999999.XSHE", models.DirectionLong)
	if p == nil || p.Quantity() != 0 {
		t.Fatalf("unknown instrument should yield an empty position")
	}
	if len(a.Positions()) != 0 {
		t.Fatalf("reading a position must not create ledger state")
	}
}

func TestInitPositions(t *testing.T) {
	market := &fakeMarket{
		last: map[string]float64{instrument: 10},
		prev: map[string]float64{instrument: 10},
	}
	a := New(models.AccountStock, 100_000, map[string]int64{instrument: 300}, 0,
		market, noOrders{}, zerolog.Nop())

	p := a.GetPosition(instrument, models.DirectionLong)
	if p.OldQuantity() != 300 {
		t.Fatalf("seeded quantity = %d, want 300 settled", p.OldQuantity())
	}
	if math.Abs(a.TotalValue()-(100_000+3_000)) > 1e-9 {
		t.Fatalf("total value = %v, want 103000", a.TotalValue())
	}
}
