package models

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: splitting an order into two fills always ends FILLED with
// the filled quantity equal to the order quantity, and the average
// price stays inside the envelope of the fill prices.
func TestProperty_FillsAccumulateToOrderQuantity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("two fills complete the order", prop.ForAll(
		func(quantity int64, split int64, p1, p2 float64) bool {
			first := split % quantity
			if first == 0 {
				first = 1
			}
			o := NewMarketOrder("000001.XSHE", quantity, SideBuy, EffectOpen, testDT, testDT)
			o.Activate()
			if err := o.SetFrozenPrice(p1); err != nil {
				return false
			}

			t1, err := NewTrade(o.ID(), o.OrderBookID(), o.Side(), o.PositionEffect(), p1, first, p1, 0, testDT, testDT)
			if err != nil {
				return false
			}
			t2, err := NewTrade(o.ID(), o.OrderBookID(), o.Side(), o.PositionEffect(), p2, quantity-first, p1, 0, testDT, testDT)
			if err != nil {
				return false
			}
			if err := o.Fill(t1); err != nil {
				return false
			}
			if err := o.Fill(t2); err != nil {
				return false
			}

			if o.Status() != OrderFilled || o.FilledQuantity() != quantity || o.UnfilledQuantity() != 0 {
				return false
			}
			lo, hi := math.Min(p1, p2), math.Max(p1, p2)
			return o.AvgPrice() >= lo-1e-9 && o.AvgPrice() <= hi+1e-9
		},
		gen.Int64Range(2, 100_000),
		gen.Int64Range(1, 100_000),
		gen.Float64Range(0.01, 5000),
		gen.Float64Range(0.01, 5000),
	))

	properties.TestingRun(t)
}

// Property: a final order refuses every further fill and keeps its
// state unchanged.
func TestProperty_FinalOrdersRejectFills(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("fills after finalization fail", prop.ForAll(
		func(quantity int64, price float64) bool {
			o := NewMarketOrder("000001.XSHE", quantity, SideSell, EffectClose, testDT, testDT)
			o.MarkCancelled("finalized for test")

			trade, err := NewTrade(o.ID(), o.OrderBookID(), o.Side(), o.PositionEffect(), price, quantity, price, 0, testDT, testDT)
			if err != nil {
				return false
			}
			if err := o.Fill(trade); err == nil {
				return false
			}
			return o.FilledQuantity() == 0 && o.Status() == OrderCancelled
		},
		gen.Int64Range(1, 100_000),
		gen.Float64Range(0.01, 5000),
	))

	properties.TestingRun(t)
}
