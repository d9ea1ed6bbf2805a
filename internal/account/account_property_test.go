package account

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"barsim/internal/models"
)

// Property: trading at the current mark with zero fees never creates
// or destroys value. For any price and quantity, cash plus market
// value stays at the starting total after an open, and again after
// closing the whole position.
func TestProperty_TradesAtTheMarkConserveTotalValue(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	const startingCash = 1_000_000.0

	properties.Property("open and close conserve value", prop.ForAll(
		func(price float64, quantity int64) bool {
			market := &fakeMarket{last: map[string]float64{instrument: price}}
			a := New(models.AccountStock, startingCash, nil, 0, market, noOrders{}, zerolog.Nop())

			open, err := models.NewTrade(1, instrument, models.SideBuy, models.EffectOpen,
				price, quantity, price, 0, testDT, testDT)
			if err != nil {
				return false
			}
			a.ApplyTrade(open, nil)
			if math.Abs(a.TotalValue()-startingCash) > 1e-6*startingCash {
				return false
			}

			closing, err := models.NewTrade(2, instrument, models.SideSell, models.EffectClose,
				price, quantity, price, 0, testDT, testDT)
			if err != nil {
				return false
			}
			a.ApplyTrade(closing, nil)
			return math.Abs(a.TotalValue()-startingCash) < 1e-6*startingCash &&
				a.GetPosition(instrument, models.DirectionLong).Quantity() == 0
		},
		gen.Float64Range(0.01, 5_000),
		gen.Int64Range(1, 100_000),
	))

	properties.TestingRun(t)
}

// Property: applying the same execution any number of times is
// indistinguishable from applying it once.
func TestProperty_TradeApplicationIsIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("re-applied executions are no-ops", prop.ForAll(
		func(price float64, quantity int64, repeats int) bool {
			market := &fakeMarket{last: map[string]float64{instrument: price}}
			a := New(models.AccountStock, 1_000_000, nil, 0, market, noOrders{}, zerolog.Nop())

			trade, err := models.NewTrade(1, instrument, models.SideBuy, models.EffectOpen,
				price, quantity, price, 0, testDT, testDT)
			if err != nil {
				return false
			}
			a.ApplyTrade(trade, nil)
			cash := a.TotalCash()
			held := a.GetPosition(instrument, models.DirectionLong).Quantity()

			for i := 0; i < repeats; i++ {
				a.ApplyTrade(trade, nil)
			}
			return a.TotalCash() == cash &&
				a.GetPosition(instrument, models.DirectionLong).Quantity() == held
		},
		gen.Float64Range(0.01, 5_000),
		gen.Int64Range(1, 100_000),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}
