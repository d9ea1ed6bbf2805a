package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"barsim/internal/costs"
	"barsim/internal/data"
	"barsim/internal/errors"
	"barsim/internal/models"
)

const instrument = "000001.XSHE"

func day(n int) time.Time {
	return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// priceFrame builds a one-instrument frame with the given closes, one
// bar per day and a single constant feature column.
func priceFrame(t *testing.T, prices ...float64) *data.Frame {
	t.Helper()
	times := make([]time.Time, len(prices))
	rows := make([][]float64, len(prices))
	for i := range prices {
		times[i] = day(i)
		rows[i] = []float64{1}
	}
	f, err := data.NewFrame(
		[]string{instrument}, times, []string{"feature_1"},
		map[string][][]float64{instrument: rows},
		map[string][]float64{instrument: prices},
	)
	require.NoError(t, err)
	return f
}

func zeroRegistry() *costs.Registry {
	r := costs.NewRegistry()
	r.Register(models.KindCommonStock, costs.ZeroDecider{})
	return r
}

func TestSameBarStepBuysAndSettles(t *testing.T) {
	env, err := NewEnv(Options{
		Source: priceFrame(t, 20, 20, 20, 20),
		Costs:  zeroRegistry(),
	})
	require.NoError(t, err)

	obs := env.Reset()
	require.Len(t, obs.Times, 1)
	require.True(t, obs.Times[0].Equal(day(0)))

	order := env.Simulation().Intents(models.AccountStock).OrderValue(instrument, 500_000)
	require.NotNil(t, order)
	require.EqualValues(t, 25_000, order.Quantity())

	obs, reward, done, info, err := env.Step([]*models.Order{order})
	require.NoError(t, err)
	require.False(t, done)
	require.InDelta(t, 0, reward, 1e-9, "buying at the close of a flat bar earns nothing")
	require.Empty(t, info.Messages)

	p := env.Simulation().Portfolio()
	require.InDelta(t, 500_000, p.Cash(), 1e-6)
	held := p.Account(models.AccountStock).GetPosition(instrument, models.DirectionLong)
	require.EqualValues(t, 25_000, held.Quantity())
	// the fill settled, so the quantity is no longer intraday
	require.EqualValues(t, 0, held.TodayQuantity())

	// the observation advanced to the next bar
	require.True(t, obs.Times[len(obs.Times)-1].Equal(day(1)))
}

func TestSameBarRewardTracksNextBarMove(t *testing.T) {
	env, err := NewEnv(Options{
		Source: priceFrame(t, 20, 22, 22, 22),
		Costs:  zeroRegistry(),
	})
	require.NoError(t, err)

	order := env.Simulation().Intents(models.AccountStock).OrderValue(instrument, 500_000)
	require.NotNil(t, order)

	_, reward, _, _, err := env.Step([]*models.Order{order})
	require.NoError(t, err)
	require.InDelta(t, 0, reward, 1e-9)

	// the 20 -> 22 move marks the 25000 held shares up by 50000 on a
	// 1,000,000 portfolio
	_, reward, _, info, err := env.Step(nil)
	require.NoError(t, err)
	require.InDelta(t, 0.05, reward, 1e-9)
	require.InDelta(t, 50_000, info.ProfitAndLoss, 1e-6)
}

func TestForwardRewardObservedAtNextBar(t *testing.T) {
	env, err := NewRLEnv(Options{
		Source: priceFrame(t, 20, 22, 22, 22),
		Costs:  zeroRegistry(),
	})
	require.NoError(t, err)

	order := env.Simulation().Intents(models.AccountStock).OrderValue(instrument, 500_000)
	require.NotNil(t, order)

	// the same action is rewarded immediately with the forward move
	obs, reward, done, _, err := env.Step([]*models.Order{order})
	require.NoError(t, err)
	require.False(t, done)
	require.InDelta(t, 0.05, reward, 1e-9)
	// the clock already points at the next bar
	require.True(t, obs.Times[len(obs.Times)-1].Equal(day(1)))

	// flat prices afterwards sample zero
	_, reward, _, _, err = env.Step(nil)
	require.NoError(t, err)
	require.InDelta(t, 0, reward, 1e-9)
}

func TestRunToCompletion(t *testing.T) {
	env, err := NewEnv(Options{
		Source: priceFrame(t, 20, 20, 20, 20),
		Costs:  zeroRegistry(),
	})
	require.NoError(t, err)

	var done bool
	steps := 0
	for !done {
		_, _, done, _, err = env.Step(nil)
		require.NoError(t, err)
		steps++
		require.LessOrEqual(t, steps, 4)
	}
	require.Equal(t, 4, steps)

	_, _, _, _, err = env.Step(nil)
	require.ErrorIs(t, err, errors.ErrSimulationDone)
}

func TestForwardRunFinishesOneStepEarlier(t *testing.T) {
	env, err := NewRLEnv(Options{
		Source: priceFrame(t, 20, 20, 20, 20),
		Costs:  zeroRegistry(),
	})
	require.NoError(t, err)

	// the final bar has no following bar to judge an action by, so a
	// four-bar run takes three forward steps
	var done bool
	steps := 0
	for !done {
		_, _, done, _, err = env.Step(nil)
		require.NoError(t, err)
		steps++
		require.LessOrEqual(t, steps, 3)
	}
	require.Equal(t, 3, steps)
}

func TestLookBackWarmup(t *testing.T) {
	env, err := NewEnv(Options{
		Source:   priceFrame(t, 20, 20, 20, 20),
		Costs:    zeroRegistry(),
		LookBack: 2,
	})
	require.NoError(t, err)

	// the first bar only feeds the observation window
	obs := env.Reset()
	require.Len(t, obs.Times, 2)
	require.True(t, env.Simulation().TradingDT().Equal(day(1)))
	require.Len(t, env.Simulation().AvailableTradingTimes(), 3)
}

func TestOptionsValidation(t *testing.T) {
	_, err := NewEnv(Options{})
	require.Error(t, err, "a data source is required")

	_, err = NewEnv(Options{
		Source:   priceFrame(t, 20, 20),
		LookBack: 5,
	})
	require.Error(t, err, "look-back cannot exceed the data length")

	_, err = NewEnv(Options{
		Source: priceFrame(t, 20, 20),
		Mode:   "BOGUS",
	})
	require.ErrorIs(t, err, errors.ErrUnknownMatchingMode)
}

func TestStepSurfacesConfigError(t *testing.T) {
	// a registry with no decider for common stock breaks matching
	env, err := NewEnv(Options{
		Source: priceFrame(t, 20, 20, 20, 20),
		Costs:  costs.NewRegistry(),
	})
	require.NoError(t, err)

	order := models.NewMarketOrder(instrument, 100, models.SideBuy, models.EffectOpen, day(0), day(0))
	require.NoError(t, order.SetFrozenPrice(20))

	_, _, _, _, err = env.Step([]*models.Order{order})
	require.ErrorIs(t, err, errors.ErrNoCostDecider)
}

func TestNextBarOpenCarriesOrdersForward(t *testing.T) {
	env, err := NewEnv(Options{
		Source: priceFrame(t, 20, 25, 25, 25),
		Costs:  zeroRegistry(),
		Mode:   models.MatchNextBarOpen,
	})
	require.NoError(t, err)

	order := env.Simulation().Intents(models.AccountStock).OrderValue(instrument, 500_000)
	require.NotNil(t, order)
	require.EqualValues(t, 25_000, order.Quantity())

	// submitted on the first bar, parked on the delayed queue
	_, _, _, _, err = env.Step([]*models.Order{order})
	require.NoError(t, err)
	require.Equal(t, models.OrderPendingNew, order.Status())

	// matched on the second bar at its price
	_, _, _, _, err = env.Step(nil)
	require.NoError(t, err)
	require.Equal(t, models.OrderFilled, order.Status())
	require.InDelta(t, 25, order.AvgPrice(), 1e-9)

	p := env.Simulation().Portfolio()
	held := p.Account(models.AccountStock).GetPosition(instrument, models.DirectionLong)
	require.EqualValues(t, 25_000, held.Quantity())
}
