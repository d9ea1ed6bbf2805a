package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"barsim/internal/account"
	"barsim/internal/errors"
	"barsim/internal/models"
)

func newTestStore(t *testing.T) *RunStore {
	t.Helper()
	s, err := NewRunStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testState() account.PortfolioState {
	return account.PortfolioState{
		StaticUnitNetValue: 1.0,
		LastUnitNetValue:   1.05,
		Units:              1_000_000,
		Accounts: map[string]account.AccountState{
			"STOCK": {
				TotalCash:      500_000,
				FrozenCash:     0,
				BackwardTrades: []string{"exec-1"},
				Positions: map[string]map[string]account.PositionState{
					"000001.XSHE": {
						"LONG": {
							OldQuantity:        25_000,
							LogicalOldQuantity: 25_000,
							AvgPrice:           20,
							PrevClose:          22,
						},
					},
				},
			},
		},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, "run-1", models.MatchCurrentBarClose, "daily", 1_000_000))

	dt := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveSnapshot(ctx, "run-1", 0, dt, testState()))

	got, err := s.LoadSnapshot(ctx, "run-1", 0)
	require.NoError(t, err)
	require.Equal(t, testState(), got)
}

func TestSaveSnapshotOverwritesStep(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, "run-1", models.MatchCurrentBarClose, "daily", 1_000_000))

	dt := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveSnapshot(ctx, "run-1", 0, dt, account.PortfolioState{Units: 1}))
	require.NoError(t, s.SaveSnapshot(ctx, "run-1", 0, dt, account.PortfolioState{Units: 2}))

	got, err := s.LoadSnapshot(ctx, "run-1", 0)
	require.NoError(t, err)
	require.Equal(t, 2.0, got.Units)

	steps, err := s.Steps(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, []int{0}, steps)
}

func TestLoadSnapshotUnknownRun(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LoadSnapshot(context.Background(), "missing", 0)
	require.ErrorIs(t, err, errors.ErrRunNotFound)
}

func TestTradeLogRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, "run-1", models.MatchNextBarOpen, "forward", 1_000_000))

	dt := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	first := &models.Trade{
		ExecID:         "exec-1",
		OrderID:        1,
		OrderBookID:    "000001.XSHE",
		Side:           models.SideBuy,
		PositionEffect: models.EffectOpen,
		LastPrice:      20,
		LastQuantity:   100,
		Commission:     5,
		TradingDT:      dt,
	}
	second := &models.Trade{
		ExecID:         "exec-2",
		OrderID:        2,
		OrderBookID:    "000001.XSHE",
		Side:           models.SideSell,
		PositionEffect: models.EffectClose,
		LastPrice:      22,
		LastQuantity:   100,
		Commission:     5,
		Tax:            2.2,
		TradingDT:      dt.AddDate(0, 0, 1),
	}
	// Inserted out of order; reads are ordered by trading time.
	require.NoError(t, s.LogTrade(ctx, "run-1", second))
	require.NoError(t, s.LogTrade(ctx, "run-1", first))

	trades, err := s.Trades(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, trades, 2)

	require.Equal(t, "exec-1", trades[0].ExecID)
	require.Equal(t, models.SideBuy, trades[0].Side)
	require.Equal(t, 20.0, trades[0].LastPrice)
	require.Equal(t, int64(100), trades[0].LastQuantity)
	require.True(t, trades[0].TradingDT.Equal(dt))

	require.Equal(t, "exec-2", trades[1].ExecID)
	require.Equal(t, models.EffectClose, trades[1].PositionEffect)
	require.Equal(t, 2.2, trades[1].Tax)
}

func TestTradesScopedToRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, "run-1", models.MatchCurrentBarClose, "daily", 1_000_000))
	require.NoError(t, s.CreateRun(ctx, "run-2", models.MatchCurrentBarClose, "daily", 1_000_000))

	dt := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.LogTrade(ctx, "run-1", &models.Trade{
		ExecID: "exec-1", OrderID: 1, OrderBookID: "000001.XSHE",
		Side: models.SideBuy, PositionEffect: models.EffectOpen,
		LastPrice: 20, LastQuantity: 100, TradingDT: dt,
	}))

	trades, err := s.Trades(ctx, "run-2")
	require.NoError(t, err)
	require.Empty(t, trades)
}

func TestRunsListed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, "run-1", models.MatchCurrentBarClose, "daily", 1_000_000))
	require.NoError(t, s.CreateRun(ctx, "run-2", models.MatchNextBarOpen, "forward", 500_000))

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"run-1", "run-2"}, runs)
}
