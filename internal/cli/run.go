package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"barsim/internal/account"
	"barsim/internal/config"
	"barsim/internal/costs"
	"barsim/internal/models"
	"barsim/internal/sim"
	"barsim/internal/store"
)

// NewRunCmd creates the run command: an equal-weight rebalancing
// backtest over the configured bar source, archived step by step.
func NewRunCmd(app *App) *cobra.Command {
	var (
		noStore bool
		dbPath  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a backtest over the configured bar source",
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := app.loadSource()
			if err != nil {
				return err
			}

			cfg := app.Config
			cc := cfg.Costs
			registry := costs.NewRegistry()
			registry.Register(models.KindCommonStock,
				costs.NewStockDecider(cc.CommissionRate, cc.CommissionMultiplier, cc.MinCommission, cc.TaxRate, cc.TaxMultiplier))
			registry.Register(models.KindETF,
				costs.NewStockDecider(cc.CommissionRate, cc.CommissionMultiplier, cc.MinCommission, 0, 0))
			registry.Register(models.KindIndex, costs.ZeroDecider{})

			opts := sim.Options{
				Source: source,
				StartingCash: map[models.AccountKind]float64{
					models.AccountStock: cfg.Simulation.StartingCash,
				},
				Mode:     cfg.MatchingMode(),
				LookBack: cfg.Simulation.LookBack,
				LotSize:  cfg.Simulation.LotSize,
				TPlus:    cfg.Simulation.TPlus,
				Costs:    registry,
				Logger:   app.Logger,
			}

			var env *sim.Env
			if cfg.ForwardReward() {
				env, err = sim.NewRLEnv(opts)
			} else {
				env, err = sim.NewEnv(opts)
			}
			if err != nil {
				return err
			}

			var archive *store.RunStore
			runID := uuid.NewString()
			if !noStore {
				if dbPath == "" {
					dbPath = filepath.Join(config.DefaultConfigDir(), "runs.db")
				}
				archive, err = store.NewRunStore(dbPath)
				if err != nil {
					return err
				}
				defer archive.Close()
				if err := archive.CreateRun(context.Background(), runID,
					cfg.MatchingMode(), cfg.Simulation.RewardMode, cfg.Simulation.StartingCash); err != nil {
					return err
				}
			}

			return runBacktest(app, env, archive, runID)
		},
	}

	cmd.Flags().BoolVar(&noStore, "no-store", false, "do not archive the run")
	cmd.Flags().StringVar(&dbPath, "db", "", "run archive path (default: <config-dir>/runs.db)")
	return cmd
}

// runBacktest drives an equal-weight buy-and-hold strategy: rebalance
// once on the first bar, then hold until the calendar is exhausted.
func runBacktest(app *App, env *sim.Env, archive *store.RunStore, runID string) error {
	s := env.Simulation()
	builder := s.Intents(models.AccountStock)
	ids := s.AvailableInstruments()
	weights := make(map[string]float64, len(ids))
	for _, id := range ids {
		weights[id] = 1.0 / float64(len(ids)+1)
	}

	start := time.Now()
	var (
		step   int
		reward float64
		done   bool
		info   sim.StepInfo
	)
	for !done {
		var action []*models.Order
		if step == 0 {
			orders, err := builder.OrderTargetWeights(weights)
			if err != nil {
				return err
			}
			action = orders
		}

		var err error
		_, reward, done, info, err = env.Step(action)
		if err != nil {
			return err
		}

		if archive != nil {
			ctx := context.Background()
			if err := archive.SaveSnapshot(ctx, runID, step, s.TradingDT(), s.Portfolio().State()); err != nil {
				return err
			}
		}
		app.Logger.Debug().Int("step", step).Float64("reward", reward).Msg("step complete")
		step++
	}

	if archive != nil {
		ctx := context.Background()
		for _, t := range s.Tracker().Trades() {
			if err := archive.LogTrade(ctx, runID, t); err != nil {
				return err
			}
		}
	}

	printSummary(s.Portfolio(), info, step, time.Since(start), runID, archive != nil)
	return nil
}

func printSummary(p *account.Portfolio, info sim.StepInfo, steps int, elapsed time.Duration, runID string, archived bool) {
	fmt.Println()
	color.Cyan("Backtest Summary")
	fmt.Println("─────────────────────────────────────────")
	fmt.Printf("%-20s %d\n", "Steps:", steps)
	fmt.Printf("%-20s %s\n", "Elapsed:", elapsed.Round(time.Millisecond))
	fmt.Printf("%-20s %.2f\n", "Total value:", p.TotalValue())
	fmt.Printf("%-20s %.4f%%\n", "Total returns:", p.TotalReturns()*100)
	fmt.Printf("%-20s %.6f\n", "Returns mean:", info.ReturnsMean)
	fmt.Printf("%-20s %.4f\n", "Unit Sharpe:", info.UnitSharpeRatio)
	fmt.Printf("%-20s %.4f%%\n", "Max drawdown:", info.MaxDrawDown*100)
	fmt.Printf("%-20s %.2f\n", "Transaction cost:", p.TransactionCost())
	fmt.Println()
	if p.TotalReturns() >= 0 {
		color.Green("✓ Final P&L: %+.2f", p.PnL())
	} else {
		color.Red("✗ Final P&L: %+.2f", p.PnL())
	}
	if archived {
		color.Yellow("Run archived as %s", runID)
	}
}
