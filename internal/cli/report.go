package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"barsim/internal/config"
	"barsim/internal/store"
)

// NewReportCmd creates the report command.
func NewReportCmd(app *App) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "List archived runs, or show one run's trades and final state",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = filepath.Join(config.DefaultConfigDir(), "runs.db")
			}
			archive, err := store.NewRunStore(dbPath)
			if err != nil {
				return err
			}
			defer archive.Close()

			ctx := context.Background()
			if len(args) == 0 {
				return listRuns(ctx, archive)
			}
			return showRun(ctx, archive, args[0])
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "run archive path (default: <config-dir>/runs.db)")
	return cmd
}

func listRuns(ctx context.Context, archive *store.RunStore) error {
	runs, err := archive.Runs(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No archived runs.")
		return nil
	}
	color.Cyan("Archived Runs")
	fmt.Println("─────────────────────────────────────────")
	for _, id := range runs {
		fmt.Println(id)
	}
	return nil
}

func showRun(ctx context.Context, archive *store.RunStore, runID string) error {
	steps, err := archive.Steps(ctx, runID)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return fmt.Errorf("run %q has no snapshots", runID)
	}

	state, err := archive.LoadSnapshot(ctx, runID, steps[len(steps)-1])
	if err != nil {
		return err
	}
	trades, err := archive.Trades(ctx, runID)
	if err != nil {
		return err
	}

	color.Cyan("Run %s", runID)
	fmt.Println("─────────────────────────────────────────")
	fmt.Printf("%-20s %d\n", "Steps:", len(steps))
	fmt.Printf("%-20s %d\n", "Trades:", len(trades))
	fmt.Printf("%-20s %.2f\n", "Units:", state.Units)
	fmt.Printf("%-20s %.6f\n", "Unit net value:", state.LastUnitNetValue)
	fmt.Println()

	if len(trades) > 0 {
		color.Cyan("Trades")
		fmt.Printf("%-12s %-6s %-12s %12s %10s %10s\n",
			"instrument", "side", "effect", "price", "quantity", "fees")
		fmt.Println("─────────────────────────────────────────────────────────────────")
		for _, t := range trades {
			fmt.Printf("%-12s %-6s %-12s %12.2f %10d %10.2f\n",
				t.OrderBookID, t.Side, t.PositionEffect, t.LastPrice, t.LastQuantity, t.Commission+t.Tax)
		}
	}
	return nil
}
