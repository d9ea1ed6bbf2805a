// Package cli provides the command-line interface of the simulator.
package cli

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"barsim/internal/config"
	"barsim/internal/data"
	"barsim/internal/logging"
)

// Version information
const Version = "0.1.0"

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "barsim",
		Short: "barsim - deterministic bar-replay trading simulator",
		Long: `barsim replays historical bars through an event-driven broker and
ledger, one step per bar, for rule-based and RL trading strategies.

Use 'barsim run' to execute a backtest and 'barsim report' to inspect
archived runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/barsim)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(NewRunCmd(app))
	rootCmd.AddCommand(NewReportCmd(app))
	rootCmd.AddCommand(NewGenCmd(app))
	rootCmd.AddCommand(NewVersionCmd())
	return rootCmd
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("barsim %s\n", Version)
		},
	}
}

// loadSource builds the bar source the config points at.
func (app *App) loadSource() (*data.Frame, error) {
	dc := app.Config.Data
	if dc.SQLitePath != "" {
		app.Logger.Info().Str("path", dc.SQLitePath).Msg("loading bars from sqlite")
		return data.OpenSQLite(dc.SQLitePath)
	}
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, dc.BarCount-1)
	app.Logger.Info().Int("instruments", dc.InstrumentCount).Int("bars", dc.BarCount).
		Msg("generating mock bars")
	return data.GenerateFrame(dc.InstrumentCount, dc.FeatureCount, start, end, dc.Seed), nil
}
