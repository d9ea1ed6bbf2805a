package cli

import (
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"barsim/internal/data"
)

// NewGenCmd creates the gen command, which writes a mock bar database
// usable as data.sqlite_path in config.
func NewGenCmd(app *App) *cobra.Command {
	var (
		instruments int
		features    int
		bars        int
		seed        int64
		out         string
	)

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a mock bar database",
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
			end := start.AddDate(0, 0, bars-1)
			frame := data.GenerateFrame(instruments, features, start, end, seed)
			if err := data.SaveFrame(frame, out); err != nil {
				return err
			}
			color.Green("✓ wrote %d instruments × %d bars to %s", instruments, bars, out)
			return nil
		},
	}

	cmd.Flags().IntVar(&instruments, "instruments", 2, "number of instruments")
	cmd.Flags().IntVar(&features, "features", 3, "feature columns per bar")
	cmd.Flags().IntVar(&bars, "bars", 40, "number of daily bars")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	cmd.Flags().StringVar(&out, "out", "bars.db", "output database path")
	return cmd
}
