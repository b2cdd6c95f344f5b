package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftline-systems/driftline/internal/seeder"
)

var (
	seedCaptureURL    string
	seedToken         string
	seedCount         int
	seedSessions      int
	seedInterval      time.Duration
	seedDuplicateRate float64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate synthetic capture traffic",
	Long: `Generate and send synthetic captures against a running engine.

Examples:
  # 500 captures across 20 simulated sessions
  driftline seed --count 500 --sessions 20

  # Slow drip with duplicates to exercise the dedup window
  driftline seed --count 100 --interval 250ms --duplicate-rate 0.2`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringVar(&seedCaptureURL, "url", "http://localhost:8080/v1/captures", "capture endpoint URL")
	seedCmd.Flags().StringVarP(&seedToken, "token", "t", "", "capture bearer token")
	seedCmd.Flags().IntVarP(&seedCount, "count", "c", 100, "number of captures to send")
	seedCmd.Flags().IntVarP(&seedSessions, "sessions", "s", 10, "number of simulated visitor sessions")
	seedCmd.Flags().DurationVarP(&seedInterval, "interval", "i", 0, "delay between captures")
	seedCmd.Flags().Float64Var(&seedDuplicateRate, "duplicate-rate", 0.1, "fraction of captures resubmitted verbatim")
}

func runSeed(cmd *cobra.Command, args []string) error {
	if seedDuplicateRate < 0 || seedDuplicateRate >= 1 {
		return fmt.Errorf("duplicate-rate must be in [0, 1), got %.2f", seedDuplicateRate)
	}

	runner := seeder.NewRunner(&seeder.Config{
		CaptureURL:    seedCaptureURL,
		Token:         seedToken,
		Count:         seedCount,
		Sessions:      seedSessions,
		Interval:      seedInterval,
		DuplicateRate: seedDuplicateRate,
	})

	if err := runner.Run(); err != nil {
		return fmt.Errorf("seeder failed: %w", err)
	}
	return nil
}
