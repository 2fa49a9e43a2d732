package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var collectHour string

// collectCmd runs one reading collection cycle, for manual backfill or
// operational recovery.
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one reading collection cycle",
	Long: `Collects readings for every active station for the given hour
(default: the current hour). The run is a no-op when the checkpoint
ledger already records the hour as complete.

Examples:
  aqmon collect
  aqmon collect --hour 2026-08-25T13:00:00Z`,
	RunE: runCollect,
}

func init() {
	collectCmd.Flags().StringVar(&collectHour, "hour", "", "target hour, RFC3339 (default: now)")
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	target := time.Now().UTC()
	if collectHour != "" {
		parsed, err := time.Parse(time.RFC3339, collectHour)
		if err != nil {
			return fmt.Errorf("invalid --hour %q: %w", collectHour, err)
		}
		target = parsed
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.readingCollector.CollectHour(cmd.Context(), target)
	if report != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	}
	return err
}
