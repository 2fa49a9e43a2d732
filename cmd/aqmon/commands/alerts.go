package commands

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// alertsCmd runs one alert evaluation cycle.
var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Run one alert evaluation cycle",
	Long: `Evaluates every active subscription against the latest readings and
dispatches threshold notifications, honoring the cooldown window.`,
	RunE: runAlerts,
}

func init() {
	rootCmd.AddCommand(alertsCmd)
}

func runAlerts(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.evaluator.Evaluate(cmd.Context(), time.Now().UTC())
	if report != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	}
	return err
}
