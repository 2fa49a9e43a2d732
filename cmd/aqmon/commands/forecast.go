package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/evairo/aqmon/backend/internal/forecast"
)

var forecastDays int

// forecastCmd runs one forecast collection cycle for the next N days.
var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Run one forecast collection cycle",
	Long: `Collects forecasts for every active station over the next N days,
starting tomorrow. Each (station, day) pair is overwritten in place.

Examples:
  aqmon forecast
  aqmon forecast --days 5`,
	RunE: runForecast,
}

func init() {
	forecastCmd.Flags().IntVar(&forecastDays, "days", 0, "number of days to forecast (default from config)")
	rootCmd.AddCommand(forecastCmd)
}

func runForecast(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	days := forecastDays
	if days <= 0 {
		days = a.cfg.Collector.ForecastDays
	}

	stations, err := a.stations.Active(cmd.Context())
	if err != nil {
		return fmt.Errorf("load active stations: %w", err)
	}

	today := forecast.NormalizeDay(time.Now())
	targets := make([]time.Time, 0, days)
	for i := 0; i < days; i++ {
		targets = append(targets, today.AddDate(0, 0, i+1))
	}

	report, err := a.forecastCollector.CollectForecasts(cmd.Context(), stations, targets)
	if report != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	}
	return err
}
