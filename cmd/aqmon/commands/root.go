package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "aqmon",
	Short: "Air-quality collection pipeline",
	Long: `aqmon - air-quality collection pipeline

Collects hourly station readings and daily forecasts from the external
air-quality provider, maintains the station registry, and evaluates
alert subscriptions against the latest readings.

Usage:
  go run ./cmd/aqmon [command]

Examples:
  go run ./cmd/aqmon start
  go run ./cmd/aqmon collect --hour 2026-08-25T13:00:00Z
  go run ./cmd/aqmon forecast --days 3
  go run ./cmd/aqmon stations sync --city seoul
  go run ./cmd/aqmon status`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
