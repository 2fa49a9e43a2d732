package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evairo/aqmon/backend/internal/station"
)

var (
	stationsCity    string
	stationsCatalog string
)

// stationsCmd groups station registry operations.
var stationsCmd = &cobra.Command{
	Use:   "stations",
	Short: "Manage the station registry",
}

// stationsSyncCmd reconciles the registry against a catalog: either the
// provider's station listing or a local JSON file.
var stationsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync the station registry from a catalog",
	Long: `Reconciles the station registry against a catalog. By default the
catalog is fetched from the provider; --catalog reads a local JSON file
instead. Metadata is overwritten per station; reading history and
latest_reading_at are never touched.

Examples:
  aqmon stations sync
  aqmon stations sync --city seoul
  aqmon stations sync --catalog stations.json`,
	RunE: runStationsSync,
}

// stationsListCmd prints the active stations.
var stationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active stations",
	RunE:  runStationsList,
}

func init() {
	stationsSyncCmd.Flags().StringVar(&stationsCity, "city", "", "restrict the provider catalog to a city")
	stationsSyncCmd.Flags().StringVar(&stationsCatalog, "catalog", "", "read the catalog from a local JSON file")
	stationsCmd.AddCommand(stationsSyncCmd)
	stationsCmd.AddCommand(stationsListCmd)
	rootCmd.AddCommand(stationsCmd)
}

func runStationsSync(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var records []station.Record
	if stationsCatalog != "" {
		data, err := os.ReadFile(stationsCatalog)
		if err != nil {
			return fmt.Errorf("read catalog file: %w", err)
		}
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("parse catalog file: %w", err)
		}
	} else {
		catalog, err := a.provider.FetchStations(cmd.Context(), stationsCity)
		if err != nil {
			return fmt.Errorf("fetch provider catalog: %w", err)
		}
		for _, rec := range catalog {
			records = append(records, station.Record{
				StationIdx: rec.StationIdx,
				Name:       rec.Name,
				City:       rec.City,
				Latitude:   rec.Latitude,
				Longitude:  rec.Longitude,
			})
		}
	}

	result, err := a.registry.Reconcile(cmd.Context(), records)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

func runStationsList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stations, err := a.stations.Active(cmd.Context())
	if err != nil {
		return fmt.Errorf("load active stations: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(stations)
}
