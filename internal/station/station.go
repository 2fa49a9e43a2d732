// Package station manages the monitored station set: the catalog
// reconciler and the station repository.
package station

import (
	"context"
	"time"
)

// Station is a monitored sensor location identified by a stable
// external index. The pipeline never deletes stations; deactivation is
// a flag flip owned by the catalog.
type Station struct {
	StationIdx      string     `json:"station_idx"`
	Name            string     `json:"name"`
	City            string     `json:"city"`
	Latitude        float64    `json:"latitude"`
	Longitude       float64    `json:"longitude"`
	Active          bool       `json:"active"`
	LatestReadingAt *time.Time `json:"latest_reading_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Record is one entry of an external station catalog.
type Record struct {
	StationIdx string  `json:"station_idx"`
	Name       string  `json:"name"`
	City       string  `json:"city"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Active     *bool   `json:"active,omitempty"` // nil means leave unchanged (default true on insert)
}

// Store is the persistence contract for stations.
type Store interface {
	// Get returns the station or nil when absent.
	Get(ctx context.Context, stationIdx string) (*Station, error)

	// Upsert inserts or overwrites catalog metadata keyed by
	// station_idx. It never touches latest_reading_at.
	Upsert(ctx context.Context, s *Station) error

	// Active returns all active stations.
	Active(ctx context.Context) ([]Station, error)

	// ByCity returns active stations in a city.
	ByCity(ctx context.Context, city string) ([]Station, error)

	// AdvanceLatestReading moves latest_reading_at forward to ts.
	// It is a no-op when the stored value is already newer.
	AdvanceLatestReading(ctx context.Context, stationIdx string, ts time.Time) error
}

// sameMetadata reports whether the catalog record would change anything
// on the stored station.
func sameMetadata(s *Station, r Record) bool {
	if s.Name != r.Name || s.City != r.City {
		return false
	}
	if s.Latitude != r.Latitude || s.Longitude != r.Longitude {
		return false
	}
	if r.Active != nil && s.Active != *r.Active {
		return false
	}
	return true
}
