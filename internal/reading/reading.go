// Package reading implements the hourly reading model and the core
// collection run.
package reading

import (
	"context"
	"fmt"
	"time"

	"github.com/evairo/aqmon/backend/internal/pipeline"
	"github.com/evairo/aqmon/backend/internal/provider"
)

// AQI bounds. Computed values outside this range are rejected, not
// clamped; the unit of work is skipped and counted as failed.
const (
	AQIMin = 0
	AQIMax = 500
)

// Reading is one time-series observation for a station at an hour
// boundary, keyed by (station_idx, ts).
type Reading struct {
	StationIdx string             `json:"station_idx"`
	TS         time.Time          `json:"ts"`
	AQI        int                `json:"aqi"`
	Dominant   string             `json:"dominant"`
	Pollutants map[string]float64 `json:"pollutants"`
	FetchedAt  time.Time          `json:"fetched_at"`
}

// EqualContent reports whether two readings carry identical measured
// content. FetchedAt is bookkeeping and does not count.
func (r *Reading) EqualContent(other *Reading) bool {
	if other == nil {
		return false
	}
	if r.StationIdx != other.StationIdx || !r.TS.Equal(other.TS) {
		return false
	}
	if r.AQI != other.AQI || r.Dominant != other.Dominant {
		return false
	}
	if len(r.Pollutants) != len(other.Pollutants) {
		return false
	}
	for name, v := range r.Pollutants {
		ov, ok := other.Pollutants[name]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// Store is the persistence contract for readings.
type Store interface {
	// Get returns the reading for (station_idx, ts) or nil when absent.
	Get(ctx context.Context, stationIdx string, ts time.Time) (*Reading, error)

	// Upsert inserts or overwrites keyed by (station_idx, ts).
	Upsert(ctx context.Context, r *Reading) error

	// LatestByStation returns the most recent reading for a station,
	// or nil when the station has none.
	LatestByStation(ctx context.Context, stationIdx string) (*Reading, error)

	// Since returns readings for a station from ts onward, ascending.
	Since(ctx context.Context, stationIdx string, ts time.Time) ([]Reading, error)
}

// NormalizeHour truncates t to the top of the UTC hour.
func NormalizeHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// ComputeAQI derives the AQI from pollutant sub-indices: the maximum
// sub-index wins and names the dominant pollutant. Values outside
// [AQIMin, AQIMax] are rejected.
func ComputeAQI(pollutants map[string]float64) (int, string, error) {
	if len(pollutants) == 0 {
		return 0, "", &pipeline.ValidationError{Field: "pollutants", Reason: "no sub-indices"}
	}

	maxVal := float64(AQIMin - 1)
	dominant := ""
	for name, v := range pollutants {
		if v < AQIMin || v > AQIMax {
			return 0, "", &pipeline.ValidationError{
				Field:  "pollutants." + name,
				Reason: fmt.Sprintf("sub-index %.1f outside [%d, %d]", v, AQIMin, AQIMax),
			}
		}
		if v > maxVal || (v == maxVal && name < dominant) {
			maxVal = v
			dominant = name
		}
	}

	return int(maxVal + 0.5), dominant, nil
}

// Normalize converts a validated provider payload into a Reading with
// the timestamp truncated to the source's hourly granularity.
func Normalize(raw *provider.RawReading, fetchedAt time.Time) (*Reading, error) {
	if err := raw.Validate(); err != nil {
		return nil, err
	}

	ts, err := raw.ParsedTime()
	if err != nil {
		return nil, &pipeline.ValidationError{Field: "time", Reason: err.Error()}
	}

	aqi, dominant, err := ComputeAQI(raw.Pollutants)
	if err != nil {
		return nil, err
	}

	pollutants := make(map[string]float64, len(raw.Pollutants))
	for name, v := range raw.Pollutants {
		pollutants[name] = v
	}

	return &Reading{
		StationIdx: raw.StationIdx,
		TS:         NormalizeHour(ts),
		AQI:        aqi,
		Dominant:   dominant,
		Pollutants: pollutants,
		FetchedAt:  fetchedAt.UTC(),
	}, nil
}
