// Package forecast implements the daily forecast model and the
// lower-frequency forecast collection run.
package forecast

import (
	"context"
	"time"

	"github.com/evairo/aqmon/backend/internal/pipeline"
	"github.com/evairo/aqmon/backend/internal/provider"
)

// PollutantStats aggregates one pollutant's hourly series for a day.
type PollutantStats struct {
	Avg float64 `json:"avg"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Forecast is the predicted pollutant summary for a station on a
// calendar day, keyed by (station_idx, day). A later run for the same
// day overwrites the earlier one; past days are kept as history.
type Forecast struct {
	StationIdx        string                    `json:"station_idx"`
	Day               time.Time                 `json:"day"`
	Pollutants        map[string]PollutantStats `json:"pollutants"`
	FetchedAt         time.Time                 `json:"fetched_at"`
	LastForecastRunAt time.Time                 `json:"last_forecast_run_at"`
}

// Key identifies a (station, day) pair.
type Key struct {
	StationIdx string
	Day        time.Time
}

// KeyOf builds the pair key with the day normalized to midnight UTC.
func KeyOf(stationIdx string, day time.Time) Key {
	return Key{StationIdx: stationIdx, Day: NormalizeDay(day)}
}

// NormalizeDay truncates t to midnight UTC.
func NormalizeDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Store is the persistence contract for forecasts.
type Store interface {
	// ForDays returns existing forecasts for the given stations and
	// days in one query, keyed by (station_idx, day).
	ForDays(ctx context.Context, stationIdxs []string, days []time.Time) (map[Key]Forecast, error)

	// UpsertBatch inserts or overwrites forecasts keyed by
	// (station_idx, day) in a single round trip.
	UpsertBatch(ctx context.Context, forecasts []Forecast) error
}

// Aggregate reduces a validated provider payload into a Forecast by
// computing avg/min/max per pollutant.
func Aggregate(raw *provider.RawForecast, runAt time.Time) (*Forecast, error) {
	if err := raw.Validate(); err != nil {
		return nil, err
	}

	day, err := raw.ParsedDay()
	if err != nil {
		return nil, &pipeline.ValidationError{Field: "day", Reason: err.Error()}
	}

	pollutants := make(map[string]PollutantStats, len(raw.Hourly))
	for name, series := range raw.Hourly {
		stats := PollutantStats{Min: series[0], Max: series[0]}
		sum := 0.0
		for _, v := range series {
			sum += v
			if v < stats.Min {
				stats.Min = v
			}
			if v > stats.Max {
				stats.Max = v
			}
		}
		stats.Avg = sum / float64(len(series))
		pollutants[name] = stats
	}

	now := runAt.UTC()
	return &Forecast{
		StationIdx:        raw.StationIdx,
		Day:               NormalizeDay(day),
		Pollutants:        pollutants,
		FetchedAt:         now,
		LastForecastRunAt: now,
	}, nil
}
