package provider

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/evairo/aqmon/backend/internal/pipeline"
)

// RawReading is the provider's current-conditions payload for one
// station, validated at the ingestion boundary before anything
// downstream touches it.
type RawReading struct {
	StationIdx string             `json:"station_idx" validate:"required"`
	Time       string             `json:"time" validate:"required"`
	Pollutants map[string]float64 `json:"pollutants" validate:"required,min=1"`
}

// RawForecast is the provider's forecast payload for one station/day
// pair. Hourly carries per-pollutant hourly sub-index series for the
// requested day.
type RawForecast struct {
	StationIdx string               `json:"station_idx" validate:"required"`
	Day        string               `json:"day" validate:"required"`
	Hourly     map[string][]float64 `json:"hourly" validate:"required,min=1"`
}

// StationRecord is one entry of the provider's station catalog.
type StationRecord struct {
	StationIdx string  `json:"station_idx"`
	Name       string  `json:"name"`
	City       string  `json:"city"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

// envelope is the provider's standard response wrapper.
type envelope[T any] struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

var validate = validator.New()

// Validate rejects malformed reading payloads. Coercion of missing
// fields is deliberately not attempted.
func (r *RawReading) Validate() error {
	if err := validate.Struct(r); err != nil {
		return &pipeline.ValidationError{Field: "reading", Reason: err.Error()}
	}
	if _, err := r.ParsedTime(); err != nil {
		return &pipeline.ValidationError{Field: "time", Reason: err.Error()}
	}
	return nil
}

// ParsedTime parses the payload timestamp (RFC3339).
func (r *RawReading) ParsedTime() (time.Time, error) {
	return time.Parse(time.RFC3339, r.Time)
}

// Validate rejects malformed forecast payloads.
func (f *RawForecast) Validate() error {
	if err := validate.Struct(f); err != nil {
		return &pipeline.ValidationError{Field: "forecast", Reason: err.Error()}
	}
	if _, err := f.ParsedDay(); err != nil {
		return &pipeline.ValidationError{Field: "day", Reason: err.Error()}
	}
	for name, series := range f.Hourly {
		if len(series) == 0 {
			return &pipeline.ValidationError{Field: "hourly." + name, Reason: "empty series"}
		}
	}
	return nil
}

// ParsedDay parses the payload calendar date (UTC).
func (f *RawForecast) ParsedDay() (time.Time, error) {
	return time.Parse("2006-01-02", f.Day)
}
