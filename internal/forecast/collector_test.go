package forecast_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evairo/aqmon/backend/internal/forecast"
	"github.com/evairo/aqmon/backend/internal/pipeline"
	"github.com/evairo/aqmon/backend/internal/provider"
	"github.com/evairo/aqmon/backend/internal/station"
	"github.com/evairo/aqmon/backend/internal/store/memory"
	"github.com/evairo/aqmon/backend/pkg/logger"
)

type forecastKey struct {
	stationIdx string
	day        string
}

// fakeForecastProvider serves canned payloads or errors per pair.
type fakeForecastProvider struct {
	mu       sync.Mutex
	payloads map[forecastKey]*provider.RawForecast
	errs     map[forecastKey]error
}

func (f *fakeForecastProvider) FetchForecast(_ context.Context, stationIdx string, day time.Time) (*provider.RawForecast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := forecastKey{stationIdx, day.UTC().Format("2006-01-02")}
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	if p, ok := f.payloads[key]; ok {
		return p, nil
	}
	return nil, &pipeline.TransientFetchError{Source: "fake", Err: fmt.Errorf("no payload for %s/%s", key.stationIdx, key.day)}
}

func rawForecast(stationIdx string, day time.Time, series ...float64) *provider.RawForecast {
	return &provider.RawForecast{
		StationIdx: stationIdx,
		Day:        day.UTC().Format("2006-01-02"),
		Hourly:     map[string][]float64{"pm25": series},
	}
}

func TestCollectForecasts_EndToEnd(t *testing.T) {
	day1 := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	stations := []station.Station{{StationIdx: "1437"}, {StationIdx: "1438"}}

	store := memory.NewForecastStore()
	prov := &fakeForecastProvider{
		payloads: map[forecastKey]*provider.RawForecast{
			{"1437", "2026-08-26"}: rawForecast("1437", day1, 10, 20, 30),
			{"1437", "2026-08-27"}: rawForecast("1437", day2, 15, 25),
			{"1438", "2026-08-26"}: rawForecast("1438", day1, 40),
		},
		errs: map[forecastKey]error{
			{"1438", "2026-08-27"}: &pipeline.TransientFetchError{Source: "fake", Err: errors.New("status 503")},
		},
	}

	col := forecast.NewCollector(store, prov, forecast.Config{Workers: 2}, logger.NewNop())

	report, err := col.CollectForecasts(context.Background(), stations, []time.Time{day1, day2})
	require.NoError(t, err)

	assert.Equal(t, 4, report.TotalPairs)
	assert.Equal(t, 3, report.Successful)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "1438", report.Failed[0].StationIdx)
	assert.True(t, report.Failed[0].Day.Equal(day2))
	assert.Equal(t, 3, report.ForecastsWritten)
	assert.Equal(t, 3, store.Count())

	stored, err := store.ForDays(context.Background(), []string{"1437"}, []time.Time{day1})
	require.NoError(t, err)
	f := stored[forecast.KeyOf("1437", day1)]
	assert.Equal(t, forecast.PollutantStats{Avg: 20, Min: 10, Max: 30}, f.Pollutants["pm25"])
}

func TestCollectForecasts_OverwritesChangedPair(t *testing.T) {
	day := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	stations := []station.Station{{StationIdx: "1437"}}

	store := memory.NewForecastStore()
	prov := &fakeForecastProvider{
		payloads: map[forecastKey]*provider.RawForecast{
			{"1437", "2026-08-26"}: rawForecast("1437", day, 10, 20),
		},
	}
	col := forecast.NewCollector(store, prov, forecast.Config{}, logger.NewNop())

	_, err := col.CollectForecasts(context.Background(), stations, []time.Time{day})
	require.NoError(t, err)

	// Changed prediction: same pair overwritten, still one document.
	prov.mu.Lock()
	prov.payloads[forecastKey{"1437", "2026-08-26"}] = rawForecast("1437", day, 30, 50)
	prov.mu.Unlock()

	report, err := col.CollectForecasts(context.Background(), stations, []time.Time{day})
	require.NoError(t, err)
	assert.Equal(t, 1, report.ForecastsWritten)
	assert.Equal(t, 1, store.Count(), "one document per (station, day)")

	stored, err := store.ForDays(context.Background(), []string{"1437"}, []time.Time{day})
	require.NoError(t, err)
	assert.Equal(t, forecast.PollutantStats{Avg: 40, Min: 30, Max: 50}, stored[forecast.KeyOf("1437", day)].Pollutants["pm25"])
}

func TestCollectForecasts_SkipsUnchangedPair(t *testing.T) {
	day := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	stations := []station.Station{{StationIdx: "1437"}}

	store := memory.NewForecastStore()
	prov := &fakeForecastProvider{
		payloads: map[forecastKey]*provider.RawForecast{
			{"1437", "2026-08-26"}: rawForecast("1437", day, 10, 20),
		},
	}
	col := forecast.NewCollector(store, prov, forecast.Config{}, logger.NewNop())

	_, err := col.CollectForecasts(context.Background(), stations, []time.Time{day})
	require.NoError(t, err)

	report, err := col.CollectForecasts(context.Background(), stations, []time.Time{day})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Successful)
	assert.Equal(t, 1, report.Unchanged)
	assert.Zero(t, report.ForecastsWritten)
}

func TestCollectForecasts_EmptyInput(t *testing.T) {
	col := forecast.NewCollector(memory.NewForecastStore(), &fakeForecastProvider{}, forecast.Config{}, logger.NewNop())

	report, err := col.CollectForecasts(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Zero(t, report.TotalPairs)
}
