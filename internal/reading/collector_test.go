package reading_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evairo/aqmon/backend/internal/checkpoint"
	"github.com/evairo/aqmon/backend/internal/pipeline"
	"github.com/evairo/aqmon/backend/internal/provider"
	"github.com/evairo/aqmon/backend/internal/reading"
	"github.com/evairo/aqmon/backend/internal/station"
	"github.com/evairo/aqmon/backend/internal/store/memory"
	"github.com/evairo/aqmon/backend/pkg/logger"
)

// fakeProvider serves canned payloads or errors per station.
type fakeProvider struct {
	mu       sync.Mutex
	payloads map[string]*provider.RawReading
	errs     map[string]error
	calls    int
}

func (f *fakeProvider) FetchCurrentReading(_ context.Context, stationIdx string) (*provider.RawReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if err, ok := f.errs[stationIdx]; ok {
		return nil, err
	}
	if p, ok := f.payloads[stationIdx]; ok {
		return p, nil
	}
	return nil, &pipeline.TransientFetchError{Source: "fake", Err: fmt.Errorf("no payload for %s", stationIdx)}
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func rawReading(stationIdx string, hour time.Time, aqi float64) *provider.RawReading {
	return &provider.RawReading{
		StationIdx: stationIdx,
		Time:       hour.UTC().Format(time.RFC3339),
		Pollutants: map[string]float64{"pm25": aqi},
	}
}

func seedStations(t *testing.T, stations *memory.StationStore, idxs ...string) {
	t.Helper()
	for _, idx := range idxs {
		require.NoError(t, stations.Upsert(context.Background(), &station.Station{
			StationIdx: idx,
			Name:       "station " + idx,
			City:       "seoul",
			Active:     true,
		}))
	}
}

// failingReadingStore fails every write while reads pass through.
type failingReadingStore struct {
	*memory.ReadingStore
}

func (s *failingReadingStore) Upsert(context.Context, *reading.Reading) error {
	return errors.New("connection refused")
}

func TestCollectHour_EndToEnd(t *testing.T) {
	hour := time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC)
	stations := memory.NewStationStore()
	readings := memory.NewReadingStore()
	ledger := memory.NewLedger()
	seedStations(t, stations, "1437", "1438", "1439")

	prov := &fakeProvider{
		payloads: map[string]*provider.RawReading{
			"1437": rawReading("1437", hour.Add(12*time.Minute), 42),
			"1438": rawReading("1438", hour.Add(9*time.Minute), 151),
		},
		errs: map[string]error{
			"1439": &pipeline.TransientFetchError{Source: "fake", Err: errors.New("status 503")},
		},
	}

	col := reading.NewCollector(stations, readings, ledger, prov, reading.Config{Workers: 2}, logger.NewNop())

	report, err := col.CollectHour(context.Background(), hour.Add(25*time.Minute))
	require.NoError(t, err)

	assert.True(t, report.TargetHour.Equal(hour))
	assert.False(t, report.AlreadyComplete)
	assert.Equal(t, 3, report.TotalStations)
	assert.Equal(t, 2, report.SuccessfulStations)
	require.Len(t, report.FailedStations, 1)
	assert.Equal(t, "1439", report.FailedStations[0].StationIdx)
	assert.Equal(t, 2, report.ReadingsWritten)
	assert.Equal(t, 2, readings.Count())

	// The failure is recorded in the checkpoint, not swallowed.
	cp, err := ledger.Latest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.True(t, cp.TargetHour.Equal(hour))
	assert.Equal(t, 3, cp.Stats.TotalStations)
	assert.Equal(t, 1, cp.Stats.FailedStations)
	assert.False(t, cp.Complete())

	// The successful stations' cursors advanced.
	st, err := stations.Get(context.Background(), "1437")
	require.NoError(t, err)
	require.NotNil(t, st.LatestReadingAt)
	assert.True(t, st.LatestReadingAt.Equal(hour))

	st, err = stations.Get(context.Background(), "1439")
	require.NoError(t, err)
	assert.Nil(t, st.LatestReadingAt)
}

func TestCollectHour_SkipsCompleteHour(t *testing.T) {
	hour := time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC)
	stations := memory.NewStationStore()
	readings := memory.NewReadingStore()
	ledger := memory.NewLedger()
	seedStations(t, stations, "1437")

	require.NoError(t, ledger.Record(context.Background(), &checkpoint.Checkpoint{
		TargetHour: hour,
		CreatedAt:  hour.Add(5 * time.Minute),
		Stats:      checkpoint.Stats{TotalStations: 1, SuccessfulStations: 1, ReadingsWritten: 1},
	}))

	prov := &fakeProvider{}
	col := reading.NewCollector(stations, readings, ledger, prov, reading.Config{}, logger.NewNop())

	report, err := col.CollectHour(context.Background(), hour)
	require.NoError(t, err)

	assert.True(t, report.AlreadyComplete)
	assert.Zero(t, prov.callCount(), "a complete hour must not hit the provider")
	assert.Equal(t, 1, ledger.Len(), "no second checkpoint for a skipped run")
}

func TestCollectHour_ResumesIncompleteHour(t *testing.T) {
	hour := time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC)
	stations := memory.NewStationStore()
	readings := memory.NewReadingStore()
	ledger := memory.NewLedger()
	seedStations(t, stations, "1437", "1438")

	// First run: 1438 fails, leaving the hour incomplete.
	prov := &fakeProvider{
		payloads: map[string]*provider.RawReading{
			"1437": rawReading("1437", hour, 42),
		},
		errs: map[string]error{
			"1438": &pipeline.TransientFetchError{Source: "fake", Err: errors.New("status 503")},
		},
	}
	col := reading.NewCollector(stations, readings, ledger, prov, reading.Config{Workers: 2}, logger.NewNop())

	report, err := col.CollectHour(context.Background(), hour)
	require.NoError(t, err)
	require.Len(t, report.FailedStations, 1)
	assert.Equal(t, 1, report.ReadingsWritten)

	// Second run: the provider recovered. 1437's document is identical,
	// so only 1438 is written; the hour ends complete.
	prov.mu.Lock()
	delete(prov.errs, "1438")
	prov.payloads["1438"] = rawReading("1438", hour, 88)
	prov.mu.Unlock()

	report, err = col.CollectHour(context.Background(), hour)
	require.NoError(t, err)

	assert.False(t, report.AlreadyComplete)
	assert.Equal(t, 2, report.SuccessfulStations)
	assert.Empty(t, report.FailedStations)
	assert.Equal(t, 1, report.ReadingsWritten, "unchanged documents are not rewritten")
	assert.Equal(t, 2, readings.Count())

	cp, err := ledger.Latest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.True(t, cp.Complete())
	assert.Equal(t, 2, ledger.Len(), "each run appends its own checkpoint")
}

func TestCollectHour_CancelledRunWritesNoCheckpoint(t *testing.T) {
	hour := time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC)
	stations := memory.NewStationStore()
	readings := memory.NewReadingStore()
	ledger := memory.NewLedger()
	seedStations(t, stations, "1437", "1438")

	prov := &fakeProvider{
		payloads: map[string]*provider.RawReading{
			"1437": rawReading("1437", hour, 42),
			"1438": rawReading("1438", hour, 55),
		},
	}
	col := reading.NewCollector(stations, readings, ledger, prov, reading.Config{Workers: 1}, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := col.CollectHour(ctx, hour)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, ledger.Len(), "a cancelled run must not checkpoint")
}

func TestCollectHour_StoreFailureAbortsRun(t *testing.T) {
	hour := time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC)
	stations := memory.NewStationStore()
	readings := &failingReadingStore{ReadingStore: memory.NewReadingStore()}
	ledger := memory.NewLedger()
	seedStations(t, stations, "1437", "1438", "1439")

	prov := &fakeProvider{
		payloads: map[string]*provider.RawReading{
			"1437": rawReading("1437", hour, 42),
			"1438": rawReading("1438", hour, 55),
			"1439": rawReading("1439", hour, 61),
		},
	}
	col := reading.NewCollector(stations, readings, ledger, prov, reading.Config{Workers: 1, MaxStoreRetries: 1}, logger.NewNop())

	_, err := col.CollectHour(context.Background(), hour)
	require.Error(t, err)
	assert.True(t, pipeline.IsStoreWrite(err))
	assert.Zero(t, ledger.Len(), "an aborted run must not checkpoint")
}
