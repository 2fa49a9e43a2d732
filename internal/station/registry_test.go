package station_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evairo/aqmon/backend/internal/station"
	"github.com/evairo/aqmon/backend/internal/store/memory"
	"github.com/evairo/aqmon/backend/pkg/logger"
)

func boolPtr(b bool) *bool { return &b }

func TestReconcile_InsertsAndUpdates(t *testing.T) {
	store := memory.NewStationStore()
	registry := station.NewRegistry(store, logger.NewNop())

	result, err := registry.Reconcile(context.Background(), []station.Record{
		{StationIdx: "1437", Name: "City Hall", City: "seoul", Latitude: 37.56, Longitude: 126.97},
		{StationIdx: "1438", Name: "Gangnam", City: "seoul", Latitude: 37.49, Longitude: 127.02},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Upserted)
	assert.Zero(t, result.Unchanged)
	assert.Empty(t, result.Errors)

	// Metadata change overwrites; same record is a no-op.
	result, err = registry.Reconcile(context.Background(), []station.Record{
		{StationIdx: "1437", Name: "City Hall (renamed)", City: "seoul", Latitude: 37.56, Longitude: 126.97},
		{StationIdx: "1438", Name: "Gangnam", City: "seoul", Latitude: 37.49, Longitude: 127.02},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Upserted)
	assert.Equal(t, 1, result.Unchanged)

	st, err := store.Get(context.Background(), "1437")
	require.NoError(t, err)
	assert.Equal(t, "City Hall (renamed)", st.Name)
	assert.True(t, st.Active)
}

func TestReconcile_RejectsMissingIdx(t *testing.T) {
	store := memory.NewStationStore()
	registry := station.NewRegistry(store, logger.NewNop())

	result, err := registry.Reconcile(context.Background(), []station.Record{
		{Name: "nameless"},
		{StationIdx: "1437", Name: "City Hall", City: "seoul"},
	})
	require.NoError(t, err)

	// The bad record is isolated; the good one still lands.
	assert.Equal(t, 1, result.Upserted)
	require.Len(t, result.Errors, 1)
	assert.Empty(t, result.Errors[0].StationIdx)

	st, err := store.Get(context.Background(), "1437")
	require.NoError(t, err)
	require.NotNil(t, st)
}

func TestReconcile_PreservesLatestReadingAt(t *testing.T) {
	store := memory.NewStationStore()
	registry := station.NewRegistry(store, logger.NewNop())
	ctx := context.Background()

	_, err := registry.Reconcile(ctx, []station.Record{
		{StationIdx: "1437", Name: "City Hall", City: "seoul"},
	})
	require.NoError(t, err)

	cursor := time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC)
	require.NoError(t, store.AdvanceLatestReading(ctx, "1437", cursor))

	// Catalog metadata refresh must not move the collection cursor.
	_, err = registry.Reconcile(ctx, []station.Record{
		{StationIdx: "1437", Name: "City Hall (renamed)", City: "seoul"},
	})
	require.NoError(t, err)

	st, err := store.Get(ctx, "1437")
	require.NoError(t, err)
	require.NotNil(t, st.LatestReadingAt)
	assert.True(t, st.LatestReadingAt.Equal(cursor))
}

func TestReconcile_DeactivatesStation(t *testing.T) {
	store := memory.NewStationStore()
	registry := station.NewRegistry(store, logger.NewNop())
	ctx := context.Background()

	_, err := registry.Reconcile(ctx, []station.Record{
		{StationIdx: "1437", Name: "City Hall", City: "seoul"},
	})
	require.NoError(t, err)

	_, err = registry.Reconcile(ctx, []station.Record{
		{StationIdx: "1437", Name: "City Hall", City: "seoul", Active: boolPtr(false)},
	})
	require.NoError(t, err)

	st, err := store.Get(ctx, "1437")
	require.NoError(t, err)
	assert.False(t, st.Active)

	active, err := store.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestAdvanceLatestReading_Monotonic(t *testing.T) {
	store := memory.NewStationStore()
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, &station.Station{StationIdx: "1437", Active: true}))

	newer := time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC)
	older := newer.Add(-2 * time.Hour)

	require.NoError(t, store.AdvanceLatestReading(ctx, "1437", newer))
	require.NoError(t, store.AdvanceLatestReading(ctx, "1437", older))

	st, err := store.Get(ctx, "1437")
	require.NoError(t, err)
	require.NotNil(t, st.LatestReadingAt)
	assert.True(t, st.LatestReadingAt.Equal(newer), "a backfill must not move the cursor backwards")
}
