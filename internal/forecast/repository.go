package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the PostgreSQL-backed forecast store. The unique index
// on (station_idx, day) makes the upsert safe under concurrent writers.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new forecast repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

// ForDays returns existing forecasts for the given stations and days.
func (r *Repository) ForDays(ctx context.Context, stationIdxs []string, days []time.Time) (map[Key]Forecast, error) {
	result := make(map[Key]Forecast)
	if len(stationIdxs) == 0 || len(days) == 0 {
		return result, nil
	}

	normalized := make([]time.Time, 0, len(days))
	for _, d := range days {
		normalized = append(normalized, NormalizeDay(d))
	}

	query := `
		SELECT station_idx, day, pollutants, fetched_at, last_forecast_run_at
		FROM aq.forecasts
		WHERE station_idx = ANY($1) AND day = ANY($2)
	`

	rows, err := r.pool.Query(ctx, query, stationIdxs, normalized)
	if err != nil {
		return nil, fmt.Errorf("query forecasts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		f, err := scanForecast(rows)
		if err != nil {
			return nil, fmt.Errorf("scan forecast: %w", err)
		}
		result[KeyOf(f.StationIdx, f.Day)] = *f
	}
	return result, rows.Err()
}

// UpsertBatch inserts or overwrites forecasts in one batched round trip.
func (r *Repository) UpsertBatch(ctx context.Context, forecasts []Forecast) error {
	if len(forecasts) == 0 {
		return nil
	}

	query := `
		INSERT INTO aq.forecasts (station_idx, day, pollutants, fetched_at, last_forecast_run_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (station_idx, day) DO UPDATE SET
			pollutants = EXCLUDED.pollutants,
			fetched_at = EXCLUDED.fetched_at,
			last_forecast_run_at = EXCLUDED.last_forecast_run_at
	`

	batch := &pgx.Batch{}
	for _, f := range forecasts {
		pollutantsJSON, err := json.Marshal(f.Pollutants)
		if err != nil {
			return fmt.Errorf("marshal pollutants for %s: %w", f.StationIdx, err)
		}
		batch.Queue(query, f.StationIdx, f.Day, pollutantsJSON, f.FetchedAt, f.LastForecastRunAt)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range forecasts {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch upsert forecast: %w", err)
		}
	}
	return nil
}

func scanForecast(row pgx.Row) (*Forecast, error) {
	var f Forecast
	var pollutantsJSON []byte
	if err := row.Scan(
		&f.StationIdx, &f.Day, &pollutantsJSON, &f.FetchedAt, &f.LastForecastRunAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(pollutantsJSON, &f.Pollutants); err != nil {
		return nil, fmt.Errorf("unmarshal pollutants: %w", err)
	}
	return &f, nil
}
