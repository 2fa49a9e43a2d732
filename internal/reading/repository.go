package reading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the PostgreSQL-backed reading store. The unique index
// on (station_idx, ts) makes the upsert safe under concurrent writers.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new reading repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

// Get returns the reading for (station_idx, ts) or nil when absent.
func (r *Repository) Get(ctx context.Context, stationIdx string, ts time.Time) (*Reading, error) {
	query := `
		SELECT station_idx, ts, aqi, dominant, pollutants, fetched_at
		FROM aq.readings
		WHERE station_idx = $1 AND ts = $2
	`

	reading, err := scanReading(r.pool.QueryRow(ctx, query, stationIdx, ts))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query reading %s@%s: %w", stationIdx, ts.Format(time.RFC3339), err)
	}
	return reading, nil
}

// Upsert inserts or overwrites keyed by (station_idx, ts).
func (r *Repository) Upsert(ctx context.Context, reading *Reading) error {
	pollutantsJSON, err := json.Marshal(reading.Pollutants)
	if err != nil {
		return fmt.Errorf("marshal pollutants: %w", err)
	}

	query := `
		INSERT INTO aq.readings (station_idx, ts, aqi, dominant, pollutants, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (station_idx, ts) DO UPDATE SET
			aqi = EXCLUDED.aqi,
			dominant = EXCLUDED.dominant,
			pollutants = EXCLUDED.pollutants,
			fetched_at = EXCLUDED.fetched_at
	`

	_, err = r.pool.Exec(ctx, query,
		reading.StationIdx, reading.TS, reading.AQI, reading.Dominant,
		pollutantsJSON, reading.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert reading %s@%s: %w", reading.StationIdx, reading.TS.Format(time.RFC3339), err)
	}
	return nil
}

// LatestByStation returns the most recent reading for a station.
func (r *Repository) LatestByStation(ctx context.Context, stationIdx string) (*Reading, error) {
	query := `
		SELECT station_idx, ts, aqi, dominant, pollutants, fetched_at
		FROM aq.readings
		WHERE station_idx = $1
		ORDER BY ts DESC
		LIMIT 1
	`

	reading, err := scanReading(r.pool.QueryRow(ctx, query, stationIdx))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest reading for %s: %w", stationIdx, err)
	}
	return reading, nil
}

// Since returns readings for a station from ts onward, ascending.
func (r *Repository) Since(ctx context.Context, stationIdx string, ts time.Time) ([]Reading, error) {
	query := `
		SELECT station_idx, ts, aqi, dominant, pollutants, fetched_at
		FROM aq.readings
		WHERE station_idx = $1 AND ts >= $2
		ORDER BY ts ASC
	`

	rows, err := r.pool.Query(ctx, query, stationIdx, ts)
	if err != nil {
		return nil, fmt.Errorf("query readings since: %w", err)
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		readings = append(readings, *reading)
	}
	return readings, rows.Err()
}

func scanReading(row pgx.Row) (*Reading, error) {
	var reading Reading
	var pollutantsJSON []byte
	if err := row.Scan(
		&reading.StationIdx, &reading.TS, &reading.AQI, &reading.Dominant,
		&pollutantsJSON, &reading.FetchedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(pollutantsJSON, &reading.Pollutants); err != nil {
		return nil, fmt.Errorf("unmarshal pollutants: %w", err)
	}
	return &reading, nil
}
