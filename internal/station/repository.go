package station

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the PostgreSQL-backed station store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new station repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

// Get returns the station or nil when absent.
func (r *Repository) Get(ctx context.Context, stationIdx string) (*Station, error) {
	query := `
		SELECT station_idx, name, city, lat, lon, active, latest_reading_at, created_at, updated_at
		FROM aq.stations
		WHERE station_idx = $1
	`

	var s Station
	err := r.pool.QueryRow(ctx, query, stationIdx).Scan(
		&s.StationIdx, &s.Name, &s.City, &s.Latitude, &s.Longitude,
		&s.Active, &s.LatestReadingAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query station %s: %w", stationIdx, err)
	}
	return &s, nil
}

// Upsert inserts or overwrites catalog metadata keyed by station_idx.
// latest_reading_at is deliberately left out of the update set.
func (r *Repository) Upsert(ctx context.Context, s *Station) error {
	query := `
		INSERT INTO aq.stations (station_idx, name, city, lat, lon, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (station_idx) DO UPDATE SET
			name = EXCLUDED.name,
			city = EXCLUDED.city,
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			active = EXCLUDED.active,
			updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query,
		s.StationIdx, s.Name, s.City, s.Latitude, s.Longitude, s.Active,
	)
	if err != nil {
		return fmt.Errorf("upsert station %s: %w", s.StationIdx, err)
	}
	return nil
}

// Active returns all active stations ordered by index.
func (r *Repository) Active(ctx context.Context) ([]Station, error) {
	query := `
		SELECT station_idx, name, city, lat, lon, active, latest_reading_at, created_at, updated_at
		FROM aq.stations
		WHERE active = TRUE
		ORDER BY station_idx
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query active stations: %w", err)
	}
	defer rows.Close()

	return scanStations(rows)
}

// ByCity returns active stations in a city.
func (r *Repository) ByCity(ctx context.Context, city string) ([]Station, error) {
	query := `
		SELECT station_idx, name, city, lat, lon, active, latest_reading_at, created_at, updated_at
		FROM aq.stations
		WHERE active = TRUE AND city = $1
		ORDER BY station_idx
	`

	rows, err := r.pool.Query(ctx, query, city)
	if err != nil {
		return nil, fmt.Errorf("query stations by city: %w", err)
	}
	defer rows.Close()

	return scanStations(rows)
}

// AdvanceLatestReading moves latest_reading_at forward to ts. The WHERE
// clause keeps the column monotonic under concurrent runs.
func (r *Repository) AdvanceLatestReading(ctx context.Context, stationIdx string, ts time.Time) error {
	query := `
		UPDATE aq.stations
		SET latest_reading_at = $2, updated_at = NOW()
		WHERE station_idx = $1
		  AND (latest_reading_at IS NULL OR latest_reading_at < $2)
	`

	_, err := r.pool.Exec(ctx, query, stationIdx, ts)
	if err != nil {
		return fmt.Errorf("advance latest reading for %s: %w", stationIdx, err)
	}
	return nil
}

func scanStations(rows pgx.Rows) ([]Station, error) {
	var stations []Station
	for rows.Next() {
		var s Station
		if err := rows.Scan(
			&s.StationIdx, &s.Name, &s.City, &s.Latitude, &s.Longitude,
			&s.Active, &s.LatestReadingAt, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		stations = append(stations, s)
	}
	return stations, rows.Err()
}
