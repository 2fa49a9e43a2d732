package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the PostgreSQL-backed checkpoint ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new checkpoint repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Ledger = (*Repository)(nil)

// Record appends a new checkpoint. Plain INSERT, never an update.
func (r *Repository) Record(ctx context.Context, cp *Checkpoint) error {
	query := `
		INSERT INTO aq.checkpoints (
			target_hour, created_at,
			total_stations, successful_stations, failed_stations, readings_written
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		cp.TargetHour, cp.CreatedAt,
		cp.Stats.TotalStations, cp.Stats.SuccessfulStations,
		cp.Stats.FailedStations, cp.Stats.ReadingsWritten,
	).Scan(&cp.ID)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// Latest returns the newest checkpoint or nil when the ledger is empty.
func (r *Repository) Latest(ctx context.Context) (*Checkpoint, error) {
	query := `
		SELECT id, target_hour, created_at,
		       total_stations, successful_stations, failed_stations, readings_written
		FROM aq.checkpoints
		ORDER BY target_hour DESC, created_at DESC
		LIMIT 1
	`

	var cp Checkpoint
	err := r.pool.QueryRow(ctx, query).Scan(
		&cp.ID, &cp.TargetHour, &cp.CreatedAt,
		&cp.Stats.TotalStations, &cp.Stats.SuccessfulStations,
		&cp.Stats.FailedStations, &cp.Stats.ReadingsWritten,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest checkpoint: %w", err)
	}
	return &cp, nil
}

// Recent returns up to limit checkpoints, newest first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Checkpoint, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, target_hour, created_at,
		       total_stations, successful_stations, failed_stations, readings_written
		FROM aq.checkpoints
		ORDER BY target_hour DESC, created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []Checkpoint
	for rows.Next() {
		var cp Checkpoint
		if err := rows.Scan(
			&cp.ID, &cp.TargetHour, &cp.CreatedAt,
			&cp.Stats.TotalStations, &cp.Stats.SuccessfulStations,
			&cp.Stats.FailedStations, &cp.Stats.ReadingsWritten,
		); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}
