// Package checkpoint implements the append-only ledger of collection
// runs. The ledger is the single source of truth the reading collector
// consults to decide between skip and resumption, and the pipeline's
// externally observable health signal.
package checkpoint

import (
	"context"
	"time"
)

// Stats are the aggregate counters of one collection run.
type Stats struct {
	TotalStations      int `json:"total_stations"`
	SuccessfulStations int `json:"successful_stations"`
	FailedStations     int `json:"failed_stations"`
	ReadingsWritten    int `json:"readings_written"`
}

// Checkpoint records one collection run: the normalized hour it
// targeted, the wall-clock run time, and its stats. Never mutated
// after creation.
type Checkpoint struct {
	ID         int64     `json:"id"`
	TargetHour time.Time `json:"target_hour"`
	CreatedAt  time.Time `json:"created_at"`
	Stats      Stats     `json:"stats"`
}

// Complete reports whether the run covered every station.
func (c *Checkpoint) Complete() bool {
	return c.Stats.FailedStations == 0
}

// Ledger is the persistence contract for checkpoints.
type Ledger interface {
	// Record appends a new checkpoint. It never updates a prior entry.
	Record(ctx context.Context, cp *Checkpoint) error

	// Latest returns the checkpoint with the maximum target hour
	// (ties broken by created_at descending), or nil when the ledger
	// is empty.
	Latest(ctx context.Context) (*Checkpoint, error)

	// Recent returns up to limit checkpoints, newest first.
	Recent(ctx context.Context, limit int) ([]Checkpoint, error)
}
