package station

import (
	"context"
	"fmt"

	"github.com/evairo/aqmon/backend/internal/pipeline"
	"github.com/evairo/aqmon/backend/pkg/logger"
)

// Registry reconciles an external station catalog into the store.
type Registry struct {
	store  Store
	logger *logger.Logger
}

// NewRegistry creates a new Registry.
func NewRegistry(store Store, log *logger.Logger) *Registry {
	return &Registry{
		store:  store,
		logger: log.WithField("module", "station_registry"),
	}
}

// RecordError ties a reconcile failure to the record that caused it.
type RecordError struct {
	StationIdx string `json:"station_idx"`
	Err        error  `json:"-"`
	Message    string `json:"message"`
}

// ReconcileResult summarizes one reconcile pass.
type ReconcileResult struct {
	Upserted  int           `json:"upserted"`
	Unchanged int           `json:"unchanged"`
	Errors    []RecordError `json:"errors,omitempty"`
}

// Reconcile upserts every catalog record independently. A failure on
// one record is recorded and does not abort the batch. Records without
// a station_idx are rejected with a validation error. Metadata is
// overwritten; latest_reading_at is never touched.
func (r *Registry) Reconcile(ctx context.Context, records []Record) (ReconcileResult, error) {
	result := ReconcileResult{}

	for _, rec := range records {
		if err := r.reconcileOne(ctx, rec, &result); err != nil {
			result.Errors = append(result.Errors, RecordError{
				StationIdx: rec.StationIdx,
				Err:        err,
				Message:    err.Error(),
			})
			r.logger.WithError(err).WithField("station_idx", rec.StationIdx).Warn("Station reconcile failed")
		}
	}

	r.logger.WithFields(map[string]interface{}{
		"total":     len(records),
		"upserted":  result.Upserted,
		"unchanged": result.Unchanged,
		"errors":    len(result.Errors),
	}).Info("Station reconcile completed")

	return result, nil
}

func (r *Registry) reconcileOne(ctx context.Context, rec Record, result *ReconcileResult) error {
	if rec.StationIdx == "" {
		return &pipeline.ValidationError{Field: "station_idx", Reason: "missing"}
	}

	existing, err := r.store.Get(ctx, rec.StationIdx)
	if err != nil {
		return fmt.Errorf("load station %s: %w", rec.StationIdx, err)
	}

	if existing != nil && sameMetadata(existing, rec) {
		result.Unchanged++
		return nil
	}

	active := true
	if rec.Active != nil {
		active = *rec.Active
	} else if existing != nil {
		active = existing.Active
	}

	s := &Station{
		StationIdx: rec.StationIdx,
		Name:       rec.Name,
		City:       rec.City,
		Latitude:   rec.Latitude,
		Longitude:  rec.Longitude,
		Active:     active,
	}

	if err := r.store.Upsert(ctx, s); err != nil {
		return &pipeline.StoreWriteError{Op: "upsert station " + rec.StationIdx, Err: err}
	}

	result.Upserted++
	return nil
}
