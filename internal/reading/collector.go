package reading

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/evairo/aqmon/backend/internal/checkpoint"
	"github.com/evairo/aqmon/backend/internal/metrics"
	"github.com/evairo/aqmon/backend/internal/pipeline"
	"github.com/evairo/aqmon/backend/internal/provider"
	"github.com/evairo/aqmon/backend/internal/station"
	"github.com/evairo/aqmon/backend/pkg/logger"
)

// Provider is the slice of the provider client the collector needs.
type Provider interface {
	FetchCurrentReading(ctx context.Context, stationIdx string) (*provider.RawReading, error)
}

// Config holds collection run tuning.
type Config struct {
	Workers         int // concurrent station fetches
	MaxStoreRetries int // bounded retries on store writes
}

// StationFailure records why one station failed during a run.
type StationFailure struct {
	StationIdx string `json:"station_idx"`
	Cause      string `json:"cause"`
}

// CollectionReport summarizes one collection run.
type CollectionReport struct {
	TargetHour         time.Time        `json:"target_hour"`
	AlreadyComplete    bool             `json:"already_complete"`
	TotalStations      int              `json:"total_stations"`
	SuccessfulStations int              `json:"successful_stations"`
	FailedStations     []StationFailure `json:"failed_stations,omitempty"`
	ReadingsWritten    int              `json:"readings_written"`
}

// Collector runs the hourly reading collection: fetch, normalize,
// deduplicate, upsert, then checkpoint.
type Collector struct {
	stations station.Store
	readings Store
	ledger   checkpoint.Ledger
	provider Provider
	logger   *logger.Logger
	cfg      Config
}

// NewCollector creates a new reading collector.
func NewCollector(
	stations station.Store,
	readings Store,
	ledger checkpoint.Ledger,
	prov Provider,
	cfg Config,
	log *logger.Logger,
) *Collector {
	if cfg.Workers < 1 {
		cfg.Workers = 5
	}
	if cfg.MaxStoreRetries < 1 {
		cfg.MaxStoreRetries = 3
	}
	return &Collector{
		stations: stations,
		readings: readings,
		ledger:   ledger,
		provider: prov,
		logger:   log.WithField("module", "reading_collector"),
		cfg:      cfg,
	}
}

// stationResult is one worker's outcome for a single station.
type stationResult struct {
	stationIdx string
	written    bool
	err        error
	fatal      bool // store write gave up; the whole run must abort
}

// CollectHour collects readings for every active station for the given
// hour. The run is a no-op when the ledger already holds a complete
// checkpoint for that hour; a prior incomplete checkpoint permits a
// fresh run. The checkpoint is written only after all station work has
// joined, so a checkpoint always implies the run it records finished.
func (c *Collector) CollectHour(ctx context.Context, targetHour time.Time) (*CollectionReport, error) {
	hour := NormalizeHour(targetHour)
	report := &CollectionReport{TargetHour: hour}
	startTime := time.Now()

	// Consult the ledger before doing any work.
	latest, err := c.ledger.Latest(ctx)
	if err != nil {
		return report, fmt.Errorf("read latest checkpoint: %w", err)
	}
	if latest != nil && latest.TargetHour.Equal(hour) && latest.Complete() {
		c.logger.WithField("target_hour", hour.Format(time.RFC3339)).Info("Hour already collected, skipping")
		report.AlreadyComplete = true
		metrics.CollectionRuns.WithLabelValues("skipped").Inc()
		return report, nil
	}

	stations, err := c.stations.Active(ctx)
	if err != nil {
		return report, fmt.Errorf("load active stations: %w", err)
	}
	report.TotalStations = len(stations)

	c.logger.WithFields(map[string]interface{}{
		"target_hour":   hour.Format(time.RFC3339),
		"station_count": len(stations),
		"workers":       c.cfg.Workers,
	}).Info("Starting reading collection")

	// A fatal store failure cancels the remaining stations.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stationCh := make(chan station.Station, len(stations))
	resultCh := make(chan stationResult, len(stations))

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.stationWorker(runCtx, workerID, hour, stationCh, resultCh, cancel)
		}(i)
	}

	for _, s := range stations {
		stationCh <- s
	}
	close(stationCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var fatalErr error
	for result := range resultCh {
		switch {
		case result.fatal:
			if fatalErr == nil {
				fatalErr = result.err
			}
			report.FailedStations = append(report.FailedStations, StationFailure{
				StationIdx: result.stationIdx,
				Cause:      result.err.Error(),
			})
		case result.err != nil:
			report.FailedStations = append(report.FailedStations, StationFailure{
				StationIdx: result.stationIdx,
				Cause:      result.err.Error(),
			})
			metrics.StationFailures.WithLabelValues(failureCause(result.err)).Inc()
		default:
			report.SuccessfulStations++
			if result.written {
				report.ReadingsWritten++
			}
		}
	}

	if fatalErr != nil {
		// Abort without a checkpoint: the hour stays incomplete and is
		// retried wholesale next cycle.
		metrics.CollectionRuns.WithLabelValues("aborted").Inc()
		c.logger.WithError(fatalErr).Error("Collection run aborted on store failure")
		return report, fatalErr
	}

	if ctx.Err() != nil {
		// Cancelled mid-run: no checkpoint, the hour stays incomplete.
		metrics.CollectionRuns.WithLabelValues("cancelled").Inc()
		c.logger.Warn("Collection run cancelled before completion")
		return report, ctx.Err()
	}

	cp := &checkpoint.Checkpoint{
		TargetHour: hour,
		CreatedAt:  time.Now().UTC(),
		Stats: checkpoint.Stats{
			TotalStations:      report.TotalStations,
			SuccessfulStations: report.SuccessfulStations,
			FailedStations:     len(report.FailedStations),
			ReadingsWritten:    report.ReadingsWritten,
		},
	}
	if err := c.recordCheckpoint(ctx, cp); err != nil {
		metrics.CollectionRuns.WithLabelValues("aborted").Inc()
		return report, err
	}

	metrics.CollectionRuns.WithLabelValues("completed").Inc()
	metrics.CollectionDuration.Observe(time.Since(startTime).Seconds())

	c.logger.WithFields(map[string]interface{}{
		"target_hour":      hour.Format(time.RFC3339),
		"total":            report.TotalStations,
		"successful":       report.SuccessfulStations,
		"failed":           len(report.FailedStations),
		"readings_written": report.ReadingsWritten,
		"duration":         time.Since(startTime),
	}).Info("Reading collection completed")

	return report, nil
}

// stationWorker processes stations one at a time. Fetch and validation
// failures are isolated to the station; a store write that keeps
// failing flips the fatal flag and cancels the run.
func (c *Collector) stationWorker(ctx context.Context, workerID int, hour time.Time, stationCh <-chan station.Station, resultCh chan<- stationResult, cancel context.CancelFunc) {
	for s := range stationCh {
		select {
		case <-ctx.Done():
			resultCh <- stationResult{stationIdx: s.StationIdx, err: ctx.Err()}
			continue
		default:
		}

		written, err := c.collectStation(ctx, s, hour)
		if err != nil {
			if pipeline.IsStoreWrite(err) {
				cancel()
				resultCh <- stationResult{stationIdx: s.StationIdx, err: err, fatal: true}
				continue
			}
			c.logger.WithError(err).WithFields(map[string]interface{}{
				"worker":      workerID,
				"station_idx": s.StationIdx,
			}).Warn("Station collection failed")
			resultCh <- stationResult{stationIdx: s.StationIdx, err: err}
			continue
		}

		c.logger.WithFields(map[string]interface{}{
			"worker":      workerID,
			"station_idx": s.StationIdx,
			"written":     written,
		}).Debug("Station collected")

		resultCh <- stationResult{stationIdx: s.StationIdx, written: written}
	}
}

// collectStation fetches, normalizes, deduplicates and persists one
// station's reading. Returns whether a document was written.
func (c *Collector) collectStation(ctx context.Context, s station.Station, hour time.Time) (bool, error) {
	raw, err := c.provider.FetchCurrentReading(ctx, s.StationIdx)
	if err != nil {
		return false, err
	}

	rd, err := Normalize(raw, time.Now())
	if err != nil {
		return false, err
	}
	if rd.StationIdx != s.StationIdx {
		return false, &pipeline.ValidationError{
			Field:  "station_idx",
			Reason: fmt.Sprintf("payload for %s while fetching %s", rd.StationIdx, s.StationIdx),
		}
	}

	// Deduplicate: an identical document already in the store makes
	// the write a no-op.
	existing, err := c.readings.Get(ctx, rd.StationIdx, rd.TS)
	if err != nil {
		return false, fmt.Errorf("lookup existing reading: %w", err)
	}

	written := false
	if existing == nil || !existing.EqualContent(rd) {
		if err := c.upsertWithRetry(ctx, rd); err != nil {
			return false, err
		}
		written = true
		metrics.ReadingsWritten.Inc()
	}

	if err := c.advanceWithRetry(ctx, s.StationIdx, rd.TS); err != nil {
		return written, err
	}

	return written, nil
}

// upsertWithRetry retries the reading upsert a bounded number of times
// before surfacing a store write error.
func (c *Collector) upsertWithRetry(ctx context.Context, rd *Reading) error {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxStoreRetries; attempt++ {
		if lastErr = c.readings.Upsert(ctx, rd); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return &pipeline.StoreWriteError{Op: "upsert reading", Err: lastErr}
		case <-time.After(time.Duration(attempt+1) * 100 * time.Millisecond):
		}
	}
	return &pipeline.StoreWriteError{Op: "upsert reading", Err: lastErr}
}

// advanceWithRetry retries the latest_reading_at advancement.
func (c *Collector) advanceWithRetry(ctx context.Context, stationIdx string, ts time.Time) error {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxStoreRetries; attempt++ {
		if lastErr = c.stations.AdvanceLatestReading(ctx, stationIdx, ts); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return &pipeline.StoreWriteError{Op: "advance latest_reading_at", Err: lastErr}
		case <-time.After(time.Duration(attempt+1) * 100 * time.Millisecond):
		}
	}
	return &pipeline.StoreWriteError{Op: "advance latest_reading_at", Err: lastErr}
}

// recordCheckpoint appends the run's checkpoint with bounded retries.
// Failing here is fatal to the run.
func (c *Collector) recordCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint) error {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxStoreRetries; attempt++ {
		if lastErr = c.ledger.Record(ctx, cp); lastErr == nil {
			return nil
		}
		c.logger.WithError(lastErr).WithField("attempt", attempt+1).Warn("Checkpoint write failed, retrying")
		select {
		case <-ctx.Done():
			return &pipeline.StoreWriteError{Op: "record checkpoint", Err: lastErr}
		case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
		}
	}
	return &pipeline.StoreWriteError{Op: "record checkpoint", Err: lastErr}
}

func failureCause(err error) string {
	switch {
	case pipeline.IsValidation(err):
		return "validation"
	case pipeline.IsTransient(err):
		return "transient"
	default:
		return "other"
	}
}
