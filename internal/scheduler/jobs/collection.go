// Package jobs wires the pipeline's collectors and the alert evaluator
// into the scheduler.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/evairo/aqmon/backend/internal/alert"
	"github.com/evairo/aqmon/backend/internal/forecast"
	"github.com/evairo/aqmon/backend/internal/reading"
	"github.com/evairo/aqmon/backend/internal/station"
	"github.com/evairo/aqmon/backend/pkg/logger"
)

// ReadingCollectionJob runs the hourly reading collection.
type ReadingCollectionJob struct {
	collector *reading.Collector
	logger    *logger.Logger
}

// NewReadingCollectionJob creates a new reading collection job.
func NewReadingCollectionJob(col *reading.Collector, log *logger.Logger) *ReadingCollectionJob {
	return &ReadingCollectionJob{
		collector: col,
		logger:    log,
	}
}

// Name returns the job name.
func (j *ReadingCollectionJob) Name() string {
	return "reading_collection"
}

// Schedule returns the cron schedule: five past every hour, giving the
// provider time to publish the hour's values.
func (j *ReadingCollectionJob) Schedule() string {
	return "0 5 * * * *"
}

// Run collects readings for the current hour.
func (j *ReadingCollectionJob) Run(ctx context.Context) error {
	report, err := j.collector.CollectHour(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("collect hour: %w", err)
	}

	if len(report.FailedStations) > 0 {
		j.logger.WithFields(map[string]interface{}{
			"target_hour": report.TargetHour.Format(time.RFC3339),
			"failed":      len(report.FailedStations),
		}).Warn("Reading collection finished with failures")
	}
	return nil
}

// ForecastCollectionJob runs the daily forecast collection.
type ForecastCollectionJob struct {
	collector *forecast.Collector
	stations  station.Store
	days      int
	logger    *logger.Logger
}

// NewForecastCollectionJob creates a new forecast collection job.
func NewForecastCollectionJob(col *forecast.Collector, stations station.Store, days int, log *logger.Logger) *ForecastCollectionJob {
	if days < 1 {
		days = 3
	}
	return &ForecastCollectionJob{
		collector: col,
		stations:  stations,
		days:      days,
		logger:    log,
	}
}

// Name returns the job name.
func (j *ForecastCollectionJob) Name() string {
	return "forecast_collection"
}

// Schedule returns the cron schedule: daily at 02:30 UTC, off-peak for
// the provider.
func (j *ForecastCollectionJob) Schedule() string {
	return "0 30 2 * * *"
}

// Run collects forecasts for all active stations over the next N days.
func (j *ForecastCollectionJob) Run(ctx context.Context) error {
	stations, err := j.stations.Active(ctx)
	if err != nil {
		return fmt.Errorf("load active stations: %w", err)
	}

	days := make([]time.Time, 0, j.days)
	today := forecast.NormalizeDay(time.Now())
	for i := 0; i < j.days; i++ {
		days = append(days, today.AddDate(0, 0, i+1))
	}

	if _, err := j.collector.CollectForecasts(ctx, stations, days); err != nil {
		return fmt.Errorf("collect forecasts: %w", err)
	}
	return nil
}

// AlertEvaluationJob runs the alert evaluation cycle.
type AlertEvaluationJob struct {
	evaluator *alert.Evaluator
	logger    *logger.Logger
}

// NewAlertEvaluationJob creates a new alert evaluation job.
func NewAlertEvaluationJob(ev *alert.Evaluator, log *logger.Logger) *AlertEvaluationJob {
	return &AlertEvaluationJob{
		evaluator: ev,
		logger:    log,
	}
}

// Name returns the job name.
func (j *AlertEvaluationJob) Name() string {
	return "alert_evaluation"
}

// Schedule returns the cron schedule: every 5 minutes.
func (j *AlertEvaluationJob) Schedule() string {
	return "0 */5 * * * *"
}

// Run evaluates all active subscriptions against the latest readings.
func (j *AlertEvaluationJob) Run(ctx context.Context) error {
	if _, err := j.evaluator.Evaluate(ctx, time.Now().UTC()); err != nil {
		return fmt.Errorf("evaluate alerts: %w", err)
	}
	return nil
}
