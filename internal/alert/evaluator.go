package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/evairo/aqmon/backend/internal/metrics"
	"github.com/evairo/aqmon/backend/internal/reading"
	"github.com/evairo/aqmon/backend/pkg/logger"
	"github.com/evairo/aqmon/backend/pkg/redis"
)

// Config holds alert evaluation tuning.
type Config struct {
	// Cooldown suppresses re-notification of the same
	// (subscription, station) pair. Default one hour.
	Cooldown time.Duration

	// ReadingMaxAge keeps stale readings from triggering alerts.
	// Zero disables the age check.
	ReadingMaxAge time.Duration
}

// EvaluationError ties a failure to the subscription that caused it.
type EvaluationError struct {
	SubscriptionID int64  `json:"subscription_id"`
	StationIdx     string `json:"station_idx,omitempty"`
	Message        string `json:"message"`
}

// EvaluationReport summarizes one evaluation cycle.
type EvaluationReport struct {
	Subscriptions int               `json:"subscriptions"`
	Notified      int               `json:"notified"`
	Suppressed    int               `json:"suppressed"`
	Errors        []EvaluationError `json:"errors,omitempty"`
}

// Evaluator scans the latest readings against active subscriptions and
// dispatches threshold notifications. The threshold is inclusive:
// aqi >= threshold notifies.
type Evaluator struct {
	subs     SubscriptionStore
	resolver StationResolver
	readings reading.Store
	audit    AuditStore
	notifier Notifier
	cache    *redis.Cache
	logger   *logger.Logger
	cfg      Config
}

// NewEvaluator creates a new alert evaluator.
func NewEvaluator(
	subs SubscriptionStore,
	resolver StationResolver,
	readings reading.Store,
	audit AuditStore,
	notifier Notifier,
	cache *redis.Cache,
	cfg Config,
	log *logger.Logger,
) *Evaluator {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Hour
	}
	return &Evaluator{
		subs:     subs,
		resolver: resolver,
		readings: readings,
		audit:    audit,
		notifier: notifier,
		cache:    cache,
		logger:   log.WithField("module", "alert_evaluator"),
		cfg:      cfg,
	}
}

// Evaluate runs one evaluation cycle. Failures are isolated per
// subscription: a delivery or resolution error is recorded and the
// remaining subscriptions still run.
func (e *Evaluator) Evaluate(ctx context.Context, now time.Time) (*EvaluationReport, error) {
	report := &EvaluationReport{}

	subs, err := e.subs.Active(ctx)
	if err != nil {
		return report, fmt.Errorf("load active subscriptions: %w", err)
	}
	report.Subscriptions = len(subs)

	for _, sub := range subs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		e.evaluateSubscription(ctx, sub, now, report)
	}

	e.logger.WithFields(map[string]interface{}{
		"subscriptions": report.Subscriptions,
		"notified":      report.Notified,
		"suppressed":    report.Suppressed,
		"errors":        len(report.Errors),
	}).Info("Alert evaluation completed")

	return report, nil
}

func (e *Evaluator) evaluateSubscription(ctx context.Context, sub Subscription, now time.Time, report *EvaluationReport) {
	stationIdxs, err := e.resolver.Resolve(ctx, sub)
	if err != nil {
		report.Errors = append(report.Errors, EvaluationError{
			SubscriptionID: sub.ID,
			Message:        err.Error(),
		})
		return
	}

	for _, stationIdx := range stationIdxs {
		rd, err := e.latestReading(ctx, stationIdx)
		if err != nil {
			report.Errors = append(report.Errors, EvaluationError{
				SubscriptionID: sub.ID,
				StationIdx:     stationIdx,
				Message:        err.Error(),
			})
			continue
		}
		if rd == nil {
			continue
		}
		if e.cfg.ReadingMaxAge > 0 && now.Sub(rd.TS) > e.cfg.ReadingMaxAge {
			continue
		}
		if rd.AQI < sub.Threshold {
			continue
		}

		e.notify(ctx, sub, rd, now, report)
	}
}

// notify dispatches one breach through all configured channels unless
// the cooldown window suppresses it.
func (e *Evaluator) notify(ctx context.Context, sub Subscription, rd *reading.Reading, now time.Time, report *EvaluationReport) {
	last, err := e.audit.LastNotified(ctx, sub.ID, rd.StationIdx)
	if err != nil {
		report.Errors = append(report.Errors, EvaluationError{
			SubscriptionID: sub.ID,
			StationIdx:     rd.StationIdx,
			Message:        fmt.Sprintf("cooldown lookup: %v", err),
		})
		return
	}
	if last != nil && now.Sub(*last) < e.cfg.Cooldown {
		report.Suppressed++
		metrics.NotificationsSuppressed.Inc()
		return
	}

	message := fmt.Sprintf("AQI %d at station %s (dominant %s) crossed your threshold of %d",
		rd.AQI, rd.StationIdx, rd.Dominant, sub.Threshold)

	delivered := false
	for _, channel := range sub.Channels {
		if err := e.notifier.Send(ctx, channel, sub.Recipient(), message); err != nil {
			e.logger.WithError(err).WithFields(map[string]interface{}{
				"subscription_id": sub.ID,
				"channel":         channel,
			}).Warn("Notification delivery failed")
			report.Errors = append(report.Errors, EvaluationError{
				SubscriptionID: sub.ID,
				StationIdx:     rd.StationIdx,
				Message:        err.Error(),
			})
			continue
		}

		delivered = true
		metrics.NotificationsSent.WithLabelValues(channel).Inc()

		audit := &Notification{
			SubscriptionID: sub.ID,
			UserID:         sub.UserID,
			StationIdx:     rd.StationIdx,
			AQI:            rd.AQI,
			Threshold:      sub.Threshold,
			Channel:        channel,
			SentAt:         now,
		}
		if err := e.audit.Record(ctx, audit); err != nil {
			// The notification went out; losing the audit entry only
			// weakens the cooldown, so record the error and move on.
			report.Errors = append(report.Errors, EvaluationError{
				SubscriptionID: sub.ID,
				StationIdx:     rd.StationIdx,
				Message:        fmt.Sprintf("audit write: %v", err),
			})
		}
	}

	if delivered {
		report.Notified++
	}
}

// latestReading reads the station's latest reading through the cache
// with store fallthrough.
func (e *Evaluator) latestReading(ctx context.Context, stationIdx string) (*reading.Reading, error) {
	if e.cache != nil {
		var cached reading.Reading
		found, err := e.cache.Get(ctx, redis.LatestReadingKey(stationIdx), &cached)
		if err == nil && found {
			return &cached, nil
		}
	}

	rd, err := e.readings.LatestByStation(ctx, stationIdx)
	if err != nil {
		return nil, fmt.Errorf("latest reading for %s: %w", stationIdx, err)
	}
	if rd != nil && e.cache != nil {
		_ = e.cache.Set(ctx, redis.LatestReadingKey(stationIdx), rd, redis.TTLReading)
	}
	return rd, nil
}
