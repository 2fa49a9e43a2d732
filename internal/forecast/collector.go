package forecast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/evairo/aqmon/backend/internal/metrics"
	"github.com/evairo/aqmon/backend/internal/pipeline"
	"github.com/evairo/aqmon/backend/internal/provider"
	"github.com/evairo/aqmon/backend/internal/station"
	"github.com/evairo/aqmon/backend/pkg/logger"
)

// Provider is the slice of the provider client the collector needs.
type Provider interface {
	FetchForecast(ctx context.Context, stationIdx string, day time.Time) (*provider.RawForecast, error)
}

// Config holds forecast run tuning.
type Config struct {
	Workers int
}

// PairFailure records why one (station, day) pair failed.
type PairFailure struct {
	StationIdx string    `json:"station_idx"`
	Day        time.Time `json:"day"`
	Cause      string    `json:"cause"`
}

// Report summarizes one forecast collection run.
type Report struct {
	TotalPairs       int           `json:"total_pairs"`
	Successful       int           `json:"successful"`
	Unchanged        int           `json:"unchanged"`
	Failed           []PairFailure `json:"failed,omitempty"`
	ForecastsWritten int           `json:"forecasts_written"`
}

// Collector runs forecast collection over (station, day) pairs:
// prefetch existing forecasts in one query, fan the fetches out on a
// worker pool, and persist everything in a single batched upsert.
type Collector struct {
	store    Store
	provider Provider
	logger   *logger.Logger
	cfg      Config
}

// NewCollector creates a new forecast collector.
func NewCollector(store Store, prov Provider, cfg Config, log *logger.Logger) *Collector {
	if cfg.Workers < 1 {
		cfg.Workers = 5
	}
	return &Collector{
		store:    store,
		provider: prov,
		logger:   log.WithField("module", "forecast_collector"),
		cfg:      cfg,
	}
}

type pair struct {
	stationIdx string
	day        time.Time
}

type pairResult struct {
	pair     pair
	forecast *Forecast
	err      error
}

// CollectForecasts fetches and aggregates forecasts for every
// (station, day) pair. Per-pair failures are isolated; the final
// batched store write is the only fatal failure.
func (c *Collector) CollectForecasts(ctx context.Context, stations []station.Station, days []time.Time) (*Report, error) {
	report := &Report{}

	pairs := make([]pair, 0, len(stations)*len(days))
	stationIdxs := make([]string, 0, len(stations))
	for _, s := range stations {
		stationIdxs = append(stationIdxs, s.StationIdx)
		for _, d := range days {
			pairs = append(pairs, pair{stationIdx: s.StationIdx, day: NormalizeDay(d)})
		}
	}
	report.TotalPairs = len(pairs)

	if len(pairs) == 0 {
		return report, nil
	}

	c.logger.WithFields(map[string]interface{}{
		"stations": len(stations),
		"days":     len(days),
		"pairs":    len(pairs),
		"workers":  c.cfg.Workers,
	}).Info("Starting forecast collection")

	// One batched lookup up front instead of a per-pair query.
	existing, err := c.store.ForDays(ctx, stationIdxs, days)
	if err != nil {
		return report, fmt.Errorf("prefetch existing forecasts: %w", err)
	}

	pairCh := make(chan pair, len(pairs))
	resultCh := make(chan pairResult, len(pairs))

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.pairWorker(ctx, pairCh, resultCh)
		}()
	}

	for _, p := range pairs {
		pairCh <- p
	}
	close(pairCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var toWrite []Forecast
	for result := range resultCh {
		if result.err != nil {
			report.Failed = append(report.Failed, PairFailure{
				StationIdx: result.pair.stationIdx,
				Day:        result.pair.day,
				Cause:      result.err.Error(),
			})
			continue
		}

		report.Successful++

		// Skip the write when the stored forecast already matches.
		if prev, ok := existing[KeyOf(result.forecast.StationIdx, result.forecast.Day)]; ok && samePollutants(prev.Pollutants, result.forecast.Pollutants) {
			report.Unchanged++
			continue
		}
		toWrite = append(toWrite, *result.forecast)
	}

	if ctx.Err() != nil {
		return report, ctx.Err()
	}

	// Single batched upsert at the end of the run.
	if err := c.store.UpsertBatch(ctx, toWrite); err != nil {
		return report, &pipeline.StoreWriteError{Op: "batch upsert forecasts", Err: err}
	}
	report.ForecastsWritten = len(toWrite)
	metrics.ForecastsWritten.Add(float64(len(toWrite)))

	c.logger.WithFields(map[string]interface{}{
		"pairs":      report.TotalPairs,
		"successful": report.Successful,
		"unchanged":  report.Unchanged,
		"failed":     len(report.Failed),
		"written":    report.ForecastsWritten,
	}).Info("Forecast collection completed")

	return report, nil
}

// pairWorker fetches and aggregates forecasts one pair at a time.
func (c *Collector) pairWorker(ctx context.Context, pairCh <-chan pair, resultCh chan<- pairResult) {
	for p := range pairCh {
		select {
		case <-ctx.Done():
			resultCh <- pairResult{pair: p, err: ctx.Err()}
			continue
		default:
		}

		raw, err := c.provider.FetchForecast(ctx, p.stationIdx, p.day)
		if err != nil {
			c.logger.WithError(err).WithFields(map[string]interface{}{
				"station_idx": p.stationIdx,
				"day":         p.day.Format("2006-01-02"),
			}).Warn("Forecast fetch failed")
			resultCh <- pairResult{pair: p, err: err}
			continue
		}

		f, err := Aggregate(raw, time.Now())
		if err != nil {
			resultCh <- pairResult{pair: p, err: err}
			continue
		}
		if f.StationIdx != p.stationIdx || !f.Day.Equal(p.day) {
			resultCh <- pairResult{pair: p, err: &pipeline.ValidationError{
				Field:  "forecast",
				Reason: fmt.Sprintf("payload for %s/%s while fetching %s/%s", f.StationIdx, f.Day.Format("2006-01-02"), p.stationIdx, p.day.Format("2006-01-02")),
			}}
			continue
		}

		resultCh <- pairResult{pair: p, forecast: f}
	}
}

func samePollutants(a, b map[string]PollutantStats) bool {
	if len(a) != len(b) {
		return false
	}
	for name, av := range a {
		bv, ok := b[name]
		if !ok || av != bv {
			return false
		}
	}
	return true
}
