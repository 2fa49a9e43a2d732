package commands

import (
	"fmt"

	"github.com/evairo/aqmon/backend/internal/alert"
	"github.com/evairo/aqmon/backend/internal/checkpoint"
	"github.com/evairo/aqmon/backend/internal/forecast"
	"github.com/evairo/aqmon/backend/internal/provider"
	"github.com/evairo/aqmon/backend/internal/reading"
	"github.com/evairo/aqmon/backend/internal/station"
	"github.com/evairo/aqmon/backend/pkg/config"
	"github.com/evairo/aqmon/backend/pkg/database"
	"github.com/evairo/aqmon/backend/pkg/httputil"
	"github.com/evairo/aqmon/backend/pkg/logger"
	"github.com/evairo/aqmon/backend/pkg/redis"
)

// app holds the shared wiring every command needs: config, logger,
// database, cache, provider client, repositories and the pipeline
// components built on top of them.
type app struct {
	cfg    *config.Config
	logger *logger.Logger
	db     *database.DB
	rdb    *redis.Client
	cache  *redis.Cache

	provider *provider.Client

	stations station.Store
	readings reading.Store
	ledger   checkpoint.Ledger

	registry          *station.Registry
	readingCollector  *reading.Collector
	forecastCollector *forecast.Collector
	evaluator         *alert.Evaluator
}

// newApp loads config and wires the full pipeline. Callers must Close.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	rdb, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	var cache *redis.Cache
	if rdb.Enabled() {
		cache = redis.NewCache(rdb, "aqmon")
	}

	httpClient := httputil.New(log, cfg.Provider.Timeout).
		WithRetry(cfg.Collector.MaxFetchRetries, cfg.Collector.RetryInitialDelay, cfg.Collector.RetryMaxDelay)
	if rdb.Enabled() {
		// Shared limiter keeps multiple pipeline instances inside the
		// provider's request budget.
		httpClient = httpClient.WithRateLimiter(
			redis.NewRateLimiter(rdb, "aqmon"),
			redis.ProviderRateLimit(cfg.Provider.RatePerMinute),
		)
	}

	prov := provider.NewClient(httpClient, cfg.Provider, log)

	stations := station.NewRepository(db.Pool)
	readings := reading.NewRepository(db.Pool)
	ledger := checkpoint.NewRepository(db.Pool)
	forecasts := forecast.NewRepository(db.Pool)
	subs := alert.NewSubscriptionRepository(db.Pool)
	audit := alert.NewAuditRepository(db.Pool)

	var notifier alert.Notifier
	if cfg.Alerts.WebhookURL != "" {
		notifier = alert.NewWebhookNotifier(httpClient, cfg.Alerts.WebhookURL, log)
	} else {
		notifier = alert.NewLogNotifier(log)
	}

	a := &app{
		cfg:      cfg,
		logger:   log,
		db:       db,
		rdb:      rdb,
		cache:    cache,
		provider: prov,
		stations: stations,
		readings: readings,
		ledger:   ledger,
		registry: station.NewRegistry(stations, log),
		readingCollector: reading.NewCollector(stations, readings, ledger, prov, reading.Config{
			Workers: cfg.Collector.Workers,
		}, log),
		forecastCollector: forecast.NewCollector(forecasts, prov, forecast.Config{
			Workers: cfg.Collector.Workers,
		}, log),
		evaluator: alert.NewEvaluator(subs, alert.NewRegistryResolver(stations), readings, audit, notifier, cache, alert.Config{
			Cooldown:      cfg.Alerts.Cooldown,
			ReadingMaxAge: cfg.Alerts.ReadingMaxAge,
		}, log),
	}
	return a, nil
}

// Close releases database and Redis connections.
func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
