package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the pipeline.
// Every environment variable is read here and nowhere else.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// External air-quality provider
	Provider ProviderConfig

	// Collection pipeline
	Collector CollectorConfig

	// Alert evaluation
	Alerts AlertConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL string

	// Connection pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// ProviderConfig holds the external air-quality API configuration.
type ProviderConfig struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	RatePerMinute int // provider-side request budget
}

// CollectorConfig holds collection run tuning.
type CollectorConfig struct {
	Workers           int
	MaxFetchRetries   int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
	ForecastDays      int
}

// AlertConfig holds alert evaluation tuning.
type AlertConfig struct {
	Cooldown      time.Duration
	WebhookURL    string
	ReadingMaxAge time.Duration // readings older than this never trigger alerts
}

// Load reads configuration from environment variables.
// This is the only function that calls os.Getenv().
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8087"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 15),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Provider: ProviderConfig{
			BaseURL:       getEnv("AQ_PROVIDER_BASE_URL", "https://api.airquality.example.com/v2"),
			Token:         getEnv("AQ_PROVIDER_TOKEN", ""),
			Timeout:       getEnvAsDuration("AQ_PROVIDER_TIMEOUT", "5s"),
			RatePerMinute: getEnvAsInt("AQ_PROVIDER_RATE_PER_MINUTE", 60),
		},

		Collector: CollectorConfig{
			Workers:           getEnvAsInt("COLLECTOR_WORKERS", 5),
			MaxFetchRetries:   getEnvAsInt("COLLECTOR_MAX_FETCH_RETRIES", 3),
			RetryInitialDelay: getEnvAsDuration("COLLECTOR_RETRY_INITIAL_DELAY", "500ms"),
			RetryMaxDelay:     getEnvAsDuration("COLLECTOR_RETRY_MAX_DELAY", "4s"),
			ForecastDays:      getEnvAsInt("COLLECTOR_FORECAST_DAYS", 3),
		},

		Alerts: AlertConfig{
			Cooldown:      getEnvAsDuration("ALERT_COOLDOWN", "1h"),
			WebhookURL:    getEnv("ALERT_WEBHOOK_URL", ""),
			ReadingMaxAge: getEnvAsDuration("ALERT_READING_MAX_AGE", "3h"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set.
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Collector.Workers < 1 {
		return fmt.Errorf("COLLECTOR_WORKERS must be at least 1")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations.
func loadEnvFile() {
	paths := []string{
		".env",
		"backend/.env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
