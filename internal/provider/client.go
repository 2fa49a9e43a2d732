// Package provider implements the client for the external air-quality
// API: current readings, daily forecasts, and the station catalog.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/evairo/aqmon/backend/internal/pipeline"
	"github.com/evairo/aqmon/backend/pkg/config"
	"github.com/evairo/aqmon/backend/pkg/httputil"
	"github.com/evairo/aqmon/backend/pkg/logger"
)

// Client handles communication with the air-quality provider.
// All provider API calls go through this client.
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	token      string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a new provider client. The local rate limiter bounds
// this process's request rate; a shared Redis limiter can additionally be
// attached to the underlying HTTP client.
func NewClient(httpClient *httputil.Client, cfg config.ProviderConfig, log *logger.Logger) *Client {
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 60
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "aq-provider",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		httpClient: httpClient,
		logger:     log.WithField("module", "provider"),
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute/6+1),
		breaker:    breaker,
	}
}

// FetchCurrentReading fetches the current reading for a station.
func (c *Client) FetchCurrentReading(ctx context.Context, stationIdx string) (*RawReading, error) {
	var out envelope[RawReading]
	path := fmt.Sprintf("/feed/%s/current", url.PathEscape(stationIdx))
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return nil, err
	}

	if out.Status != "ok" {
		return nil, &pipeline.ValidationError{Field: "status", Reason: fmt.Sprintf("provider rejected station %s: %s", stationIdx, out.Message)}
	}

	reading := out.Data
	if reading.StationIdx == "" {
		reading.StationIdx = stationIdx
	}
	if err := reading.Validate(); err != nil {
		return nil, err
	}

	return &reading, nil
}

// FetchForecast fetches the forecast for a station on a calendar day.
func (c *Client) FetchForecast(ctx context.Context, stationIdx string, day time.Time) (*RawForecast, error) {
	var out envelope[RawForecast]
	path := fmt.Sprintf("/feed/%s/forecast", url.PathEscape(stationIdx))
	params := url.Values{"day": {day.UTC().Format("2006-01-02")}}
	if err := c.getJSON(ctx, path, params, &out); err != nil {
		return nil, err
	}

	if out.Status != "ok" {
		return nil, &pipeline.ValidationError{Field: "status", Reason: fmt.Sprintf("provider rejected forecast for station %s: %s", stationIdx, out.Message)}
	}

	forecast := out.Data
	if forecast.StationIdx == "" {
		forecast.StationIdx = stationIdx
	}
	if err := forecast.Validate(); err != nil {
		return nil, err
	}

	return &forecast, nil
}

// FetchStations fetches the provider's station catalog, optionally
// filtered by city.
func (c *Client) FetchStations(ctx context.Context, city string) ([]StationRecord, error) {
	var out envelope[[]StationRecord]
	params := url.Values{}
	if city != "" {
		params.Set("city", city)
	}
	if err := c.getJSON(ctx, "/stations", params, &out); err != nil {
		return nil, err
	}

	if out.Status != "ok" {
		return nil, &pipeline.ValidationError{Field: "status", Reason: fmt.Sprintf("station catalog fetch rejected: %s", out.Message)}
	}

	return out.Data, nil
}

// getJSON performs a rate-limited, breaker-guarded GET and decodes the
// JSON body into dest. Errors are mapped to the pipeline taxonomy:
// transport failures and 5xx are transient, 4xx and malformed bodies
// are validation rejections.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, dest interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &pipeline.TransientFetchError{Source: "aq-provider", Err: err}
	}

	fullURL := c.baseURL + path
	if params == nil {
		params = url.Values{}
	}
	if c.token != "" {
		params.Set("token", c.token)
	}
	if len(params) > 0 {
		fullURL = fmt.Sprintf("%s?%s", fullURL, params.Encode())
	}

	body, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.httpClient.Get(ctx, fullURL)
		if err != nil {
			return nil, &pipeline.TransientFetchError{Source: "aq-provider", Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			if httputil.IsRetryableStatus(resp.StatusCode) {
				return nil, &pipeline.TransientFetchError{
					Source: "aq-provider",
					Err:    fmt.Errorf("status %d", resp.StatusCode),
				}
			}
			// 4xx: the station (or request) is wrong, retrying won't help
			return nil, &pipeline.ValidationError{
				Field:  "request",
				Reason: fmt.Sprintf("provider returned status %d", resp.StatusCode),
			}
		}

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &pipeline.TransientFetchError{Source: "aq-provider", Err: err}
		}
		return raw, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &pipeline.TransientFetchError{Source: "aq-provider", Err: err}
		}
		return err
	}

	if err := json.Unmarshal(body.([]byte), dest); err != nil {
		return &pipeline.ValidationError{Field: "body", Reason: fmt.Sprintf("malformed provider payload: %v", err)}
	}

	return nil
}
