// Package metoffice queries the Met Office fire severity feed, the
// regional secondary source. Coverage is UK-only; the orchestrator's
// region gate keeps queries inside it.
package metoffice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
	"github.com/couchcryptid/wildfire-risk-service/internal/fetch"
	"github.com/couchcryptid/wildfire-risk-service/internal/observability"
)

// Client implements risk.Source against the Met Office DataPoint fire
// severity index, which publishes daily FWI-scale assessments.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	fetchOpts  fetch.Options
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a fire severity client. The API key is mandatory;
// config keeps this adapter disabled when no key is present.
func NewClient(baseURL, apiKey string, fetchOpts fetch.Options, logger *slog.Logger, metrics *observability.Metrics) *Client {
	fetchOpts.Name = "metoffice_fsi"
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: fetchOpts.PerAttempt},
		baseURL:    baseURL,
		fetchOpts:  fetchOpts,
		logger:     logger,
		metrics:    metrics,
	}
}

// Name identifies the provider in logs and stage events.
func (c *Client) Name() string { return "metoffice" }

// Query fetches today's fire severity assessment for the coordinate.
func (c *Client) Query(ctx context.Context, coord domain.Coordinate) (domain.IndexReading, error) {
	return fetch.Do(ctx, c.logger, c.metrics, c.fetchOpts, func(attemptCtx context.Context) (domain.IndexReading, error) {
		return c.fetchAssessment(attemptCtx, coord)
	})
}

func (c *Client) fetchAssessment(ctx context.Context, coord domain.Coordinate) (domain.IndexReading, error) {
	params := url.Values{
		"res": {"daily"},
		"lat": {fmt.Sprintf("%.4f", coord.Lat)},
		"lon": {fmt.Sprintf("%.4f", coord.Lon)},
		"key": {c.apiKey},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/fsi/point?"+params.Encode(), nil)
	if err != nil {
		return domain.IndexReading{}, domain.WrapError(domain.CategoryGeneral, "create fsi request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.IndexReading{}, domain.WrapError(domain.CategoryNetwork, "fsi request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.IndexReading{}, domain.ErrorFromStatus(resp.StatusCode, fmt.Sprintf("fsi response: %s", body))
	}

	var fsi fsiResponse
	if err := json.NewDecoder(resp.Body).Decode(&fsi); err != nil {
		return domain.IndexReading{}, domain.WrapError(domain.CategoryParse, "decode fsi response", err)
	}

	if len(fsi.Forecast.Days) == 0 {
		return domain.IndexReading{}, domain.NewError(domain.CategoryNotFound, "no fsi assessment for coordinate")
	}

	today := fsi.Forecast.Days[0]
	if today.FWI < 0 {
		return domain.IndexReading{}, domain.NewError(domain.CategoryParse, fmt.Sprintf("fsi value %g out of range", today.FWI))
	}

	reading := domain.IndexReading{Value: today.FWI}
	// The feed is a daily product; its date pins the assessment to
	// midnight UTC. An unreadable date falls back to the resolve time.
	if today.Date != "" {
		if day, err := time.Parse("2006-01-02", today.Date); err == nil {
			reading.ObservedAt = day
		}
	}
	return reading, nil
}

// Met Office DataPoint response types.

type fsiResponse struct {
	Forecast forecast `json:"forecast"`
}

type forecast struct {
	Days []day `json:"days"`
}

type day struct {
	Date string  `json:"date"`
	FWI  float64 `json:"fwi"`
}
