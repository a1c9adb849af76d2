// Package effis queries the EFFIS (European Forest Fire Information
// System) WFS endpoint for the current fire weather index. It is the
// primary source in the resolution chain.
package effis

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

// EFFIS rejects requests with default library agents, so every request
// identifies the service explicitly.
const userAgent = "wildfire-risk-service/1.0 (+https://github.com/couchcryptid/wildfire-risk-service)"

const fwiLayer = "effis:fwi.current"

// Client implements risk.Source against the EFFIS WFS API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	fetchOpts  fetch.Options
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates an EFFIS FWI client. Retry behavior comes from
// fetchOpts; the operation name is fixed here.
func NewClient(baseURL string, fetchOpts fetch.Options, logger *slog.Logger, metrics *observability.Metrics) *Client {
	fetchOpts.Name = "effis_fwi"
	return &Client{
		httpClient: &http.Client{Timeout: fetchOpts.PerAttempt},
		baseURL:    baseURL,
		fetchOpts:  fetchOpts,
		logger:     logger,
		metrics:    metrics,
	}
}

// Name identifies the provider in logs and stage events.
func (c *Client) Name() string { return "effis" }

// Query fetches the FWI reading for the coordinate, retrying transient
// upstream failures under the client's fetch options.
func (c *Client) Query(ctx context.Context, coord domain.Coordinate) (domain.IndexReading, error) {
	return fetch.Do(ctx, c.logger, c.metrics, c.fetchOpts, func(attemptCtx context.Context) (domain.IndexReading, error) {
		return c.fetchIndex(attemptCtx, coord)
	})
}

func (c *Client) fetchIndex(ctx context.Context, coord domain.Coordinate) (domain.IndexReading, error) {
	params := url.Values{
		"service":      {"WFS"},
		"version":      {"1.1.0"},
		"request":      {"GetFeature"},
		"typename":     {fwiLayer},
		"outputFormat": {"application/json"},
		"srsName":      {"EPSG:4326"},
		"bbox":         {pointBBox(coord)},
		"maxFeatures":  {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return domain.IndexReading{}, domain.WrapError(domain.CategoryGeneral, "create effis request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.IndexReading{}, domain.WrapError(domain.CategoryNetwork, "effis request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.IndexReading{}, domain.ErrorFromStatus(resp.StatusCode, fmt.Sprintf("effis response: %s", body))
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return domain.IndexReading{}, domain.WrapError(domain.CategoryParse, "decode effis response", err)
	}

	if len(fc.Features) == 0 {
		return domain.IndexReading{}, domain.NewError(domain.CategoryNotFound, "no fwi coverage for coordinate")
	}

	props := fc.Features[0].Properties
	if props.FWI < 0 {
		return domain.IndexReading{}, domain.NewError(domain.CategoryParse, fmt.Sprintf("fwi value %g out of range", props.FWI))
	}

	reading := domain.IndexReading{Value: props.FWI}
	// A malformed timestamp is not worth losing a good reading over;
	// downstream falls back to the resolve time.
	if props.Updated != "" {
		if ts, err := time.Parse(time.RFC3339, props.Updated); err == nil {
			reading.ObservedAt = ts
		}
	}
	return reading, nil
}

// pointBBox is a small lon/lat window around the coordinate, wide
// enough to always intersect one cell of the ~8 km FWI grid.
func pointBBox(coord domain.Coordinate) string {
	const half = 0.05
	return fmt.Sprintf("%.4f,%.4f,%.4f,%.4f",
		coord.Lon-half, coord.Lat-half, coord.Lon+half, coord.Lat+half)
}

// EFFIS WFS response types.

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	Properties properties `json:"properties"`
}

type properties struct {
	FWI     float64 `json:"fwi"`
	Updated string  `json:"updated"`
}
