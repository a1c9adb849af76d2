package effis

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
	"github.com/couchcryptid/wildfire-risk-service/internal/fetch"
	"github.com/couchcryptid/wildfire-risk-service/internal/observability"
)

const (
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

var edinburgh = domain.Coordinate{Lat: 55.9533, Lon: -3.1883}

func testClient(baseURL string, maxRetries int) *Client {
	return NewClient(baseURL, fetch.Options{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		PerAttempt: time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
}

func TestClient_Query_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "WFS", r.URL.Query().Get("service"))
		assert.Equal(t, "GetFeature", r.URL.Query().Get("request"))
		assert.Equal(t, fwiLayer, r.URL.Query().Get("typename"))
		assert.NotEmpty(t, r.URL.Query().Get("bbox"))
		assert.Contains(t, r.Header.Get("User-Agent"), "wildfire-risk-service",
			"effis drops requests with default agents")

		resp := featureCollection{
			Features: []feature{
				{Properties: properties{FWI: 24.5, Updated: "2026-07-14T10:00:00Z"}},
			},
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 0)
	reading, err := c.Query(context.Background(), edinburgh)
	require.NoError(t, err)

	assert.Equal(t, 24.5, reading.Value)
	assert.Equal(t, time.Date(2026, 7, 14, 10, 0, 0, 0, time.UTC), reading.ObservedAt.UTC())
	assert.Equal(t, "effis", c.Name())
}

func TestClient_Query_EmptyFeaturesIsNotFound(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(featureCollection{Features: []feature{}}))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 3)
	_, err := c.Query(context.Background(), edinburgh)
	require.Error(t, err)

	assert.True(t, domain.IsCategory(err, domain.CategoryNotFound))
	assert.Equal(t, 1, calls, "a missing cell is terminal, not worth retrying")
}

func TestClient_Query_RetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(featureCollection{
			Features: []feature{{Properties: properties{FWI: 8.1}}},
		}))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 3)
	reading, err := c.Query(context.Background(), edinburgh)
	require.NoError(t, err)

	assert.Equal(t, 8.1, reading.Value)
	assert.Equal(t, 3, calls)
}

func TestClient_Query_ClientErrorIsTerminal(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"bad bbox"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 3)
	_, err := c.Query(context.Background(), edinburgh)
	require.Error(t, err)

	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "400")
}

func TestClient_Query_UnparsableBodyIsParseError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte("<ServiceExceptionReport>not json</ServiceExceptionReport>"))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 3)
	_, err := c.Query(context.Background(), edinburgh)
	require.Error(t, err)

	assert.True(t, domain.IsCategory(err, domain.CategoryParse))
	assert.Equal(t, 1, calls, "parse failures must never be retried")
}

func TestClient_Query_NegativeFWIIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(featureCollection{
			Features: []feature{{Properties: properties{FWI: -3.0}}},
		}))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 0)
	_, err := c.Query(context.Background(), edinburgh)
	require.Error(t, err)
	assert.True(t, domain.IsCategory(err, domain.CategoryParse))
}

func TestClient_Query_GarbageTimestampTolerated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(featureCollection{
			Features: []feature{{Properties: properties{FWI: 12.0, Updated: "soon"}}},
		}))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 0)
	reading, err := c.Query(context.Background(), edinburgh)
	require.NoError(t, err)

	assert.Equal(t, 12.0, reading.Value)
	assert.True(t, reading.ObservedAt.IsZero(), "bad timestamp should be dropped, not fail the reading")
}
