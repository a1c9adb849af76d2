// Package http exposes the risk resolution API plus the health,
// readiness, and metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
	"github.com/couchcryptid/wildfire-risk-service/internal/location"
)

// RiskResolver produces the fire danger for a coordinate.
type RiskResolver interface {
	Resolve(ctx context.Context, coord domain.Coordinate) (domain.RiskObservation, error)
}

// LocationResolver finds a usable position for a request and manages
// the manual location slot.
type LocationResolver interface {
	Resolve(ctx context.Context, sensor location.PositionSensor, allowDefault bool) (domain.ResolvedLocation, error)
	SaveManual(ctx context.Context, coord domain.Coordinate, placeName string) error
}

// SensorProvider binds a position sensor to a client IP.
type SensorProvider interface {
	SensorFor(clientIP string) location.PositionSensor
}

// Publisher forwards resolved observations to downstream consumers.
type Publisher interface {
	PublishAsync(ctx context.Context, coord domain.Coordinate, obs domain.RiskObservation)
}

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes the v1 API plus health, readiness, and metrics routes.
type Server struct {
	httpServer *http.Server
	risk       RiskResolver
	locations  LocationResolver
	sensors    SensorProvider // nil when no geo-IP database is configured
	publisher  Publisher      // nil when the Kafka publisher is disabled
	logger     *slog.Logger
}

// NewServer wires the resolvers into an HTTP server. sensors and
// publisher may be nil; the affected features degrade quietly.
func NewServer(addr string, risk RiskResolver, locations LocationResolver, sensors SensorProvider, publisher Publisher, ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		risk:      risk,
		locations: locations,
		sensors:   sensors,
		publisher: publisher,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/risk", s.handleRisk)
	mux.HandleFunc("GET /v1/location", s.handleLocation)
	mux.HandleFunc("PUT /v1/location/manual", s.handleSaveManual)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// riskResponse is the GET /v1/risk body. LocationSource is "query" when
// the caller supplied coordinates, otherwise the tier that produced the
// position.
type riskResponse struct {
	Coordinate     domain.Coordinate      `json:"coordinate"`
	LocationSource string                 `json:"location_source"`
	PlaceName      string                 `json:"place_name,omitempty"`
	Risk           domain.RiskObservation `json:"risk"`
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	latStr := r.URL.Query().Get("lat")
	lonStr := r.URL.Query().Get("lon")

	var (
		coord          domain.Coordinate
		locationSource string
		placeName      string
	)
	switch {
	case latStr == "" && lonStr == "":
		loc, err := s.locations.Resolve(r.Context(), s.sensorFor(r), true)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		coord = loc.Coordinate
		locationSource = string(loc.Source)
		placeName = loc.PlaceName
	case latStr == "" || lonStr == "":
		s.writeError(w, r, domain.NewError(domain.CategoryValidation, "lat and lon must be supplied together"))
		return
	default:
		parsed, err := parseCoordinate(latStr, lonStr)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		coord = parsed
		locationSource = "query"
	}

	obs, err := s.risk.Resolve(r.Context(), coord)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if s.publisher != nil {
		s.publisher.PublishAsync(r.Context(), coord, obs)
	}

	writeJSON(w, http.StatusOK, riskResponse{
		Coordinate:     coord,
		LocationSource: locationSource,
		PlaceName:      placeName,
		Risk:           obs,
	})
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	allowDefault := true
	if v := r.URL.Query().Get("allow_default"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, r, domain.NewError(domain.CategoryValidation, "allow_default must be true or false"))
			return
		}
		allowDefault = parsed
	}

	loc, err := s.locations.Resolve(r.Context(), s.sensorFor(r), allowDefault)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

// manualLocationRequest is the PUT /v1/location/manual body.
type manualLocationRequest struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	PlaceName string  `json:"place_name"`
}

func (s *Server) handleSaveManual(w http.ResponseWriter, r *http.Request) {
	var req manualLocationRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		s.writeError(w, r, domain.WrapError(domain.CategoryValidation, "manual location body must be JSON with lat and lon", err))
		return
	}

	if err := s.locations.SaveManual(r.Context(), domain.Coordinate{Lat: req.Lat, Lon: req.Lon}, req.PlaceName); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// sensorFor binds a position sensor to the request's client IP. Without
// a sensor provider the location resolver skips the sensor tiers.
func (s *Server) sensorFor(r *http.Request) location.PositionSensor {
	if s.sensors == nil {
		return nil
	}
	return s.sensors.SensorFor(clientIP(r))
}

// clientIP extracts the originating address, trusting the first
// X-Forwarded-For hop when a proxy added one.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parseCoordinate validates the lat/lon query parameters.
func parseCoordinate(latStr, lonStr string) (domain.Coordinate, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return domain.Coordinate{}, domain.NewError(domain.CategoryValidation, "lat must be a number")
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return domain.Coordinate{}, domain.NewError(domain.CategoryValidation, "lon must be a number")
	}
	return domain.NewCoordinate(lat, lon)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}

	body := map[string]string{
		"error":    err.Error(),
		"category": string(domain.CategoryOf(err)),
	}
	var se *domain.ServiceError
	if errors.As(err, &se) && se.Kind != "" {
		body["kind"] = se.Kind
	}
	writeJSON(w, status, body)
}

// statusForError maps an error's category onto the response status.
// Upstream status codes never pass through: a 404 from a provider is an
// upstream detail, not a statement about this API.
func statusForError(err error) int {
	switch domain.CategoryOf(err) {
	case domain.CategoryValidation:
		return http.StatusBadRequest
	case domain.CategoryNotFound:
		return http.StatusNotFound
	case domain.CategoryServiceUnavailable, domain.CategoryNetwork:
		return http.StatusServiceUnavailable
	case domain.CategoryParse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response body
}
