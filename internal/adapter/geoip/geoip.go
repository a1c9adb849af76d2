// Package geoip turns the client IP of an incoming request into a
// position sensor backed by a MaxMind GeoLite2 City database. A geo-IP
// fix is coarse (city level at best), so the sensor reports the
// database's accuracy radius alongside the coordinate and never claims
// a held last-known fix.
package geoip

import (
	"context"
	"io"
	"log/slog"
	"net"

	"github.com/oschwald/geoip2-golang"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
	"github.com/couchcryptid/wildfire-risk-service/internal/location"
)

// cityLookup is the slice of *geoip2.Reader the locator needs, kept
// narrow so tests can stand in a fake database.
type cityLookup interface {
	City(ip net.IP) (*geoip2.City, error)
}

// Locator owns the GeoLite2 database handle and hands out sensors bound
// to individual client IPs.
type Locator struct {
	db     cityLookup
	closer io.Closer
	logger *slog.Logger
}

// Open loads the GeoLite2 City database at path. The caller owns the
// returned locator and must Close it on shutdown.
func Open(path string, logger *slog.Logger) (*Locator, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, domain.WrapError(domain.CategoryGeneral, "open geoip database", err)
	}
	logger.Info("geoip database loaded", "path", path)
	return &Locator{db: reader, closer: reader, logger: logger}, nil
}

func (l *Locator) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// SensorFor binds a position sensor to one client IP. The sensor is
// cheap to build; make a fresh one per request.
func (l *Locator) SensorFor(clientIP string) location.PositionSensor {
	return &ipSensor{db: l.db, logger: l.logger, ip: net.ParseIP(clientIP)}
}

type ipSensor struct {
	db     cityLookup
	logger *slog.Logger
	ip     net.IP
}

// Supported reports whether the bound IP can plausibly geolocate.
// Loopback, RFC 1918, link-local, and unparsable addresses cannot, so
// the resolver skips straight past the sensor tiers for them.
func (s *ipSensor) Supported() bool {
	return s.ip != nil && s.ip.IsGlobalUnicast() && !s.ip.IsPrivate()
}

// LastKnown always reports no fix. Geo-IP lookups are stateless; there
// is no held position to reuse.
func (s *ipSensor) LastKnown(_ context.Context) (domain.Position, bool) {
	return domain.Position{}, false
}

func (s *ipSensor) Current(_ context.Context) (domain.Position, error) {
	if s.ip == nil {
		return domain.Position{}, domain.NewError(domain.CategoryValidation, "no client ip to geolocate")
	}

	record, err := s.db.City(s.ip)
	if err != nil {
		return domain.Position{}, domain.WrapError(domain.CategoryGeneral, "geoip lookup", err)
	}

	// MaxMind leaves the location zeroed when the IP has no known
	// coordinates.
	if record.Location.Latitude == 0 && record.Location.Longitude == 0 {
		return domain.Position{}, domain.NewError(domain.CategoryNotFound, "no coordinates for client ip")
	}

	pos := domain.Position{
		Coordinate: domain.Coordinate{Lat: record.Location.Latitude, Lon: record.Location.Longitude},
		AccuracyKm: float64(record.Location.AccuracyRadius),
	}
	s.logger.Debug("geoip fix", "coordinate", pos.Coordinate.Redacted(), "accuracy_km", pos.AccuracyKm)
	return pos, nil
}
