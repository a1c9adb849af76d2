package domain

import (
	"fmt"
	"log/slog"
	"math"
)

// Coordinate is a WGS-84 latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NewCoordinate builds a validated coordinate.
func NewCoordinate(lat, lon float64) (Coordinate, error) {
	c := Coordinate{Lat: lat, Lon: lon}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

// Validate rejects NaN, infinities, and values outside the WGS-84
// envelope. The poles and the antimeridian are valid.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) {
		return NewError(CategoryValidation, "latitude must be a finite number")
	}
	if math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) {
		return NewError(CategoryValidation, "longitude must be a finite number")
	}
	if c.Lat < -90 || c.Lat > 90 {
		return NewError(CategoryValidation, fmt.Sprintf("latitude %g out of range [-90, 90]", c.Lat))
	}
	if c.Lon < -180 || c.Lon > 180 {
		return NewError(CategoryValidation, fmt.Sprintf("longitude %g out of range [-180, 180]", c.Lon))
	}
	return nil
}

// Redacted returns the logging-safe view of the coordinate. Every log
// statement that mentions a coordinate must go through this; raw Lat/Lon
// values never reach a log handler.
func (c Coordinate) Redacted() RedactedCoordinate {
	return RedactedCoordinate{lat: c.Lat, lon: c.Lon}
}

// RedactedCoordinate renders a coordinate at two decimal places
// (roughly 1.1 km of precision). It implements slog.LogValuer so slog
// handlers only ever see the rounded form.
type RedactedCoordinate struct {
	lat, lon float64
}

func (r RedactedCoordinate) String() string {
	return fmt.Sprintf("%.2f,%.2f", r.lat, r.lon)
}

// LogValue implements slog.LogValuer.
func (r RedactedCoordinate) LogValue() slog.Value {
	return slog.StringValue(r.String())
}
