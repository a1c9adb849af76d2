// Package risk resolves a fire danger observation for a coordinate by
// walking a ranked chain of sources. The chain never fails: when every
// provider and the cache are down, the synthetic stage produces a
// seasonal baseline, so callers always get an observation for a valid
// coordinate.
package risk

import (
	"context"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
)

// Source is a ranked risk-index provider. Implementations own their
// transport and parsing; Query returns errors from the service
// taxonomy so the orchestrator can classify and fall through.
type Source interface {
	// Query returns the fire weather index reading for the coordinate.
	Query(ctx context.Context, coord domain.Coordinate) (domain.IndexReading, error)
	// Name identifies the provider in logs and stage events.
	Name() string
}
