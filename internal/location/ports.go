// Package location produces a best-effort device position by walking
// tiered fallbacks: last known fix, live fix, recent manual entry,
// persisted default. Coordinates never reach a log line unredacted.
package location

import (
	"context"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
)

// PositionSensor is a platform position capability. Implementations
// bind to whatever the deployment offers (GeoIP lookup for HTTP
// clients, a stub in tests); the resolver treats them all alike.
type PositionSensor interface {
	// LastKnown returns the most recent fix without blocking on new
	// hardware or network work. ok is false when no fix is held.
	LastKnown(ctx context.Context) (domain.Position, bool)
	// Current acquires a fresh fix within the context's deadline.
	Current(ctx context.Context) (domain.Position, error)
	// Supported reports whether this sensor can produce fixes at all.
	// Unsupported sensors make the resolver skip the sensor tiers.
	Supported() bool
}

// PreferenceStore holds the single user-chosen manual location slot.
type PreferenceStore interface {
	// ManualLocation returns the stored entry, found=false when the
	// slot is empty.
	ManualLocation(ctx context.Context) (domain.ManualEntry, bool, error)
	// SaveManualLocation overwrites the slot.
	SaveManualLocation(ctx context.Context, entry domain.ManualEntry) error
}
