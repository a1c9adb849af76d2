package domain

import "time"

// LocationSource identifies which tier of the location fallback chain
// produced a position.
type LocationSource string

const (
	LocationLastKnown        LocationSource = "last_known"
	LocationLiveFix          LocationSource = "live_fix"
	LocationCachedManual     LocationSource = "cached_manual"
	LocationPersistedDefault LocationSource = "persisted_default"
)

// Position is a fix reported by a position sensor.
type Position struct {
	Coordinate Coordinate
	AccuracyKm float64 // 0 when the sensor reports no accuracy estimate
}

// ResolvedLocation is the outcome of the location fallback chain.
// Source tells the caller how trustworthy the coordinate is, from a
// fresh sensor fix down to the shipped default.
type ResolvedLocation struct {
	Coordinate Coordinate     `json:"coordinate"`
	Source     LocationSource `json:"source"`
	PlaceName  string         `json:"place_name,omitempty"` // set for manual entries and the persisted default
}

// ManualEntry is a user-chosen location held in the preference store.
// SavedAt bounds how long the entry may stand in for a live position:
// entries an hour old or older are ignored.
type ManualEntry struct {
	Coordinate Coordinate
	PlaceName  string
	SavedAt    time.Time // UTC
}
