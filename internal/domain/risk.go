package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Level is a fire danger tier. Levels are ordered by severity, so
// comparing two values with < and > compares danger.
type Level int

const (
	LevelVeryLow Level = iota
	LevelLow
	LevelModerate
	LevelHigh
	LevelVeryHigh
	LevelExtreme
)

// EFFIS fire danger class floors on the FWI scale.
const (
	fwiLowFloor      = 5.2
	fwiModerateFloor = 11.2
	fwiHighFloor     = 21.3
	fwiVeryHighFloor = 38.0
	fwiExtremeFloor  = 50.0
)

// LevelFromIndex maps an FWI value to its EFFIS fire danger class:
//
//	<5.2 very low | <11.2 low | <21.3 moderate | <38.0 high | <50.0 very high | ≥50.0 extreme
//
// Each boundary value lands in the class above it, matching the EFFIS
// class definitions.
func LevelFromIndex(fwi float64) Level {
	switch {
	case fwi < fwiLowFloor:
		return LevelVeryLow
	case fwi < fwiModerateFloor:
		return LevelLow
	case fwi < fwiHighFloor:
		return LevelModerate
	case fwi < fwiVeryHighFloor:
		return LevelHigh
	case fwi < fwiExtremeFloor:
		return LevelVeryHigh
	default:
		return LevelExtreme
	}
}

var levelNames = map[Level]string{
	LevelVeryLow:  "very_low",
	LevelLow:      "low",
	LevelModerate: "moderate",
	LevelHigh:     "high",
	LevelVeryHigh: "very_high",
	LevelExtreme:  "extreme",
}

// ParseLevel converts a stored level token back to a Level. Unknown
// tokens are an error so that stale or corrupt records surface as
// parse failures instead of silently becoming "very_low".
func ParseLevel(s string) (Level, error) {
	for level, name := range levelNames {
		if name == s {
			return level, nil
		}
	}
	return LevelVeryLow, NewError(CategoryParse, fmt.Sprintf("unknown risk level %q", s))
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// MarshalJSON encodes the level as its stable token, e.g. "very_high".
func (l Level) MarshalJSON() ([]byte, error) {
	name, ok := levelNames[l]
	if !ok {
		return nil, NewError(CategoryParse, fmt.Sprintf("risk level %d has no token", int(l)))
	}
	return json.Marshal(name)
}

// UnmarshalJSON decodes a level token, rejecting unknown values.
func (l *Level) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return WrapError(CategoryParse, "risk level must be a string", err)
	}
	parsed, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Source identifies which resolution stage produced an observation.
type Source string

const (
	SourcePrimary   Source = "primary"   // EFFIS current FWI
	SourceSecondary Source = "secondary" // Met Office fire severity (England and Wales)
	SourceCache     Source = "cache"
	SourceSynthetic Source = "synthetic"
)

// Valid reports whether s is one of the known source tags.
func (s Source) Valid() bool {
	switch s {
	case SourcePrimary, SourceSecondary, SourceCache, SourceSynthetic:
		return true
	}
	return false
}

// Freshness qualifies how current an observation's data is.
type Freshness string

const (
	FreshnessLive      Freshness = "live"
	FreshnessCached    Freshness = "cached"
	FreshnessSynthetic Freshness = "synthetic"
)

// Valid reports whether f is one of the known freshness tags.
func (f Freshness) Valid() bool {
	switch f {
	case FreshnessLive, FreshnessCached, FreshnessSynthetic:
		return true
	}
	return false
}

// IndexReading is a raw FWI sample from an upstream provider, before
// classification and tagging.
type IndexReading struct {
	Value      float64
	ObservedAt time.Time // zero when the provider reports no timestamp
}

// RiskObservation is the resolved fire danger for one coordinate. It is
// the value handed to callers and the payload stored in the geocache.
type RiskObservation struct {
	Level      Level     `json:"level"`
	IndexValue *float64  `json:"index_value,omitempty"` // nil for synthetic observations
	Source     Source    `json:"source"`
	Freshness  Freshness `json:"freshness"`
	ObservedAt time.Time `json:"observed_at"` // always UTC
}

// NewObservation classifies a raw reading into a tagged observation.
// The observation time falls back to now when the provider gave none,
// and is normalized to UTC either way.
func NewObservation(reading IndexReading, source Source, freshness Freshness, now time.Time) RiskObservation {
	observedAt := reading.ObservedAt
	if observedAt.IsZero() {
		observedAt = now
	}
	value := reading.Value
	return RiskObservation{
		Level:      LevelFromIndex(reading.Value),
		IndexValue: &value,
		Source:     source,
		Freshness:  freshness,
		ObservedAt: observedAt.UTC(),
	}
}

// WithFreshness returns a copy with only the freshness tag replaced.
// Cache reads use it to downgrade "live" to "cached" while keeping the
// original source attribution.
func (o RiskObservation) WithFreshness(f Freshness) RiskObservation {
	o.Freshness = f
	return o
}

// Validate checks the observation's tags and index value. Decoded cache
// records pass through here so that tampered or stale-format payloads
// read as corrupt instead of leaking bad tags into responses.
func (o RiskObservation) Validate() error {
	if _, ok := levelNames[o.Level]; !ok {
		return NewError(CategoryParse, fmt.Sprintf("unknown risk level %d", int(o.Level)))
	}
	if !o.Source.Valid() {
		return NewError(CategoryParse, fmt.Sprintf("unknown observation source %q", o.Source))
	}
	if !o.Freshness.Valid() {
		return NewError(CategoryParse, fmt.Sprintf("unknown observation freshness %q", o.Freshness))
	}
	if o.IndexValue != nil && *o.IndexValue < 0 {
		return NewError(CategoryParse, fmt.Sprintf("index value %g must not be negative", *o.IndexValue))
	}
	if o.ObservedAt.IsZero() {
		return NewError(CategoryParse, "observation time missing")
	}
	return nil
}
