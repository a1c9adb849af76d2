package risk

import (
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
)

// Synthetic produces the last-resort observation when every provider
// and the cache have failed. The baseline is deterministic for a given
// month and latitude band and never carries an index value, so a
// consumer can always tell a placeholder from measured data.
type Synthetic struct {
	clock clockwork.Clock
}

func NewSynthetic(clock clockwork.Clock) *Synthetic {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Synthetic{clock: clock}
}

// Observation returns the seasonal baseline for the coordinate, tagged
// synthetic in both source and freshness.
func (s *Synthetic) Observation(coord domain.Coordinate) domain.RiskObservation {
	now := s.clock.Now().UTC()
	return domain.RiskObservation{
		Level:      seasonalLevel(coord.Lat, now.Month()),
		Source:     domain.SourceSynthetic,
		Freshness:  domain.FreshnessSynthetic,
		ObservedAt: now,
	}
}

// seasonalLevel estimates a cautious baseline from the hemisphere's
// dry season and the subtropical band. It tops out at moderate: a
// placeholder should prompt a refresh, not an alarm.
func seasonalLevel(lat float64, month time.Month) domain.Level {
	dry := drySeason(lat, month)
	subtropical := math.Abs(lat) <= 35
	switch {
	case dry && subtropical:
		return domain.LevelModerate
	case dry || subtropical:
		return domain.LevelLow
	default:
		return domain.LevelVeryLow
	}
}

// drySeason reports whether the month falls in the coordinate's
// hemisphere fire season (June through September north, December
// through March south).
func drySeason(lat float64, month time.Month) bool {
	if lat < 0 {
		return month == time.December || month <= time.March
	}
	return month >= time.June && month <= time.September
}
