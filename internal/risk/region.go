package risk

import "github.com/couchcryptid/wildfire-risk-service/internal/domain"

// Coverage box of the regional source. The Met Office fire severity
// index only covers the UK, so the orchestrator skips that stage for
// coordinates outside this window.
const (
	regionMinLon = -12.0
	regionMaxLon = 3.0
	regionMinLat = 49.0
	regionMaxLat = 62.0
)

// InSecondaryRegion reports whether the regional source covers coord.
// Boundary coordinates count as inside.
func InSecondaryRegion(coord domain.Coordinate) bool {
	return coord.Lon >= regionMinLon && coord.Lon <= regionMaxLon &&
		coord.Lat >= regionMinLat && coord.Lat <= regionMaxLat
}
