// Package geohash implements base32 geohash encoding for cache keys.
//
// Coordinates within the same cell encode to the same string, which is
// what lets nearby lookups share one cached fire danger reading. At the
// cache precision of 5 characters a cell is roughly 4.9 km per side,
// coarse enough that one wildfire index value represents it fairly.
package geohash

// PrecisionCacheKey is the geohash length used for risk cache keys.
const PrecisionCacheKey = 5

var base32 = []byte("0123456789bcdefghjkmnpqrstuvwxyz")

// Encode returns the geohash of a WGS-84 coordinate at the given
// precision (number of output characters). Encoding is deterministic;
// callers validate coordinates upstream, so every finite input maps to
// exactly one cell.
func Encode(lat, lon float64, precision int) string {
	if precision <= 0 {
		return ""
	}

	latLo, latHi := -90.0, 90.0
	lonLo, lonHi := -180.0, 180.0

	out := make([]byte, 0, precision)
	ch := 0
	bit := 0
	lonTurn := true

	for len(out) < precision {
		if lonTurn {
			mid := (lonLo + lonHi) / 2
			if lon >= mid {
				ch = ch<<1 | 1
				lonLo = mid
			} else {
				ch <<= 1
				lonHi = mid
			}
		} else {
			mid := (latLo + latHi) / 2
			if lat >= mid {
				ch = ch<<1 | 1
				latLo = mid
			} else {
				ch <<= 1
				latHi = mid
			}
		}
		lonTurn = !lonTurn

		bit++
		if bit == 5 {
			out = append(out, base32[ch])
			bit = 0
			ch = 0
		}
	}
	return string(out)
}
