package geohash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name      string
		lat       float64
		lon       float64
		precision int
		expected  string
	}{
		{"edinburgh", 55.9533, -3.1883, 5, "gcvwr"},
		{"leon spain", 42.605, -5.603, 5, "ezs42"},
		{"jutland high precision", 57.64911, 10.40744, 11, "u4pruydqqvj"},
		{"null island", 0, 0, 5, "s0000"},
		{"single character", 0, 0, 1, "s"},
		{"south west extreme", -90, -180, 5, "00000"},
		{"north east extreme", 90, 180, 5, "zzzzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Encode(tt.lat, tt.lon, tt.precision))
		})
	}
}

func TestEncodeDeterministic(t *testing.T) {
	first := Encode(55.9533, -3.1883, PrecisionCacheKey)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Encode(55.9533, -3.1883, PrecisionCacheKey))
	}
}

func TestEncodePrefixProperty(t *testing.T) {
	// A longer hash of the same point always starts with the shorter
	// one, so cache keys at precision 5 group finer-grained positions.
	coarse := Encode(55.9533, -3.1883, 5)
	fine := Encode(55.9533, -3.1883, 9)

	assert.Len(t, coarse, 5)
	assert.Len(t, fine, 9)
	assert.True(t, strings.HasPrefix(fine, coarse))
}

func TestEncodeLength(t *testing.T) {
	for precision := 1; precision <= 12; precision++ {
		assert.Len(t, Encode(48.8566, 2.3522, precision), precision)
	}
}

func TestEncodeNonPositivePrecision(t *testing.T) {
	assert.Equal(t, "", Encode(48.8566, 2.3522, 0))
	assert.Equal(t, "", Encode(48.8566, 2.3522, -3))
}

func TestNearbyPointsShareCacheCell(t *testing.T) {
	// Princes Street and the Royal Mile are a few hundred metres apart
	// and must land in the same precision-5 cell.
	a := Encode(55.9521, -3.1965, PrecisionCacheKey)
	b := Encode(55.9508, -3.1887, PrecisionCacheKey)

	assert.Equal(t, a, b)
}
