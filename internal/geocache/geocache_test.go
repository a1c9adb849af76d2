package geocache

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
	"github.com/couchcryptid/wildfire-risk-service/internal/observability"
)

// --- helpers ---

var (
	edinburgh = domain.Coordinate{Lat: 55.9533, Lon: -3.1883}
	leon      = domain.Coordinate{Lat: 42.605, Lon: -5.603}
	jutland   = domain.Coordinate{Lat: 57.64911, Lon: 10.40744}
	nullIsle  = domain.Coordinate{Lat: 0, Lon: 0}
)

func newTestCache(capacity int) (*Cache, *MemoryStore, *clockwork.FakeClock) {
	store := NewMemoryStore()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 7, 14, 12, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, 6*time.Hour, capacity, clock, logger, observability.NewMetricsForTesting()), store, clock
}

func testObservation(clock clockwork.Clock) domain.RiskObservation {
	index := 15.0
	return domain.RiskObservation{
		Level:      domain.LevelModerate,
		IndexValue: &index,
		Source:     domain.SourcePrimary,
		Freshness:  domain.FreshnessLive,
		ObservedAt: clock.Now().UTC(),
	}
}

// --- Cache tests ---

func TestCache_RoundTrip(t *testing.T) {
	cache, _, clock := newTestCache(10)
	obs := testObservation(clock)

	require.NoError(t, cache.Set(context.Background(), edinburgh, obs))

	got, ok := cache.Get(context.Background(), edinburgh)
	require.True(t, ok)

	want := obs.WithFreshness(domain.FreshnessCached)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("observation mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, domain.SourcePrimary, got.Source, "source tag should survive the cache")
}

func TestCache_MissForUnknownCell(t *testing.T) {
	cache, _, _ := newTestCache(10)

	_, ok := cache.Get(context.Background(), edinburgh)
	assert.False(t, ok)
}

func TestCache_TTLBoundary(t *testing.T) {
	cache, _, clock := newTestCache(10)
	require.NoError(t, cache.Set(context.Background(), edinburgh, testObservation(clock)))

	// A record exactly six hours old is still served.
	clock.Advance(6 * time.Hour)
	_, ok := cache.Get(context.Background(), edinburgh)
	assert.True(t, ok, "record aged exactly the TTL should still hit")

	// One instant past the TTL it is gone.
	clock.Advance(time.Millisecond)
	_, ok = cache.Get(context.Background(), edinburgh)
	assert.False(t, ok, "record older than the TTL should miss")
}

func TestCache_HitDoesNotExtendTTL(t *testing.T) {
	cache, _, clock := newTestCache(10)
	require.NoError(t, cache.Set(context.Background(), edinburgh, testObservation(clock)))

	clock.Advance(5 * time.Hour)
	_, ok := cache.Get(context.Background(), edinburgh)
	require.True(t, ok)

	// The read refreshed the access index, not the stored-at stamp.
	clock.Advance(90 * time.Minute)
	_, ok = cache.Get(context.Background(), edinburgh)
	assert.False(t, ok, "expiry should count from the write, not the last read")
}

func TestCache_EvictsLeastRecentlyAccessed(t *testing.T) {
	cache, _, clock := newTestCache(3)
	obs := testObservation(clock)

	require.NoError(t, cache.Set(context.Background(), edinburgh, obs))
	clock.Advance(time.Second)
	require.NoError(t, cache.Set(context.Background(), leon, obs))
	clock.Advance(time.Second)
	require.NoError(t, cache.Set(context.Background(), jutland, obs))
	clock.Advance(time.Second)

	// Reading edinburgh refreshes it, leaving leon as the oldest.
	_, ok := cache.Get(context.Background(), edinburgh)
	require.True(t, ok)
	clock.Advance(time.Second)

	require.NoError(t, cache.Set(context.Background(), nullIsle, obs))

	_, ok = cache.Get(context.Background(), leon)
	assert.False(t, ok, "least recently accessed cell should have been evicted")

	for _, coord := range []domain.Coordinate{edinburgh, jutland, nullIsle} {
		_, ok := cache.Get(context.Background(), coord)
		assert.True(t, ok)
	}
	assert.Equal(t, 3, cache.Metadata().TotalEntries)
}

func TestCache_OverwriteSameCellDoesNotEvict(t *testing.T) {
	cache, _, clock := newTestCache(2)
	obs := testObservation(clock)

	require.NoError(t, cache.Set(context.Background(), edinburgh, obs))
	clock.Advance(time.Second)
	require.NoError(t, cache.Set(context.Background(), leon, obs))
	clock.Advance(time.Second)

	// Rewriting an existing cell at capacity must not push anything out.
	require.NoError(t, cache.Set(context.Background(), edinburgh, obs))

	_, ok := cache.Get(context.Background(), leon)
	assert.True(t, ok)
	assert.Equal(t, 2, cache.Metadata().TotalEntries)
}

func TestCache_CorruptRecordReadsAsMiss(t *testing.T) {
	cache, store, clock := newTestCache(10)
	key := cacheKey(edinburgh)

	require.NoError(t, store.Set(context.Background(), key, []byte("{definitely not json")))

	_, ok := cache.Get(context.Background(), edinburgh)
	assert.False(t, ok)

	// The slot can still be rewritten and served afterwards.
	require.NoError(t, cache.Set(context.Background(), edinburgh, testObservation(clock)))
	_, ok = cache.Get(context.Background(), edinburgh)
	assert.True(t, ok)
}

func TestCache_FormatVersionMismatchDropsRecord(t *testing.T) {
	cache, store, clock := newTestCache(10)
	key := cacheKey(edinburgh)

	raw, err := json.Marshal(record{
		Payload:       testObservation(clock),
		StoredAt:      clock.Now().UTC(),
		FormatVersion: "0",
	})
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), key, raw))

	_, ok := cache.Get(context.Background(), edinburgh)
	assert.False(t, ok)

	_, found, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, found, "mismatched record should be deleted from the store")
}

func TestCache_InvalidPayloadReadsAsMiss(t *testing.T) {
	cache, store, clock := newTestCache(10)
	key := cacheKey(edinburgh)

	bad := testObservation(clock)
	bad.Source = "oracle"
	raw, err := json.Marshal(record{Payload: bad, StoredAt: clock.Now().UTC(), FormatVersion: formatVersion})
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), key, raw))

	_, ok := cache.Get(context.Background(), edinburgh)
	assert.False(t, ok)
}

func TestCache_Remove(t *testing.T) {
	cache, _, clock := newTestCache(10)
	require.NoError(t, cache.Set(context.Background(), edinburgh, testObservation(clock)))

	require.NoError(t, cache.Remove(context.Background(), cacheKey(edinburgh)))

	_, ok := cache.Get(context.Background(), edinburgh)
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Metadata().TotalEntries)

	assert.NoError(t, cache.Remove(context.Background(), cacheKey(edinburgh)), "removing an absent key is a no-op")
}

func TestCache_Clear(t *testing.T) {
	cache, _, clock := newTestCache(10)
	obs := testObservation(clock)
	require.NoError(t, cache.Set(context.Background(), edinburgh, obs))
	require.NoError(t, cache.Set(context.Background(), leon, obs))

	require.NoError(t, cache.Clear(context.Background()))

	for _, coord := range []domain.Coordinate{edinburgh, leon} {
		_, ok := cache.Get(context.Background(), coord)
		assert.False(t, ok)
	}

	md := cache.Metadata()
	assert.Equal(t, 0, md.TotalEntries)
	assert.Empty(t, md.AccessLog)
	assert.Equal(t, "", md.LRUCandidateKey)
}

func TestCache_MetadataOnEmptyCache(t *testing.T) {
	cache, _, _ := newTestCache(10)

	md := cache.Metadata()
	assert.Equal(t, 0, md.TotalEntries)
	assert.Empty(t, md.AccessLog)
	assert.Equal(t, "", md.LRUCandidateKey, "empty cache has no eviction candidate")
}

func TestCache_MetadataTracksEvictionCandidate(t *testing.T) {
	cache, _, clock := newTestCache(10)
	obs := testObservation(clock)

	require.NoError(t, cache.Set(context.Background(), edinburgh, obs))
	clock.Advance(time.Second)
	require.NoError(t, cache.Set(context.Background(), leon, obs))

	assert.Equal(t, cacheKey(edinburgh), cache.Metadata().LRUCandidateKey)

	clock.Advance(time.Second)
	_, ok := cache.Get(context.Background(), edinburgh)
	require.True(t, ok)

	assert.Equal(t, cacheKey(leon), cache.Metadata().LRUCandidateKey,
		"reading edinburgh should make leon the eviction candidate")
}

func TestCache_SetRejectsInvalidCoordinate(t *testing.T) {
	cache, _, clock := newTestCache(10)

	err := cache.Set(context.Background(), domain.Coordinate{Lat: 91, Lon: 0}, testObservation(clock))
	require.Error(t, err)
	assert.True(t, domain.IsCategory(err, domain.CategoryValidation))
}

func TestCache_ConcurrentUse(t *testing.T) {
	cache, _, clock := newTestCache(64)
	obs := testObservation(clock)
	coords := []domain.Coordinate{edinburgh, leon, jutland, nullIsle}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				coord := coords[(n+j)%len(coords)]
				if j%10 == 0 {
					_ = cache.Clear(context.Background())
				}
				_ = cache.Set(context.Background(), coord, obs)
				cache.Get(context.Background(), coord)
			}
		}(i)
	}
	wg.Wait()

	md := cache.Metadata()
	assert.GreaterOrEqual(t, md.TotalEntries, 0)
	assert.LessOrEqual(t, md.TotalEntries, len(coords))
}
