// Package geocache stores resolved fire danger observations keyed by
// geohash cell, bounding staleness with a TTL and memory with an
// approximate LRU.
//
// Records live in a pluggable Store (in-process map or Redis) wrapped
// in a versioned envelope. Anything that fails to decode, carries a
// different format version, or fails payload validation reads as a
// miss, so a corrupted or downgraded store can never surface bad data;
// at worst the service refetches.
package geocache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
	"github.com/couchcryptid/wildfire-risk-service/internal/geohash"
	"github.com/couchcryptid/wildfire-risk-service/internal/observability"
)

// formatVersion marks the cache record layout. Bump it when the record
// shape changes; readers treat other versions as absent.
const formatVersion = "1"

// Store is the key-value backend holding encoded cache records.
type Store interface {
	// Get returns the raw record for key. Absent keys report found=false
	// with a nil error; err is reserved for backend faults.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// record is the envelope written to the store.
type record struct {
	Payload       domain.RiskObservation `json:"payload"`
	StoredAt      time.Time              `json:"stored_at"`
	FormatVersion string                 `json:"format_version"`
}

// Metadata is a point-in-time view of the cache index for diagnostics.
type Metadata struct {
	TotalEntries    int
	AccessLog       map[string]time.Time
	LRUCandidateKey string // "" when the cache is empty
}

// Cache maps geohash cells to observations with TTL expiry and
// capacity-bounded approximate LRU eviction. All methods are safe for
// concurrent use; Clear is exclusive with every other operation, while
// individual index updates may race (see accessIndex).
type Cache struct {
	store    Store
	ttl      time.Duration
	capacity int
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	clearMu sync.RWMutex // Clear holds write; all other operations hold read
	index   *accessIndex
}

// New creates a Cache over the given store. ttl and capacity must be
// positive; config validation guarantees that for service wiring.
func New(store Store, ttl time.Duration, capacity int, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Cache {
	return &Cache{
		store:    store,
		ttl:      ttl,
		capacity: capacity,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		index:    newAccessIndex(),
	}
}

// Get looks up the observation cached for the coordinate's cell. Hits
// are re-tagged with cached freshness and refresh the key's access
// time. Expired, corrupt, and version-mismatched records read as
// misses, as do store faults: a broken backend degrades to refetching,
// never to an error.
func (c *Cache) Get(ctx context.Context, coord domain.Coordinate) (domain.RiskObservation, bool) {
	c.clearMu.RLock()
	defer c.clearMu.RUnlock()

	key := cacheKey(coord)

	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
		c.metrics.CacheLookups.WithLabelValues("miss").Inc()
		return domain.RiskObservation{}, false
	}
	if !found {
		c.metrics.CacheLookups.WithLabelValues("miss").Inc()
		return domain.RiskObservation{}, false
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		c.logger.Warn("cache record undecodable, treating as miss", "key", key, "error", err)
		c.metrics.CacheLookups.WithLabelValues("corrupt").Inc()
		return domain.RiskObservation{}, false
	}
	if rec.FormatVersion != formatVersion {
		// A leftover from an older build. Delete eagerly so the slot
		// can be rewritten instead of tripping every future read.
		c.deleteQuietly(ctx, key)
		c.logger.Warn("cache record format mismatch, dropped",
			"key", key, "found_version", rec.FormatVersion, "want_version", formatVersion)
		c.metrics.CacheLookups.WithLabelValues("corrupt").Inc()
		return domain.RiskObservation{}, false
	}
	if err := rec.Payload.Validate(); err != nil {
		c.logger.Warn("cache record failed validation, treating as miss", "key", key, "error", err)
		c.metrics.CacheLookups.WithLabelValues("corrupt").Inc()
		return domain.RiskObservation{}, false
	}

	// A record exactly ttl old still counts as fresh; one instant past
	// it does not.
	if c.clock.Since(rec.StoredAt) > c.ttl {
		c.metrics.CacheLookups.WithLabelValues("expired").Inc()
		return domain.RiskObservation{}, false
	}

	c.index.Touch(key, c.clock.Now())
	c.metrics.CacheLookups.WithLabelValues("hit").Inc()
	return rec.Payload.WithFreshness(domain.FreshnessCached), true
}

// Set writes the observation for the coordinate's cell, evicting the
// least recently accessed entries first when the cache is at capacity.
func (c *Cache) Set(ctx context.Context, coord domain.Coordinate, obs domain.RiskObservation) error {
	if err := coord.Validate(); err != nil {
		return err
	}

	c.clearMu.RLock()
	defer c.clearMu.RUnlock()

	key := cacheKey(coord)
	now := c.clock.Now().UTC()

	for c.index.Size() >= c.capacity && !c.index.Has(key) {
		victim := c.index.Oldest()
		if victim == "" {
			break
		}
		if err := c.store.Delete(ctx, victim); err != nil {
			c.logger.Warn("cache eviction delete failed", "key", victim, "error", err)
		}
		c.index.Remove(victim)
		c.metrics.CacheEvictions.Inc()
		c.logger.Debug("cache entry evicted", "key", victim)
	}

	raw, err := json.Marshal(record{Payload: obs, StoredAt: now, FormatVersion: formatVersion})
	if err != nil {
		return domain.WrapError(domain.CategoryParse, "encode cache record", err)
	}
	if err := c.store.Set(ctx, key, raw); err != nil {
		return domain.WrapError(domain.CategoryGeneral, "write cache record", err)
	}

	c.index.Touch(key, now)
	c.metrics.CacheEntries.Set(float64(c.index.Size()))
	return nil
}

// Remove deletes one record by key. Removing an absent key is a no-op.
func (c *Cache) Remove(ctx context.Context, key string) error {
	c.clearMu.RLock()
	defer c.clearMu.RUnlock()

	if err := c.store.Delete(ctx, key); err != nil {
		return domain.WrapError(domain.CategoryGeneral, "delete cache record", err)
	}
	c.index.Remove(key)
	c.metrics.CacheEntries.Set(float64(c.index.Size()))
	return nil
}

// Clear empties the store and the access index. It blocks until every
// in-flight cache operation has finished and holds all of them out
// until the wipe completes.
func (c *Cache) Clear(ctx context.Context) error {
	c.clearMu.Lock()
	defer c.clearMu.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		return domain.WrapError(domain.CategoryGeneral, "clear cache store", err)
	}
	c.index.Reset()
	c.metrics.CacheEntries.Set(0)
	c.logger.Info("cache cleared")
	return nil
}

// Metadata reports the index state: entry count, a copy of the access
// log, and the key next in line for eviction ("" when empty).
func (c *Cache) Metadata() Metadata {
	c.clearMu.RLock()
	defer c.clearMu.RUnlock()

	return Metadata{
		TotalEntries:    c.index.Size(),
		AccessLog:       c.index.Snapshot(),
		LRUCandidateKey: c.index.Oldest(),
	}
}

func (c *Cache) deleteQuietly(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.Warn("cache delete failed", "key", key, "error", err)
	}
	c.index.Remove(key)
}

func cacheKey(coord domain.Coordinate) string {
	return geohash.Encode(coord.Lat, coord.Lon, geohash.PrecisionCacheKey)
}
