package geocache

import (
	"sync"
	"sync/atomic"
	"time"
)

// accessIndex tracks per-key access times for choosing eviction
// victims. It is approximate: Touch and Remove on different keys may
// interleave freely, and a racing refresh can lose to a concurrent
// eviction of the same key. Eviction only needs a reasonable victim,
// not a perfect one, so the index trades strict ordering for lock-free
// reads and writes. Reset is the one exception and must run under the
// cache's clear lock.
type accessIndex struct {
	entries sync.Map // key string -> last access time.Time
	size    atomic.Int64
}

func newAccessIndex() *accessIndex {
	return &accessIndex{}
}

// Touch records an access at the given time, inserting the key if new.
func (ix *accessIndex) Touch(key string, at time.Time) {
	if _, loaded := ix.entries.Swap(key, at); !loaded {
		ix.size.Add(1)
	}
}

// Has reports whether the key is currently tracked.
func (ix *accessIndex) Has(key string) bool {
	_, ok := ix.entries.Load(key)
	return ok
}

// Remove drops the key. Removing an untracked key is a no-op.
func (ix *accessIndex) Remove(key string) {
	if _, loaded := ix.entries.LoadAndDelete(key); loaded {
		ix.size.Add(-1)
	}
}

// Size returns the tracked entry count.
func (ix *accessIndex) Size() int {
	n := ix.size.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// Oldest returns the least recently touched key, or "" when empty.
func (ix *accessIndex) Oldest() string {
	var oldestKey string
	var oldestAt time.Time
	ix.entries.Range(func(k, v any) bool {
		at := v.(time.Time)
		if oldestKey == "" || at.Before(oldestAt) {
			oldestKey = k.(string)
			oldestAt = at
		}
		return true
	})
	return oldestKey
}

// Snapshot copies the access log. Mutating the copy does not affect
// the index.
func (ix *accessIndex) Snapshot() map[string]time.Time {
	out := make(map[string]time.Time)
	ix.entries.Range(func(k, v any) bool {
		out[k.(string)] = v.(time.Time)
		return true
	})
	return out
}

// Reset empties the index. Callers must hold the cache's clear lock.
func (ix *accessIndex) Reset() {
	ix.entries.Clear()
	ix.size.Store(0)
}
