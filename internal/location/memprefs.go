package location

import (
	"context"
	"sync"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
)

// MemoryPreferenceStore is an in-process PreferenceStore for
// deployments without Redis. The manual location does not survive a
// restart.
type MemoryPreferenceStore struct {
	mu    sync.RWMutex
	entry domain.ManualEntry
	set   bool
}

func NewMemoryPreferenceStore() *MemoryPreferenceStore {
	return &MemoryPreferenceStore{}
}

func (s *MemoryPreferenceStore) ManualLocation(_ context.Context) (domain.ManualEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entry, s.set, nil
}

func (s *MemoryPreferenceStore) SaveManualLocation(_ context.Context, entry domain.ManualEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry, s.set = entry, true
	return nil
}
