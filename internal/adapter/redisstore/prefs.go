package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
)

const manualLocationKey = "riskprefs:manual_location"

// manualRecord is the stored JSON shape of the manual location slot.
// The timestamp travels as UTC epoch milliseconds.
type manualRecord struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	PlaceName string  `json:"place_name,omitempty"`
	SavedAtMS int64   `json:"saved_at_ms"`
}

// PreferenceStore implements location.PreferenceStore on Redis. The
// slot is a single persistent key; staleness is judged by the resolver,
// not by Redis expiry.
type PreferenceStore struct {
	client *redis.Client
}

func NewPreferenceStore(client *redis.Client) *PreferenceStore {
	return &PreferenceStore{client: client}
}

func (s *PreferenceStore) ManualLocation(ctx context.Context) (domain.ManualEntry, bool, error) {
	data, err := s.client.Get(ctx, manualLocationKey).Bytes()
	if err == redis.Nil {
		return domain.ManualEntry{}, false, nil
	}
	if err != nil {
		return domain.ManualEntry{}, false, domain.WrapError(domain.CategoryGeneral, "redis get manual location", err)
	}

	var rec manualRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.ManualEntry{}, false, domain.WrapError(domain.CategoryParse, "decode manual location", err)
	}

	entry := domain.ManualEntry{
		Coordinate: domain.Coordinate{Lat: rec.Lat, Lon: rec.Lon},
		PlaceName:  rec.PlaceName,
	}
	if rec.SavedAtMS > 0 {
		entry.SavedAt = time.UnixMilli(rec.SavedAtMS).UTC()
	}
	return entry, true, nil
}

func (s *PreferenceStore) SaveManualLocation(ctx context.Context, entry domain.ManualEntry) error {
	rec := manualRecord{
		Lat:       entry.Coordinate.Lat,
		Lon:       entry.Coordinate.Lon,
		PlaceName: entry.PlaceName,
	}
	if !entry.SavedAt.IsZero() {
		rec.SavedAtMS = entry.SavedAt.UnixMilli()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return domain.WrapError(domain.CategoryParse, "encode manual location", err)
	}
	if err := s.client.Set(ctx, manualLocationKey, data, 0).Err(); err != nil {
		return domain.WrapError(domain.CategoryGeneral, "redis set manual location", err)
	}
	return nil
}
