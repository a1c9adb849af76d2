// Package redisstore backs the geocache and the preference store with
// Redis, so cached observations and the manual location survive
// restarts and are shared across replicas.
package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
)

const recordPrefix = "riskcache:"

// NewClient builds a Redis client from the service configuration.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// RecordStore implements geocache.Store on Redis. The cache layer owns
// the TTL semantics; the Redis retention set here only garbage-collects
// records the cache would refuse to serve anyway.
type RecordStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewRecordStore creates a store whose keys expire at twice the cache
// TTL.
func NewRecordStore(client *redis.Client, cacheTTL time.Duration) *RecordStore {
	return &RecordStore{client: client, retention: 2 * cacheTTL}
}

func (s *RecordStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, recordPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, domain.WrapError(domain.CategoryGeneral, "redis get record", err)
	}
	return data, true, nil
}

func (s *RecordStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, recordPrefix+key, value, s.retention).Err(); err != nil {
		return domain.WrapError(domain.CategoryGeneral, "redis set record", err)
	}
	return nil
}

func (s *RecordStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, recordPrefix+key).Err(); err != nil {
		return domain.WrapError(domain.CategoryGeneral, "redis delete record", err)
	}
	return nil
}

// Clear drops every cache record while leaving other keyspaces (the
// manual location slot included) untouched.
func (s *RecordStore) Clear(ctx context.Context) error {
	keys, err := s.client.Keys(ctx, recordPrefix+"*").Result()
	if err != nil {
		return domain.WrapError(domain.CategoryGeneral, "redis list records", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return domain.WrapError(domain.CategoryGeneral, "redis clear records", err)
	}
	return nil
}

// CheckReadiness reports whether Redis answers a ping, wiring the store
// into the HTTP readiness probe.
func (s *RecordStore) CheckReadiness(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
