package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"lcrbench/internal/models"
)

const recentResultsKey = "lcr:results:recent"

// RecentStore caches the default recent-results view in Redis so the
// GUI's result list does not hit Postgres on every refresh.
type RecentStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRecentStore returns redis-backed store.
func NewRecentStore(client *redis.Client, ttl time.Duration) *RecentStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RecentStore{client: client, ttl: ttl}
}

// Get returns the cached result list, or redis.Nil when absent.
func (s *RecentStore) Get(ctx context.Context) ([]models.RecentResult, error) {
	data, err := s.client.Get(ctx, recentResultsKey).Result()
	if err != nil {
		return nil, err
	}
	var results []models.RecentResult
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Set caches the result list.
func (s *RecentStore) Set(ctx context.Context, results []models.RecentResult) error {
	data, err := json.Marshal(results)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, recentResultsKey, data, s.ttl).Err()
}

// Invalidate drops the cached list; called after new measurements land.
func (s *RecentStore) Invalidate(ctx context.Context) error {
	return s.client.Del(ctx, recentResultsKey).Err()
}
