package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ticket-acquisition/models"
)

// RedisStore keeps serialized selections in Redis, one key per
// (owner, event) pair. The owner is an opaque session or user identifier so
// concurrent buyers never read each other's selections.
type RedisStore struct {
	redis *redis.Client
	owner string
	ttl   time.Duration
}

func NewRedisStore(redisClient *redis.Client, owner string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		redis: redisClient,
		owner: owner,
		ttl:   ttl,
	}
}

func (s *RedisStore) key(eventID string) string {
	return fmt.Sprintf("selection:%s:%s", s.owner, eventID)
}

func (s *RedisStore) Get(ctx context.Context, eventID string) (*models.StoredSelection, error) {
	data, err := s.redis.Get(ctx, s.key(eventID)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("selection store: get: %w", err)
	}

	var sel models.StoredSelection
	if err := json.Unmarshal([]byte(data), &sel); err != nil {
		return nil, fmt.Errorf("selection store: unmarshal: %w", err)
	}
	return &sel, nil
}

func (s *RedisStore) Set(ctx context.Context, eventID string, sel *models.StoredSelection) error {
	sel.SavedAt = time.Now()

	data, err := json.Marshal(sel)
	if err != nil {
		return fmt.Errorf("selection store: marshal: %w", err)
	}

	if err := s.redis.Set(ctx, s.key(eventID), string(data), s.ttl).Err(); err != nil {
		return fmt.Errorf("selection store: set: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, eventID string) error {
	if err := s.redis.Del(ctx, s.key(eventID)).Err(); err != nil {
		return fmt.Errorf("selection store: remove: %w", err)
	}
	return nil
}
