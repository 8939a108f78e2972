package tier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis key layout:
//
//	offline:tiers                      set of tier names
//	offline:tier:<name>:members        set of identities in the tier
//	offline:tier:<name>:<identity>     JSON-encoded snapshot
const (
	redisKeyTiers      = "offline:tiers"
	redisTierKeyPrefix = "offline:tier:"
)

// RedisStore is a Store backed by Redis, shared across engine instances.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a redis-backed tier store.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient}
}

func snapshotKey(tierName string, id Identity) string {
	return redisTierKeyPrefix + tierName + ":" + id.String()
}

func membersKey(tierName string) string {
	return redisTierKeyPrefix + tierName + ":members"
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, tierName string, id Identity) (*Snapshot, error) {
	data, err := s.redis.Get(ctx, snapshotKey(tierName, id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			Misses.WithLabelValues(tierName).Inc()
			return nil, ErrMiss
		}
		Errors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		Errors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	Hits.WithLabelValues(tierName).Inc()
	return &snap, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, tierName string, id Identity, snap *Snapshot) error {
	if !id.Cacheable() {
		return ErrNotCacheable
	}
	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		Errors.WithLabelValues("put").Inc()
		return fmt.Errorf("encode snapshot: %w", err)
	}

	pipe := s.redis.Pipeline()
	pipe.Set(ctx, snapshotKey(tierName, id), data, 0)
	pipe.SAdd(ctx, membersKey(tierName), id.String())
	pipe.SAdd(ctx, redisKeyTiers, tierName)
	if _, err := pipe.Exec(ctx); err != nil {
		Errors.WithLabelValues("put").Inc()
		return fmt.Errorf("redis put: %w", err)
	}

	SnapshotBytes.WithLabelValues(tierName).Add(float64(len(snap.Body)))
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, tierName string, id Identity) error {
	pipe := s.redis.Pipeline()
	pipe.Del(ctx, snapshotKey(tierName, id))
	pipe.SRem(ctx, membersKey(tierName), id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		Errors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// TierNames implements Store.
func (s *RedisStore) TierNames(ctx context.Context) ([]string, error) {
	names, err := s.redis.SMembers(ctx, redisKeyTiers).Result()
	if err != nil {
		Errors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis tier names: %w", err)
	}
	return names, nil
}

// DropTier implements Store.
func (s *RedisStore) DropTier(ctx context.Context, tierName string) error {
	members, err := s.redis.SMembers(ctx, membersKey(tierName)).Result()
	if err != nil {
		Errors.WithLabelValues("drop").Inc()
		return fmt.Errorf("redis tier members: %w", err)
	}

	pipe := s.redis.Pipeline()
	for _, member := range members {
		pipe.Del(ctx, redisTierKeyPrefix+tierName+":"+member)
	}
	pipe.Del(ctx, membersKey(tierName))
	pipe.SRem(ctx, redisKeyTiers, tierName)
	if _, err := pipe.Exec(ctx); err != nil {
		Errors.WithLabelValues("drop").Inc()
		return fmt.Errorf("redis drop tier: %w", err)
	}
	return nil
}
