package ledger

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the set holding ledger ids.
const DefaultRedisKey = "promobot:seen"

// RedisStore keeps the ledger in a Redis set. Sets are unordered, so Load
// returns ids in no particular order.
type RedisStore struct {
	cl  *redis.Client
	key string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(cl *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{cl: cl, key: key}
}

// NewRedisStoreFromURL connects using a redis:// URL.
func NewRedisStoreFromURL(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return NewRedisStore(redis.NewClient(opts), DefaultRedisKey), nil
}

// Load returns the set members. A missing key is an empty ledger.
func (s *RedisStore) Load(ctx context.Context) ([]string, error) {
	ids, err := s.cl.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot read ledger set: %w", err)
	}
	return ids, nil
}

// Append adds ids to the set.
func (s *RedisStore) Append(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}

	if err := s.cl.SAdd(ctx, s.key, members...).Err(); err != nil {
		return fmt.Errorf("cannot add to ledger set: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.cl.Close()
}
