package ledger

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRedisStore_RoundTrip verifies set storage against a live server.
// Set PROMOBOT_TEST_REDIS_URL to run it.
func TestRedisStore_RoundTrip(t *testing.T) {
	url := os.Getenv("PROMOBOT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("PROMOBOT_TEST_REDIS_URL not set")
	}

	ctx := context.Background()
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)

	key := "promobot:test:" + uuid.NewString()
	store := NewRedisStore(redis.NewClient(opts), key)
	t.Cleanup(func() {
		store.cl.Del(context.Background(), key)
		store.Close()
	})

	ids, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, store.Append(ctx, []string{"1", "2"}))
	require.NoError(t, store.Append(ctx, []string{"2", "3"}))

	ids, err = store.Load(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1", "2", "3"}, ids)
}

// TestNewRedisStore_DefaultKey verifies the key fallback
func TestNewRedisStore_DefaultKey(t *testing.T) {
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "")
	defer store.Close()

	assert.Equal(t, DefaultRedisKey, store.key)
}
