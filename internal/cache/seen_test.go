package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newSeen(t *testing.T, client *redis.Client) *Seen {
	t.Helper()
	s, err := NewSeen(DefaultConfig(), client, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestSeenRecentlyLocal(t *testing.T) {
	s := newSeen(t, nil)
	ctx := context.Background()

	assert.False(t, s.SeenRecently(ctx, "The kettle is cooling."))
	assert.True(t, s.SeenRecently(ctx, "  the kettle   is COOLING. "))
	assert.False(t, s.SeenRecently(ctx, "The kettle is warm."))

	st := s.Stats()
	assert.Equal(t, int64(1), st.L1Hits)
	assert.Equal(t, int64(2), st.Misses)
}

func TestSeenRecentlyBlankAndDisabled(t *testing.T) {
	s := newSeen(t, nil)
	assert.False(t, s.SeenRecently(context.Background(), "   "))
	assert.False(t, s.SeenRecently(context.Background(), "   "))

	off, err := NewSeen(Config{Window: 0}, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer off.Close()
	assert.False(t, off.SeenRecently(context.Background(), "again"))
	assert.False(t, off.SeenRecently(context.Background(), "again"))
}

func TestSeenRecentlySharedThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	a := newSeen(t, client)
	b := newSeen(t, client)
	ctx := context.Background()

	assert.False(t, a.SeenRecently(ctx, "Someone left the window open."))
	assert.True(t, b.SeenRecently(ctx, "Someone left the window open."))
	assert.Equal(t, int64(1), b.Stats().L2Hits)

	key := DefaultConfig().KeyPrefix + Key("Someone left the window open.")
	assert.True(t, mr.Exists(key))
	assert.Equal(t, 6*time.Hour, mr.TTL(key))
}

func TestSeenRecentlyRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	s := newSeen(t, client)
	ctx := context.Background()
	assert.False(t, s.SeenRecently(ctx, "Still here."))
	assert.True(t, s.SeenRecently(ctx, "Still here."))
	assert.Equal(t, int64(1), s.Stats().L2Errors)
}

func TestKey(t *testing.T) {
	assert.Empty(t, Key(" \n\t"))
	assert.Equal(t, Key("A  b"), Key("a b"))
	assert.Len(t, Key("x"), 32)
}
