package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, "test:cache"), mr
}

func TestRedisGetSetDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrMiss)

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), value)

	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Get(ctx, "k")
	require.ErrorIs(t, err, ErrMiss)
}

func TestRedisTTLExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Second))
	mr.FastForward(time.Second)

	_, err := store.Get(ctx, "k")
	require.ErrorIs(t, err, ErrMiss)
}

func TestRedisClearScopedToPrefix(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, mr.Set("unrelated", "keep"))

	require.NoError(t, store.Clear(ctx))
	_, err := store.Get(ctx, "a")
	require.ErrorIs(t, err, ErrMiss)

	kept, err := mr.Get("unrelated")
	require.NoError(t, err)
	require.Equal(t, "keep", kept)
}
