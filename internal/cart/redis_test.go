package cart_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/homestay-pricing/internal/cart"
)

func newRedisKV(t *testing.T, ttl time.Duration) (*cart.RedisKV, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cart.NewRedisKV(client, ttl), mr
}

func TestRedisKVRoundTrip(t *testing.T) {
	kv, _ := newRedisKV(t, 0)
	ctx := context.Background()

	_, ok, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, kv.Set(ctx, "k", "v"))
	v, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", v)

	require.NoError(t, kv.Delete(ctx, "k"))
	_, ok, err = kv.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisKVAppliesTTL(t *testing.T) {
	kv, mr := newRedisKV(t, time.Hour)
	require.NoError(t, kv.Set(context.Background(), "k", "v"))
	require.Equal(t, time.Hour, mr.TTL("k"))

	mr.FastForward(2 * time.Hour)
	require.False(t, mr.Exists("k"))
}

func TestStoreOverRedisUsesOwnerKeys(t *testing.T) {
	kv, mr := newRedisKV(t, 0)
	ctx := context.Background()
	s := cart.NewStore(kv, cart.KeysFor("hs:", "device-1"), nil)
	require.NoError(t, s.Load(ctx))

	_, err := s.Add(ctx, room(t, 1, 10))
	require.NoError(t, err)

	require.True(t, mr.Exists("hs:device-1:roomCart"))
	home, err := mr.Get("hs:device-1:currentHomeStayId")
	require.NoError(t, err)
	require.Equal(t, "10", home)

	require.NoError(t, s.Clear(ctx))
	require.False(t, mr.Exists("hs:device-1:currentHomeStayId"))
}

func TestStoreLoadFailsWhenRedisDown(t *testing.T) {
	kv, mr := newRedisKV(t, 0)
	mr.Close()

	s := cart.NewStore(kv, cart.KeysFor("", "x"), nil)
	require.Error(t, s.Load(context.Background()))
	require.True(t, s.Loaded())
	require.Empty(t, s.Items())
}
