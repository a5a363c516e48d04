package tokenstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisBackend_RoundTrip(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := New(NewRedisBackend(rdb, "http://one", 0))

	store.Set(KeySessionToken, "s1")
	value, ok := store.Get(KeySessionToken)
	require.True(t, ok)
	assert.Equal(t, "s1", value)
	assert.True(t, mr.Exists("continuum:http://one:"+KeySessionToken))

	store.Delete(KeySessionToken)
	_, ok = store.Get(KeySessionToken)
	assert.False(t, ok)
}

func TestRedisBackend_TTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	backend := NewRedisBackend(rdb, "http://one", time.Hour)

	require.NoError(t, backend.Save(context.Background(), KeyAccessToken, "a1"))
	assert.Equal(t, time.Hour, mr.TTL("continuum:http://one:"+KeyAccessToken))

	mr.FastForward(2 * time.Hour)
	_, err := backend.Load(context.Background(), KeyAccessToken)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisBackend_UnavailableServerIsSwallowed(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mr.Close()

	var seen int
	store := New(
		NewRedisBackend(rdb, "http://one", 0),
		WithOpTimeout(200*time.Millisecond),
		WithDiagnostics(func(Diagnostic) { seen++ }),
	)

	store.Set(KeyAccessToken, "a1")
	_, ok := store.Get(KeyAccessToken)

	assert.False(t, ok)
	assert.Equal(t, 2, seen)
}

func TestNewRedisBackendFromURL_Invalid(t *testing.T) {
	_, err := NewRedisBackendFromURL("http://not-redis", "scope", 0)
	assert.Error(t, err)
}
