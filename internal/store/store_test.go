package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "widget.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// exerciseKV runs the shared behaviour checks against any backend.
func exerciseKV(t *testing.T, kv KV) {
	ctx := context.Background()
	scope := Scope("https://ecolite.com.co", uuid.NewString())
	other := Scope("https://otro.example", uuid.NewString())

	_, ok, err := kv.Get(ctx, scope, KeyDisplayName)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, scope, KeyDisplayName, "Ana"))
	require.NoError(t, kv.Set(ctx, scope, KeyDisplayName, "Ana María"))
	v, ok, err := kv.Get(ctx, scope, KeyDisplayName)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Ana María", v)

	_, ok, err = kv.Get(ctx, other, KeyDisplayName)
	require.NoError(t, err)
	assert.False(t, ok, "scopes must not leak")

	first, err := kv.SetIfAbsent(ctx, scope, KeySessionID, "web-1")
	require.NoError(t, err)
	second, err := kv.SetIfAbsent(ctx, scope, KeySessionID, "web-2")
	require.NoError(t, err)
	assert.Equal(t, "web-1", first)
	assert.Equal(t, "web-1", second)

	require.NoError(t, kv.Delete(ctx, scope, KeySessionID))
	_, ok, err = kv.Get(ctx, scope, KeySessionID)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, kv.Ping(ctx))
}

func TestSQLiteStore(t *testing.T) {
	exerciseKV(t, newTestSQLite(t))
}

func TestSQLiteSetIfAbsentConcurrent(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := s.SetIfAbsent(ctx, "scope", KeySessionID, uuid.NewString())
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, results[0], v)
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	r, err := NewRedis(context.Background(), addr, "widget-test:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	exerciseKV(t, r)
}

func TestOpen(t *testing.T) {
	kv, err := Open(context.Background(), Options{SQLitePath: filepath.Join(t.TempDir(), "a.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, kv)
	require.NoError(t, kv.Close())

	_, err = Open(context.Background(), Options{Backend: "etcd"})
	assert.Error(t, err)
}

func TestScope(t *testing.T) {
	assert.Equal(t, "https://ecolite.com.co|v1", Scope(" HTTPS://Ecolite.com.co ", "v1"))
}
