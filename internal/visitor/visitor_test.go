package visitor

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ashureev/ecolite-widget/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProfile(t *testing.T, kv store.KV, scope string) *Profile {
	t.Helper()
	return New(kv, scope)
}

func openKV(t *testing.T) store.KV {
	t.Helper()
	kv, err := store.NewSQLite(filepath.Join(t.TempDir(), "visitor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func TestSessionIDIsStable(t *testing.T) {
	kv := openKV(t)
	ctx := context.Background()
	p := newProfile(t, kv, store.Scope("https://ecolite.com.co", "v1"))

	id, err := p.SessionID(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, SessionPrefix))

	again, err := newProfile(t, kv, store.Scope("https://ecolite.com.co", "v1")).SessionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	other, err := newProfile(t, kv, store.Scope("https://otro.example", "v1")).SessionID(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func TestSessionIDKeepsExistingValue(t *testing.T) {
	kv := openKV(t)
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, "s", store.KeySessionID, "web-legacy"))

	id, err := newProfile(t, kv, "s").SessionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "web-legacy", id)
}

func TestRememberName(t *testing.T) {
	kv := openKV(t)
	ctx := context.Background()
	p := newProfile(t, kv, "s")

	name, err := p.DisplayName(ctx)
	require.NoError(t, err)
	assert.Empty(t, name)

	require.NoError(t, p.RememberName(ctx, "  Ana "))
	require.NoError(t, p.RememberName(ctx, "   "))

	name, err = p.DisplayName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ana", name)
}

func TestNewSessionID(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, len(SessionPrefix)+12)
}

func TestForget(t *testing.T) {
	kv := openKV(t)
	ctx := context.Background()
	p := newProfile(t, kv, store.Scope("https://ecolite.com.co", "v1"))

	id, err := p.SessionID(ctx)
	require.NoError(t, err)
	require.NoError(t, p.RememberName(ctx, "Ana"))

	require.NoError(t, p.Forget(ctx))
	require.NoError(t, p.Forget(ctx), "forgetting twice is fine")

	name, err := p.DisplayName(ctx)
	require.NoError(t, err)
	assert.Empty(t, name)

	fresh, err := p.SessionID(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, id, fresh)
}
