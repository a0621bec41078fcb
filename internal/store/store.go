// Package store provides the durable key-value store behind the widget.
//
// Values are grouped by scope: one scope per embedding origin and visitor, so
// two sites embedding the widget never read each other's keys.
package store

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// Well-known keys.
const (
	KeySessionID   = "session_id"
	KeyDisplayName = "display_name"
)

// KV is a durable string store. Implementations must be safe for concurrent
// use.
type KV interface {
	// Get returns the value stored under scope/key and whether it exists.
	Get(ctx context.Context, scope, key string) (string, bool, error)

	// Set stores value under scope/key, replacing any previous value.
	Set(ctx context.Context, scope, key, value string) error

	// SetIfAbsent stores value only when scope/key has no value yet and
	// returns whichever value is stored afterwards.
	SetIfAbsent(ctx context.Context, scope, key, value string) (string, error)

	// Delete removes scope/key.
	Delete(ctx context.Context, scope, key string) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// Backend names a KV implementation.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendRedis  Backend = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend     Backend
	SQLitePath  string
	RedisAddr   string
	RedisPrefix string
}

// Open creates the configured backend.
func Open(ctx context.Context, opts Options) (KV, error) {
	switch Backend(strings.ToLower(string(opts.Backend))) {
	case BackendSQLite, "":
		return NewSQLite(opts.SQLitePath)
	case BackendRedis:
		return NewRedis(ctx, opts.RedisAddr, opts.RedisPrefix)
	default:
		return nil, errors.Errorf("unknown store backend %q", opts.Backend)
	}
}

// Scope builds the scope for a visitor on an embedding origin.
func Scope(origin, visitorID string) string {
	return strings.ToLower(strings.TrimSpace(origin)) + "|" + visitorID
}
