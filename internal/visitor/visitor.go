// Package visitor keeps the per-visitor values that outlive a page load: the
// chat session id and the remembered display name.
package visitor

import (
	"context"
	"strings"

	"github.com/ashureev/ecolite-widget/internal/store"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// SessionPrefix starts every widget session id.
const SessionPrefix = "web-"

// Profile reads and writes one visitor's durable values.
type Profile struct {
	kv    store.KV
	scope string
}

// New binds a profile to a KV scope (see store.Scope).
func New(kv store.KV, scope string) *Profile {
	return &Profile{kv: kv, scope: scope}
}

// NewSessionID returns a fresh session id.
func NewSessionID() string {
	return SessionPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// SessionID returns the stored session id, creating one on first use. An
// existing value is never replaced.
func (p *Profile) SessionID(ctx context.Context) (string, error) {
	id, ok, err := p.kv.Get(ctx, p.scope, store.KeySessionID)
	if err != nil {
		return "", errors.Wrap(err, "read session id")
	}
	if ok && id != "" {
		return id, nil
	}
	id, err = p.kv.SetIfAbsent(ctx, p.scope, store.KeySessionID, NewSessionID())
	if err != nil {
		return "", errors.Wrap(err, "create session id")
	}
	return id, nil
}

// DisplayName returns the remembered name, or "" when none was captured.
func (p *Profile) DisplayName(ctx context.Context) (string, error) {
	name, _, err := p.kv.Get(ctx, p.scope, store.KeyDisplayName)
	if err != nil {
		return "", errors.Wrap(err, "read display name")
	}
	return name, nil
}

// RememberName persists the trimmed name. Empty names are ignored.
func (p *Profile) RememberName(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	if err := p.kv.Set(ctx, p.scope, store.KeyDisplayName, name); err != nil {
		return errors.Wrap(err, "remember display name")
	}
	return nil
}

// Forget removes the stored session id and display name. The next
// SessionID call starts a new backend conversation.
func (p *Profile) Forget(ctx context.Context) error {
	for _, key := range []string{store.KeySessionID, store.KeyDisplayName} {
		if err := p.kv.Delete(ctx, p.scope, key); err != nil {
			return errors.Wrapf(err, "forget %s", key)
		}
	}
	return nil
}
