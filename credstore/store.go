// Package credstore persists the current token pair and user record across
// process restarts. It is the single source of truth for persisted
// credentials; the session manager's in-memory state is a cache over it.
package credstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/orbitlabs/go-session-client/identity"
)

// Fixed storage keys. keyRemember is a legacy flag written by older clients;
// Clear removes it so stale installs converge on an empty store.
const (
	keyTokens   = "orbit.session.tokens"
	keyUser     = "orbit.session.user"
	keyRemember = "orbit.session.remember"
)

// Store reads and writes credentials through a KV backend. Reads fail soft:
// a missing or unparsable entry yields absent, and a corrupt entry is purged
// as a side effect. Write errors are the only errors a caller ever sees.
type Store struct {
	kv      KV
	nowFunc func() time.Time
}

// Option modifies a Store.
type Option func(*Store)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Store) {
		s.nowFunc = nowFunc
	}
}

// New creates a credential store over the given KV backend.
func New(kv KV, options ...Option) (*Store, error) {
	if kv == nil {
		return nil, errors.New("[credstore.New] kv backend is required")
	}

	s := &Store{kv: kv, nowFunc: time.Now}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Tokens returns the stored token pair when it is still usable, or nil. A
// pair whose expiry has passed is reported as absent without touching the
// stored bytes; the refresh token inside it may still be usable via
// StaleTokens.
func (s *Store) Tokens(ctx context.Context) *identity.TokenPair {
	pair := s.StaleTokens(ctx)
	if !pair.Valid(s.nowFunc()) {
		return nil
	}
	return pair
}

// StaleTokens returns the stored token pair regardless of expiry, or nil
// when absent or corrupt. Used by the startup and refresh paths, which need
// the refresh token of an expired pair.
func (s *Store) StaleTokens(ctx context.Context) *identity.TokenPair {
	var pair identity.TokenPair
	if !s.read(ctx, keyTokens, &pair) {
		return nil
	}
	return &pair
}

// User returns the stored user record, or nil when absent.
func (s *Store) User(ctx context.Context) *identity.User {
	var user identity.User
	if !s.read(ctx, keyUser, &user) {
		return nil
	}
	return &user
}

// SetTokens overwrites the stored token pair. A pair that is already expired
// violates the store invariant and is rejected.
func (s *Store) SetTokens(ctx context.Context, pair identity.TokenPair) error {
	if !s.nowFunc().Before(pair.ExpiresAt) {
		return errors.New("[Store.SetTokens] token pair already expired")
	}
	return s.write(ctx, keyTokens, pair)
}

// SetUser overwrites the stored user record.
func (s *Store) SetUser(ctx context.Context, user identity.User) error {
	return s.write(ctx, keyUser, user)
}

// Clear removes both credential keys and any legacy flags. Idempotent; a
// missing key is not an error.
func (s *Store) Clear(ctx context.Context) error {
	for _, key := range []string{keyTokens, keyUser, keyRemember} {
		if err := s.kv.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
			return errors.Wrapf(err, "[Store.Clear] delete %q", key)
		}
	}
	return nil
}

// read unmarshals the value at key into out, reporting whether a usable
// value was present. Corrupt entries are purged.
func (s *Store) read(ctx context.Context, key string, out any) bool {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Warn().Err(err).Str("key", key).Msg("credential store read failed")
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("purging corrupt credential store entry")
		_ = s.kv.Delete(ctx, key)
		return false
	}
	return true
}

func (s *Store) write(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "marshal %q", key)
	}
	if err := s.kv.Set(ctx, key, string(raw)); err != nil {
		return errors.Wrapf(err, "write %q", key)
	}
	return nil
}
