package session

import (
	"context"

	"github.com/pkg/errors"

	"github.com/orbitlabs/go-session-client/identity"
	"github.com/orbitlabs/go-session-client/internal/utils"
	"github.com/orbitlabs/go-session-client/provider"
)

// Initialize restores a persisted session at process start. It never fails:
// a valid stored user and token pair restore the session directly, an
// expired pair triggers exactly one refresh attempt, and every failure
// degrades to a clean unauthenticated state.
func (m *Manager) Initialize(ctx context.Context) {
	user := m.store.User(ctx)
	if user != nil {
		if pair := m.store.Tokens(ctx); pair != nil {
			m.becomeAuthenticated(ctx, *user, nil)
			return
		}
		if stale := m.store.StaleTokens(ctx); stale != nil && stale.RefreshToken != "" {
			cctx, cancel := context.WithTimeout(ctx, m.operationTimeout)
			pair, err := m.provider.Refresh(cctx, stale.RefreshToken)
			cancel()
			if err == nil {
				m.becomeAuthenticated(ctx, *user, pair)
				return
			}
			m.logger.Warn().Err(err).Msg("stored session could not be refreshed")
		}
	}

	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("failed to clear credential store during startup")
	}
	m.mu.Lock()
	m.state = Session{}
	m.stopRenewalLocked()
	snapshot, subs := m.snapshotLocked()
	m.mu.Unlock()
	publish(snapshot, subs)
}

// Login authenticates with password credentials. On failure the session
// stays unauthenticated, LastError carries the provider's message, and the
// error is returned so form handlers can surface it their own way.
func (m *Manager) Login(ctx context.Context, creds identity.LoginCredentials) error {
	return m.establish(ctx, creds.RememberMe, func(cctx context.Context) (*identity.SessionResult, error) {
		return m.provider.Login(cctx, creds)
	})
}

// LoginDemo starts a demo session on the primary backend.
func (m *Manager) LoginDemo(ctx context.Context) error {
	return m.establish(ctx, false, func(cctx context.Context) (*identity.SessionResult, error) {
		return m.provider.LoginDemo(cctx)
	})
}

// Register creates an account and logs it in.
func (m *Manager) Register(ctx context.Context, data identity.RegisterData) error {
	return m.establish(ctx, false, func(cctx context.Context) (*identity.SessionResult, error) {
		return m.provider.Register(cctx, data)
	})
}

// Logout ends the session. The provider notification is best effort; local
// state and the credential store are wiped regardless, so Logout is the one
// operation guaranteed to succeed from the caller's point of view.
func (m *Manager) Logout(ctx context.Context) error {
	m.beginOperation()

	accessToken := utils.Value(m.store.StaleTokens(ctx)).AccessToken

	cctx, cancel := context.WithTimeout(ctx, m.operationTimeout)
	if err := m.provider.Logout(cctx, accessToken); err != nil {
		m.logger.Warn().Err(err).Msg("provider logout failed, cleaning up locally")
	}
	cancel()

	m.mu.Lock()
	m.epoch++
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Error().Err(err).Msg("failed to clear credential store on logout")
	}
	m.state = Session{}
	m.stopRenewalLocked()
	snapshot, subs := m.snapshotLocked()
	m.mu.Unlock()
	publish(snapshot, subs)
	return nil
}

// RefreshSession exchanges the stored refresh token for a new pair. On
// success only the stored tokens change; on failure the session ends and the
// store is cleared without surfacing an error, since "session expired"
// messaging belongs to the UI layer. A result that
// completes after a logout has already reset state is discarded.
func (m *Manager) RefreshSession(ctx context.Context) error {
	m.mu.Lock()
	if !m.state.Authenticated {
		m.mu.Unlock()
		return nil
	}
	epoch := m.epoch
	m.mu.Unlock()

	stale := m.store.StaleTokens(ctx)
	if stale == nil || stale.RefreshToken == "" {
		m.endSessionIfCurrent(ctx, epoch)
		return errors.New("[Manager.RefreshSession] no refresh token available")
	}

	cctx, cancel := context.WithTimeout(ctx, m.operationTimeout)
	pair, err := m.provider.Refresh(cctx, stale.RefreshToken)
	cancel()

	if err != nil {
		m.endSessionIfCurrent(ctx, epoch)
		return errors.Wrap(err, "[Manager.RefreshSession]")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch || !m.state.Authenticated {
		// A logout (or replacement login) won the race; its state stands.
		return nil
	}
	if err := m.store.SetTokens(ctx, *pair); err != nil {
		return errors.Wrap(err, "[Manager.RefreshSession] persist tokens")
	}
	return nil
}

// UpdateProfile replaces the profile record and keeps the cached user in the
// store consistent on success.
func (m *Manager) UpdateProfile(ctx context.Context, update identity.ProfileUpdate) error {
	pair := m.store.Tokens(ctx)
	if pair == nil {
		return errors.New("[Manager.UpdateProfile] not authenticated")
	}

	cctx, cancel := context.WithTimeout(ctx, m.operationTimeout)
	user, err := m.provider.UpdateProfile(cctx, pair.AccessToken, update)
	cancel()
	if err != nil {
		m.recordError(err)
		return err
	}

	m.mu.Lock()
	if m.state.Authenticated {
		if err := m.store.SetUser(ctx, *user); err != nil {
			m.logger.Error().Err(err).Msg("failed to persist updated profile")
		}
		m.state.User = user
	}
	snapshot, subs := m.snapshotLocked()
	m.mu.Unlock()
	publish(snapshot, subs)
	return nil
}

// ChangePassword is a pass-through to the selected provider.
func (m *Manager) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	pair := m.store.Tokens(ctx)
	if pair == nil {
		return errors.New("[Manager.ChangePassword] not authenticated")
	}

	cctx, cancel := context.WithTimeout(ctx, m.operationTimeout)
	err := m.provider.ChangePassword(cctx, pair.AccessToken, currentPassword, newPassword)
	cancel()
	if err != nil {
		m.recordError(err)
		return err
	}
	return nil
}

// RequestPasswordReset is a pass-through to the selected provider.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) error {
	cctx, cancel := context.WithTimeout(ctx, m.operationTimeout)
	err := m.provider.RequestPasswordReset(cctx, email)
	cancel()
	if err != nil {
		m.recordError(err)
		return err
	}
	return nil
}

// establish runs a session-creating operation (login, demo login, register):
// loading flag up, provider call outside the lock, then tokens persisted
// before the user so a crash mid-write never leaves an authenticated-looking
// user without a token.
func (m *Manager) establish(ctx context.Context, rememberMe bool, call func(context.Context) (*identity.SessionResult, error)) error {
	m.beginOperation()

	cctx, cancel := context.WithTimeout(ctx, m.operationTimeout)
	result, err := call(cctx)
	cancel()
	if err != nil {
		m.failOperation(err)
		return err
	}

	pair := result.Tokens
	if !rememberMe {
		if capped := m.nowFunc().Add(m.sessionTokenTTL); capped.Before(pair.ExpiresAt) {
			pair.ExpiresAt = capped
		}
	}

	m.mu.Lock()
	m.epoch++
	if err := m.store.SetTokens(ctx, pair); err == nil {
		err = m.store.SetUser(ctx, result.User)
	}
	if err != nil {
		_ = m.store.Clear(ctx)
		m.state = Session{LastError: "could not persist session"}
		m.stopRenewalLocked()
		snapshot, subs := m.snapshotLocked()
		m.mu.Unlock()
		publish(snapshot, subs)
		return errors.Wrap(err, "[Manager.establish] persist session")
	}

	user := result.User
	m.state = Session{Authenticated: true, User: &user}
	m.startRenewalLocked()
	snapshot, subs := m.snapshotLocked()
	m.mu.Unlock()
	publish(snapshot, subs)
	return nil
}

// becomeAuthenticated installs a restored session at startup, persisting the
// refreshed pair first when one was obtained.
func (m *Manager) becomeAuthenticated(ctx context.Context, user identity.User, refreshed *identity.TokenPair) {
	if refreshed != nil {
		if err := m.store.SetTokens(ctx, *refreshed); err != nil {
			m.logger.Error().Err(err).Msg("failed to persist refreshed tokens, degrading to unauthenticated")
			_ = m.store.Clear(ctx)
			m.mu.Lock()
			m.state = Session{}
			snapshot, subs := m.snapshotLocked()
			m.mu.Unlock()
			publish(snapshot, subs)
			return
		}
	}

	m.mu.Lock()
	m.state = Session{Authenticated: true, User: &user}
	m.startRenewalLocked()
	snapshot, subs := m.snapshotLocked()
	m.mu.Unlock()
	publish(snapshot, subs)
}

// endSessionIfCurrent tears the session down after a failed refresh, unless
// the epoch shows a newer logout or login already replaced it.
func (m *Manager) endSessionIfCurrent(ctx context.Context, epoch uint64) {
	m.mu.Lock()
	if m.epoch != epoch || !m.state.Authenticated {
		m.mu.Unlock()
		return
	}
	m.epoch++
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Error().Err(err).Msg("failed to clear credential store after refresh failure")
	}
	m.state = Session{}
	m.stopRenewalLocked()
	snapshot, subs := m.snapshotLocked()
	m.mu.Unlock()
	publish(snapshot, subs)
}

func (m *Manager) beginOperation() {
	m.mu.Lock()
	m.state.Loading = true
	m.state.LastError = ""
	snapshot, subs := m.snapshotLocked()
	m.mu.Unlock()
	publish(snapshot, subs)
}

func (m *Manager) failOperation(err error) {
	m.mu.Lock()
	m.state.Loading = false
	m.state.LastError = provider.Message(err)
	snapshot, subs := m.snapshotLocked()
	m.mu.Unlock()
	publish(snapshot, subs)
}

func (m *Manager) recordError(err error) {
	m.mu.Lock()
	m.state.LastError = provider.Message(err)
	snapshot, subs := m.snapshotLocked()
	m.mu.Unlock()
	publish(snapshot, subs)
}
