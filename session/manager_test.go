package session_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orbitlabs/go-session-client/credstore"
	"github.com/orbitlabs/go-session-client/credstore/kvfakes"
	"github.com/orbitlabs/go-session-client/identity"
	"github.com/orbitlabs/go-session-client/provider"
	"github.com/orbitlabs/go-session-client/provider/providerfakes"
	"github.com/orbitlabs/go-session-client/session"
)

const (
	keyTokens = "orbit.session.tokens"
	keyUser   = "orbit.session.user"
)

var testTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// clock is a mutex-guarded fake time source; the renewal goroutine reads it
// concurrently with the test advancing it.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testFixture struct {
	provider *providerfakes.FakeProvider
	kv       *kvfakes.FakeKV
	store    *credstore.Store
	manager  *session.Manager
	clock    *clock
}

func setupTestFixture(t *testing.T, options ...session.Option) *testFixture {
	t.Helper()

	clk := &clock{now: testTime}
	fp := providerfakes.NewFakeProvider()
	kv := kvfakes.NewFakeKV()

	store, err := credstore.New(kv, credstore.WithNowTime(clk.Now))
	require.NoError(t, err)

	opts := append([]session.Option{
		session.WithNowTime(clk.Now),
		// Keep the ticker out of the way unless a test opts back in.
		session.WithRenewal(time.Hour, 5*time.Minute),
	}, options...)

	manager, err := session.New(fp, store, opts...)
	require.NoError(t, err)
	t.Cleanup(manager.Close)

	return &testFixture{provider: fp, kv: kv, store: store, manager: manager, clock: clk}
}

func (f *testFixture) demoResult() *identity.SessionResult {
	return &identity.SessionResult{
		User: identity.User{
			ID:        "demo-1",
			Email:     "demo@orbit.com",
			FirstName: "Demo",
			LastName:  "User",
			Role:      identity.RoleUser,
			CreatedAt: testTime.Add(-24 * time.Hour),
		},
		Tokens: identity.TokenPair{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresAt:    testTime.Add(time.Hour),
		},
	}
}

// seedStoredSession writes a user and a (possibly already expired) token
// pair directly into the KV, as a previous process run would have left them.
func (f *testFixture) seedStoredSession(t *testing.T, expiresAt time.Time) {
	t.Helper()

	require.NoError(t, f.store.SetUser(context.Background(), f.demoResult().User))

	raw, err := json.Marshal(identity.TokenPair{
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiresAt:    expiresAt,
	})
	require.NoError(t, err)
	f.kv.Put(keyTokens, string(raw))
}

func TestLoginSuccess(t *testing.T) {
	f := setupTestFixture(t)
	f.provider.LoginStub = func(creds identity.LoginCredentials) (*identity.SessionResult, error) {
		return f.demoResult(), nil
	}

	err := f.manager.Login(context.Background(), identity.LoginCredentials{Email: "demo@orbit.com", Password: "password", RememberMe: true})
	require.NoError(t, err)

	state := f.manager.State()
	require.True(t, state.Authenticated)
	require.False(t, state.Loading)
	require.Empty(t, state.LastError)
	require.NotNil(t, state.User)
	require.Equal(t, "demo@orbit.com", state.User.Email)

	pair := f.store.Tokens(context.Background())
	require.NotNil(t, pair)
	require.True(t, pair.ExpiresAt.After(testTime))

	// Exactly one tokens write followed by one user write (crash mid-write
	// must never leave a user without a token).
	require.Equal(t, []string{keyTokens, keyUser}, f.kv.SetCalls)
}

func TestLoginWriteOrder(t *testing.T) {
	f := setupTestFixture(t)
	f.provider.LoginDemoStub = func() (*identity.SessionResult, error) {
		return f.demoResult(), nil
	}

	require.NoError(t, f.manager.LoginDemo(context.Background()))
	require.Equal(t, []string{keyTokens, keyUser}, f.kv.SetCalls)

	state := f.manager.State()
	require.True(t, state.Authenticated)
	require.Equal(t, "demo@orbit.com", state.User.Email)
}

func TestLoginFailureRecordsLastError(t *testing.T) {
	f := setupTestFixture(t)
	f.provider.LoginStub = func(identity.LoginCredentials) (*identity.SessionResult, error) {
		return nil, provider.NewError(provider.ErrInvalidCredentials, "email or password is incorrect")
	}

	err := f.manager.Login(context.Background(), identity.LoginCredentials{Email: "a@b.c", Password: "nope"})
	require.ErrorIs(t, err, provider.ErrInvalidCredentials)

	state := f.manager.State()
	require.False(t, state.Authenticated)
	require.False(t, state.Loading)
	require.Equal(t, "email or password is incorrect", state.LastError)
	require.Nil(t, f.store.Tokens(context.Background()))
}

func TestLogoutAlwaysCleansUp(t *testing.T) {
	f := setupTestFixture(t)
	f.provider.LoginStub = func(identity.LoginCredentials) (*identity.SessionResult, error) {
		return f.demoResult(), nil
	}
	f.provider.LogoutStub = func(string) error {
		return provider.NewError(provider.ErrNetwork, "backend unreachable")
	}

	require.NoError(t, f.manager.Login(context.Background(), identity.LoginCredentials{Email: "demo@orbit.com", Password: "password"}))
	require.NoError(t, f.manager.Logout(context.Background()))

	state := f.manager.State()
	require.False(t, state.Authenticated)
	require.Nil(t, state.User)
	require.Empty(t, state.LastError)
	require.Equal(t, 0, f.kv.Len())

	// The provider was notified with the session's access token.
	require.Equal(t, []string{"access-1"}, f.provider.LogoutCalls)
}

func TestInitializeWithValidStoredSession(t *testing.T) {
	f := setupTestFixture(t)
	f.seedStoredSession(t, testTime.Add(time.Hour))

	f.manager.Initialize(context.Background())

	state := f.manager.State()
	require.True(t, state.Authenticated)
	require.Equal(t, "demo@orbit.com", state.User.Email)
	require.Empty(t, f.provider.RefreshCalls)
}

func TestInitializeRefreshesExpiredPair(t *testing.T) {
	f := setupTestFixture(t)
	f.seedStoredSession(t, testTime.Add(-10*time.Minute))
	f.provider.RefreshStub = func(refreshToken string) (*identity.TokenPair, error) {
		require.Equal(t, "old-refresh", refreshToken)
		return &identity.TokenPair{
			AccessToken:  "new-access",
			RefreshToken: "new-refresh",
			ExpiresAt:    testTime.Add(time.Hour),
		}, nil
	}

	f.manager.Initialize(context.Background())

	state := f.manager.State()
	require.True(t, state.Authenticated)

	pair := f.store.Tokens(context.Background())
	require.NotNil(t, pair)
	require.Equal(t, "new-access", pair.AccessToken)
	require.True(t, pair.ExpiresAt.After(testTime))
}

func TestInitializeClearsStoreWhenRefreshFails(t *testing.T) {
	f := setupTestFixture(t)
	f.seedStoredSession(t, testTime.Add(-10*time.Minute))
	f.provider.RefreshStub = func(string) (*identity.TokenPair, error) {
		return nil, provider.NewError(provider.ErrRefreshInvalid, "refresh token revoked")
	}

	f.manager.Initialize(context.Background())

	state := f.manager.State()
	require.False(t, state.Authenticated)
	require.Nil(t, state.User)
	// A silent logout: the expired-session message is the UI layer's job.
	require.Empty(t, state.LastError)
	require.Equal(t, 0, f.kv.Len())
}

func TestInitializeWithEmptyStore(t *testing.T) {
	f := setupTestFixture(t)

	f.manager.Initialize(context.Background())

	state := f.manager.State()
	require.False(t, state.Authenticated)
	require.Nil(t, state.User)
}

func TestRefreshSessionReplacesTokensOnly(t *testing.T) {
	f := setupTestFixture(t)
	f.provider.LoginDemoStub = func() (*identity.SessionResult, error) {
		return f.demoResult(), nil
	}
	f.provider.RefreshStub = func(string) (*identity.TokenPair, error) {
		return &identity.TokenPair{
			AccessToken:  "access-2",
			RefreshToken: "refresh-2",
			ExpiresAt:    testTime.Add(2 * time.Hour),
		}, nil
	}

	require.NoError(t, f.manager.LoginDemo(context.Background()))
	require.NoError(t, f.manager.RefreshSession(context.Background()))

	state := f.manager.State()
	require.True(t, state.Authenticated)
	require.Equal(t, "demo-1", state.User.ID)

	pair := f.store.Tokens(context.Background())
	require.Equal(t, "access-2", pair.AccessToken)
	require.Equal(t, "refresh-2", pair.RefreshToken)
}

func TestRefreshFailureEndsSession(t *testing.T) {
	f := setupTestFixture(t)
	f.provider.LoginDemoStub = func() (*identity.SessionResult, error) {
		return f.demoResult(), nil
	}
	f.provider.RefreshStub = func(string) (*identity.TokenPair, error) {
		return nil, provider.NewError(provider.ErrRefreshInvalid, "refresh token revoked")
	}

	require.NoError(t, f.manager.LoginDemo(context.Background()))
	require.Error(t, f.manager.RefreshSession(context.Background()))

	state := f.manager.State()
	require.False(t, state.Authenticated)
	require.Empty(t, state.LastError)
	require.Equal(t, 0, f.kv.Len())
}

func TestRefreshSessionNoopWhenUnauthenticated(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.manager.RefreshSession(context.Background()))
	require.Empty(t, f.provider.RefreshCalls)
}

func TestStaleRefreshResultDiscardedAfterLogout(t *testing.T) {
	f := setupTestFixture(t)
	f.provider.LoginDemoStub = func() (*identity.SessionResult, error) {
		return f.demoResult(), nil
	}

	refreshStarted := make(chan struct{})
	releaseRefresh := make(chan struct{})
	f.provider.RefreshStub = func(string) (*identity.TokenPair, error) {
		close(refreshStarted)
		<-releaseRefresh
		return &identity.TokenPair{
			AccessToken:  "late-access",
			RefreshToken: "late-refresh",
			ExpiresAt:    testTime.Add(time.Hour),
		}, nil
	}

	require.NoError(t, f.manager.LoginDemo(context.Background()))

	refreshDone := make(chan error, 1)
	go func() {
		refreshDone <- f.manager.RefreshSession(context.Background())
	}()

	<-refreshStarted
	require.NoError(t, f.manager.Logout(context.Background()))
	close(releaseRefresh)
	require.NoError(t, <-refreshDone)

	// The refresh completed after logout; its result must not resurrect the
	// session or repopulate the store.
	state := f.manager.State()
	require.False(t, state.Authenticated)
	require.Equal(t, 0, f.kv.Len())
}

func TestBackgroundRenewalRefreshesExpiringPair(t *testing.T) {
	f := setupTestFixture(t, session.WithRenewal(10*time.Millisecond, 5*time.Minute))

	result := &identity.SessionResult{
		User: identity.User{ID: "demo-1", Email: "demo@orbit.com", Role: identity.RoleUser},
		Tokens: identity.TokenPair{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresAt:    testTime.Add(3 * time.Minute), // inside the threshold
		},
	}
	f.provider.LoginDemoStub = func() (*identity.SessionResult, error) {
		return result, nil
	}

	refreshed := make(chan struct{})
	var once sync.Once
	f.provider.RefreshStub = func(string) (*identity.TokenPair, error) {
		once.Do(func() { close(refreshed) })
		return &identity.TokenPair{
			AccessToken:  "access-2",
			RefreshToken: "refresh-2",
			ExpiresAt:    testTime.Add(time.Hour),
		}, nil
	}

	require.NoError(t, f.manager.LoginDemo(context.Background()))

	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("background renewal never refreshed the session")
	}

	require.NoError(t, f.manager.Logout(context.Background()))
}

func TestRenewalLoopStopsOnLogout(t *testing.T) {
	f := setupTestFixture(t, session.WithRenewal(10*time.Millisecond, 5*time.Minute))

	f.provider.LoginDemoStub = func() (*identity.SessionResult, error) {
		result := f.demoResult()
		result.Tokens.ExpiresAt = testTime.Add(3 * time.Minute) // inside the threshold
		return result, nil
	}

	refreshed := make(chan struct{})
	var once sync.Once
	f.provider.RefreshStub = func(string) (*identity.TokenPair, error) {
		once.Do(func() { close(refreshed) })
		return &identity.TokenPair{
			AccessToken:  "access-2",
			RefreshToken: "refresh-2",
			ExpiresAt:    testTime.Add(time.Hour),
		}, nil
	}

	require.NoError(t, f.manager.LoginDemo(context.Background()))

	// Wait until the loop has demonstrably ticked at least once.
	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("renewal loop never ran")
	}

	require.NoError(t, f.manager.Logout(context.Background()))

	// A tick that was already in flight at logout may still finish; after
	// that the loop must be gone. Every live tick reads the store, so a
	// stable read count across many intervals proves the timer died.
	time.Sleep(50 * time.Millisecond)
	reads := f.kv.Gets()
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, reads, f.kv.Gets())
	require.Empty(t, f.provider.RefreshCalls[1:]) // no refresh after the first
}

func TestRememberMeCapsTokenLifetime(t *testing.T) {
	f := setupTestFixture(t, session.WithSessionTokenTTL(12*time.Hour))

	longLived := f.demoResult()
	longLived.Tokens.ExpiresAt = testTime.Add(7 * 24 * time.Hour)
	f.provider.LoginStub = func(identity.LoginCredentials) (*identity.SessionResult, error) {
		return longLived, nil
	}

	// Without rememberMe the stored lifetime is capped.
	require.NoError(t, f.manager.Login(context.Background(), identity.LoginCredentials{Email: "demo@orbit.com", Password: "password"}))
	pair := f.store.Tokens(context.Background())
	require.True(t, pair.ExpiresAt.Equal(testTime.Add(12*time.Hour)))

	// With rememberMe the provider's expiry stands.
	require.NoError(t, f.manager.Login(context.Background(), identity.LoginCredentials{Email: "demo@orbit.com", Password: "password", RememberMe: true}))
	pair = f.store.Tokens(context.Background())
	require.True(t, pair.ExpiresAt.Equal(testTime.Add(7*24*time.Hour)))
}

func TestUpdateProfilePersistsNewUser(t *testing.T) {
	f := setupTestFixture(t)
	f.provider.LoginDemoStub = func() (*identity.SessionResult, error) {
		return f.demoResult(), nil
	}
	f.provider.UpdateProfileStub = func(update identity.ProfileUpdate) (*identity.User, error) {
		user := f.demoResult().User
		user.FirstName = update.FirstName
		return &user, nil
	}

	require.NoError(t, f.manager.LoginDemo(context.Background()))
	require.NoError(t, f.manager.UpdateProfile(context.Background(), identity.ProfileUpdate{FirstName: "Jane", LastName: "User"}))

	require.Equal(t, "Jane", f.manager.State().User.FirstName)
	require.Equal(t, "Jane", f.store.User(context.Background()).FirstName)
}

func TestChangePasswordFailureRecordsLastError(t *testing.T) {
	f := setupTestFixture(t)
	f.provider.LoginDemoStub = func() (*identity.SessionResult, error) {
		return f.demoResult(), nil
	}
	f.provider.ChangePasswordStub = func(string, string) error {
		return provider.NewError(provider.ErrWeakPassword, "password too short")
	}

	require.NoError(t, f.manager.LoginDemo(context.Background()))

	err := f.manager.ChangePassword(context.Background(), "old", "new")
	require.ErrorIs(t, err, provider.ErrWeakPassword)
	require.Equal(t, "password too short", f.manager.State().LastError)

	f.manager.ClearError()
	require.Empty(t, f.manager.State().LastError)
}

func TestSubscribersSeeStateChanges(t *testing.T) {
	f := setupTestFixture(t)
	f.provider.LoginDemoStub = func() (*identity.SessionResult, error) {
		return f.demoResult(), nil
	}

	var mu sync.Mutex
	var snapshots []session.Session
	_, unsubscribe := f.manager.Subscribe(func(s session.Session) {
		mu.Lock()
		snapshots = append(snapshots, s)
		mu.Unlock()
	})

	require.NoError(t, f.manager.LoginDemo(context.Background()))

	mu.Lock()
	require.NotEmpty(t, snapshots)
	require.True(t, snapshots[0].Loading)
	final := snapshots[len(snapshots)-1]
	mu.Unlock()
	require.True(t, final.Authenticated)
	require.Equal(t, "demo@orbit.com", final.User.Email)

	mu.Lock()
	countBefore := len(snapshots)
	mu.Unlock()

	unsubscribe()
	require.NoError(t, f.manager.Logout(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, countBefore, len(snapshots))
}
