package providerfakes

import (
	"context"
	"sync"

	"github.com/orbitlabs/go-session-client/identity"
	"github.com/orbitlabs/go-session-client/provider"
)

var _ provider.CredentialProvider = (*FakeProvider)(nil)

// FakeProvider is a hand-rolled CredentialProvider for tests. Behavior is
// injected through the stub fields; call counts and last arguments are
// recorded for assertions. A nil stub fails the call.
type FakeProvider struct {
	lock sync.Mutex

	ProviderName string

	LoginStub  func(identity.LoginCredentials) (*identity.SessionResult, error)
	LoginCalls []identity.LoginCredentials

	LoginDemoStub  func() (*identity.SessionResult, error)
	LoginDemoCalls int

	RegisterStub  func(identity.RegisterData) (*identity.SessionResult, error)
	RegisterCalls []identity.RegisterData

	RefreshStub  func(string) (*identity.TokenPair, error)
	RefreshCalls []string

	LogoutStub  func(string) error
	LogoutCalls []string

	ChangePasswordStub  func(current, new string) error
	ChangePasswordCalls int

	RequestPasswordResetStub  func(email string) error
	RequestPasswordResetCalls []string

	UpdateProfileStub  func(identity.ProfileUpdate) (*identity.User, error)
	UpdateProfileCalls []identity.ProfileUpdate
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{ProviderName: "fake"}
}

func (f *FakeProvider) Name() string {
	if f.ProviderName == "" {
		return "fake"
	}
	return f.ProviderName
}

func (f *FakeProvider) Login(_ context.Context, creds identity.LoginCredentials) (*identity.SessionResult, error) {
	f.lock.Lock()
	f.LoginCalls = append(f.LoginCalls, creds)
	stub := f.LoginStub
	f.lock.Unlock()

	if stub == nil {
		return nil, provider.NewError(provider.ErrNetwork, "login not stubbed")
	}
	return stub(creds)
}

func (f *FakeProvider) LoginDemo(_ context.Context) (*identity.SessionResult, error) {
	f.lock.Lock()
	f.LoginDemoCalls++
	stub := f.LoginDemoStub
	f.lock.Unlock()

	if stub == nil {
		return nil, provider.NewError(provider.ErrNetwork, "demo login not stubbed")
	}
	return stub()
}

func (f *FakeProvider) Register(_ context.Context, data identity.RegisterData) (*identity.SessionResult, error) {
	f.lock.Lock()
	f.RegisterCalls = append(f.RegisterCalls, data)
	stub := f.RegisterStub
	f.lock.Unlock()

	if stub == nil {
		return nil, provider.NewError(provider.ErrNetwork, "register not stubbed")
	}
	return stub(data)
}

func (f *FakeProvider) Refresh(_ context.Context, refreshToken string) (*identity.TokenPair, error) {
	f.lock.Lock()
	f.RefreshCalls = append(f.RefreshCalls, refreshToken)
	stub := f.RefreshStub
	f.lock.Unlock()

	if stub == nil {
		return nil, provider.NewError(provider.ErrRefreshInvalid, "refresh not stubbed")
	}
	return stub(refreshToken)
}

func (f *FakeProvider) Logout(_ context.Context, accessToken string) error {
	f.lock.Lock()
	f.LogoutCalls = append(f.LogoutCalls, accessToken)
	stub := f.LogoutStub
	f.lock.Unlock()

	if stub == nil {
		return nil
	}
	return stub(accessToken)
}

func (f *FakeProvider) ChangePassword(_ context.Context, _, currentPassword, newPassword string) error {
	f.lock.Lock()
	f.ChangePasswordCalls++
	stub := f.ChangePasswordStub
	f.lock.Unlock()

	if stub == nil {
		return nil
	}
	return stub(currentPassword, newPassword)
}

func (f *FakeProvider) RequestPasswordReset(_ context.Context, email string) error {
	f.lock.Lock()
	f.RequestPasswordResetCalls = append(f.RequestPasswordResetCalls, email)
	stub := f.RequestPasswordResetStub
	f.lock.Unlock()

	if stub == nil {
		return nil
	}
	return stub(email)
}

func (f *FakeProvider) UpdateProfile(_ context.Context, _ string, update identity.ProfileUpdate) (*identity.User, error) {
	f.lock.Lock()
	f.UpdateProfileCalls = append(f.UpdateProfileCalls, update)
	stub := f.UpdateProfileStub
	f.lock.Unlock()

	if stub == nil {
		return nil, provider.NewError(provider.ErrNetwork, "update profile not stubbed")
	}
	return stub(update)
}
