package provider_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orbitlabs/go-session-client/identity"
	"github.com/orbitlabs/go-session-client/provider"
	"github.com/orbitlabs/go-session-client/provider/providerfakes"
)

func sessionResult(email string) *identity.SessionResult {
	return &identity.SessionResult{
		User: identity.User{ID: "user-1", Email: email, Role: identity.RoleUser},
		Tokens: identity.TokenPair{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresAt:    time.Now().Add(time.Hour),
		},
	}
}

func TestSelectsPrimaryWhenFederatedNotUsable(t *testing.T) {
	primary := providerfakes.NewFakeProvider()

	sel, err := provider.Select(primary, providerfakes.NewFakeProvider(), func() bool { return false })
	require.NoError(t, err)
	require.Equal(t, provider.ModePrimary, sel.Mode())
}

func TestSelectsFederatedWhenProbePasses(t *testing.T) {
	sel, err := provider.Select(providerfakes.NewFakeProvider(), providerfakes.NewFakeProvider(), func() bool { return true })
	require.NoError(t, err)
	require.Equal(t, provider.ModeFederated, sel.Mode())
}

func TestSelectRequiresPrimary(t *testing.T) {
	_, err := provider.Select(nil, nil, nil)
	require.Error(t, err)
}

func TestLoginFallsBackOnConfigurationError(t *testing.T) {
	primary := providerfakes.NewFakeProvider()
	primary.LoginStub = func(identity.LoginCredentials) (*identity.SessionResult, error) {
		return sessionResult("john.doe@example.com"), nil
	}

	federated := providerfakes.NewFakeProvider()
	federated.LoginStub = func(identity.LoginCredentials) (*identity.SessionResult, error) {
		return nil, provider.NewError(provider.ErrConfiguration, "issuer unreachable")
	}

	sel, err := provider.Select(primary, federated, func() bool { return true })
	require.NoError(t, err)

	creds := identity.LoginCredentials{Email: "john.doe@example.com", Password: "password123"}
	res, err := sel.Login(context.Background(), creds)
	require.NoError(t, err)
	require.Equal(t, "john.doe@example.com", res.User.Email)

	// Exactly one retry, with identical credentials.
	require.Len(t, federated.LoginCalls, 1)
	require.Len(t, primary.LoginCalls, 1)
	require.Equal(t, creds, primary.LoginCalls[0])
}

func TestLoginDoesNotFallBackOnOtherErrors(t *testing.T) {
	primary := providerfakes.NewFakeProvider()
	federated := providerfakes.NewFakeProvider()
	federated.LoginStub = func(identity.LoginCredentials) (*identity.SessionResult, error) {
		return nil, provider.NewError(provider.ErrInvalidCredentials, "wrong password")
	}

	sel, err := provider.Select(primary, federated, func() bool { return true })
	require.NoError(t, err)

	_, err = sel.Login(context.Background(), identity.LoginCredentials{Email: "a@b.c", Password: "nope"})
	require.ErrorIs(t, err, provider.ErrInvalidCredentials)
	require.Empty(t, primary.LoginCalls)
}

func TestRegisterFallsBackOnConfigurationError(t *testing.T) {
	primary := providerfakes.NewFakeProvider()
	primary.RegisterStub = func(identity.RegisterData) (*identity.SessionResult, error) {
		return sessionResult("new@example.com"), nil
	}
	federated := providerfakes.NewFakeProvider()
	federated.RegisterStub = func(identity.RegisterData) (*identity.SessionResult, error) {
		return nil, provider.NewError(provider.ErrConfiguration, "signup endpoint not configured")
	}

	sel, err := provider.Select(primary, federated, func() bool { return true })
	require.NoError(t, err)

	_, err = sel.Register(context.Background(), identity.RegisterData{Email: "new@example.com", Password: "password123"})
	require.NoError(t, err)
	require.Len(t, primary.RegisterCalls, 1)
}

func TestRefreshNeverFallsBack(t *testing.T) {
	primary := providerfakes.NewFakeProvider()
	federated := providerfakes.NewFakeProvider()
	federated.RefreshStub = func(string) (*identity.TokenPair, error) {
		return nil, provider.NewError(provider.ErrConfiguration, "issuer unreachable")
	}

	sel, err := provider.Select(primary, federated, func() bool { return true })
	require.NoError(t, err)

	_, err = sel.Refresh(context.Background(), "refresh-1")
	require.ErrorIs(t, err, provider.ErrConfiguration)
	require.Empty(t, primary.RefreshCalls)
}

func TestLogoutAndPasswordOpsTargetSelectedProvider(t *testing.T) {
	primary := providerfakes.NewFakeProvider()
	federated := providerfakes.NewFakeProvider()
	federated.LogoutStub = func(string) error {
		return provider.NewError(provider.ErrConfiguration, "issuer unreachable")
	}
	federated.RequestPasswordResetStub = func(string) error {
		return provider.NewError(provider.ErrConfiguration, "reset endpoint not configured")
	}

	sel, err := provider.Select(primary, federated, func() bool { return true })
	require.NoError(t, err)

	require.ErrorIs(t, sel.Logout(context.Background(), "access-1"), provider.ErrConfiguration)
	require.ErrorIs(t, sel.RequestPasswordReset(context.Background(), "a@b.c"), provider.ErrConfiguration)
	require.Empty(t, primary.LogoutCalls)
	require.Empty(t, primary.RequestPasswordResetCalls)
}

func TestMessageExtractsProviderText(t *testing.T) {
	err := provider.NewError(provider.ErrRateLimited, "try again in a minute")
	require.Equal(t, "try again in a minute", provider.Message(err))
	require.Equal(t, "too many attempts", provider.Message(provider.NewError(provider.ErrRateLimited, "")))
}
