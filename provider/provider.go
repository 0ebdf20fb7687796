// Package provider defines the credential provider contract shared by the
// self-hosted (primary) and federated identity backends, plus the selector
// that picks between them at startup.
package provider

import (
	"context"

	"github.com/orbitlabs/go-session-client/identity"
)

// CredentialProvider is the capability set a credential backend exposes to
// the session manager. Providers are stateless with respect to the session:
// authenticated calls receive the access token as an argument rather than
// reading it from the credential store.
type CredentialProvider interface {
	// Login exchanges password credentials for a session.
	// Fails with ErrInvalidCredentials, ErrRateLimited or ErrNetwork.
	Login(ctx context.Context, creds identity.LoginCredentials) (*identity.SessionResult, error)

	// LoginDemo starts a throwaway demo session. Only the primary backend
	// implements this natively; the federated variant forwards it.
	LoginDemo(ctx context.Context) (*identity.SessionResult, error)

	// Register creates a new account and logs it in.
	// Fails with ErrEmailTaken, ErrWeakPassword or ErrNetwork.
	Register(ctx context.Context, data identity.RegisterData) (*identity.SessionResult, error)

	// Refresh exchanges a refresh token for a new token pair. A failure
	// classified ErrRefreshInvalid is terminal and must never be retried.
	Refresh(ctx context.Context, refreshToken string) (*identity.TokenPair, error)

	// Logout notifies the backend that the session ended. Best effort: the
	// caller cleans up locally regardless of the outcome.
	Logout(ctx context.Context, accessToken string) error

	// ChangePassword updates the account password. The federated variant
	// ignores currentPassword (its backend does not require it).
	ChangePassword(ctx context.Context, accessToken, currentPassword, newPassword string) error

	// RequestPasswordReset triggers a reset email for the given address.
	RequestPasswordReset(ctx context.Context, email string) error

	// UpdateProfile replaces the profile record and returns the new user.
	UpdateProfile(ctx context.Context, accessToken string, update identity.ProfileUpdate) (*identity.User, error)

	// Name identifies the provider in logs.
	Name() string
}
