package provider

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/orbitlabs/go-session-client/identity"
)

// Mode names which backend the selector committed to at startup.
type Mode string

const (
	ModePrimary   Mode = "primary"
	ModeFederated Mode = "federated"
)

// FederatedProbe reports whether the federated backend is configured well
// enough to be worth selecting. It must be a pure local check, no network.
type FederatedProbe func() bool

// Selector commits to one CredentialProvider at construction time and
// implements the same contract. For Login and Register only, a federated
// failure classified ErrConfiguration is retried exactly once against the
// primary backend. Session-scoped operations (Refresh, Logout and the
// password/profile calls) always target the selected backend; switching
// identity systems mid-session would corrupt the session's provenance.
type Selector struct {
	mode    Mode
	active  CredentialProvider
	primary CredentialProvider
}

var _ CredentialProvider = (*Selector)(nil)

// Select builds a Selector. The federated backend is chosen when both it and
// its configuration probe are available; otherwise primary. The decision is
// never re-evaluated during the process lifetime.
func Select(primary, federated CredentialProvider, probe FederatedProbe) (*Selector, error) {
	if primary == nil {
		return nil, errors.New("[provider.Select] primary provider is required")
	}

	s := &Selector{mode: ModePrimary, active: primary, primary: primary}
	if federated != nil && probe != nil && probe() {
		s.mode = ModeFederated
		s.active = federated
	}
	log.Debug().Str("mode", string(s.mode)).Msg("credential provider selected")
	return s, nil
}

// Mode returns the backend committed to at startup.
func (s *Selector) Mode() Mode { return s.mode }

func (s *Selector) Login(ctx context.Context, creds identity.LoginCredentials) (*identity.SessionResult, error) {
	res, err := s.active.Login(ctx, creds)
	if s.shouldFallBack(err) {
		log.Warn().Err(err).Msg("federated login unavailable, retrying on primary")
		return s.primary.Login(ctx, creds)
	}
	return res, err
}

func (s *Selector) Register(ctx context.Context, data identity.RegisterData) (*identity.SessionResult, error) {
	res, err := s.active.Register(ctx, data)
	if s.shouldFallBack(err) {
		log.Warn().Err(err).Msg("federated registration unavailable, retrying on primary")
		return s.primary.Register(ctx, data)
	}
	return res, err
}

func (s *Selector) LoginDemo(ctx context.Context) (*identity.SessionResult, error) {
	return s.active.LoginDemo(ctx)
}

func (s *Selector) Refresh(ctx context.Context, refreshToken string) (*identity.TokenPair, error) {
	return s.active.Refresh(ctx, refreshToken)
}

func (s *Selector) Logout(ctx context.Context, accessToken string) error {
	return s.active.Logout(ctx, accessToken)
}

func (s *Selector) ChangePassword(ctx context.Context, accessToken, currentPassword, newPassword string) error {
	return s.active.ChangePassword(ctx, accessToken, currentPassword, newPassword)
}

func (s *Selector) RequestPasswordReset(ctx context.Context, email string) error {
	return s.active.RequestPasswordReset(ctx, email)
}

func (s *Selector) UpdateProfile(ctx context.Context, accessToken string, update identity.ProfileUpdate) (*identity.User, error) {
	return s.active.UpdateProfile(ctx, accessToken, update)
}

func (s *Selector) Name() string {
	return "selector(" + s.active.Name() + ")"
}

func (s *Selector) shouldFallBack(err error) bool {
	return err != nil && s.mode == ModeFederated && errors.Is(err, ErrConfiguration)
}
