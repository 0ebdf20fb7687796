// Package federated adapts an OIDC identity service to the CredentialProvider
// contract. Logins use the resource-owner password grant against the
// discovered token endpoint; renewal is implicit (the provider re-issues
// tokens through an oauth2.TokenSource rather than an explicit exchange).
// The adapter normalizes both into the same TokenPair shape and expiry
// discipline as the primary backend, so callers stay provider-agnostic.
package federated

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/orbitlabs/go-session-client/identity"
	"github.com/orbitlabs/go-session-client/internal/utils"
	"github.com/orbitlabs/go-session-client/provider"
)

// Tokens from the federated service carry a fixed validity window when the
// token endpoint does not report one.
const defaultTokenValidity = time.Hour

// Config identifies the federated issuer and its auxiliary endpoints.
// Signup, password reset and password change are not part of core OIDC, so
// their endpoints are configured explicitly; an operation whose endpoint is
// missing fails with ErrConfiguration.
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	Scopes       []string

	SignupEndpoint        string
	PasswordEndpoint      string
	PasswordResetEndpoint string
}

// Usable reports whether the configuration is complete enough to select the
// federated backend. Pure local check, no network.
func (c Config) Usable() bool {
	return c.Issuer != "" && c.ClientID != ""
}

// Provider is the federated credential provider.
type Provider struct {
	cfg        Config
	demo       provider.CredentialProvider // primary backend, for LoginDemo
	httpClient *http.Client
	nowFunc    func() time.Time

	// Discovery is lazy so that constructing (and selecting) the provider
	// never touches the network. A failed discovery is retried on the next
	// call rather than cached.
	mu           sync.Mutex
	oidcProvider *oidc.Provider
}

var _ provider.CredentialProvider = (*Provider)(nil)

// Option modifies a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the HTTP client used for discovery, token requests
// and the auxiliary endpoints.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = hc
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(p *Provider) {
		p.nowFunc = nowFunc
	}
}

// New creates a federated provider. demo is the primary backend that demo
// logins are forwarded to; it may be nil, in which case LoginDemo fails.
func New(cfg Config, demo provider.CredentialProvider, options ...Option) (*Provider, error) {
	if !cfg.Usable() {
		return nil, provider.NewError(provider.ErrConfiguration, "federated issuer or client ID missing")
	}

	p := &Provider{
		cfg:        cfg,
		demo:       demo,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		nowFunc:    time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

func (p *Provider) Name() string { return "federated" }

func (p *Provider) Login(ctx context.Context, creds identity.LoginCredentials) (*identity.SessionResult, error) {
	oidcProvider, oauthCfg, err := p.discover(ctx)
	if err != nil {
		return nil, err
	}

	// Route the grant through our HTTP client.
	ctx = oidc.ClientContext(ctx, p.httpClient)
	token, err := oauthCfg.PasswordCredentialsToken(ctx, creds.Email, creds.Password)
	if err != nil {
		return nil, mapTokenError(err, provider.ErrInvalidCredentials)
	}

	user, err := p.userFromIDToken(ctx, oidcProvider, token)
	if err != nil {
		return nil, errors.Wrap(err, "[federated.Login]")
	}

	pair := p.tokenPair(token)
	return &identity.SessionResult{User: *user, Tokens: pair}, nil
}

func (p *Provider) LoginDemo(ctx context.Context) (*identity.SessionResult, error) {
	if p.demo == nil {
		return nil, provider.NewError(provider.ErrConfiguration, "demo login requires the primary backend")
	}
	return p.demo.LoginDemo(ctx)
}

// Register creates the account through the issuer's signup endpoint and then
// performs a normal password login for the fresh credentials.
func (p *Provider) Register(ctx context.Context, data identity.RegisterData) (*identity.SessionResult, error) {
	if p.cfg.SignupEndpoint == "" {
		return nil, provider.NewError(provider.ErrConfiguration, "federated signup endpoint not configured")
	}

	if err := p.postJSON(ctx, p.cfg.SignupEndpoint, "", data, mapSignupError); err != nil {
		return nil, errors.Wrap(err, "[federated.Register]")
	}

	return p.Login(ctx, identity.LoginCredentials{Email: data.Email, Password: data.Password})
}

// Refresh re-requests tokens through an oauth2.TokenSource seeded with the
// stored refresh token. The source refreshes eagerly because the seed token
// carries no access token.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*identity.TokenPair, error) {
	_, oauthCfg, err := p.discover(ctx)
	if err != nil {
		return nil, err
	}

	source := oauthCfg.TokenSource(oidc.ClientContext(ctx, p.httpClient), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, mapTokenError(err, provider.ErrRefreshInvalid)
	}

	pair := p.tokenPair(token)
	return &pair, nil
}

// Logout notifies the issuer's end-session endpoint when it advertises one.
func (p *Provider) Logout(ctx context.Context, accessToken string) error {
	oidcProvider, _, err := p.discover(ctx)
	if err != nil {
		return err
	}

	var discovery struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := oidcProvider.Claims(&discovery); err != nil || discovery.EndSessionEndpoint == "" {
		log.Debug().Msg("issuer advertises no end_session_endpoint, logout is local only")
		return nil
	}

	if err := p.postJSON(ctx, discovery.EndSessionEndpoint, accessToken, struct{}{}, nil); err != nil {
		return errors.Wrap(err, "[federated.Logout]")
	}
	return nil
}

// ChangePassword adapts the contract to the federated backend, which manages
// password verification itself and takes no current password.
func (p *Provider) ChangePassword(ctx context.Context, accessToken, _, newPassword string) error {
	if p.cfg.PasswordEndpoint == "" {
		return provider.NewError(provider.ErrConfiguration, "federated password endpoint not configured")
	}

	body := struct {
		NewPassword string `json:"newPassword"`
	}{NewPassword: newPassword}

	if err := p.postJSON(ctx, p.cfg.PasswordEndpoint, accessToken, body, nil); err != nil {
		return errors.Wrap(err, "[federated.ChangePassword]")
	}
	return nil
}

func (p *Provider) RequestPasswordReset(ctx context.Context, email string) error {
	if p.cfg.PasswordResetEndpoint == "" {
		return provider.NewError(provider.ErrConfiguration, "federated password reset endpoint not configured")
	}

	body := struct {
		Email string `json:"email"`
	}{Email: email}

	if err := p.postJSON(ctx, p.cfg.PasswordResetEndpoint, "", body, nil); err != nil {
		return errors.Wrap(err, "[federated.RequestPasswordReset]")
	}
	return nil
}

// UpdateProfile forwards to the primary backend, which owns the profile
// record regardless of which identity system authenticated the session.
func (p *Provider) UpdateProfile(ctx context.Context, accessToken string, update identity.ProfileUpdate) (*identity.User, error) {
	if p.demo == nil {
		return nil, provider.NewError(provider.ErrConfiguration, "profile updates require the primary backend")
	}
	return p.demo.UpdateProfile(ctx, accessToken, update)
}

// discover resolves the issuer metadata once and caches it. Failures map to
// ErrConfiguration so that login/register can fall back to primary.
func (p *Provider) discover(ctx context.Context) (*oidc.Provider, oauth2.Config, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.oidcProvider == nil {
		ctx = oidc.ClientContext(ctx, p.httpClient)
		op, err := oidc.NewProvider(ctx, p.cfg.Issuer)
		if err != nil {
			return nil, oauth2.Config{}, provider.NewError(provider.ErrConfiguration, "issuer discovery failed: "+err.Error())
		}
		p.oidcProvider = op
	}

	scopes := p.cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email", "offline_access"}
	}

	return p.oidcProvider, oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		Endpoint:     p.oidcProvider.Endpoint(),
		Scopes:       scopes,
	}, nil
}

// userFromIDToken verifies the ID token carried in a token response and maps
// its claims onto the shared user model.
func (p *Provider) userFromIDToken(ctx context.Context, oidcProvider *oidc.Provider, token *oauth2.Token) (*identity.User, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, provider.NewError(provider.ErrConfiguration, "no ID token in response")
	}

	idToken, err := oidcProvider.Verifier(&oidc.Config{ClientID: p.cfg.ClientID}).Verify(ctx, rawIDToken)
	if err != nil {
		return nil, provider.NewError(provider.ErrConfiguration, "ID token verification failed: "+err.Error())
	}

	var claims struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, "extract claims")
	}

	user := &identity.User{
		ID:              claims.Sub,
		Email:           claims.Email,
		FirstName:       claims.GivenName,
		LastName:        claims.FamilyName,
		Role:            identity.RoleUser,
		CreatedAt:       idToken.IssuedAt,
		LastLoginAt:     utils.Ptr(p.nowFunc()),
		IsEmailVerified: claims.EmailVerified,
	}
	if claims.Picture != "" {
		user.Avatar = utils.Ptr(claims.Picture)
	}
	return user, nil
}

func (p *Provider) tokenPair(token *oauth2.Token) identity.TokenPair {
	expiresAt := token.Expiry
	if expiresAt.IsZero() {
		expiresAt = p.nowFunc().Add(defaultTokenValidity)
	}
	return identity.TokenPair{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiresAt,
	}
}

// mapTokenError classifies an oauth2 token endpoint failure: a structured
// endpoint rejection takes the given class, anything else is a network error.
func mapTokenError(err error, rejectionClass error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		message := retrieveErr.ErrorDescription
		if message == "" {
			message = retrieveErr.ErrorCode
		}
		return provider.NewError(rejectionClass, message)
	}
	return provider.NewError(provider.ErrNetwork, "could not reach the identity service")
}

// mapSignupError classifies the auxiliary signup endpoint's failures.
func mapSignupError(status int, message string) error {
	switch status {
	case http.StatusConflict:
		return provider.NewError(provider.ErrEmailTaken, message)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return provider.NewError(provider.ErrWeakPassword, message)
	}
	return provider.NewError(provider.ErrNetwork, message)
}

// postJSON issues a JSON POST to one of the auxiliary (non-OIDC) endpoints.
// mapStatus, when non-nil, converts a failure status into a taxonomy error.
func (p *Provider) postJSON(ctx context.Context, url, accessToken string, body any, mapStatus func(int, string) error) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return provider.NewError(provider.ErrNetwork, "could not reach the identity service")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var body struct {
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		_ = json.Unmarshal(raw, &body)
		if mapStatus != nil {
			return mapStatus(resp.StatusCode, body.Message)
		}
		return provider.NewError(provider.ErrNetwork, body.Message)
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
