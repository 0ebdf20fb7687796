// Package primary implements the CredentialProvider contract against the
// self-hosted password/token backend: one JSON request/response per call,
// bearer authentication, explicit refresh-token exchange.
package primary

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/orbitlabs/go-session-client/identity"
	"github.com/orbitlabs/go-session-client/provider"
)

// Backend routes, relative to the configured base URL.
const (
	routeLogin          = "/login"
	routeDemoLogin      = "/demo-login"
	routeRegister       = "/register"
	routeLogout         = "/logout"
	routeRefresh        = "/refresh"
	routeForgotPassword = "/forgot-password"
	routeChangePassword = "/change-password"
	routeProfile        = "/profile"
)

const (
	defaultHTTPTimeout = 30 * time.Second

	// Expiry assumed when the backend returns neither expires_in nor a
	// JWT exp claim.
	defaultTokenValidity = time.Hour
)

// Client is the primary-backend credential provider.
type Client struct {
	baseURL    string
	httpClient *http.Client
	nowFunc    func() time.Time
}

var _ provider.CredentialProvider = (*Client)(nil)

// Option modifies a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Client) {
		c.nowFunc = nowFunc
	}
}

// New creates a primary provider client for the given base URL.
func New(baseURL string, options ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("[primary.New] baseURL is required")
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		nowFunc:    time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

func (c *Client) Name() string { return "primary" }

// sessionResponse is the backend's shape for login, demo login, register
// and profile responses.
type sessionResponse struct {
	User         identity.User `json:"user"`
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	ExpiresIn    int64         `json:"expiresIn"` // seconds; 0 means unspecified
	Message      string        `json:"message,omitempty"`
}

// errorResponse is the backend's structured error body.
type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) Login(ctx context.Context, creds identity.LoginCredentials) (*identity.SessionResult, error) {
	var resp sessionResponse
	if err := c.post(ctx, routeLogin, "", creds, &resp); err != nil {
		return nil, errors.Wrap(err, "[primary.Login]")
	}
	return c.sessionResult(resp), nil
}

func (c *Client) LoginDemo(ctx context.Context) (*identity.SessionResult, error) {
	var resp sessionResponse
	if err := c.post(ctx, routeDemoLogin, "", struct{}{}, &resp); err != nil {
		return nil, errors.Wrap(err, "[primary.LoginDemo]")
	}
	return c.sessionResult(resp), nil
}

func (c *Client) Register(ctx context.Context, data identity.RegisterData) (*identity.SessionResult, error) {
	var resp sessionResponse
	if err := c.post(ctx, routeRegister, "", data, &resp); err != nil {
		return nil, errors.Wrap(err, "[primary.Register]")
	}
	return c.sessionResult(resp), nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*identity.TokenPair, error) {
	body := struct {
		RefreshToken string `json:"refreshToken"`
	}{RefreshToken: refreshToken}

	var resp sessionResponse
	if err := c.post(ctx, routeRefresh, "", body, &resp); err != nil {
		return nil, errors.Wrap(err, "[primary.Refresh]")
	}
	pair := c.tokenPair(resp)
	return &pair, nil
}

func (c *Client) Logout(ctx context.Context, accessToken string) error {
	if err := c.post(ctx, routeLogout, accessToken, struct{}{}, nil); err != nil {
		return errors.Wrap(err, "[primary.Logout]")
	}
	return nil
}

func (c *Client) ChangePassword(ctx context.Context, accessToken, currentPassword, newPassword string) error {
	body := struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}{CurrentPassword: currentPassword, NewPassword: newPassword}

	if err := c.post(ctx, routeChangePassword, accessToken, body, nil); err != nil {
		return errors.Wrap(err, "[primary.ChangePassword]")
	}
	return nil
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	body := struct {
		Email string `json:"email"`
	}{Email: email}

	if err := c.post(ctx, routeForgotPassword, "", body, nil); err != nil {
		return errors.Wrap(err, "[primary.RequestPasswordReset]")
	}
	return nil
}

func (c *Client) UpdateProfile(ctx context.Context, accessToken string, update identity.ProfileUpdate) (*identity.User, error) {
	var resp sessionResponse
	if err := c.do(ctx, http.MethodPut, routeProfile, accessToken, update, &resp); err != nil {
		return nil, errors.Wrap(err, "[primary.UpdateProfile]")
	}
	user := resp.User
	return &user, nil
}

func (c *Client) sessionResult(resp sessionResponse) *identity.SessionResult {
	return &identity.SessionResult{
		User:    resp.User,
		Tokens:  c.tokenPair(resp),
		Message: resp.Message,
	}
}

// tokenPair normalizes the backend's expiry reporting into an absolute
// timestamp: expires_in wins, then the access token's exp claim, then the
// default validity window.
func (c *Client) tokenPair(resp sessionResponse) identity.TokenPair {
	expiresAt := c.nowFunc().Add(defaultTokenValidity)
	if resp.ExpiresIn > 0 {
		expiresAt = c.nowFunc().Add(time.Duration(resp.ExpiresIn) * time.Second)
	} else if exp, ok := jwtExpiry(resp.AccessToken); ok {
		expiresAt = exp
	}

	return identity.TokenPair{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt,
	}
}

// jwtExpiry pulls the exp claim out of a JWT access token without verifying
// the signature. The token is not trusted for authorization here, only for
// scheduling renewal.
func jwtExpiry(accessToken string) (time.Time, bool) {
	token, _, err := jwt.NewParser().ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return time.Time{}, false
	}
	exp, ok := claims["exp"].(float64)
	if !ok || exp <= 0 {
		return time.Time{}, false
	}
	return time.Unix(int64(exp), 0), true
}

func (c *Client) post(ctx context.Context, route, accessToken string, body, out any) error {
	return c.do(ctx, http.MethodPost, route, accessToken, body, out)
}

func (c *Client) do(ctx context.Context, method, route, accessToken string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+route, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return provider.NewError(provider.ErrNetwork, "could not reach the server")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return mapErrorResponse(route, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return provider.NewError(provider.ErrNetwork, "malformed server response")
	}
	return nil
}

// mapErrorResponse converts a structured backend error body into the shared
// taxonomy. Unknown codes degrade by status: 401 on the refresh route means
// the refresh token is gone, 429 means rate limiting, anything else is
// treated as a network-class failure.
func mapErrorResponse(route string, resp *http.Response) error {
	var body errorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(raw, &body); err != nil {
		log.Debug().Str("route", route).Int("status", resp.StatusCode).Msg("unparsable error body")
	}

	message := body.Error.Message
	switch body.Error.Code {
	case "invalid_credentials":
		return provider.NewError(provider.ErrInvalidCredentials, message)
	case "rate_limited":
		return provider.NewError(provider.ErrRateLimited, message)
	case "email_taken":
		return provider.NewError(provider.ErrEmailTaken, message)
	case "weak_password":
		return provider.NewError(provider.ErrWeakPassword, message)
	case "refresh_invalid":
		return provider.NewError(provider.ErrRefreshInvalid, message)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized && route == routeRefresh:
		return provider.NewError(provider.ErrRefreshInvalid, message)
	case resp.StatusCode == http.StatusUnauthorized:
		return provider.NewError(provider.ErrInvalidCredentials, message)
	case resp.StatusCode == http.StatusTooManyRequests:
		return provider.NewError(provider.ErrRateLimited, message)
	}
	return provider.NewError(provider.ErrNetwork, message)
}
