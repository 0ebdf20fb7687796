// Package identity holds the account and token models shared by the
// credential providers, the credential store and the session manager.
package identity

import "time"

// RoleType defines a user's role within the application.
type RoleType string

const (
	RoleAdmin  RoleType = "admin"
	RoleUser   RoleType = "user"
	RoleViewer RoleType = "viewer"
)

// Preferences holds per-user client preferences, persisted alongside the user.
type Preferences struct {
	Theme         string `json:"theme"`
	Notifications bool   `json:"notifications"`
	Language      string `json:"language"`
}

// User is the identity record returned by a credential provider. It is
// replaced wholesale on profile updates, never mutated field by field.
type User struct {
	ID              string      `json:"id"`
	Email           string      `json:"email"`
	FirstName       string      `json:"firstName"`
	LastName        string      `json:"lastName"`
	Role            RoleType    `json:"role"`
	Avatar          *string     `json:"avatar,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	LastLoginAt     *time.Time  `json:"lastLoginAt,omitempty"`
	IsEmailVerified bool        `json:"isEmailVerified"`
	Preferences     Preferences `json:"preferences"`
}

// FullName returns the user's display name.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// TokenPair is an access token plus the refresh token used to replace it.
// ExpiresAt is the absolute expiry of the access token.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Valid reports whether the access token is usable at the given time.
func (t *TokenPair) Valid(now time.Time) bool {
	return t != nil && t.AccessToken != "" && now.Before(t.ExpiresAt)
}

// ExpiresWithin reports whether the access token expires within d of now.
// An already expired pair also reports true.
func (t *TokenPair) ExpiresWithin(now time.Time, d time.Duration) bool {
	if t == nil {
		return false
	}
	return !now.Add(d).Before(t.ExpiresAt)
}

// LoginCredentials is the transient input to a password login. Never persisted.
type LoginCredentials struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe,omitempty"`
}

// RegisterData is the transient input to account registration. Never persisted.
type RegisterData struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// ProfileUpdate carries the replacement values for a profile update.
type ProfileUpdate struct {
	FirstName   string       `json:"firstName"`
	LastName    string       `json:"lastName"`
	Avatar      *string      `json:"avatar,omitempty"`
	Preferences *Preferences `json:"preferences,omitempty"`
}

// SessionResult is the outcome of a successful login, demo login or
// registration: the authenticated user plus a fresh token pair.
type SessionResult struct {
	User    User      `json:"user"`
	Tokens  TokenPair `json:"tokens"`
	Message string    `json:"message,omitempty"`
}
