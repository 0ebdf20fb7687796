// Package session owns the authenticated-session state machine: it
// orchestrates credential provider calls, keeps the credential store and the
// in-memory session consistent, and renews tokens in the background while
// the session is authenticated.
package session

import "github.com/orbitlabs/go-session-client/identity"

// Session is the manager's externally visible state. Authenticated implies
// User is present and a valid token pair exists in the credential store.
type Session struct {
	Authenticated bool
	User          *identity.User
	Loading       bool // an operation is in flight
	LastError     string
}

// clone returns a snapshot safe to hand to callers and subscribers.
func (s Session) clone() Session {
	out := s
	if s.User != nil {
		user := *s.User
		out.User = &user
	}
	return out
}

// Subscriber receives a session snapshot after every state change.
type Subscriber func(Session)
