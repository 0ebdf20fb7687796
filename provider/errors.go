package provider

import "errors"

// Credential provider error taxonomy. Callers classify failures with
// errors.Is against these sentinels; the human-readable text travels in an
// *Error wrapper so UI layers can surface it verbatim.
var (
	// Login / registration errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimited        = errors.New("too many attempts")
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password too weak")

	// Token errors
	ErrRefreshInvalid = errors.New("refresh token invalid")

	// Transport / setup errors
	ErrNetwork       = errors.New("network error")
	ErrConfiguration = errors.New("provider not configured")
)

// Error pairs a taxonomy class with a provider-supplied message.
type Error struct {
	Class   error
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Class.Error()
}

// Unwrap lets errors.Is match the taxonomy class through the wrapper.
func (e *Error) Unwrap() error { return e.Class }

// NewError builds a classified provider error. An empty message falls back
// to the class's own text.
func NewError(class error, message string) *Error {
	return &Error{Class: class, Message: message}
}

// Message extracts the human-readable text from a provider error chain.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Error()
	}
	return err.Error()
}
