package oauth

import (
	"errors"
	"fmt"
)

// ErrStateMismatch is returned when the state on the redirect does not
// match the nonce sent with the authorization request. The manager treats
// it as a failed callback and falls back to manual code entry.
var ErrStateMismatch = errors.New("oauth state mismatch - possible CSRF attack")

// ErrNoRefreshToken is returned by a forced refresh when the cached token
// carries no refresh token (or no token is cached at all).
var ErrNoRefreshToken = errors.New("no refresh token available")

// ErrEmptyCode is returned when a manually entered authorization code is
// empty after trimming. There is no further fallback; it surfaces to the
// caller.
var ErrEmptyCode = errors.New("authorization code is required")

// ConfigError indicates missing or invalid OAuth client configuration.
// It is fatal: no retry or fallback applies.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "oauth configuration invalid: " + e.Reason
}

// BindError indicates the local callback listener could not bind its
// address. Callers recover by degrading to manual code entry.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind callback listener on %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// NetworkError indicates a token-endpoint call failed at the transport
// level and exhausted its retry budget.
type NetworkError struct {
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("token request failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ProtocolError indicates the token endpoint completed a response with a
// non-success status. Completed responses are never retried.
type ProtocolError struct {
	StatusCode int
	Payload    ErrorPayload
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("token request rejected with status %d: %s", e.StatusCode, e.Payload)
}
