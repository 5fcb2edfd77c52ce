package oauth

import (
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Credential describes an APS OAuth client for one environment.
// It is assembled from configuration on demand and never mutated;
// callers pass it to every operation that needs it.
type Credential struct {
	// ClientID is the APS application client id.
	ClientID string

	// ClientSecret is the APS application client secret.
	ClientSecret string

	// CallbackURL is the public redirect URL registered with APS.
	CallbackURL string

	// LocalCallbackURL is the loopback redirect URL served by the local
	// callback listener. Empty when manual code entry should be used.
	LocalCallbackURL string

	// AuthorizationEndpoint is the APS authorize URL.
	AuthorizationEndpoint string

	// TokenEndpoint is the APS token URL.
	TokenEndpoint string

	// Scope is the space-separated list of requested scopes.
	Scope string
}

// IsValid reports whether the credential carries the fields required for
// any token operation.
func (c Credential) IsValid() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// UsesLocalListener reports whether a local callback listener should be
// attempted for this credential.
func (c Credential) UsesLocalListener() bool {
	return strings.TrimSpace(c.LocalCallbackURL) != ""
}

// RedirectURL returns the redirect_uri to use in the authorization request
// and the code exchange: the local callback URL when a listener is
// configured, the public callback URL otherwise.
func (c Credential) RedirectURL() string {
	if c.UsesLocalListener() {
		return c.LocalCallbackURL
	}
	return c.CallbackURL
}

// DefaultExpiresIn is assumed when the token endpoint omits expires_in.
const DefaultExpiresIn = 3600

// TokenRecord is one token response with its absolute expiry. A refresh or
// re-authorization produces a new record that replaces the cached one; a
// record is never edited in place.
type TokenRecord struct {
	// AccessToken is presented to APS APIs as a bearer credential.
	AccessToken string

	// TokenType is typically "Bearer".
	TokenType string

	// ExpiresIn is the lifetime in seconds reported by the endpoint.
	ExpiresIn int

	// RefreshToken obtains a new access token without re-authorizing.
	RefreshToken string

	// Scope is the space-separated list of granted scopes.
	Scope string

	// ExpiresAt is computed once, at construction time.
	ExpiresAt time.Time
}

// ExpiredAt reports whether the record is expired at the given instant.
func (t *TokenRecord) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Expired reports whether the record is expired now.
func (t *TokenRecord) Expired() bool {
	return t.ExpiredAt(time.Now())
}

// ToOAuth2Token converts the record to the ecosystem token type so callers
// can build authenticated HTTP clients with golang.org/x/oauth2.
func (t *TokenRecord) ToOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
}

// tokenResponse is the wire shape of a successful token-endpoint reply.
// ExpiresIn is a pointer so an absent field can be told apart from an
// explicit zero: absent gets the DefaultExpiresIn fallback, zero yields a
// record that is already expired.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    *int   `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// newTokenRecord builds a TokenRecord from a token-endpoint response body,
// applying the wire-contract defaults and computing the absolute expiry.
func newTokenRecord(body []byte, now time.Time) (*TokenRecord, error) {
	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	expiresIn := DefaultExpiresIn
	if resp.ExpiresIn != nil {
		expiresIn = *resp.ExpiresIn
	}

	tokenType := resp.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	record := &TokenRecord{
		AccessToken:  resp.AccessToken,
		TokenType:    tokenType,
		ExpiresIn:    expiresIn,
		RefreshToken: resp.RefreshToken,
		Scope:        resp.Scope,
		ExpiresAt:    now.Add(time.Duration(expiresIn) * time.Second),
	}

	// A non-positive lifetime means the token is unusable as of now.
	if expiresIn <= 0 {
		record.ExpiresAt = now
	}

	return record, nil
}

// ErrorPayload is the wire shape of a non-success token-endpoint body.
type ErrorPayload struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
	URI         string `json:"error_uri"`
}

// String renders the payload the way APS error pages reference it.
func (p ErrorPayload) String() string {
	if p.Description != "" {
		return p.Code + ": " + p.Description
	}
	if p.Code != "" {
		return p.Code
	}
	return "unknown_error"
}

// parseErrorPayload decodes a non-2xx body, falling back to an
// unknown_error placeholder when the body is not parseable JSON or names
// no error code.
func parseErrorPayload(body []byte) ErrorPayload {
	var payload ErrorPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return ErrorPayload{Code: "unknown_error"}
	}
	if payload.Code == "" {
		payload.Code = "unknown_error"
	}
	return payload
}
