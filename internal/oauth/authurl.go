package oauth

import (
	"net/url"
)

// BuildAuthorizationURL constructs the browser-navigable authorization URL
// for the three-legged flow. The state parameter links the redirect back to
// this request; the manager always supplies one.
//
// The function is pure: no side effects, no network I/O.
func BuildAuthorizationURL(cred Credential, state string) (string, error) {
	if !cred.IsValid() {
		return "", &ConfigError{Reason: "client id and client secret are required"}
	}

	authURL, err := url.Parse(cred.AuthorizationEndpoint)
	if err != nil {
		return "", &ConfigError{Reason: "authorization endpoint is not a valid URL: " + err.Error()}
	}

	params := url.Values{
		"response_type": {"code"},
		"client_id":     {cred.ClientID},
		"redirect_uri":  {cred.RedirectURL()},
		"scope":         {cred.Scope},
	}
	if state != "" {
		params.Set("state", state)
	}

	authURL.RawQuery = params.Encode()
	return authURL.String(), nil
}
