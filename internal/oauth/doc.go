// Package oauth implements three-legged OAuth2 authentication against
// Autodesk Platform Services (APS) for an interactive desktop user.
//
// # Architecture
//
// The package is composed of small collaborators owned by a single Manager:
//
//   - Credential: immutable description of an APS OAuth client
//   - CallbackServer: short-lived loopback HTTP listener that captures the
//     authorization code from the browser redirect
//   - ExchangeClient: code-for-token and refresh-token exchanges with a
//     linear-backoff retry policy for transport failures
//   - TokenStore: single mutex-guarded slot holding the current token
//
// # Flow
//
// Manager.GetValidAccessToken returns a cached token when one is valid,
// silently refreshes an expired token that carries a refresh token, and
// otherwise runs the full browser-based authorization flow: it opens the
// system browser on the authorization URL, waits for the local callback,
// and falls back to manual code entry when the listener cannot be bound
// or the callback never arrives.
//
// Tokens live in memory only. There is no persistence across process
// restarts and no multi-account store; the slot mirrors a single
// interactive user session.
package oauth
