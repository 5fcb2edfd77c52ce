package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// callbackListener is the slice of CallbackServer the manager drives.
// Narrowed to an interface so flow tests can substitute a fake listener.
type callbackListener interface {
	Start() error
	WaitForCallback(ctx context.Context, timeout time.Duration) (*CallbackResult, error)
	Stop()
}

// Status is the read-only token report returned by Check. It is computed
// without any network activity.
type Status struct {
	HasToken  bool
	Expired   bool
	TokenType string
	Scope     string
	ExpiresAt time.Time
}

// Manager orchestrates the token lifecycle: cached token, silent refresh,
// and the full browser-based authorization flow. Collaborators are
// constructor-injected; nothing here is ambient global state.
type Manager struct {
	mu       sync.Mutex
	store    *TokenStore
	exchange *ExchangeClient
	prompter CodePrompter

	// injectable for tests
	openBrowser  func(string) error
	newListener  func(localCallbackURL string) (callbackListener, error)
	newState     func() string
	callbackWait time.Duration
}

// ManagerConfig configures the manager. Nil collaborators fall back to the
// production implementations.
type ManagerConfig struct {
	// Store holds the current token. Required in spirit; a nil store gets
	// a fresh empty one.
	Store *TokenStore

	// Exchange performs the token-endpoint calls.
	Exchange *ExchangeClient

	// Prompter handles manual code entry.
	Prompter CodePrompter

	// CallbackWait bounds how long to wait for the local redirect before
	// degrading to manual entry. Defaults to DefaultCallbackWait.
	CallbackWait time.Duration
}

// NewManager creates a manager with the given collaborators.
func NewManager(cfg ManagerConfig) *Manager {
	store := cfg.Store
	if store == nil {
		store = NewTokenStore()
	}

	exchange := cfg.Exchange
	if exchange == nil {
		exchange = NewExchangeClient(ExchangeConfig{})
	}

	prompter := cfg.Prompter
	if prompter == nil {
		prompter = ReadlinePrompter{}
	}

	wait := cfg.CallbackWait
	if wait == 0 {
		wait = DefaultCallbackWait
	}

	return &Manager{
		store:       store,
		exchange:    exchange,
		prompter:    prompter,
		openBrowser: OpenBrowser,
		newListener: func(localCallbackURL string) (callbackListener, error) {
			return NewCallbackServer(localCallbackURL)
		},
		newState:     uuid.NewString,
		callbackWait: wait,
	}
}

// GetValidAccessToken returns a valid access token, refreshing or fully
// re-authorizing as needed. The manager mutex is held for the entire
// sequence, including network calls: concurrent callers are serialized so
// at most one refresh or browser flow runs at a time.
func (m *Manager) GetValidAccessToken(ctx context.Context, cred Credential) (string, error) {
	if !cred.IsValid() {
		return "", &ConfigError{Reason: "client id and client secret are required"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.store.Get()
	if current != nil && !current.Expired() {
		return current.AccessToken, nil
	}

	// Expired token with a refresh token: try the silent path first. Any
	// refresh failure degrades to full re-authorization and is never
	// surfaced to the caller.
	if current != nil && current.RefreshToken != "" {
		slog.Debug("Refreshing expired access token")
		record, err := m.exchange.Refresh(ctx, cred, current.RefreshToken)
		if err == nil {
			m.store.Set(record)
			return record.AccessToken, nil
		}
		slog.Warn("Token refresh failed, starting full authorization flow",
			"error", err.Error(),
		)
		m.store.Clear()
	}

	return m.runThreeLeggedFlowLocked(ctx, cred)
}

// RunThreeLeggedFlow forces a full browser-based authorization flow,
// replacing whatever token is cached. Used by the explicit login command.
func (m *Manager) RunThreeLeggedFlow(ctx context.Context, cred Credential) (string, error) {
	if !cred.IsValid() {
		return "", &ConfigError{Reason: "client id and client secret are required"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.runThreeLeggedFlowLocked(ctx, cred)
}

// runThreeLeggedFlowLocked runs the authorization flow end to end.
// REQUIRES: m.mu must be held by the caller.
func (m *Manager) runThreeLeggedFlowLocked(ctx context.Context, cred Credential) (string, error) {
	state := m.newState()

	authURL, err := BuildAuthorizationURL(cred, state)
	if err != nil {
		return "", err
	}

	code, err := m.authorizationCode(ctx, cred, authURL, state)
	if err != nil {
		return "", err
	}

	record, err := m.exchange.ExchangeCode(ctx, cred, code)
	if err != nil {
		return "", err
	}

	m.store.Set(record)
	slog.Debug("Authorization flow completed",
		"token_type", record.TokenType,
		"expires_at", record.ExpiresAt.Format(time.RFC3339),
		"has_refresh_token", record.RefreshToken != "",
	)

	return record.AccessToken, nil
}

// authorizationCode obtains the authorization code, preferring the local
// callback listener and degrading to manual entry when the listener cannot
// be bound, times out, or reports a bad callback. Listener-path failures
// are recovered here and never surfaced.
func (m *Manager) authorizationCode(ctx context.Context, cred Credential, authURL, state string) (string, error) {
	if cred.UsesLocalListener() {
		code, err := m.codeViaListener(ctx, cred, authURL, state)
		if err != nil {
			return "", err
		}
		if code != "" {
			return code, nil
		}
	}

	return m.codeViaManualEntry(authURL)
}

// codeViaListener attempts the automatic capture path. It returns an empty
// code (and nil error) when the caller should fall back to manual entry;
// an error is returned only for unrecoverable conditions such as context
// cancellation.
func (m *Manager) codeViaListener(ctx context.Context, cred Credential, authURL, state string) (string, error) {
	listener, err := m.newListener(cred.LocalCallbackURL)
	if err != nil {
		slog.Warn("Local callback listener unavailable, falling back to manual entry",
			"error", err.Error(),
		)
		return "", nil
	}

	if err := listener.Start(); err != nil {
		slog.Warn("Failed to start local callback listener, falling back to manual entry",
			"error", err.Error(),
		)
		return "", nil
	}
	defer listener.Stop()

	fmt.Println("Opening browser for APS authentication...")
	if err := m.openBrowser(authURL); err != nil {
		slog.Warn("Failed to open browser",
			"error", err.Error(),
		)
		fmt.Println("Could not open a browser automatically. Please open this URL:")
		fmt.Println("  " + authURL)
	}

	fmt.Printf("Waiting for OAuth callback (timeout: %s)...\n", m.callbackWait)
	result, err := listener.WaitForCallback(ctx, m.callbackWait)
	if err != nil {
		return "", err
	}
	if result == nil {
		slog.Warn("Callback timeout reached, falling back to manual entry")
		return "", nil
	}
	if result.IsError() {
		slog.Warn("Authorization server returned an error, falling back to manual entry",
			"error", result.Error,
			"error_description", result.ErrorDescription,
		)
		return "", nil
	}
	if result.State != state {
		slog.Warn("Rejecting callback, falling back to manual entry",
			"error", ErrStateMismatch.Error(),
		)
		return "", nil
	}
	if result.Code == "" {
		slog.Warn("Callback carried no authorization code, falling back to manual entry")
		return "", nil
	}

	fmt.Println("Authorization code received.")
	return result.Code, nil
}

// codeViaManualEntry runs the last-resort interactive path: the browser is
// opened (again, when the listener path already did) and the user pastes
// the code from the address bar after the redirect.
func (m *Manager) codeViaManualEntry(authURL string) (string, error) {
	fmt.Println("Opening browser for APS authentication...")
	fmt.Println("After logging in, you will be redirected to a page.")
	fmt.Println("Copy the 'code' parameter from the URL and paste it below.")
	if err := m.openBrowser(authURL); err != nil {
		slog.Warn("Failed to open browser",
			"error", err.Error(),
		)
		fmt.Println("Could not open a browser automatically. Please open this URL:")
		fmt.Println("  " + authURL)
	}

	return m.prompter.PromptCode()
}

// ForceRefresh refreshes the cached token without ever falling back to
// the browser flow. Unlike the degradation inside GetValidAccessToken, a
// failure here is returned to the caller.
func (m *Manager) ForceRefresh(ctx context.Context, cred Credential) error {
	if !cred.IsValid() {
		return &ConfigError{Reason: "client id and client secret are required"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.store.Get()
	if current == nil || current.RefreshToken == "" {
		return ErrNoRefreshToken
	}

	record, err := m.exchange.Refresh(ctx, cred, current.RefreshToken)
	if err != nil {
		return err
	}

	m.store.Set(record)
	return nil
}

// Clear unconditionally empties the token store. Used by the explicit
// logout command.
func (m *Manager) Clear() {
	m.store.Clear()
}

// Check reports whether a token is cached and whether it is expired,
// without triggering any network activity.
func (m *Manager) Check() Status {
	record := m.store.Get()
	if record == nil {
		return Status{}
	}

	return Status{
		HasToken:  true,
		Expired:   record.Expired(),
		TokenType: record.TokenType,
		Scope:     record.Scope,
		ExpiresAt: record.ExpiresAt,
	}
}

// TokenSource adapts the manager to the golang.org/x/oauth2 TokenSource
// interface so callers can build authenticated HTTP clients.
func (m *Manager) TokenSource(ctx context.Context, cred Credential) oauth2.TokenSource {
	return &managerTokenSource{ctx: ctx, manager: m, cred: cred}
}

type managerTokenSource struct {
	ctx     context.Context
	manager *Manager
	cred    Credential
}

// Token returns a valid oauth2 token, running the refresh or authorization
// flow when needed.
func (s *managerTokenSource) Token() (*oauth2.Token, error) {
	if _, err := s.manager.GetValidAccessToken(s.ctx, s.cred); err != nil {
		return nil, err
	}

	record := s.manager.store.Get()
	if record == nil {
		return nil, errors.New("no token available after authorization")
	}

	return record.ToOAuth2Token(), nil
}
