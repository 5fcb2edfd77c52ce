package oauth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultHTTPTimeout bounds each individual token-endpoint request.
const DefaultHTTPTimeout = 30 * time.Second

// DefaultMaxRetryAttempts is the number of retries after the first attempt.
const DefaultMaxRetryAttempts = 3

// DefaultRetryDelay is the base delay between retried attempts.
const DefaultRetryDelay = 1000 * time.Millisecond

// ExchangeConfig configures the token exchange client. Zero values fall
// back to the defaults above.
type ExchangeConfig struct {
	// HTTPTimeout bounds each individual request.
	HTTPTimeout time.Duration

	// MaxRetryAttempts is the number of retries after the first attempt,
	// so a call is attempted up to MaxRetryAttempts+1 times. Zero disables
	// retries entirely; nil (or a negative value) selects
	// DefaultMaxRetryAttempts.
	MaxRetryAttempts *int

	// RetryDelay is the base backoff delay. Between attempt k and k+1 the
	// client sleeps RetryDelay*(k+1): linear backoff, matching the
	// source system's observable timing.
	RetryDelay time.Duration

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client
}

// ExchangeClient performs the code-for-token and refresh-token exchanges
// against the credential's token endpoint.
type ExchangeClient struct {
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration

	// now and sleep are injectable for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// NewExchangeClient creates an exchange client with the given configuration.
func NewExchangeClient(cfg ExchangeConfig) *ExchangeClient {
	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = DefaultHTTPTimeout
	}

	maxRetries := DefaultMaxRetryAttempts
	if cfg.MaxRetryAttempts != nil && *cfg.MaxRetryAttempts >= 0 {
		maxRetries = *cfg.MaxRetryAttempts
	}

	retryDelay := cfg.RetryDelay
	if retryDelay == 0 {
		retryDelay = DefaultRetryDelay
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &ExchangeClient{
		httpClient: httpClient,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// ExchangeCode exchanges an authorization code for a fresh TokenRecord.
func (c *ExchangeClient) ExchangeCode(ctx context.Context, cred Credential, code string) (*TokenRecord, error) {
	body := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {cred.RedirectURL()},
	}
	return c.requestToken(ctx, cred, body)
}

// Refresh obtains a new TokenRecord from a refresh token.
func (c *ExchangeClient) Refresh(ctx context.Context, cred Credential, refreshToken string) (*TokenRecord, error) {
	body := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	return c.requestToken(ctx, cred, body)
}

// requestToken POSTs a form body to the token endpoint with Basic client
// authentication. Transport-class failures are retried with linear
// backoff; a completed HTTP response, even an error one, is never retried.
func (c *ExchangeClient) requestToken(ctx context.Context, cred Credential, form url.Values) (*TokenRecord, error) {
	if !cred.IsValid() {
		return nil, &ConfigError{Reason: "client id and client secret are required"}
	}

	encoded := form.Encode()

	var resp *http.Response
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cred.TokenEndpoint, strings.NewReader(encoded))
		if err != nil {
			return nil, &ConfigError{Reason: "token endpoint is not a valid URL: " + err.Error()}
		}
		req.SetBasicAuth(cred.ClientID, cred.ClientSecret)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err = c.httpClient.Do(req)
		if err == nil {
			break
		}

		if attempt >= c.maxRetries {
			return nil, &NetworkError{Attempts: attempt + 1, Err: err}
		}

		delay := c.retryDelay * time.Duration(attempt+1)
		slog.Debug("Token request failed, retrying",
			"attempt", attempt+1,
			"max_attempts", c.maxRetries+1,
			"delay", delay,
			"error", err.Error(),
		)
		c.sleep(delay)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Attempts: 1, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProtocolError{
			StatusCode: resp.StatusCode,
			Payload:    parseErrorPayload(body),
		}
	}

	record, err := newTokenRecord(body, c.now())
	if err != nil {
		return nil, &ProtocolError{
			StatusCode: resp.StatusCode,
			Payload: ErrorPayload{
				Code:        "unknown_error",
				Description: "failed to parse token response: " + err.Error(),
			},
		}
	}

	return record, nil
}
