package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// flakyTransport fails the first failures round trips with a connection
// error, then delegates to the default transport.
type flakyTransport struct {
	failures int
	calls    atomic.Int32
}

func (t *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	call := t.calls.Add(1)
	if int(call) <= t.failures {
		return nil, fmt.Errorf("dial tcp: connection refused (attempt %d)", call)
	}
	return http.DefaultTransport.RoundTrip(req)
}

func newTestExchangeClient(transport http.RoundTripper, maxRetries int, delay time.Duration) (*ExchangeClient, *[]time.Duration) {
	client := NewExchangeClient(ExchangeConfig{
		MaxRetryAttempts: &maxRetries,
		RetryDelay:       delay,
		HTTPClient:       &http.Client{Transport: transport},
	})

	var slept []time.Duration
	client.sleep = func(d time.Duration) {
		slept = append(slept, d)
	}

	return client, &slept
}

func TestExchangeClient_RetriesConnectionFailures(t *testing.T) {
	var serverCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serverCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"new-token","token_type":"Bearer","expires_in":3600,"refresh_token":"r"}`)
	}))
	defer server.Close()

	// Two connection failures, then success: exactly 3 attempts total.
	transport := &flakyTransport{failures: 2}
	client, slept := newTestExchangeClient(transport, 3, 1000*time.Millisecond)

	record, err := client.ExchangeCode(context.Background(), testCredentialFor(server), "auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}

	if record.AccessToken != "new-token" {
		t.Errorf("AccessToken = %q", record.AccessToken)
	}
	if got := transport.calls.Load(); got != 3 {
		t.Errorf("underlying HTTP call count = %d, want 3", got)
	}

	// Linear backoff: base*1 then base*2.
	want := []time.Duration{1000 * time.Millisecond, 2000 * time.Millisecond}
	if len(*slept) != len(want) {
		t.Fatalf("sleep count = %d, want %d", len(*slept), len(want))
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Errorf("sleep[%d] = %v, want %v", i, (*slept)[i], d)
		}
	}
}

func TestExchangeClient_ExhaustedRetriesReturnNetworkError(t *testing.T) {
	transport := &flakyTransport{failures: 100}
	client, slept := newTestExchangeClient(transport, 2, 10*time.Millisecond)

	cred := validTestCredential()
	cred.TokenEndpoint = "http://127.0.0.1:1/token"

	_, err := client.Refresh(context.Background(), cred, "refresh-token")
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}

	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected *NetworkError, got %T: %v", err, err)
	}
	if netErr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", netErr.Attempts)
	}
	if got := transport.calls.Load(); got != 3 {
		t.Errorf("underlying HTTP call count = %d, want 3", got)
	}
	if len(*slept) != 2 {
		t.Errorf("sleep count = %d, want 2", len(*slept))
	}
}

func TestExchangeClient_ZeroRetriesMeansSingleAttempt(t *testing.T) {
	// An explicit zero disables retries: exactly one attempt, no sleeps.
	transport := &flakyTransport{failures: 100}
	client, slept := newTestExchangeClient(transport, 0, 10*time.Millisecond)

	cred := validTestCredential()
	cred.TokenEndpoint = "http://127.0.0.1:1/token"

	_, err := client.Refresh(context.Background(), cred, "refresh-token")

	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected *NetworkError, got %T: %v", err, err)
	}
	if netErr.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", netErr.Attempts)
	}
	if got := transport.calls.Load(); got != 1 {
		t.Errorf("underlying HTTP call count = %d, want 1", got)
	}
	if len(*slept) != 0 {
		t.Errorf("sleep count = %d, want 0", len(*slept))
	}
}

func TestNewExchangeClient_RetryDefaults(t *testing.T) {
	if got := NewExchangeClient(ExchangeConfig{}).maxRetries; got != DefaultMaxRetryAttempts {
		t.Errorf("unset retries = %d, want default %d", got, DefaultMaxRetryAttempts)
	}

	negative := -1
	if got := NewExchangeClient(ExchangeConfig{MaxRetryAttempts: &negative}).maxRetries; got != DefaultMaxRetryAttempts {
		t.Errorf("negative retries = %d, want default %d", got, DefaultMaxRetryAttempts)
	}

	zero := 0
	if got := NewExchangeClient(ExchangeConfig{MaxRetryAttempts: &zero}).maxRetries; got != 0 {
		t.Errorf("explicit zero retries = %d, want 0", got)
	}
}

func TestExchangeClient_NoRetryOnCompletedErrorResponse(t *testing.T) {
	var serverCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serverCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"authorization code expired"}`)
	}))
	defer server.Close()

	client, slept := newTestExchangeClient(http.DefaultTransport, 3, time.Second)

	_, err := client.ExchangeCode(context.Background(), testCredentialFor(server), "stale-code")
	if err == nil {
		t.Fatal("expected protocol error")
	}

	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected *ProtocolError, got %T: %v", err, err)
	}
	if protoErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d", protoErr.StatusCode)
	}
	if protoErr.Payload.Code != "invalid_grant" {
		t.Errorf("Payload.Code = %q", protoErr.Payload.Code)
	}

	if got := serverCalls.Load(); got != 1 {
		t.Errorf("HTTP call count = %d, want 1 (completed responses are not retried)", got)
	}
	if len(*slept) != 0 {
		t.Errorf("no backoff sleeps expected, got %d", len(*slept))
	}
}

func TestExchangeClient_RequestShape(t *testing.T) {
	var gotAuth, gotContentType, gotGrantType, gotCode, gotRedirect string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		gotGrantType = r.PostForm.Get("grant_type")
		gotCode = r.PostForm.Get("code")
		gotRedirect = r.PostForm.Get("redirect_uri")
		fmt.Fprint(w, `{"access_token":"tok"}`)
	}))
	defer server.Close()

	client := NewExchangeClient(ExchangeConfig{HTTPClient: server.Client()})

	cred := testCredentialFor(server)
	if _, err := client.ExchangeCode(context.Background(), cred, "the-code"); err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}

	// Authorization: Basic base64(client_id:client_secret)
	if gotAuth != "Basic Y2xpZW50LWlkOmNsaWVudC1zZWNyZXQ=" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotGrantType != "authorization_code" {
		t.Errorf("grant_type = %q", gotGrantType)
	}
	if gotCode != "the-code" {
		t.Errorf("code = %q", gotCode)
	}
	if gotRedirect != cred.LocalCallbackURL {
		t.Errorf("redirect_uri = %q, want %q", gotRedirect, cred.LocalCallbackURL)
	}
}

func TestExchangeClient_RefreshRequestShape(t *testing.T) {
	var gotGrantType, gotRefreshToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		gotGrantType = r.PostForm.Get("grant_type")
		gotRefreshToken = r.PostForm.Get("refresh_token")
		fmt.Fprint(w, `{"access_token":"tok"}`)
	}))
	defer server.Close()

	client := NewExchangeClient(ExchangeConfig{HTTPClient: server.Client()})

	if _, err := client.Refresh(context.Background(), testCredentialFor(server), "the-refresh-token"); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if gotGrantType != "refresh_token" {
		t.Errorf("grant_type = %q", gotGrantType)
	}
	if gotRefreshToken != "the-refresh-token" {
		t.Errorf("refresh_token = %q", gotRefreshToken)
	}
}

func TestExchangeClient_InvalidCredential(t *testing.T) {
	client := NewExchangeClient(ExchangeConfig{})

	_, err := client.ExchangeCode(context.Background(), Credential{}, "code")
	var configErr *ConfigError
	if !errors.As(err, &configErr) {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
}

// testCredentialFor points the standard test credential at a local token
// endpoint.
func testCredentialFor(server *httptest.Server) Credential {
	cred := validTestCredential()
	cred.TokenEndpoint = server.URL + "/token"
	return cred
}
