package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

// newBoundCallbackServer starts a callback server on an OS-assigned free
// port and returns it with its base URL.
func newBoundCallbackServer(t *testing.T) (*CallbackServer, string) {
	t.Helper()

	// Grab a free port, release it, and hand it to the server. The window
	// for another process to steal it is negligible in tests.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe listen: %v", err)
	}
	port := probe.Addr().(*net.TCPAddr).Port
	probe.Close()

	callbackURL := fmt.Sprintf("http://localhost:%d/callback/", port)
	server, err := NewCallbackServer(callbackURL)
	if err != nil {
		t.Fatalf("NewCallbackServer: %v", err)
	}
	if err := server.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(server.Stop)

	return server, fmt.Sprintf("http://127.0.0.1:%d/callback/", port)
}

func TestCallbackServer_CapturesCodeAndState(t *testing.T) {
	server, baseURL := newBoundCallbackServer(t)

	go func() {
		resp, err := http.Get(baseURL + "?code=test-code&state=test-state")
		if err != nil {
			return
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(body), "Authorization Successful") {
			t.Errorf("browser response missing success page: %s", body)
		}
	}()

	result, err := server.WaitForCallback(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("WaitForCallback: %v", err)
	}
	if result == nil {
		t.Fatal("expected a callback result, got timeout")
	}
	if result.Code != "test-code" {
		t.Errorf("Code = %q", result.Code)
	}
	if result.State != "test-state" {
		t.Errorf("State = %q", result.State)
	}
	if result.IsError() {
		t.Error("result should not be an error")
	}
}

func TestCallbackServer_CapturesProviderError(t *testing.T) {
	server, baseURL := newBoundCallbackServer(t)

	go func() {
		resp, err := http.Get(baseURL + "?error=access_denied&error_description=user+cancelled")
		if err != nil {
			return
		}
		resp.Body.Close()
	}()

	result, err := server.WaitForCallback(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("WaitForCallback: %v", err)
	}
	if result == nil {
		t.Fatal("expected a callback result")
	}
	if !result.IsError() {
		t.Fatal("expected an error result")
	}
	if result.Error != "access_denied" {
		t.Errorf("Error = %q", result.Error)
	}
	if result.ErrorDescription != "user cancelled" {
		t.Errorf("ErrorDescription = %q", result.ErrorDescription)
	}
}

func TestCallbackServer_TimeoutIsNotAnError(t *testing.T) {
	server, _ := newBoundCallbackServer(t)

	start := time.Now()
	result, err := server.WaitForCallback(context.Background(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForCallback: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil result on timeout, got %+v", result)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("returned before the timeout elapsed: %v", elapsed)
	}
}

func TestCallbackServer_ContextCancellation(t *testing.T) {
	server, _ := newBoundCallbackServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := server.WaitForCallback(ctx, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestCallbackServer_BindFailure(t *testing.T) {
	// Occupy a port, then try to bind a callback server on it.
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer occupied.Close()
	port := occupied.Addr().(*net.TCPAddr).Port

	server, err := NewCallbackServer(fmt.Sprintf("http://localhost:%d/callback/", port))
	if err != nil {
		t.Fatalf("NewCallbackServer: %v", err)
	}

	err = server.Start()
	if err == nil {
		server.Stop()
		t.Fatal("expected bind failure on occupied port")
	}

	var bindErr *BindError
	if !errors.As(err, &bindErr) {
		t.Errorf("expected *BindError, got %T: %v", err, err)
	}
}

func TestCallbackServer_StopIsIdempotent(t *testing.T) {
	server, _ := newBoundCallbackServer(t)

	server.Stop()
	server.Stop()

	// Stop on a server that never started must also be safe.
	unstarted, err := NewCallbackServer("http://localhost:9/callback/")
	if err != nil {
		t.Fatalf("NewCallbackServer: %v", err)
	}
	unstarted.Stop()
}

func TestCallbackServer_SecondRequestRejected(t *testing.T) {
	server, baseURL := newBoundCallbackServer(t)

	resp1, err := http.Get(baseURL + "?code=first&state=s")
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	resp1.Body.Close()

	resp2, err := http.Get(baseURL + "?code=second&state=s")
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("second request status = %d, want 400", resp2.StatusCode)
	}

	result, err := server.WaitForCallback(context.Background(), time.Second)
	if err != nil || result == nil {
		t.Fatalf("WaitForCallback: result=%v err=%v", result, err)
	}
	if result.Code != "first" {
		t.Errorf("Code = %q, want the first request's code", result.Code)
	}
}

func TestCallbackServer_StrayPathRequestDoesNotDisturbCapture(t *testing.T) {
	server, baseURL := newBoundCallbackServer(t)
	rootURL := strings.TrimSuffix(baseURL, "callback/")

	// Browsers commonly probe for a favicon before the redirect lands.
	resp, err := http.Get(rootURL + "favicon.ico")
	if err != nil {
		t.Fatalf("stray request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("stray path status = %d, want 404", resp.StatusCode)
	}

	resp, err = http.Get(baseURL + "?code=real-code&state=s")
	if err != nil {
		t.Fatalf("redirect request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("redirect status = %d, want 200", resp.StatusCode)
	}

	result, err := server.WaitForCallback(context.Background(), time.Second)
	if err != nil || result == nil {
		t.Fatalf("WaitForCallback: result=%v err=%v", result, err)
	}
	if result.Code != "real-code" {
		t.Errorf("Code = %q, want real-code", result.Code)
	}
}

func TestCallbackServer_CodelessRequestDoesNotConsumeCapture(t *testing.T) {
	server, baseURL := newBoundCallbackServer(t)

	// A hit on the callback path with neither code nor error is not the
	// redirect; the capture must stay armed for the real one.
	resp, err := http.Get(baseURL)
	if err != nil {
		t.Fatalf("codeless request: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "No authorization code") {
		t.Errorf("codeless request response missing error page: %s", body)
	}

	resp2, err := http.Get(baseURL + "?code=real-code&state=s")
	if err != nil {
		t.Fatalf("redirect request: %v", err)
	}
	resp2.Body.Close()

	result, err := server.WaitForCallback(context.Background(), time.Second)
	if err != nil || result == nil {
		t.Fatalf("WaitForCallback: result=%v err=%v", result, err)
	}
	if result.Code != "real-code" {
		t.Errorf("Code = %q, want real-code", result.Code)
	}
}

func TestNewCallbackServer_InvalidURL(t *testing.T) {
	_, err := NewCallbackServer("://not-a-url")
	var configErr *ConfigError
	if !errors.As(err, &configErr) {
		t.Errorf("expected *ConfigError, got %T: %v", err, err)
	}
}
