package oauth

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// DefaultCallbackWait bounds how long the manager waits for the redirect
// before degrading to manual code entry.
const DefaultCallbackWait = 300 * time.Second

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

// CallbackResult carries the query parameters captured from the first
// redirect request.
type CallbackResult struct {
	// Code is the authorization code issued by APS.
	Code string

	// State echoes the nonce sent with the authorization request.
	State string

	// Error and ErrorDescription are set when the authorization server
	// redirected with an error instead of a code.
	Error            string
	ErrorDescription string
}

// IsError reports whether the redirect carried an error response.
func (r *CallbackResult) IsError() bool {
	return r.Error != ""
}

// CallbackServer is a transient loopback HTTP server that captures the
// authorization code from the OAuth redirect. It binds, waits for a single
// request, and must be stopped on every exit path; Stop is idempotent.
type CallbackServer struct {
	addr     string
	path     string
	server   *http.Server
	listener net.Listener
	resultCh chan *CallbackResult
	once     sync.Once
	stopOnce sync.Once
}

// NewCallbackServer builds a callback server from the local callback URL,
// e.g. http://localhost:8082/callback/. The host always resolves to the
// loopback interface; the port and path come from the URL.
func NewCallbackServer(localCallbackURL string) (*CallbackServer, error) {
	parsed, err := url.Parse(localCallbackURL)
	if err != nil {
		return nil, &ConfigError{Reason: "local callback URL is not a valid URL: " + err.Error()}
	}

	port := parsed.Port()
	if port == "" {
		port = "80"
	}

	path := parsed.Path
	if path == "" {
		path = "/"
	}

	return &CallbackServer{
		addr:     net.JoinHostPort("127.0.0.1", port),
		path:     path,
		resultCh: make(chan *CallbackResult, 1),
	}, nil
}

// Start binds the listener and begins accepting requests in a background
// goroutine. A bind failure is returned as a *BindError so the caller can
// fall back to manual code entry instead of treating it as fatal.
func (s *CallbackServer) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return &BindError{Addr: s.addr, Err: err}
	}
	s.listener = listener

	// Only the configured callback path is served; requests anywhere else
	// (favicon probes, port scans) get a 404 from the mux and never touch
	// the capture.
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleCallback)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		// ErrServerClosed is the normal Stop path.
		_ = s.server.Serve(listener)
	}()

	return nil
}

// WaitForCallback blocks until the redirect arrives, the timeout elapses,
// or ctx is cancelled. A timeout is not an error: it returns (nil, nil)
// and the caller degrades to manual entry. The accept loop keeps running
// either way; Stop releases it.
func (s *CallbackServer) WaitForCallback(ctx context.Context, timeout time.Duration) (*CallbackResult, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-s.resultCh:
		return result, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// handleCallback processes the first genuine redirect and rejects any
// repeat. Requests without a code or an error parameter are answered but
// never consume the capture, so a stray hit on the callback path cannot
// swallow the redirect that follows.
func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("code") == "" && query.Get("error") == "" {
		s.renderPage(w, callbackErrorHTML, map[string]string{
			"Message": "No authorization code found in callback",
		})
		return
	}

	var handled bool
	s.once.Do(func() {
		handled = true
		s.processCallback(w, r)
	})

	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

func (s *CallbackServer) processCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	result := &CallbackResult{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	if result.IsError() {
		msg := result.Error
		if result.ErrorDescription != "" {
			msg = fmt.Sprintf("%s: %s", result.Error, result.ErrorDescription)
		}
		s.renderPage(w, callbackErrorHTML, map[string]string{"Message": msg})
	} else {
		s.renderPage(w, callbackSuccessHTML, map[string]string{})
	}

	select {
	case s.resultCh <- result:
	default:
	}
}

// renderPage writes one of the embedded callback pages to the browser.
func (s *CallbackServer) renderPage(w http.ResponseWriter, page string, data map[string]string) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	tmpl := template.Must(template.New("callback").Parse(page))
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// Stop releases the listening socket. Safe to call whether or not a
// callback was received, and safe to call more than once.
func (s *CallbackServer) Stop() {
	s.stopOnce.Do(func() {
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.server.Shutdown(ctx)
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}

// Addr returns the bound address, for logging.
func (s *CallbackServer) Addr() string {
	return s.addr
}
