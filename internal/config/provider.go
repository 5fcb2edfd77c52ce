// Package config resolves named configuration values for apsconnect.
//
// Values come from two layers: a .env file and the process environment,
// with environment variables taking precedence. The provider hands out
// typed values by key and assembles the OAuth credential for the active
// environment (production or staging).
package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"

	"apsconnect/internal/oauth"
)

// Environment selects one of the two disjoint APS credential key sets.
type Environment string

const (
	// EnvironmentProduction selects the APS_* key set.
	EnvironmentProduction Environment = "production"

	// EnvironmentStaging selects the APS_STG_* key set. This is the
	// default.
	EnvironmentStaging Environment = "staging"
)

// EnvFileName is the configuration file looked up next to the working
// directory and its parent.
const EnvFileName = ".env"

// NetworkConfig groups the HTTP tuning knobs for the token exchange.
type NetworkConfig struct {
	HTTPTimeout      time.Duration
	MaxRetryAttempts int
	RetryDelay       time.Duration
}

// Provider resolves configuration values from a .env file merged under the
// process environment. It is cheap to query; the OAuth credential is
// rebuilt on every call so environment changes between calls are picked
// up.
type Provider struct {
	mu      sync.RWMutex
	values  map[string]string
	envFile string
}

// NewProvider loads the .env file (when one exists in the working
// directory or its parent) and overlays the process environment.
func NewProvider() *Provider {
	return NewProviderFromFile(findEnvFile())
}

// NewProviderFromFile loads configuration from a specific .env file path.
// An empty path or unreadable file leaves the provider with environment
// variables only.
func NewProviderFromFile(envFile string) *Provider {
	p := &Provider{envFile: envFile}
	p.Reload()
	return p
}

// Reload re-reads the .env file and the process environment.
func (p *Provider) Reload() {
	values := make(map[string]string)

	if p.envFile != "" {
		fileValues, err := godotenv.Read(p.envFile)
		if err == nil {
			for key, value := range fileValues {
				values[key] = value
			}
		} else if !os.IsNotExist(err) {
			slog.Warn("Failed to read .env file",
				"path", p.envFile,
				"error", err.Error(),
			)
		}
	}

	// Process environment wins over file values.
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if ok {
			values[key] = value
		}
	}

	p.mu.Lock()
	p.values = values
	p.mu.Unlock()
}

// findEnvFile looks for a .env next to the working directory, then in its
// parent, mirroring where the desktop process keeps it.
func findEnvFile() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for _, dir := range []string{wd, filepath.Dir(wd)} {
		candidate := filepath.Join(dir, EnvFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return ""
}

// GetString returns the value for key, or def when the key is absent.
func (p *Provider) GetString(key, def string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if value, ok := p.values[key]; ok {
		return value
	}
	return def
}

// GetInt returns the integer value for key, or def when the key is absent
// or not parseable.
func (p *Provider) GetInt(key string, def int) int {
	p.mu.RLock()
	value, ok := p.values[key]
	p.mu.RUnlock()

	if !ok {
		return def
	}

	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return parsed
}

// GetBool returns the boolean value for key, or def when the key is absent
// or not recognized. Accepted spellings follow the source system:
// true/1/yes/on and false/0/no/off.
func (p *Provider) GetBool(key string, def bool) bool {
	p.mu.RLock()
	value, ok := p.values[key]
	p.mu.RUnlock()

	if !ok {
		return def
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return def
	}
}

// Has reports whether key is set to a non-blank value.
func (p *Provider) Has(key string) bool {
	return strings.TrimSpace(p.GetString(key, "")) != ""
}

// Environment resolves the active environment from APS_ENVIRONMENT,
// defaulting to staging.
func (p *Provider) Environment() Environment {
	switch strings.ToLower(p.GetString("APS_ENVIRONMENT", "")) {
	case "production", "prod":
		return EnvironmentProduction
	default:
		return EnvironmentStaging
	}
}

// credentialKeys holds the configuration key names for one environment.
type credentialKeys struct {
	clientID         string
	clientSecret     string
	callbackURL      string
	localCallbackURL string
	authEndpoint     string
	tokenEndpoint    string
	scope            string
}

func keysFor(env Environment) credentialKeys {
	if env == EnvironmentProduction {
		return credentialKeys{
			clientID:         "APS_CLIENT_ID",
			clientSecret:     "APS_CLIENT_SECRET",
			callbackURL:      "APS_CALLBACK_URL",
			localCallbackURL: "APS_CALLBACK_URL_LOCAL",
			authEndpoint:     "APS_AUTH_URL",
			tokenEndpoint:    "APS_TOKEN_URL",
			scope:            "APS_SCOPES",
		}
	}
	return credentialKeys{
		clientID:         "APS_STG_CLIENT_ID",
		clientSecret:     "APS_STG_CLIENT_SECRET",
		callbackURL:      "APS_STG_CALLBACK_URL",
		localCallbackURL: "APS_STG_CALLBACK_URL_LOCAL",
		authEndpoint:     "APS_STG_AUTH_URL",
		tokenEndpoint:    "APS_STG_TOKEN_URL",
		scope:            "APS_STG_SCOPES",
	}
}

// Default APS endpoints, used when the endpoint keys are not set.
const (
	defaultAuthEndpoint  = "https://developer.api.autodesk.com/authentication/v1/authorize"
	defaultTokenEndpoint = "https://developer.api.autodesk.com/authentication/v1/gettoken"
)

// OAuthCredential assembles the credential for the active environment.
// The credential is rebuilt fresh on every call and never cached here.
func (p *Provider) OAuthCredential() oauth.Credential {
	keys := keysFor(p.Environment())

	return oauth.Credential{
		ClientID:              p.GetString(keys.clientID, ""),
		ClientSecret:          p.GetString(keys.clientSecret, ""),
		CallbackURL:           p.GetString(keys.callbackURL, ""),
		LocalCallbackURL:      p.GetString(keys.localCallbackURL, ""),
		AuthorizationEndpoint: p.GetString(keys.authEndpoint, defaultAuthEndpoint),
		TokenEndpoint:         p.GetString(keys.tokenEndpoint, defaultTokenEndpoint),
		Scope:                 p.GetString(keys.scope, ""),
	}
}

// Network returns the HTTP tuning configuration for the token exchange.
func (p *Provider) Network() NetworkConfig {
	return NetworkConfig{
		HTTPTimeout:      time.Duration(p.GetInt("HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
		MaxRetryAttempts: p.GetInt("MAX_RETRY_ATTEMPTS", 3),
		RetryDelay:       time.Duration(p.GetInt("RETRY_DELAY_MS", 1000)) * time.Millisecond,
	}
}

// Validate returns the required configuration keys that are missing or
// blank for the active environment.
func (p *Provider) Validate() []string {
	keys := keysFor(p.Environment())
	required := []string{
		keys.clientID,
		keys.clientSecret,
		keys.callbackURL,
		keys.localCallbackURL,
	}

	var missing []string
	for _, key := range required {
		if !p.Has(key) {
			missing = append(missing, key)
		}
	}
	return missing
}

// Watch reloads the provider whenever the .env file changes, until ctx is
// cancelled. It is a no-op when no .env file was found at startup.
func (p *Provider) Watch(ctx context.Context) error {
	if p.envFile == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory: editors commonly replace the file on save,
	// which drops a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(p.envFile)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(p.envFile) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					slog.Debug("Configuration file changed, reloading",
						"path", p.envFile,
					)
					p.Reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Configuration watcher error",
					"error", err.Error(),
				)
			}
		}
	}()

	return nil
}
