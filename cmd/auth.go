package cmd

import (
	"errors"
	"fmt"
	"time"

	"apsconnect/internal/config"
	"apsconnect/internal/oauth"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var (
	authEnvFile string
	authQuiet   bool
)

// authCmd represents the auth command group.
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage APS authentication",
	Long: `Manage OAuth authentication against Autodesk Platform Services.

The auth command group provides subcommands to log in, print a valid
access token, check token status, refresh, and clear the stored token.
Tokens live in process memory only; each invocation is one session.

Examples:
  apsconnect auth login                # Run the browser-based login flow
  apsconnect auth token                # Print a valid access token
  apsconnect auth status               # Show token status
  apsconnect auth refresh              # Force a token refresh
  apsconnect auth logout               # Clear the stored token
  apsconnect auth validate             # Validate OAuth configuration`,
}

// authLogoutCmd represents the auth logout command.
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored authentication token",
	Long: `Clear the in-process OAuth token.

After logout the next token request runs the full authentication flow
again.`,
	RunE: runAuthLogout,
}

// authRefreshCmd represents the auth refresh command.
var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force a token refresh",
	Long: `Force a refresh of the cached token using its refresh token.

Unlike 'auth token', this never opens a browser: it fails when no
refreshable token is cached.`,
	RunE: runAuthRefresh,
}

// authPrint prints output only if the --quiet flag is not set.
func authPrint(format string, args ...interface{}) {
	if !authQuiet {
		fmt.Printf(format, args...)
	}
}

// authPrintln prints a line only if the --quiet flag is not set.
func authPrintln(a ...interface{}) {
	if !authQuiet {
		fmt.Println(a...)
	}
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authTokenCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authRefreshCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authValidateCmd)

	authCmd.PersistentFlags().StringVar(&authEnvFile, "env-file", "", "Path to the .env configuration file")
	authCmd.PersistentFlags().BoolVarP(&authQuiet, "quiet", "q", false, "Suppress non-essential output")
}

// newProvider builds the configuration provider for the auth commands.
func newProvider() *config.Provider {
	if authEnvFile != "" {
		return config.NewProviderFromFile(authEnvFile)
	}
	return config.NewProvider()
}

// newManager wires a manager from the provider's network configuration.
func newManager(provider *config.Provider) *oauth.Manager {
	network := provider.Network()
	return oauth.NewManager(oauth.ManagerConfig{
		Exchange: oauth.NewExchangeClient(oauth.ExchangeConfig{
			HTTPTimeout:      network.HTTPTimeout,
			MaxRetryAttempts: &network.MaxRetryAttempts,
			RetryDelay:       network.RetryDelay,
		}),
	})
}

// requireCredential resolves the active credential and fails early with a
// setup hint when it is unusable.
func requireCredential(provider *config.Provider) (oauth.Credential, error) {
	cred := provider.OAuthCredential()
	if !cred.IsValid() {
		authPrintln("Configuration error: APS client id and client secret are required.")
		authPrintln("Please check your .env file or environment variables.")
		return cred, &oauth.ConfigError{Reason: "client id and client secret are required"}
	}
	return cred, nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	manager := newManager(newProvider())

	status := manager.Check()
	if status.HasToken {
		authPrintln("Clearing stored token...")
	}

	manager.Clear()
	authPrintln("Token cleared. You will need to authenticate again for the next API call.")
	return nil
}

func runAuthRefresh(cmd *cobra.Command, args []string) error {
	provider := newProvider()
	manager := newManager(provider)

	cred, err := requireCredential(provider)
	if err != nil {
		return err
	}

	var s *spinner.Spinner
	if !authQuiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = " Refreshing access token..."
		s.Start()
	}

	err = manager.ForceRefresh(cmd.Context(), cred)

	if s != nil {
		s.Stop()
	}
	if err != nil {
		if errors.Is(err, oauth.ErrNoRefreshToken) {
			authPrintln("No refreshable token is cached. Run 'apsconnect auth login' first.")
		}
		return err
	}

	authPrintln(text.FgGreen.Sprint("Token refreshed successfully."))
	return nil
}

// formatExpiry renders an absolute expiry with a human direction, e.g.
// "2026-01-02 15:04:05 UTC (in 58m)" or "... (expired 3m ago)".
func formatExpiry(expiresAt time.Time) string {
	stamp := expiresAt.UTC().Format("2006-01-02 15:04:05 UTC")
	remaining := time.Until(expiresAt)
	if remaining >= 0 {
		return fmt.Sprintf("%s (in %s)", stamp, remaining.Round(time.Second))
	}
	return fmt.Sprintf("%s (expired %s ago)", stamp, (-remaining).Round(time.Second))
}
