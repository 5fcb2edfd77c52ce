package cmd

import (
	"errors"
	"os"

	"apsconnect/internal/oauth"
	"apsconnect/pkg/logging"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeConfigInvalid indicates missing or invalid OAuth configuration.
	ExitCodeConfigInvalid = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed.
	ExitCodeAuthFailed = 3
)

var logLevel string

// rootCmd represents the base command for the apsconnect application.
var rootCmd = &cobra.Command{
	Use:   "apsconnect",
	Short: "Authenticate your desktop tools to Autodesk Platform Services",
	Long: `apsconnect obtains and maintains three-legged OAuth2 access tokens
for Autodesk Platform Services (APS) on behalf of an interactive desktop
process. It opens a browser for the Autodesk login, captures the redirect
on a local callback listener (with manual code entry as a fallback), and
keeps the current token in an in-process cache for the session.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logging.ParseLevel(logLevel), os.Stderr)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

// SetVersion sets the version for the root command. Called from main to
// inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "apsconnect version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps error types to semantic exit codes for scripting.
func getExitCode(err error) int {
	var configErr *oauth.ConfigError
	if errors.As(err, &configErr) {
		return ExitCodeConfigInvalid
	}

	var networkErr *oauth.NetworkError
	var protocolErr *oauth.ProtocolError
	if errors.As(err, &networkErr) || errors.As(err, &protocolErr) || errors.Is(err, oauth.ErrEmptyCode) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}
