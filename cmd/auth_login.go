package cmd

import (
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// authLoginCmd represents the auth login command.
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate to Autodesk Platform Services",
	Long: `Run the three-legged OAuth login flow against APS.

A browser opens for the Autodesk login. The redirect is captured by a
local callback listener when one is configured; otherwise (or when the
listener cannot be started or times out) you are asked to paste the
authorization code manually.

Examples:
  apsconnect auth login                # Login with the configured environment
  apsconnect auth login --env-file x   # Login using a specific .env file`,
	RunE: runAuthLogin,
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	provider := newProvider()
	manager := newManager(provider)

	cred, err := requireCredential(provider)
	if err != nil {
		return err
	}

	authPrint("Starting 3-legged OAuth authorization flow (%s)...\n", provider.Environment())

	accessToken, err := manager.RunThreeLeggedFlow(cmd.Context(), cred)
	if err != nil {
		return err
	}

	authPrintln(text.FgGreen.Sprint("Authentication successful."))
	authPrint("Access token obtained: %s...\n", tokenPreview(accessToken))

	status := manager.Check()
	authPrint("Token type: %s\n", status.TokenType)
	if status.Scope != "" {
		authPrint("Scopes:     %s\n", status.Scope)
	}
	authPrint("Expires:    %s\n", formatExpiry(status.ExpiresAt))

	return nil
}

// tokenPreview returns the first few characters of a token for display.
// Full token values are never printed or logged.
func tokenPreview(token string) string {
	const previewLen = 20
	if len(token) <= previewLen {
		return token
	}
	return token[:previewLen]
}
