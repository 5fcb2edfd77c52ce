package cmd

import (
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// authStatusCmd represents the auth status command.
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show token status",
	Long: `Show whether a token is cached and whether it is expired.

This is a read-only check: it never triggers a refresh or a login flow.`,
	RunE: runAuthStatus,
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	provider := newProvider()
	manager := newManager(provider)

	authPrint("Environment: %s\n", provider.Environment())

	status := manager.Check()
	if !status.HasToken {
		authPrint("Status:      %s\n", text.FgYellow.Sprint("No token stored"))
		authPrintln("Run 'apsconnect auth login' to authenticate.")
		return nil
	}

	if status.Expired {
		authPrint("Status:      %s\n", text.FgRed.Sprint("Expired"))
	} else {
		authPrint("Status:      %s\n", text.FgGreen.Sprint("Valid"))
	}
	authPrint("Token type:  %s\n", status.TokenType)
	if status.Scope != "" {
		authPrint("Scopes:      %s\n", status.Scope)
	}
	authPrint("Expires:     %s\n", formatExpiry(status.ExpiresAt))

	return nil
}
