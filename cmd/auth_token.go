package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// authTokenCmd represents the auth token command.
var authTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a valid access token",
	Long: `Obtain a valid access token and print it to stdout.

A cached valid token is returned without any network activity; an expired
token with a refresh token is refreshed silently; otherwise the full
browser-based login flow runs. Use --quiet to print nothing but the token,
for scripting:

  curl -H "Authorization: Bearer $(apsconnect auth token -q)" ...`,
	RunE: runAuthToken,
}

func runAuthToken(cmd *cobra.Command, args []string) error {
	provider := newProvider()
	manager := newManager(provider)

	cred, err := requireCredential(provider)
	if err != nil {
		return err
	}

	accessToken, err := manager.GetValidAccessToken(cmd.Context(), cred)
	if err != nil {
		return err
	}

	fmt.Println(accessToken)
	return nil
}
