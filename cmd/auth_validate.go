package cmd

import (
	"fmt"
	"strings"

	"apsconnect/internal/oauth"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// authValidateCmd represents the auth validate command.
var authValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate OAuth configuration",
	Long: `Validate that the required OAuth configuration is present for the
active environment, and report whether the local callback listener can be
used for automatic code capture.`,
	RunE: runAuthValidate,
}

func runAuthValidate(cmd *cobra.Command, args []string) error {
	provider := newProvider()

	missing := provider.Validate()
	if len(missing) > 0 {
		fmt.Println(text.FgRed.Sprint("Configuration invalid"))
		for _, key := range missing {
			fmt.Printf("  Missing: %s\n", key)
		}
		fmt.Println("Please check your .env file or environment variables.")
		return &oauth.ConfigError{Reason: "missing keys: " + strings.Join(missing, ", ")}
	}

	cred := provider.OAuthCredential()
	fmt.Printf("%s (%s)\n", text.FgGreen.Sprint("Configuration valid"), strings.ToUpper(string(provider.Environment())))
	fmt.Printf("Client ID:    %s...\n", tokenPreview(cred.ClientID))
	fmt.Printf("Scopes:       %s\n", cred.Scope)
	fmt.Printf("Callback URL: %s\n", cred.CallbackURL)

	// Probe the local callback port by binding it briefly.
	if cred.UsesLocalListener() {
		if available := localCallbackAvailable(cred.LocalCallbackURL); available {
			fmt.Printf("Local callback: %s (available)\n", cred.LocalCallbackURL)
			fmt.Println("  -> Automatic code capture enabled")
		} else {
			fmt.Printf("Local callback: %s (%s)\n", cred.LocalCallbackURL, text.FgYellow.Sprint("not available"))
			fmt.Println("  -> Will use manual code entry")
		}
	} else {
		fmt.Println("Local callback: not configured")
		fmt.Println("  -> Will use manual code entry")
	}

	return nil
}

// localCallbackAvailable reports whether the local callback listener can
// bind its address right now.
func localCallbackAvailable(localCallbackURL string) bool {
	server, err := oauth.NewCallbackServer(localCallbackURL)
	if err != nil {
		return false
	}
	if err := server.Start(); err != nil {
		return false
	}
	server.Stop()
	return true
}
