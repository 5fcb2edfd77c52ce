package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

// shellCmd represents the interactive shell command.
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive token session",
	Long: `Start an interactive session sharing one in-process token cache.

Tokens are not persisted across processes, so the shell is the way to
authenticate once and then check, reuse, or clear the token over the
course of a working session:

  aps» token     obtain (and cache) a valid access token
  aps» status    show token status
  aps» clear     clear the cached token
  aps» exit      leave the shell`,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
	shellCmd.Flags().StringVar(&authEnvFile, "env-file", "", "Path to the .env configuration file")
}

func runShell(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	provider := newProvider()
	manager := newManager(provider)

	// Pick up .env edits made while the shell is open.
	if err := provider.Watch(ctx); err != nil {
		fmt.Printf("Warning: configuration watcher unavailable: %v\n", err)
	}

	completer := readline.NewPrefixCompleter(
		readline.PcItem("token"),
		readline.PcItem("login"),
		readline.PcItem("status"),
		readline.PcItem("clear"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "aps» ",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()

	fmt.Println("apsconnect interactive session. Type 'help' for commands, 'exit' to leave.")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "help":
			fmt.Println("Commands: token, login, status, clear, help, exit")
		case "token":
			cred, err := requireCredential(provider)
			if err != nil {
				continue
			}
			accessToken, err := manager.GetValidAccessToken(ctx, cred)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			fmt.Printf("Access token: %s...\n", tokenPreview(accessToken))
		case "login":
			cred, err := requireCredential(provider)
			if err != nil {
				continue
			}
			if _, err := manager.RunThreeLeggedFlow(ctx, cred); err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			fmt.Println("Authentication successful.")
		case "status":
			status := manager.Check()
			if !status.HasToken {
				fmt.Println("No token stored. Run 'token' or 'login' to authenticate.")
				continue
			}
			if status.Expired {
				fmt.Println("Token is stored but EXPIRED.")
			} else {
				fmt.Println("Token is stored and valid.")
			}
			fmt.Printf("Expires: %s\n", formatExpiry(status.ExpiresAt))
		case "clear":
			manager.Clear()
			fmt.Println("Token cleared.")
		default:
			fmt.Printf("Unknown command: %s (try 'help')\n", strings.TrimSpace(line))
		}
	}
}
