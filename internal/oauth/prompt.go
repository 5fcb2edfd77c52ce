package oauth

import (
	"fmt"
	"strings"

	"github.com/chzyer/readline"
)

// CodePrompter asks the interactive user for an authorization code. It is
// the last-resort path when the local callback listener cannot be used;
// there is no timeout, the human gates it.
type CodePrompter interface {
	PromptCode() (string, error)
}

// ReadlinePrompter reads the authorization code from the terminal.
type ReadlinePrompter struct{}

// PromptCode prompts for the code pasted from the browser address bar.
// An empty value after trimming is ErrEmptyCode.
func (ReadlinePrompter) PromptCode() (string, error) {
	rl, err := readline.New("Please enter the authorization code: ")
	if err != nil {
		return "", fmt.Errorf("failed to open terminal prompt: %w", err)
	}
	defer rl.Close()

	line, err := rl.Readline()
	if err != nil {
		return "", fmt.Errorf("failed to read authorization code: %w", err)
	}

	code := strings.TrimSpace(line)
	if code == "" {
		return "", ErrEmptyCode
	}

	return code, nil
}
