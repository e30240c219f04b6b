package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// PromptTokenSource reads the credential from a non-echoing terminal prompt,
// keeping it out of shell history and process listings
type PromptTokenSource struct {
	// Prompt is the text shown to the operator (defaults to "Token: ")
	Prompt string
}

// Token implements TokenSource
func (s *PromptTokenSource) Token(ctx context.Context) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", ErrNotATerminal
	}

	prompt := s.Prompt
	if prompt == "" {
		prompt = "Token: "
	}
	fmt.Fprint(os.Stderr, prompt)

	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}

	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}
