package secrets

import (
	"context"
	"errors"
	"os"
	"strings"
)

// TokenSource acquires the platform credential. The token is held in memory
// only and must never be logged or persisted.
type TokenSource interface {
	// Token returns the raw credential
	Token(ctx context.Context) (string, error)
}

// Common errors
var (
	ErrEmptyToken     = errors.New("empty token")
	ErrNotATerminal   = errors.New("stdin is not a terminal")
	ErrSecretNotFound = errors.New("secret not found")
)

// EnvTokenSource reads the credential from an environment variable
type EnvTokenSource struct {
	// Key is the environment variable name (defaults to DISCORD_TOKEN)
	Key string
}

// Token implements TokenSource
func (s *EnvTokenSource) Token(ctx context.Context) (string, error) {
	key := s.Key
	if key == "" {
		key = "DISCORD_TOKEN"
	}
	token := strings.TrimSpace(os.Getenv(key))
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}
