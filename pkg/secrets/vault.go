package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/denebu/discord-chat-cleaner/pkg/logger"

	vault "github.com/hashicorp/vault/api"
)

// Vault-specific errors
var (
	ErrNoVaultAddress = errors.New("no vault address provided")
	ErrNoVaultToken   = errors.New("no vault token provided")
)

// VaultConfig holds configuration for the Vault client
type VaultConfig struct {
	Address     string
	Token       string
	Namespace   string
	SecretsPath string
	SecretKey   string
	Timeout     time.Duration
	MaxRetries  int
}

// VaultTokenSource reads the platform credential from HashiCorp Vault
type VaultTokenSource struct {
	client *vault.Client
	config VaultConfig
	log    *logger.Logger
}

// NewVaultTokenSource creates a Vault-backed token source
func NewVaultTokenSource(config VaultConfig, log *logger.Logger) (*VaultTokenSource, error) {
	if config.Address == "" {
		return nil, ErrNoVaultAddress
	}
	if config.Token == "" {
		return nil, ErrNoVaultToken
	}
	if config.SecretsPath == "" {
		config.SecretsPath = "secret/data/discord"
	}
	if config.SecretKey == "" {
		config.SecretKey = "token"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = config.Address
	vaultConfig.Timeout = config.Timeout
	vaultConfig.MaxRetries = config.MaxRetries

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(config.Token)
	if config.Namespace != "" {
		client.SetNamespace(config.Namespace)
	}

	return &VaultTokenSource{
		client: client,
		config: config,
		log:    log,
	}, nil
}

// Token implements TokenSource
func (s *VaultTokenSource) Token(ctx context.Context) (string, error) {
	// SecretsPath is in KV v2 form: secret/data/<path>
	path := strings.TrimPrefix(s.config.SecretsPath, "secret/data/")

	secret, err := s.client.KVv2("secret").Get(ctx, path)
	if err != nil {
		s.log.Error("Failed to read secret from Vault",
			"path", path,
			"error", err.Error(),
		)
		return "", fmt.Errorf("failed to read secret: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return "", ErrSecretNotFound
	}

	value, ok := secret.Data[s.config.SecretKey].(string)
	if !ok || value == "" {
		return "", ErrSecretNotFound
	}

	return value, nil
}
