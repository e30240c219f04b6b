package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/denebu/discord-chat-cleaner/internal/discord"
	"github.com/denebu/discord-chat-cleaner/internal/observability"
	"github.com/denebu/discord-chat-cleaner/internal/walker"
	"github.com/denebu/discord-chat-cleaner/pkg/apierr"
	"github.com/denebu/discord-chat-cleaner/pkg/config"
	"github.com/denebu/discord-chat-cleaner/pkg/logger"
	"github.com/denebu/discord-chat-cleaner/pkg/secrets"

	"github.com/google/uuid"
)

func main() {
	cfg := config.New()

	var (
		roomID       = flag.String("room-id", "", "The room ID to bulk delete from")
		roomType     = flag.String("room-type", "", `Type of the room: "channel" or "guild"`)
		authorID     = flag.String("author-id", "", "Author ID whose messages are deleted")
		newestID     = flag.Uint64("newest-message-id", 0, "Newest message ID of the range (validity is not checked)")
		oldestID     = flag.Uint64("oldest-message-id", 0, "Oldest message ID of the range (validity is not checked)")
		replaceMode  = flag.String("replace-before-delete", "none", `Overwrite content before deleting: "none", "fixed" or "random"`)
		replaceTo    = flag.String("replace-to", "", `Replacement text when -replace-before-delete is "fixed"`)
		defaultSleep = flag.Duration("default-sleep", cfg.Walker.DefaultSleep, "Sleep between requests (e.g. 500ms)")
		tokenType    = flag.String("token-type", "User", `Type of the token: "User", "Bot" or "Bearer"`)
		tokenSource  = flag.String("token-source", "prompt", `Where the token comes from: "prompt", "env" or "vault"`)
		dryRun       = flag.Bool("dry-run", false, "Report matching messages without editing or deleting")
		traceFlag    = flag.Bool("trace", cfg.Observability.TraceEnabled, "Emit OpenTelemetry spans to stdout")
		metricsAddr  = flag.String("metrics-addr", cfg.Observability.MetricsAddr, "Serve /metrics and /healthz on this address (empty disables)")
		logLevel     = flag.String("log-level", cfg.Logging.Level, "Log level: debug, info, warn, error")
		logFormat    = flag.String("log-format", cfg.Logging.Format, "Log format: text or json")
	)
	flag.Parse()

	logConfig := logger.DefaultConfig()
	logConfig.Level = *logLevel
	logConfig.JSON = *logFormat == "json"

	log := logger.New(logConfig)
	logger.SetGlobal(log)
	log = log.WithRunID(uuid.NewString())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, runOptions{
		roomID:       *roomID,
		roomType:     *roomType,
		authorID:     *authorID,
		newestID:     *newestID,
		oldestID:     *oldestID,
		replaceMode:  *replaceMode,
		replaceTo:    *replaceTo,
		defaultSleep: *defaultSleep,
		tokenType:    *tokenType,
		tokenSource:  *tokenSource,
		dryRun:       *dryRun,
		trace:        *traceFlag,
		metricsAddr:  *metricsAddr,
	}); err != nil {
		log.LogError(err, "Aborted", "category", category(err))
		os.Exit(1)
	}
}

type runOptions struct {
	roomID       string
	roomType     string
	authorID     string
	newestID     uint64
	oldestID     uint64
	replaceMode  string
	replaceTo    string
	defaultSleep time.Duration
	tokenType    string
	tokenSource  string
	dryRun       bool
	trace        bool
	metricsAddr  string
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger, opts runOptions) error {
	policy := walker.ReplacementPolicy{
		Mode:      walker.PolicyMode(strings.ToLower(opts.replaceMode)),
		Fixed:     opts.replaceTo,
		MinLength: cfg.Replace.MinLength,
		MaxLength: cfg.Replace.MaxLength,
	}

	walkConfig := walker.Config{
		RoomID:         opts.roomID,
		RoomType:       discord.RoomType(strings.ToLower(opts.roomType)),
		AuthorID:       opts.authorID,
		OldestID:       opts.oldestID,
		NewestID:       opts.newestID,
		Policy:         policy,
		DefaultSleep:   opts.defaultSleep,
		MaxRetries:     cfg.Walker.MaxRetries,
		DefaultBackoff: cfg.Walker.DefaultBackoff,
		MaxBackoff:     cfg.Walker.MaxBackoff,
		DryRun:         opts.dryRun,
	}
	// Fail on bad input before prompting for the token or touching the API
	if err := walkConfig.Validate(); err != nil {
		return err
	}

	authHeader, err := buildAuthHeader(ctx, cfg, log, opts)
	if err != nil {
		return err
	}

	if opts.trace {
		shutdown, err := observability.SetupTracing("discord-chat-cleaner", log)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer shutdown()
	}

	metrics := observability.NewMetrics()
	if opts.metricsAddr != "" {
		observability.ServeDebug(opts.metricsAddr, metrics, log)
	}

	client := discord.NewClient(discord.ClientConfig{
		BaseURL:    cfg.API.BaseURL,
		AuthHeader: authHeader,
		UserAgent:  cfg.API.UserAgent,
		Timeout:    cfg.API.Timeout,
	}, log)

	log.Info("Started",
		"room_id", opts.roomID,
		"room_type", opts.roomType,
		"author_id", opts.authorID,
		"dry_run", opts.dryRun,
	)

	result, err := walker.New(walkConfig, client, metrics, log).Run(ctx)
	report(log, result, opts.dryRun)
	return err
}

// buildAuthHeader acquires the credential and applies the token-type prefix.
// User tokens are sent bare; bot and OAuth tokens carry their scheme.
func buildAuthHeader(ctx context.Context, cfg *config.Config, log *logger.Logger, opts runOptions) (string, error) {
	var source secrets.TokenSource
	switch strings.ToLower(opts.tokenSource) {
	case "prompt":
		source = &secrets.PromptTokenSource{}
	case "env":
		source = &secrets.EnvTokenSource{}
	case "vault":
		vaultSource, err := secrets.NewVaultTokenSource(secrets.VaultConfig{
			Address:     cfg.Vault.Address,
			Token:       cfg.Vault.Token,
			Namespace:   cfg.Vault.Namespace,
			SecretsPath: cfg.Vault.SecretsPath,
			SecretKey:   cfg.Vault.SecretKey,
			Timeout:     cfg.Vault.Timeout,
		}, log)
		if err != nil {
			return "", err
		}
		source = vaultSource
	default:
		return "", apierr.NewValidationError(`token source must be "prompt", "env" or "vault"`)
	}

	token, err := source.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to acquire token: %w", err)
	}

	switch strings.ToLower(opts.tokenType) {
	case "user":
		return token, nil
	case "bot":
		return "Bot " + token, nil
	case "bearer":
		return "Bearer " + token, nil
	}
	return "", apierr.NewValidationError(`token type must be "User", "Bot" or "Bearer"`)
}

// report writes the end-of-run summary
func report(log *logger.Logger, result *walker.Result, dryRun bool) {
	if result.Matched == 0 {
		log.Info("There are no messages to bulk delete")
		return
	}

	if dryRun {
		log.Info("Dry run finished", "would_delete", result.Matched)
	} else {
		log.Info("Done bulk deleting messages",
			"deleted", result.Deleted,
			"scrubbed", result.Scrubbed,
			"skipped", result.Skipped,
			"failed", result.Failed,
		)
	}
	log.Info("Processed message range",
		"oldest_id", result.OldestProcessedID,
		"newest_id", result.NewestProcessedID,
		"oldest_timestamp", result.OldestTimestamp.Format(time.RFC3339Nano),
		"newest_timestamp", result.NewestTimestamp.Format(time.RFC3339Nano),
	)
}

// category names the failure class for the operator-facing abort message
func category(err error) string {
	switch {
	case apierr.IsAuthFailure(err):
		return "authentication"
	case apierr.IsValidation(err):
		return "validation"
	case apierr.IsRateLimited(err):
		return "rate-limit"
	case apierr.IsNotFound(err):
		return "not-found"
	case apierr.IsNetwork(err):
		return "network"
	default:
		return "internal"
	}
}
