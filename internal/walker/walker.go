package walker

import (
	"context"
	"time"

	"github.com/denebu/discord-chat-cleaner/internal/discord"
	"github.com/denebu/discord-chat-cleaner/pkg/apierr"
	"github.com/denebu/discord-chat-cleaner/pkg/logger"
	"github.com/denebu/discord-chat-cleaner/pkg/resilience"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// API is the remote surface the walker drives
type API interface {
	SearchMessages(ctx context.Context, roomType discord.RoomType, roomID, authorID string, offset int) (*discord.SearchResponse, error)
	EditMessage(ctx context.Context, channelID, messageID, content string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// Metrics receives per-message walk outcomes
type Metrics interface {
	MessageDeleted()
	MessageScrubbed()
	MessageSkipped()
	MessageFailed()
	RateLimitHit()
}

// noopMetrics is used when no metrics sink is wired
type noopMetrics struct{}

func (noopMetrics) MessageDeleted()  {}
func (noopMetrics) MessageScrubbed() {}
func (noopMetrics) MessageSkipped()  {}
func (noopMetrics) MessageFailed()   {}
func (noopMetrics) RateLimitHit()    {}

// Config holds one run's parameters
type Config struct {
	RoomID   string
	RoomType discord.RoomType
	AuthorID string
	// OldestID/NewestID bound the walk; both are numeric snowflakes
	OldestID uint64
	NewestID uint64
	Policy   ReplacementPolicy
	// DefaultSleep paces every remote request; zero disables throttling
	DefaultSleep time.Duration
	// MaxRetries caps rate-limit retries per request
	MaxRetries int
	// DefaultBackoff is used when a rate-limit response carries no duration
	DefaultBackoff time.Duration
	// MaxBackoff caps any single backoff sleep
	MaxBackoff time.Duration
	// DryRun reports matches without mutating or deleting anything
	DryRun bool
}

// Validate fails fast on operator input before any remote call
func (c Config) Validate() error {
	if c.RoomID == "" {
		return apierr.NewValidationError("room ID is required")
	}
	if _, err := discord.ParseSnowflake(c.RoomID); err != nil {
		return err
	}
	if err := c.RoomType.Validate(); err != nil {
		return err
	}
	if c.AuthorID == "" {
		return apierr.NewValidationError("author ID is required")
	}
	if _, err := discord.ParseSnowflake(c.AuthorID); err != nil {
		return err
	}
	if err := c.Policy.Validate(); err != nil {
		return err
	}
	if c.DefaultSleep < 0 {
		return apierr.NewValidationError("default sleep must not be negative")
	}
	return nil
}

// Result summarizes a completed run
type Result struct {
	Matched  int
	Deleted  int
	Scrubbed int
	Skipped  int
	Failed   int
	// Boundary bookkeeping for the end-of-run report
	NewestProcessedID string
	OldestProcessedID string
	NewestTimestamp   time.Time
	OldestTimestamp   time.Time
}

// Walker drives messages one at a time through an optional content overwrite
// and a delete, honoring the platform's rate limits
type Walker struct {
	config  Config
	api     API
	limiter *rate.Limiter
	retrier *resilience.Retrier
	metrics Metrics
	tracer  trace.Tracer
	log     *logger.Logger
}

// New creates a walker for one run
func New(config Config, api API, metrics Metrics, log *logger.Logger) *Walker {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 5
	}
	if config.DefaultBackoff <= 0 {
		config.DefaultBackoff = time.Second
	}

	var limiter *rate.Limiter
	if config.DefaultSleep > 0 {
		limiter = rate.NewLimiter(rate.Every(config.DefaultSleep), 1)
	}

	retryConfig := resilience.RetryConfig{
		Name:           "walker",
		MaxRetries:     config.MaxRetries,
		DefaultBackoff: config.DefaultBackoff,
		MaxBackoff:     config.MaxBackoff,
		Retryable:      apierr.IsRateLimited,
		BackoffHint:    apierr.RetryAfter,
		OnRetry: func(string, int, time.Duration) {
			metrics.RateLimitHit()
		},
	}

	return &Walker{
		config:  config,
		api:     api,
		limiter: limiter,
		retrier: resilience.NewRetrier(retryConfig, log),
		metrics: metrics,
		tracer:  otel.Tracer("discord-chat-cleaner/walker"),
		log:     log.WithRoom(config.RoomID, string(config.RoomType)),
	}
}

// Run walks the configured ID range until it is exhausted. The returned
// Result is valid even when err is non-nil, covering the work done before the
// fatal failure.
func (w *Walker) Run(ctx context.Context) (*Result, error) {
	result := &Result{}

	if err := w.config.Validate(); err != nil {
		return result, err
	}
	if w.config.OldestID >= w.config.NewestID {
		w.log.Info("Empty message ID range, nothing to do",
			"oldest", w.config.OldestID,
			"newest", w.config.NewestID,
		)
		return result, nil
	}

	// newestBound walks from the configured newest ID toward the oldest as
	// pages are processed; it only ever decreases
	newestBound := w.config.NewestID
	offset := 0

	for {
		page, err := w.searchPage(ctx, offset)
		if err != nil {
			return result, err
		}

		hits := page.Hits()
		if len(hits) == 0 {
			break
		}
		firstID, err := discord.ParseSnowflake(hits[0].ID)
		if err != nil {
			return result, err
		}
		if firstID < w.config.OldestID {
			break
		}

		inRange := w.filterRange(hits, newestBound)
		if len(inRange) == 0 {
			// Page holds only already-covered or out-of-range messages;
			// advance past it
			offset += len(hits)
			continue
		}

		for _, msg := range inRange {
			if err := w.processMessage(ctx, msg, result); err != nil {
				return result, err
			}
		}

		lastID, err := discord.ParseSnowflake(inRange[len(inRange)-1].ID)
		if err != nil {
			return result, err
		}
		newestBound = lastID - 1
	}

	w.log.Info("Walk finished",
		"matched", result.Matched,
		"deleted", result.Deleted,
		"scrubbed", result.Scrubbed,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

// searchPage fetches one page of search results, paced and retried like any
// other request
func (w *Walker) searchPage(ctx context.Context, offset int) (*discord.SearchResponse, error) {
	if err := w.pace(ctx); err != nil {
		return nil, err
	}
	var page *discord.SearchResponse
	err := w.retrier.Do(ctx, "search", func() error {
		var err error
		page, err = w.api.SearchMessages(ctx, w.config.RoomType, w.config.RoomID, w.config.AuthorID, offset)
		return err
	})
	return page, err
}

// filterRange keeps hits inside [oldest, newestBound], preserving order
func (w *Walker) filterRange(hits []discord.Message, newestBound uint64) []discord.Message {
	kept := make([]discord.Message, 0, len(hits))
	for _, msg := range hits {
		id, err := discord.ParseSnowflake(msg.ID)
		if err != nil {
			w.log.Warn("Skipping message with malformed ID", "message_id", msg.ID)
			continue
		}
		if id >= w.config.OldestID && id <= newestBound {
			kept = append(kept, msg)
		}
	}
	return kept
}

// processMessage drives one message through filter, optional overwrite and
// delete. A non-nil error aborts the whole run; per-item failures are
// recorded in result and swallowed.
func (w *Walker) processMessage(ctx context.Context, msg discord.Message, result *Result) error {
	ctx, span := w.tracer.Start(ctx, "message.clean",
		trace.WithAttributes(
			attribute.String("message.id", msg.ID),
			attribute.String("channel.id", msg.ChannelID),
		))
	defer span.End()

	log := w.log.WithMessage(msg.ID)

	// Search already filters by author; keep the guard so a drifting search
	// index can never delete someone else's message
	if msg.Author.ID != w.config.AuthorID {
		result.Skipped++
		w.metrics.MessageSkipped()
		return nil
	}

	result.Matched++
	w.recordBoundaries(msg, result)

	if w.config.DryRun {
		log.Info("Dry run, would delete message", "timestamp", msg.Timestamp)
		return nil
	}

	if content, ok := w.config.Policy.Replacement(); ok {
		proceed, err := w.mutate(ctx, log, msg, content, result)
		if err != nil {
			return err
		}
		if !proceed {
			return nil
		}
	}

	return w.delete(ctx, log, msg, result)
}

// mutate overwrites the message content before deletion. proceed is false
// when the delete should be skipped for this message.
func (w *Walker) mutate(ctx context.Context, log *logger.Logger, msg discord.Message, content string, result *Result) (proceed bool, err error) {
	if err := w.pace(ctx); err != nil {
		return false, err
	}
	mutateErr := w.retrier.Do(ctx, "edit", func() error {
		return w.api.EditMessage(ctx, msg.ChannelID, msg.ID, content)
	})
	switch {
	case mutateErr == nil:
		result.Scrubbed++
		w.metrics.MessageScrubbed()
		return true, nil
	case apierr.IsNotFound(mutateErr):
		log.Info("Message already gone, skipping")
		result.Skipped++
		w.metrics.MessageSkipped()
		return false, nil
	case apierr.IsFatal(mutateErr):
		return false, mutateErr
	default:
		// Rate-limit exhaustion or a platform rejection (over-length
		// replacement, uneditable message): abandon this item only
		log.LogError(mutateErr, "Failed to overwrite message, skipping it")
		result.Failed++
		w.metrics.MessageFailed()
		return false, nil
	}
}

// delete removes the message
func (w *Walker) delete(ctx context.Context, log *logger.Logger, msg discord.Message, result *Result) error {
	if err := w.pace(ctx); err != nil {
		return err
	}
	deleteErr := w.retrier.Do(ctx, "delete", func() error {
		return w.api.DeleteMessage(ctx, msg.ChannelID, msg.ID)
	})
	switch {
	case deleteErr == nil:
		result.Deleted++
		w.metrics.MessageDeleted()
		log.Debug("Deleted message")
		return nil
	case apierr.IsNotFound(deleteErr):
		log.Info("Message already gone, skipping")
		result.Skipped++
		w.metrics.MessageSkipped()
		return nil
	case apierr.IsFatal(deleteErr):
		return deleteErr
	default:
		log.LogError(deleteErr, "Failed to delete message, skipping it")
		result.Failed++
		w.metrics.MessageFailed()
		return nil
	}
}

// pace enforces the configured inter-request delay
func (w *Walker) pace(ctx context.Context) error {
	if w.limiter == nil {
		return nil
	}
	return w.limiter.Wait(ctx)
}

// recordBoundaries tracks the newest and oldest messages actually reached
func (w *Walker) recordBoundaries(msg discord.Message, result *Result) {
	if result.NewestProcessedID == "" {
		result.NewestProcessedID = msg.ID
		result.NewestTimestamp = msg.Timestamp
	}
	result.OldestProcessedID = msg.ID
	result.OldestTimestamp = msg.Timestamp
}
