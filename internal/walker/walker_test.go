package walker

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/denebu/discord-chat-cleaner/internal/discord"
	"github.com/denebu/discord-chat-cleaner/pkg/apierr"
	"github.com/denebu/discord-chat-cleaner/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRoom   = "555000111"
	testAuthor = "42"
	otherUser  = "7"
)

// fakeAPI simulates the remote platform: an in-memory message store with
// per-message failure scripting
type fakeAPI struct {
	messages []discord.Message // newest first, like the real search

	searchCalls int
	editCalls   int
	deleteCalls int

	editAttempts   map[string]int
	deleteAttempts map[string]int
	editContents   map[string][]string

	// rateLimitedEdits/Deletes is how many 429s a message returns before
	// the call succeeds; negative means it never stops being limited
	rateLimitedEdits   map[string]int
	rateLimitedDeletes map[string]int
	editErr            map[string]error
	deleteErr          map[string]error

	searchErr error
}

func newFakeAPI(messages ...discord.Message) *fakeAPI {
	return &fakeAPI{
		messages:           messages,
		editAttempts:       make(map[string]int),
		deleteAttempts:     make(map[string]int),
		editContents:       make(map[string][]string),
		rateLimitedEdits:   make(map[string]int),
		rateLimitedDeletes: make(map[string]int),
		editErr:            make(map[string]error),
		deleteErr:          make(map[string]error),
	}
}

func (f *fakeAPI) SearchMessages(ctx context.Context, roomType discord.RoomType, roomID, authorID string, offset int) (*discord.SearchResponse, error) {
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}

	resp := &discord.SearchResponse{TotalResults: len(f.messages)}
	if offset >= len(f.messages) {
		return resp, nil
	}
	for _, msg := range f.messages[offset:] {
		msg.Hit = true
		resp.Messages = append(resp.Messages, []discord.Message{msg})
	}
	return resp, nil
}

func (f *fakeAPI) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	f.editCalls++
	f.editAttempts[messageID]++
	if remaining := f.rateLimitedEdits[messageID]; remaining != 0 {
		if remaining > 0 {
			f.rateLimitedEdits[messageID]--
		}
		return apierr.NewRateLimitedError(time.Millisecond)
	}
	if err := f.editErr[messageID]; err != nil {
		return err
	}
	f.editContents[messageID] = append(f.editContents[messageID], content)
	return nil
}

func (f *fakeAPI) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	f.deleteCalls++
	f.deleteAttempts[messageID]++
	if remaining := f.rateLimitedDeletes[messageID]; remaining != 0 {
		if remaining > 0 {
			f.rateLimitedDeletes[messageID]--
		}
		return apierr.NewRateLimitedError(time.Millisecond)
	}
	if err := f.deleteErr[messageID]; err != nil {
		return err
	}
	f.remove(messageID)
	return nil
}

func (f *fakeAPI) remove(messageID string) {
	kept := f.messages[:0]
	for _, msg := range f.messages {
		if msg.ID != messageID {
			kept = append(kept, msg)
		}
	}
	f.messages = kept
}

func testMessage(id uint64, authorID string) discord.Message {
	return discord.Message{
		ID:        strconv.FormatUint(id, 10),
		ChannelID: testRoom,
		Author:    discord.Author{ID: authorID},
		Timestamp: time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func testConfig() Config {
	return Config{
		RoomID:         testRoom,
		RoomType:       discord.RoomTypeChannel,
		AuthorID:       testAuthor,
		OldestID:       100,
		NewestID:       105,
		Policy:         DefaultReplacementPolicy(),
		MaxRetries:     5,
		DefaultBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}
}

func newTestWalker(config Config, api API) *Walker {
	log := logger.New(logger.Config{Level: "error"})
	return New(config, api, nil, log)
}

func TestWalkerEmptyRange(t *testing.T) {
	tests := []struct {
		name   string
		oldest uint64
		newest uint64
	}{
		{name: "equal bounds", oldest: 100, newest: 100},
		{name: "inverted bounds", oldest: 105, newest: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI(testMessage(101, testAuthor))
			config := testConfig()
			config.OldestID = tt.oldest
			config.NewestID = tt.newest

			result, err := newTestWalker(config, api).Run(context.Background())

			require.NoError(t, err)
			assert.Zero(t, api.searchCalls)
			assert.Zero(t, api.editCalls)
			assert.Zero(t, api.deleteCalls)
			assert.Zero(t, result.Deleted)
		})
	}
}

func TestWalkerValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing room ID", mutate: func(c *Config) { c.RoomID = "" }},
		{name: "malformed room ID", mutate: func(c *Config) { c.RoomID = "not-a-snowflake" }},
		{name: "bad room type", mutate: func(c *Config) { c.RoomType = "server" }},
		{name: "missing author ID", mutate: func(c *Config) { c.AuthorID = "" }},
		{name: "fixed policy without text", mutate: func(c *Config) { c.Policy = ReplacementPolicy{Mode: PolicyFixed} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI(testMessage(101, testAuthor))
			config := testConfig()
			tt.mutate(&config)

			_, err := newTestWalker(config, api).Run(context.Background())

			require.Error(t, err)
			assert.True(t, apierr.IsValidation(err))
			assert.Zero(t, api.searchCalls, "validation must fail before any remote call")
		})
	}
}

func TestWalkerEndToEnd(t *testing.T) {
	// Range [100, 105]; only 101 and 104 belong to the author
	api := newFakeAPI(
		testMessage(105, otherUser),
		testMessage(104, testAuthor),
		testMessage(103, otherUser),
		testMessage(102, otherUser),
		testMessage(101, testAuthor),
		testMessage(100, otherUser),
	)

	result, err := newTestWalker(testConfig(), api).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Deleted)
	assert.Equal(t, 4, result.Skipped)
	assert.Equal(t, 2, api.deleteCalls)
	assert.Zero(t, api.editCalls, "policy none must never edit")
	assert.Equal(t, 1, api.deleteAttempts["104"])
	assert.Equal(t, 1, api.deleteAttempts["101"])
	assert.Equal(t, "104", result.NewestProcessedID)
	assert.Equal(t, "101", result.OldestProcessedID)
}

func TestWalkerRateLimitRecovery(t *testing.T) {
	// Rate limited on the first 4 attempts, success on the 5th
	api := newFakeAPI(testMessage(101, testAuthor))
	api.rateLimitedDeletes["101"] = 4

	result, err := newTestWalker(testConfig(), api).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 5, api.deleteAttempts["101"])
	assert.Equal(t, 1, result.Deleted)
	assert.Zero(t, result.Failed)
}

func TestWalkerRateLimitExhaustion(t *testing.T) {
	// 104 never stops being rate limited; 101 is fine. The walk must
	// abandon 104 after 5 retries and still delete 101.
	api := newFakeAPI(
		testMessage(104, testAuthor),
		testMessage(101, testAuthor),
	)
	api.rateLimitedDeletes["104"] = -1

	result, err := newTestWalker(testConfig(), api).Run(context.Background())

	require.NoError(t, err, "retry exhaustion must not abort the run")
	assert.Equal(t, 6, api.deleteAttempts["104"], "initial attempt plus 5 retries")
	assert.Equal(t, 1, api.deleteAttempts["101"])
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 1, result.Failed)
}

func TestWalkerAuthFailureAborts(t *testing.T) {
	api := newFakeAPI(testMessage(101, testAuthor))
	api.searchErr = apierr.NewAuthFailureError(401, "The Authorization header was missing or invalid.")

	result, err := newTestWalker(testConfig(), api).Run(context.Background())

	require.Error(t, err)
	assert.True(t, apierr.IsAuthFailure(err))
	assert.Zero(t, api.deleteCalls)
	assert.Zero(t, result.Deleted)
	assert.Equal(t, 1, api.searchCalls, "auth failures must not be retried")
}

func TestWalkerAuthFailureOnDeleteAborts(t *testing.T) {
	api := newFakeAPI(
		testMessage(104, testAuthor),
		testMessage(101, testAuthor),
	)
	api.deleteErr["104"] = apierr.NewAuthFailureError(403, "The Authorization token you passed did not have permission to the resource.")

	_, err := newTestWalker(testConfig(), api).Run(context.Background())

	require.Error(t, err)
	assert.True(t, apierr.IsAuthFailure(err))
	assert.Zero(t, api.deleteAttempts["101"], "the run must stop at the fatal failure")
}

func TestWalkerNotFoundSkips(t *testing.T) {
	// 104 vanished between search and delete
	api := newFakeAPI(
		testMessage(104, testAuthor),
		testMessage(101, testAuthor),
	)
	api.deleteErr["104"] = apierr.NewNotFoundError("The resource at the location specified doesn't exist.")

	result, err := newTestWalker(testConfig(), api).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 1, api.deleteAttempts["104"], "not-found must not be retried")
}

func TestWalkerRejectedEditSkipsDelete(t *testing.T) {
	// Platform rejects the overwrite, e.g. replacement over the length cap
	api := newFakeAPI(testMessage(101, testAuthor))
	api.editErr["101"] = apierr.NewError(400, apierr.CodeAPIFailure,
		"The request was improperly formatted, or the server couldn't understand it.")

	config := testConfig()
	config.Policy = ReplacementPolicy{Mode: PolicyFixed, Fixed: "redacted"}

	result, err := newTestWalker(config, api).Run(context.Background())

	require.NoError(t, err, "a rejected edit abandons the item, not the run")
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, api.deleteCalls, "a failed edit must suppress the delete")
}

func TestWalkerFixedReplacement(t *testing.T) {
	api := newFakeAPI(
		testMessage(104, testAuthor),
		testMessage(101, testAuthor),
	)
	config := testConfig()
	config.Policy = ReplacementPolicy{Mode: PolicyFixed, Fixed: "gone."}

	result, err := newTestWalker(config, api).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Deleted)
	assert.Equal(t, 2, result.Scrubbed)
	assert.Equal(t, []string{"gone."}, api.editContents["104"])
	assert.Equal(t, []string{"gone."}, api.editContents["101"])
}

func TestWalkerRandomReplacement(t *testing.T) {
	api := newFakeAPI(
		testMessage(104, testAuthor),
		testMessage(101, testAuthor),
	)
	config := testConfig()
	config.Policy = ReplacementPolicy{Mode: PolicyRandom, MinLength: 16, MaxLength: 16}

	result, err := newTestWalker(config, api).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Scrubbed)

	require.Len(t, api.editContents["104"], 1)
	require.Len(t, api.editContents["101"], 1)
	first, second := api.editContents["104"][0], api.editContents["101"][0]
	assert.Len(t, first, 16)
	assert.Len(t, second, 16)
	assert.NotEqual(t, first, second, "random replacements must be regenerated per message")
	for _, r := range first + second {
		assert.Contains(t, replacementCharset, string(r))
	}
}

func TestWalkerDryRun(t *testing.T) {
	api := newFakeAPI(
		testMessage(104, testAuthor),
		testMessage(101, testAuthor),
	)
	config := testConfig()
	config.DryRun = true
	config.Policy = ReplacementPolicy{Mode: PolicyFixed, Fixed: "gone."}

	result, err := newTestWalker(config, api).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Matched)
	assert.Zero(t, api.editCalls)
	assert.Zero(t, api.deleteCalls)
}

func TestWalkerCursorNeverRevisits(t *testing.T) {
	// An abandoned message keeps showing up in search results; the walk must
	// move past it instead of retrying it forever
	api := newFakeAPI(
		testMessage(104, testAuthor),
		testMessage(101, testAuthor),
	)
	api.rateLimitedDeletes["104"] = -1

	_, err := newTestWalker(testConfig(), api).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 6, api.deleteAttempts["104"], "an abandoned message must not be picked up again")
}
