package discord

import (
	"strconv"
	"time"

	"github.com/denebu/discord-chat-cleaner/pkg/apierr"
)

// RoomType selects which endpoint family message search goes through
type RoomType string

const (
	RoomTypeChannel RoomType = "channel"
	RoomTypeGuild   RoomType = "guild"
)

// Validate checks the discriminator before any remote call is made
func (t RoomType) Validate() error {
	switch t {
	case RoomTypeChannel, RoomTypeGuild:
		return nil
	}
	return apierr.NewValidationError(`room type must be either "channel" or "guild"`)
}

// endpoint returns the URL path segment for this room type
func (t RoomType) endpoint() string {
	return string(t) + "s"
}

// Author identifies the sender of a message
type Author struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Message is a transient view over a remote chat message. IDs are snowflakes:
// decimal strings that order numerically by creation time.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	Author    Author    `json:"author"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	// Hit marks the matching message within a search context block
	Hit bool `json:"hit"`
}

// SearchResponse is the platform's paged search result. Each inner slice is a
// context block: the hit plus surrounding messages.
type SearchResponse struct {
	TotalResults int         `json:"total_results"`
	Messages     [][]Message `json:"messages"`
}

// Hits flattens the context blocks down to the matching messages
func (r *SearchResponse) Hits() []Message {
	hits := make([]Message, 0, len(r.Messages))
	for _, block := range r.Messages {
		for _, msg := range block {
			if msg.Hit {
				hits = append(hits, msg)
				break
			}
		}
	}
	return hits
}

// ParseSnowflake converts a decimal snowflake string to its numeric form
func ParseSnowflake(id string) (uint64, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, apierr.NewValidationError("malformed snowflake ID: " + id)
	}
	return n, nil
}
