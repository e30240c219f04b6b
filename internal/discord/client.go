package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/denebu/discord-chat-cleaner/pkg/apierr"
	"github.com/denebu/discord-chat-cleaner/pkg/logger"
)

// httpCodeMessages maps the platform's documented failure statuses to
// operator-facing explanations
var httpCodeMessages = map[int]string{
	http.StatusBadRequest:       "The request was improperly formatted, or the server couldn't understand it.",
	http.StatusUnauthorized:     "The Authorization header was missing or invalid.",
	http.StatusForbidden:        "The Authorization token you passed did not have permission to the resource.",
	http.StatusNotFound:         "The resource at the location specified doesn't exist.",
	http.StatusMethodNotAllowed: "The HTTP method used is not valid for the location specified.",
	http.StatusBadGateway:       "There was not a gateway available to process your request. Wait a bit and retry.",
}

const serverErrorMessage = "The server had an error processing your request."

// ClientConfig holds configuration for the API client
type ClientConfig struct {
	BaseURL string
	// AuthHeader is the full Authorization header value, token-type prefix
	// included when there is one
	AuthHeader string
	UserAgent  string
	Timeout    time.Duration
}

// Client is an authenticated client over the platform's REST API
type Client struct {
	httpClient *http.Client
	baseURL    string
	authHeader string
	userAgent  string
	log        *logger.Logger
}

// NewClient creates a new API client
func NewClient(config ClientConfig, log *logger.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://discord.com/api/v9"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		baseURL:    config.BaseURL,
		authHeader: config.AuthHeader,
		userAgent:  config.UserAgent,
		log:        log,
	}
}

// SearchMessages lists messages in a room authored by authorID, newest first,
// skipping the first offset results
func (c *Client) SearchMessages(ctx context.Context, roomType RoomType, roomID, authorID string, offset int) (*SearchResponse, error) {
	if err := roomType.Validate(); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("author_id", authorID)
	query.Set("include_nsfw", "true")
	query.Set("offset", strconv.Itoa(offset))
	query.Set("sort_by", "timestamp")

	path := fmt.Sprintf("/%s/%s/messages/search", roomType.endpoint(), roomID)
	body, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, apierr.NewError(0, apierr.CodeAPIFailure, "failed to decode search response: "+err.Error())
	}
	return &result, nil
}

// EditMessage replaces a message's content
func (c *Client) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	path := fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID)
	payload := struct {
		Content string `json:"content"`
	}{Content: content}
	_, err := c.do(ctx, http.MethodPatch, path, nil, payload)
	return err
}

// DeleteMessage removes a message
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	path := fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID)
	_, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	return err
}

// do sends a single request and maps the response onto the error taxonomy.
// It never retries; rate-limit recovery is the caller's contract.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, apierr.NewValidationError("failed to encode request body: " + err.Error())
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, apierr.NewValidationError("failed to create request: " + err.Error())
	}
	c.log.Debug("Sending API request", "method", method, "path", path)
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierr.NewNetworkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.NewNetworkError(err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, c.classify(resp, body)
}

// classify maps a non-2xx response to an APIError category
func (c *Client) classify(resp *http.Response, body []byte) *apierr.APIError {
	status := resp.StatusCode

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apierr.NewAuthFailureError(status, httpCodeMessages[status])
	case http.StatusNotFound:
		return apierr.NewNotFoundError(httpCodeMessages[status])
	case http.StatusTooManyRequests:
		return apierr.NewRateLimitedError(retryAfter(resp, body))
	}

	if msg, ok := httpCodeMessages[status]; ok {
		return apierr.NewError(status, apierr.CodeAPIFailure, msg+"\n"+string(body))
	}
	if status >= 500 && status < 600 {
		return apierr.NewError(status, apierr.CodeAPIFailure, serverErrorMessage)
	}
	return apierr.NewError(status, apierr.CodeAPIFailure, string(body))
}

// retryAfter extracts the platform-indicated backoff from a rate-limit
// response: the retry_after body field in seconds, with the Retry-After
// header as fallback. Zero means the platform did not say.
func retryAfter(resp *http.Response, body []byte) time.Duration {
	var payload struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.RetryAfter > 0 {
		return time.Duration(payload.RetryAfter * float64(time.Second))
	}

	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.ParseFloat(header, 64); err == nil && seconds > 0 {
			return time.Duration(seconds * float64(time.Second))
		}
	}
	return 0
}
