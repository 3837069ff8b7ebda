// Package telegram is a minimal Telegram Bot API client covering the calls
// the bot needs, plus the webhook update types.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultAPIURL is the public Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

// MaxMediaGroupSize is the largest album sendMediaGroup accepts.
const MaxMediaGroupSize = 10

// ErrAPI is returned when the Bot API answers with ok=false.
var ErrAPI = errors.New("telegram api error")

// Client calls the Bot API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the given bot token.
func NewClient(apiURL, token string, timeout time.Duration) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(apiURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SendMessage sends a text reply.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) error {
	return c.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:           chatID,
		Text:             text,
		ReplyToMessageID: replyTo,
	})
}

// SendPhoto sends a photo by URL with a caption.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photoURL, caption string, replyTo int64) error {
	return c.call(ctx, "sendPhoto", sendPhotoRequest{
		ChatID:           chatID,
		Photo:            photoURL,
		Caption:          caption,
		ReplyToMessageID: replyTo,
	})
}

// SendMediaGroup sends up to MaxMediaGroupSize photos as one album.
func (c *Client) SendMediaGroup(ctx context.Context, chatID int64, photoURLs []string, replyTo int64) error {
	if len(photoURLs) == 0 {
		return errors.New("media group is empty")
	}
	if len(photoURLs) > MaxMediaGroupSize {
		return fmt.Errorf("media group has %d items, max is %d", len(photoURLs), MaxMediaGroupSize)
	}

	media := make([]InputMediaPhoto, len(photoURLs))
	for i, u := range photoURLs {
		media[i] = InputMediaPhoto{Type: "photo", Media: u}
	}
	encoded, err := json.Marshal(media)
	if err != nil {
		return fmt.Errorf("could not marshal media: %w", err)
	}

	return c.call(ctx, "sendMediaGroup", sendMediaGroupRequest{
		ChatID:           chatID,
		Media:            string(encoded),
		ReplyToMessageID: replyTo,
	})
}

// SetWebhook registers the URL Telegram delivers updates to.
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	return c.call(ctx, "setWebhook", setWebhookRequest{URL: webhookURL, SecretToken: secret})
}

func (c *Client) call(ctx context.Context, method string, requestBody any) error {
	if c.token == "" {
		return errors.New("telegram bot token is not configured")
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return fmt.Errorf("could not marshal request body: %w", err)
	}

	endpoint := c.baseURL + "/bot" + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The URL embeds the token; keep it out of the error.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("%s: could not send request: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: could not read response body: %w", method, err)
	}

	var result apiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("%s: request failed with status %d", method, resp.StatusCode)
	}
	if !result.OK {
		return fmt.Errorf("%w: %s: %d %s", ErrAPI, method, result.ErrorCode, result.Description)
	}
	return nil
}
