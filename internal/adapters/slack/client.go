package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	slackAPIURL = "https://slack.com/api"
)

// Client is a Slack Web API client
type Client struct {
	botToken   string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Slack client
func NewClient(botToken string) *Client {
	return NewClientWithBaseURL(botToken, slackAPIURL)
}

// NewClientWithBaseURL creates a new Slack client with a custom base URL (for testing).
func NewClientWithBaseURL(botToken, baseURL string) *Client {
	return &Client{
		botToken: botToken,
		baseURL:  baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Message represents a Slack message
type Message struct {
	Channel  string  `json:"channel"`
	Text     string  `json:"text,omitempty"`
	Blocks   []Block `json:"blocks,omitempty"`
	ThreadTS string  `json:"thread_ts,omitempty"`
}

// Block represents a Slack layout block
type Block struct {
	Type     string        `json:"type"`
	Text     *TextObject   `json:"text,omitempty"`
	Fields   []*TextObject `json:"fields,omitempty"`
	Elements []Element     `json:"elements,omitempty"`
}

// TextObject represents text in a block
type TextObject struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// Element is an interactive element inside an actions block. Buttons with a
// URL open the link in the browser.
type Element struct {
	Type     string      `json:"type"`
	Text     *TextObject `json:"text,omitempty"`
	URL      string      `json:"url,omitempty"`
	ActionID string      `json:"action_id,omitempty"`
	Value    string      `json:"value,omitempty"`
	Style    string      `json:"style,omitempty"` // "primary" or "danger"
}

func mrkdwn(text string) *TextObject {
	return &TextObject{Type: "mrkdwn", Text: text}
}

func plainText(text string) *TextObject {
	return &TextObject{Type: "plain_text", Text: text, Emoji: true}
}

// PostMessageResponse represents the response from posting a message
type PostMessageResponse struct {
	OK      bool   `json:"ok"`
	TS      string `json:"ts"`
	Channel string `json:"channel"`
	Error   string `json:"error,omitempty"`
}

// PostMessage posts a message to a channel
func (c *Client) PostMessage(ctx context.Context, msg *Message) (*PostMessageResponse, error) {
	var result PostMessageResponse
	if err := c.post(ctx, c.baseURL+"/chat.postMessage", msg, &result); err != nil {
		return nil, err
	}
	if !result.OK {
		return nil, fmt.Errorf("slack API error: %s", result.Error)
	}
	return &result, nil
}

// Respond replies to a slash command through its response_url. The reply is
// only visible to the invoking user.
func (c *Client) Respond(ctx context.Context, responseURL, text string) error {
	payload := struct {
		ResponseType string `json:"response_type"`
		Text         string `json:"text"`
	}{ResponseType: "ephemeral", Text: text}

	req, err := c.newRequest(ctx, responseURL, payload)
	if err != nil {
		return err
	}
	// response_url is pre-authorized; the bot token is not sent.
	req.Header.Del("Authorization")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to respond: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("slack response_url returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, url string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.botToken)
	return req, nil
}

func (c *Client) post(ctx context.Context, url string, payload, out any) error {
	req, err := c.newRequest(ctx, url, payload)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
