package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultAPIURL = "https://api.telegram.org"

// Client is a minimal Telegram Bot API client covering the calls this
// service needs.
type Client struct {
	apiURL     string
	token      string
	httpClient *http.Client
}

// NewClient creates a new Bot API client. If apiURL is empty, it defaults to
// https://api.telegram.org. The HTTP timeout must exceed the long-poll
// timeout passed to GetUpdates.
func NewClient(apiURL, token string, timeout time.Duration) *Client {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Client{
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FileBaseURL returns the URL that getFile paths are relative to.
func (c *Client) FileBaseURL() string {
	return c.apiURL + "/file/bot" + c.token
}

// GetMe returns the bot's own account.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var user User
	if err := c.call(ctx, "getMe", nil, &user); err != nil {
		return nil, fmt.Errorf("get me: %w", err)
	}
	return &user, nil
}

// GetUpdates long-polls for updates with IDs at or above offset. It waits up
// to timeout for at least one update.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	body := map[string]any{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": []string{"message"},
	}

	var updates []Update
	if err := c.call(ctx, "getUpdates", body, &updates); err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}
	return updates, nil
}

// GetFile resolves a file ID to a downloadable file path.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	var file File
	if err := c.call(ctx, "getFile", map[string]string{"file_id": fileID}, &file); err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return &file, nil
}

// SendMessage sends a plain text message. chatID is a numeric chat ID or an
// @channel username.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	body := map[string]string{
		"chat_id": chatID,
		"text":    text,
	}
	if err := c.call(ctx, "sendMessage", body, nil); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SetMyCommands replaces the bot's command menu.
func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	if err := c.call(ctx, "setMyCommands", map[string]any{"commands": commands}, nil); err != nil {
		return fmt.Errorf("set commands: %w", err)
	}
	return nil
}

// DeleteWebhook removes any webhook so getUpdates can be used.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	if err := c.call(ctx, "deleteWebhook", nil, nil); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, body any, result any) error {
	if c.token == "" {
		return fmt.Errorf("bot token is not configured")
	}

	if body == nil {
		body = struct{}{}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := c.apiURL + "/bot" + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var envelope struct {
		apiResponse
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if !envelope.OK || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, envelope.Description)
	}

	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// ChatNotifier sends notifications to a fixed chat.
type ChatNotifier struct {
	client *Client
	chatID string
}

// NewChatNotifier creates a notifier posting to chatID.
func NewChatNotifier(client *Client, chatID string) *ChatNotifier {
	return &ChatNotifier{client: client, chatID: chatID}
}

// Notify sends text to the configured chat.
func (n *ChatNotifier) Notify(ctx context.Context, text string) error {
	if n.chatID == "" {
		return fmt.Errorf("notification chat is not configured")
	}
	return n.client.SendMessage(ctx, n.chatID, text)
}
