package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Sender pushes a short message to a user. Delivery is best effort: the
// dispute flow never fails because a notification did not go out.
type Sender interface {
	Send(ctx context.Context, username, text string) error
}

// Client talks to the external message gateway (the bot service that owns
// chat sessions). Identity resolution from username to chat happens there.
type Client struct {
	BaseURL string
	Timeout time.Duration

	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	Username string `json:"username"`
	Text     string `json:"text"`
}

func (c *Client) Send(ctx context.Context, username, text string) error {
	if c == nil || c.BaseURL == "" {
		return nil
	}
	raw, err := json.Marshal(sendRequest{Username: username, Text: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/messages", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("message gateway status %d", resp.StatusCode)
	}
	return nil
}

// Noop drops every message; used when notifications are disabled.
type Noop struct{}

func (Noop) Send(context.Context, string, string) error { return nil }

// BestEffort fires the send in the background with its own timeout and logs
// failures at warn.
func BestEffort(sender Sender, logger *zap.Logger, username, text string) {
	if sender == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sender.Send(ctx, username, text); err != nil && logger != nil {
			logger.Warn("notification send failed",
				zap.String("username", username),
				zap.Error(err),
			)
		}
	}()
}
