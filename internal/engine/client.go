// ABOUTME: HTTP client for the external conversational-reply engine.
// ABOUTME: Accepts both the single-reply and typed-bubble response shapes.

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds the synchronous engine call. After this the call is
// treated as a failure and the caller clears any typing indication.
const DefaultTimeout = 30 * time.Second

// Reply is the engine's extracted answer. Text joins all text bubbles with
// newlines when the engine responds in bubble form.
type Reply struct {
	Text   string
	Status string
}

// askRequest is the engine's chat request body.
type askRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// askResponse covers both accepted response shapes.
type askResponse struct {
	Reply   string   `json:"reply"`
	Bubbles []bubble `json:"bubbles"`
	Status  string   `json:"status"`
}

type bubble struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Client calls the conversational-reply engine.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an engine client with the given call timeout (zero means
// DefaultTimeout). Pass nil logger for the default.
func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "engine"),
	}
}

// Configured reports whether an engine URL is set.
func (c *Client) Configured() bool {
	return c.url != ""
}

// Ask sends the counterparty's text to the engine and returns the extracted
// reply. A response with no extractable text returns (nil, nil): the flow
// terminates silently, which is not an error.
func (c *Client) Ask(ctx context.Context, userID, text string) (*Reply, error) {
	body, err := json.Marshal(askRequest{UserID: userID, Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("engine returned status %d: %s", resp.StatusCode, detail)
	}

	var decoded askResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding engine response: %w", err)
	}

	replyText := extractText(&decoded)
	if replyText == "" {
		c.logger.Info("engine returned no reply text", "user_id", userID)
		return nil, nil
	}

	return &Reply{Text: replyText, Status: decoded.Status}, nil
}

// extractText pulls the reply text out of either response shape. The plain
// reply string wins; otherwise text bubbles are joined with newlines.
func extractText(resp *askResponse) string {
	if resp.Reply != "" {
		return resp.Reply
	}

	var parts []string
	for _, b := range resp.Bubbles {
		if b.Type == "text" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}
