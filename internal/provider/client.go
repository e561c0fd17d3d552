// ABOUTME: HTTP client for the messaging provider's send and typing endpoints.
// ABOUTME: Surfaces provider error detail verbatim on failed sends.

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client talks to the messaging provider's messages endpoint for one
// configured sender identity (phone number id).
type Client struct {
	apiURL        string
	token         string
	phoneNumberID string
	httpClient    *http.Client
	logger        *slog.Logger
}

// NewClient creates a provider client. Pass nil logger for the default.
// Token and phone number id may be empty; Configured reports whether sends
// are possible.
func NewClient(apiURL, token, phoneNumberID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiURL:        apiURL,
		token:         token,
		phoneNumberID: phoneNumberID,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		logger:        logger.With("component", "provider"),
	}
}

// Configured reports whether provider credentials are present.
func (c *Client) Configured() bool {
	return c.token != "" && c.phoneNumberID != ""
}

// PhoneNumberID returns the configured sender identity.
func (c *Client) PhoneNumberID() string {
	return c.phoneNumberID
}

// sendPayload is the provider's message-send request body.
type sendPayload struct {
	MessagingProduct string      `json:"messaging_product"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             *textBody   `json:"text,omitempty"`
	Typing           *typingBody `json:"typing,omitempty"`
}

type textBody struct {
	Body string `json:"body"`
}

type typingBody struct {
	Status string `json:"status"`
}

// sendResponse is the provider's success response.
type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// Error is a failed provider call carrying the provider's error detail.
type Error struct {
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Detail)
}

// SendText sends a text message and returns the provider message id.
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("provider credentials not configured")
	}

	payload := sendPayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &textBody{Body: body},
	}

	var resp sendResponse
	if err := c.post(ctx, payload, &resp); err != nil {
		return "", err
	}
	if len(resp.Messages) == 0 {
		return "", fmt.Errorf("provider response missing message id")
	}

	c.logger.Info("message sent", "to", to, "message_id", resp.Messages[0].ID)
	return resp.Messages[0].ID, nil
}

// SendTyping toggles the typing indicator for a counterparty. Callers treat
// this as best-effort and may ignore the error.
func (c *Client) SendTyping(ctx context.Context, to string, typing bool) error {
	if !c.Configured() {
		c.logger.Debug("credentials not configured, skipping typing indicator")
		return nil
	}

	status := "typing"
	if !typing {
		status = "stop"
	}
	payload := sendPayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "typing",
		Typing:           &typingBody{Status: status},
	}

	if err := c.post(ctx, payload, nil); err != nil {
		return fmt.Errorf("typing indicator: %w", err)
	}
	c.logger.Debug("typing indicator set", "to", to, "status", status)
	return nil
}

// post sends a payload to the messages endpoint and decodes the response
// into out when non-nil.
func (c *Client) post(ctx context.Context, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.apiURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &Error{StatusCode: resp.StatusCode, Detail: string(detail)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding provider response: %w", err)
		}
	}
	return nil
}
