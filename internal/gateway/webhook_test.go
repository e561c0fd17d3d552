// ABOUTME: Tests for the provider webhook verification and delivery routes.
// ABOUTME: Delivery processing is detached, so assertions poll for effects.

package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaykit/wa-gateway/internal/engine"
)

func TestWebhookVerify_Success(t *testing.T) {
	fix := newTestGateway(t, testConfig())

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=verify-secret&hub.challenge=challenge-123", nil)
	rec := httptest.NewRecorder()
	fix.gw.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "challenge-123", rec.Body.String())
}

func TestWebhookVerify_WrongToken(t *testing.T) {
	fix := newTestGateway(t, testConfig())

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=challenge-123", nil)
	rec := httptest.NewRecorder()
	fix.gw.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhookVerify_WrongMode(t *testing.T) {
	fix := newTestGateway(t, testConfig())

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=unsubscribe&hub.verify_token=verify-secret", nil)
	rec := httptest.NewRecorder()
	fix.gw.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func textDelivery(from, id, body string) string {
	return `{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry-1",
			"changes": [{
				"field": "messages",
				"value": {
					"messages": [{
						"from": "` + from + `",
						"id": "` + id + `",
						"timestamp": "1700000000",
						"type": "text",
						"text": {"body": "` + body + `"}
					}]
				}
			}]
		}]
	}`
}

func postWebhook(t *testing.T, gw *Gateway, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)
	return rec
}

func TestWebhookReceive_AcksAndProcesses(t *testing.T) {
	fix := newTestGateway(t, testConfig())

	rec := postWebhook(t, fix.gw, textDelivery("628123", "wamid.in.1", "hello"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "EVENT_RECEIVED", rec.Body.String())

	require.Eventually(t, func() bool {
		return fix.gw.history.Contains("628123", "wamid.in.1")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebhookReceive_DuplicateDeliveryProcessedOnce(t *testing.T) {
	fix := newTestGateway(t, testConfig())

	for i := 0; i < 2; i++ {
		rec := postWebhook(t, fix.gw, textDelivery("628123", "wamid.in.1", "hello"))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	require.Eventually(t, func() bool {
		return fix.gw.history.Contains("628123", "wamid.in.1")
	}, 2*time.Second, 10*time.Millisecond)

	// Settle, then confirm the duplicate did not append a second entry
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, fix.gw.history.Messages("628123"), 1)
}

func TestWebhookReceive_MalformedBody(t *testing.T) {
	fix := newTestGateway(t, testConfig())

	rec := postWebhook(t, fix.gw, "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookReceive_UnknownObjectIgnored(t *testing.T) {
	fix := newTestGateway(t, testConfig())

	rec := postWebhook(t, fix.gw, `{"object": "instagram", "entry": []}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "EVENT_RECEIVED", rec.Body.String())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, fix.gw.history.Len())
	assert.Equal(t, 0, fix.gw.inbound.Len())
}

func TestWebhookReceive_EngineFlowSendsNothingDirectly(t *testing.T) {
	fix := newTestGateway(t, testConfig())
	fix.engine.configured = true
	fix.engine.reply = &engine.Reply{Text: "engine answer", Status: "done"}

	rec := postWebhook(t, fix.gw, textDelivery("628123", "wamid.in.2", "question"))
	require.Equal(t, http.StatusOK, rec.Code)

	// The accepted reply is logged as a pending entry; the actual send is the
	// engine's job via /api/send-from-engine.
	require.Eventually(t, func() bool {
		messages := fix.gw.history.Messages("628123")
		return len(messages) == 2 && messages[1].AIReply
	}, 2*time.Second, 10*time.Millisecond)

	messages := fix.gw.history.Messages("628123")
	assert.Equal(t, "engine answer", messages[1].Text)
	assert.True(t, strings.HasPrefix(messages[1].MessageID, "pending_"))
	assert.Equal(t, 0, fix.sender.sentCount())
}

func TestWebhookReceive_StatusUpdate(t *testing.T) {
	fix := newTestGateway(t, testConfig())

	// Seed an outbound message, then deliver a status update for it
	_, body := doJSON(t, fix.gw, http.MethodPost, "/api/send-message", map[string]string{
		"to":      "628123",
		"message": "hello",
	})
	messageID := body["messageId"].(string)

	statusBody := `{
		"object": "whatsapp_business_account",
		"entry": [{
			"changes": [{
				"field": "messages",
				"value": {
					"statuses": [{
						"id": "` + messageID + `",
						"status": "delivered",
						"timestamp": "1700000100",
						"recipient_id": "628123"
					}]
				}
			}]
		}]
	}`
	rec := postWebhook(t, fix.gw, statusBody)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		messages := fix.gw.history.Messages("628123")
		return len(messages) == 1 && messages[0].DeliveryStatus == "delivered"
	}, 2*time.Second, 10*time.Millisecond)
}
