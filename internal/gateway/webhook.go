// ABOUTME: Provider webhook endpoint: verification handshake and deliveries
// ABOUTME: Deliveries are acknowledged immediately and processed detached

package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/relaykit/wa-gateway/internal/provider"
)

func (g *Gateway) handleWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		g.handleWebhookVerify(w, r)
	case http.MethodPost:
		g.handleWebhookReceive(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleWebhookVerify answers the provider's subscription handshake: echo the
// challenge when the mode and token match, 403 otherwise.
func (g *Gateway) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && token == g.config.Webhook.VerifyToken {
		g.logger.Info("webhook verified")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
		return
	}

	g.logger.Warn("webhook verification failed", "mode", mode)
	w.WriteHeader(http.StatusForbidden)
}

// handleWebhookReceive acknowledges the delivery before any processing so the
// provider never sees a slow response, then hands the envelope to the
// pipeline in a detached goroutine. The goroutine gets a fresh context: the
// request context dies with the acknowledgment.
func (g *Gateway) handleWebhookReceive(w http.ResponseWriter, r *http.Request) {
	var env provider.WebhookEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		g.logger.Warn("malformed webhook body", "error", err)
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("EVENT_RECEIVED"))

	if env.Object != provider.ObjectBusinessAccount {
		g.logger.Debug("ignoring webhook for unknown object", "object", env.Object)
		return
	}

	go g.pipeline.ProcessWebhook(context.Background(), &env)
}
