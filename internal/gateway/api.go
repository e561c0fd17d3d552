// ABOUTME: HTTP API handlers for subscriber management, sends, and inspection
// ABOUTME: Wire shapes carry a success flag plus endpoint-specific fields

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/relaykit/wa-gateway/internal/history"
	"github.com/relaykit/wa-gateway/internal/pipeline"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response in the API's standard shape.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}

// requireMethod rejects requests with the wrong method. Returns false when
// the request was rejected.
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

type registerRequest struct {
	ClientID    string `json:"clientId"`
	CallbackURL string `json:"callbackUrl"`
}

func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ClientID == "" || req.CallbackURL == "" {
		writeError(w, http.StatusBadRequest, "clientId and callbackUrl required")
		return
	}

	replaced := g.registry.Register(req.ClientID, req.CallbackURL)
	if replaced {
		g.logger.Info("subscriber re-registered", "client_id", req.ClientID)
	} else {
		g.logger.Info("subscriber registered", "client_id", req.ClientID, "total", g.registry.Len())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"clientId": req.ClientID,
		"message":  "Client successfully registered",
	})
}

type unregisterRequest struct {
	ClientID string `json:"clientId"`
}

func (g *Gateway) handleUnregister(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req unregisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if !g.registry.Unregister(req.ClientID) {
		writeError(w, http.StatusNotFound, "Client not found")
		return
	}

	g.logger.Info("subscriber unregistered", "client_id", req.ClientID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Unregistered",
	})
}

func (g *Gateway) handleClients(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	clients := g.registry.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(clients),
		"clients": clients,
	})
}

type sendMessageRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// handleSendMessage performs a direct outbound send on behalf of a caller and
// records it in the conversation log.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.To == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "to and message fields required")
		return
	}
	if !g.sender.Configured() {
		writeError(w, http.StatusInternalServerError, "provider credentials not configured")
		return
	}

	messageID, err := g.sender.SendText(r.Context(), req.To, req.Message)
	if err != nil {
		g.logger.Error("direct send failed", "to", req.To, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Failed to send message",
			"details": err.Error(),
		})
		return
	}

	entry := &history.Entry{
		MessageID:      messageID,
		Direction:      history.DirectionOut,
		Kind:           "text",
		Text:           req.Message,
		From:           g.config.Provider.PhoneNumberID,
		To:             req.To,
		Timestamp:      time.Now(),
		DeliveryStatus: "sent",
	}
	g.history.Append(req.To, entry)
	g.logger.Info("direct message sent", "to", req.To, "message_id", messageID)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"messageId": messageID,
		"message":   entry,
	})
}

type sendFromEngineRequest struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	Reply     string `json:"reply"`
	Status    string `json:"status"`
}

// handleSendFromEngine is the engine's push entry point: the decoupled send
// leg of the AI flow, deduplicated by the engine-supplied request id.
func (g *Gateway) handleSendFromEngine(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req sendFromEngineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.Reply == "" {
		writeError(w, http.StatusBadRequest, "user_id and reply required")
		return
	}

	result, err := g.pipeline.HandleEngineReply(r.Context(), &pipeline.EngineReply{
		CorrelationID: req.RequestID,
		UserID:        req.UserID,
		Text:          req.Reply,
		Status:        req.Status,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Failed sending message",
			"details": err.Error(),
		})
		return
	}

	if result.Deduplicated {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":         true,
			"deduped":    true,
			"request_id": req.RequestID,
			"message":    "Request already processed (duplicate detected)",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"messageId":  result.MessageID,
		"request_id": req.RequestID,
		"reply":      req.Reply,
		"sent_at":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	counterparty := strings.TrimPrefix(r.URL.Path, "/api/messages/")
	if counterparty == "" || strings.Contains(counterparty, "/") {
		writeError(w, http.StatusBadRequest, "counterparty required")
		return
	}

	messages := g.history.Messages(counterparty)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"counterparty": counterparty,
		"count":        len(messages),
		"messages":     messages,
	})
}

func (g *Gateway) handleConversations(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	conversations := g.history.Conversations()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"count":         len(conversations),
		"conversations": conversations,
	})
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	dedup := map[string]any{
		"processedRequestsCount": g.replies.Len(),
		"oldestRequestAge":       nil,
	}
	if age, ok := g.replies.OldestAge(); ok {
		dedup["oldestRequestAge"] = fmt.Sprintf("%d minutes", int(age.Minutes()))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"status":             "active",
		"serverId":           g.serverID,
		"version":            g.version,
		"uptime":             time.Since(g.startedAt).Round(time.Second).String(),
		"connectedClients":   g.registry.Len(),
		"totalConversations": g.history.Len(),
		"inboundTracked":     g.inbound.Len(),
		"deduplication":      dedup,
		"providerConfigured": g.sender.Configured(),
		"engineConfigured":   g.engine.Configured(),
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
	})
}

// processedRequest is one reply-dedup entry in the debug response.
type processedRequest struct {
	RequestID   string `json:"request_id"`
	ProcessedAt string `json:"processed_at"`
	AgeSeconds  int    `json:"age_seconds"`
}

func (g *Gateway) handleDebugProcessedRequests(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	now := time.Now()
	entries := g.replies.Entries()
	requests := make([]processedRequest, 0, len(entries))
	for id, ts := range entries {
		requests = append(requests, processedRequest{
			RequestID:   id,
			ProcessedAt: ts.UTC().Format(time.RFC3339),
			AgeSeconds:  int(now.Sub(ts).Seconds()),
		})
	}
	// Oldest first
	sort.Slice(requests, func(i, j int) bool { return requests[i].AgeSeconds > requests[j].AgeSeconds })

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"count":    len(requests),
		"max_age":  g.config.Dedupe.ReplyWindow.String(),
		"requests": requests,
	})
}

func (g *Gateway) handleCleanupClients(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	removed := g.registry.Clear()
	g.logger.Info("subscribers cleared", "removed", removed)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   fmt.Sprintf("Removed %d clients", removed),
		"remaining": g.registry.Len(),
	})
}

// handleRoot serves service info at / and 404s everything unrouted.
func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"service": "wa-gateway",
		"version": g.version,
		"endpoints": map[string]string{
			"register":       "POST /api/register",
			"unregister":     "POST /api/unregister",
			"clients":        "GET /api/clients",
			"sendMessage":    "POST /api/send-message",
			"sendFromEngine": "POST /api/send-from-engine",
			"messages":       "GET /api/messages/{counterparty}",
			"conversations":  "GET /api/conversations",
			"status":         "GET /api/status",
		},
	})
}
