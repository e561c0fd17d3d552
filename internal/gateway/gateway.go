// ABOUTME: Gateway orchestrator that builds all relay components from config
// ABOUTME: Owns the HTTP server, route registration, and lifecycle management

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/relaykit/wa-gateway/internal/auth"
	"github.com/relaykit/wa-gateway/internal/config"
	"github.com/relaykit/wa-gateway/internal/dedupe"
	"github.com/relaykit/wa-gateway/internal/engine"
	"github.com/relaykit/wa-gateway/internal/history"
	"github.com/relaykit/wa-gateway/internal/pipeline"
	"github.com/relaykit/wa-gateway/internal/provider"
	"github.com/relaykit/wa-gateway/internal/subscriber"
)

// messageSender is the provider surface the gateway needs: the pipeline's
// send operations plus the configured check for the status endpoint.
type messageSender interface {
	pipeline.MessageSender
	Configured() bool
}

// replyEngine mirrors pipeline.ReplyEngine; named locally so tests can
// substitute a fake without importing the pipeline package's name.
type replyEngine = pipeline.ReplyEngine

// Gateway orchestrates the wa-gateway server components. It holds all
// process-scoped state and the HTTP server that exposes it.
type Gateway struct {
	config     *config.Config
	logger     *slog.Logger
	httpServer *http.Server

	inbound     *dedupe.Tracker
	replies     *dedupe.Cache
	history     *history.Log
	registry    *subscriber.Registry
	broadcaster *subscriber.Broadcaster
	sender      messageSender
	engine      replyEngine
	pipeline    *pipeline.Pipeline

	// serverID identifies this gateway instance in status responses
	serverID string

	version   string
	startedAt time.Time
}

// New creates a gateway from configuration. Pass nil logger for the default.
func New(cfg *config.Config, version string, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sender := provider.NewClient(cfg.Provider.APIURL, cfg.Provider.Token, cfg.Provider.PhoneNumberID, logger)
	eng := engine.NewClient(cfg.Engine.URL, cfg.Engine.Timeout, logger)

	return newGateway(cfg, version, logger, sender, eng)
}

// newGateway finishes construction with the outbound collaborators already
// chosen. Tests use it to substitute fakes for the provider and engine.
func newGateway(cfg *config.Config, version string, logger *slog.Logger, sender messageSender, eng replyEngine) (*Gateway, error) {
	registry := subscriber.NewRegistry()

	gw := &Gateway{
		config:      cfg,
		logger:      logger.With("component", "gateway"),
		inbound:     dedupe.NewTracker(cfg.Dedupe.InboundWindow),
		replies:     dedupe.NewCache(cfg.Dedupe.ReplyWindow, cfg.Dedupe.SweepInterval),
		history:     history.NewLog(),
		registry:    registry,
		broadcaster: subscriber.NewBroadcaster(registry, logger),
		sender:      sender,
		engine:      eng,
		serverID:    "wa-gateway-" + uuid.New().String()[:8],
		version:     version,
		startedAt:   time.Now(),
	}

	gw.pipeline = pipeline.New(pipeline.Config{
		OwnID:     cfg.Provider.PhoneNumberID,
		Inbound:   gw.inbound,
		Replies:   gw.replies,
		Log:       gw.history,
		Publisher: gw.broadcaster,
		Sender:    sender,
		Engine:    eng,
		Logger:    logger,
	})

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)

	// Provider webhook: verification handshake and event deliveries
	mux.HandleFunc("/webhook", gw.handleWebhook)

	mux.HandleFunc("/api/register", gw.handleRegister)
	mux.HandleFunc("/api/unregister", gw.handleUnregister)
	mux.HandleFunc("/api/clients", gw.handleClients)
	mux.HandleFunc("/api/send-message", gw.handleSendMessage)
	mux.HandleFunc("/api/send-from-engine", gw.handleSendFromEngine)
	mux.HandleFunc("/api/messages/", gw.handleMessages)
	mux.HandleFunc("/api/conversations", gw.handleConversations)
	mux.HandleFunc("/api/status", gw.handleStatus)
	mux.HandleFunc("/", gw.handleRoot)

	// Admin endpoints - auth required if JWT secret is configured
	if err := gw.registerAdminRoutes(mux); err != nil {
		return nil, err
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// registerAdminRoutes registers the debug and cleanup routes, behind JWT
// middleware when a secret is configured.
func (g *Gateway) registerAdminRoutes(mux *http.ServeMux) error {
	if g.config.Auth.JWTSecret == "" {
		g.logger.Warn("auth.jwt_secret not set, admin endpoints are unauthenticated")
		mux.HandleFunc("/api/debug/processed-requests", g.handleDebugProcessedRequests)
		mux.HandleFunc("/api/cleanup-clients", g.handleCleanupClients)
		return nil
	}

	verifier, err := auth.NewJWTVerifier([]byte(g.config.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	authMiddleware := auth.HTTPAuthMiddleware(verifier)
	mux.Handle("/api/debug/processed-requests", authMiddleware(http.HandlerFunc(g.handleDebugProcessedRequests)))
	mux.Handle("/api/cleanup-clients", authMiddleware(http.HandlerFunc(g.handleCleanupClients)))
	g.logger.Info("HTTP auth middleware enabled for admin endpoints")
	return nil
}

// Handler returns the gateway's HTTP handler. Used by tests to drive routes
// without a listener.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled or the
// server fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and the dedup stores' background work.
func (g *Gateway) Shutdown(ctx context.Context) error {
	err := g.httpServer.Shutdown(ctx)
	g.replies.Close()
	g.inbound.Close()
	if err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 once the gateway is serving. The relay has no
// upstream dependency that must be up before it can accept webhooks.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%s)", g.serverID)
}
