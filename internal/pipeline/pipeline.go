// ABOUTME: Webhook processing pipeline: dedup, log, broadcast, engine round-trip.
// ABOUTME: Record first, then act - the log is updated before side effects run.

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/relaykit/wa-gateway/internal/dedupe"
	"github.com/relaykit/wa-gateway/internal/engine"
	"github.com/relaykit/wa-gateway/internal/history"
	"github.com/relaykit/wa-gateway/internal/provider"
	"github.com/relaykit/wa-gateway/internal/subscriber"
)

// replyDedupWindow suppresses byte-identical engine replies within this
// window of each other, guarding against the engine re-emitting the same
// answer across retried calls.
const replyDedupWindow = 60 * time.Second

// Event kinds published to subscribers.
const (
	EventKindMessage = "message"
	EventKindAIReply = "ai_reply"
	EventKindStatus  = "status"
)

// MessageSender is the outbound provider surface the pipeline needs.
type MessageSender interface {
	SendText(ctx context.Context, to, body string) (string, error)
	SendTyping(ctx context.Context, to string, typing bool) error
}

// ReplyEngine produces answers to inbound text messages.
type ReplyEngine interface {
	Ask(ctx context.Context, userID, text string) (*engine.Reply, error)
	Configured() bool
}

// EventPublisher fans pipeline events out to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event subscriber.Event) subscriber.PublishResult
}

// Pipeline owns the relay's stateful event processing. All state it touches
// (dedup stores, conversation log, registry behind the publisher) is
// in-memory and process-scoped.
type Pipeline struct {
	ownID     string
	inbound   *dedupe.Tracker
	replies   *dedupe.Cache
	log       *history.Log
	publisher EventPublisher
	sender    MessageSender
	engine    ReplyEngine
	logger    *slog.Logger
}

// Config wires a Pipeline.
type Config struct {
	// OwnID is this relay's provider identity; messages from it are dropped.
	OwnID     string
	Inbound   *dedupe.Tracker
	Replies   *dedupe.Cache
	Log       *history.Log
	Publisher EventPublisher
	Sender    MessageSender
	Engine    ReplyEngine
	Logger    *slog.Logger
}

// New creates a pipeline. Pass nil Logger for the default.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		ownID:     cfg.OwnID,
		inbound:   cfg.Inbound,
		replies:   cfg.Replies,
		log:       cfg.Log,
		publisher: cfg.Publisher,
		sender:    cfg.Sender,
		engine:    cfg.Engine,
		logger:    logger.With("component", "pipeline"),
	}
}

// ProcessWebhook walks a webhook delivery envelope and processes every
// message and status it carries. Individual event failures are logged and do
// not stop the walk; the webhook was already acknowledged.
func (p *Pipeline) ProcessWebhook(ctx context.Context, env *provider.WebhookEnvelope) {
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			for i := range change.Value.Messages {
				p.ProcessMessage(ctx, &change.Value.Messages[i])
			}
			for i := range change.Value.Statuses {
				p.ProcessStatus(ctx, &change.Value.Statuses[i])
			}
		}
	}
}

// ProcessMessage handles one inbound message: dedup, log, broadcast, and for
// text messages the engine round-trip.
func (p *Pipeline) ProcessMessage(ctx context.Context, msg *provider.Message) {
	logger := p.logger.With("from", msg.From, "message_id", msg.ID, "type", msg.Type)

	if msg.From == p.ownID {
		logger.Debug("skipping self-originated message")
		return
	}

	// Mark before any further work so rapid-fire duplicate deliveries of the
	// same webhook cannot both proceed.
	key := msg.From + "_" + msg.ID
	if p.inbound.CheckAndMark(key) {
		logger.Info("duplicate delivery discarded")
		return
	}

	// Secondary check against the log in case the dedup store missed the
	// entry (e.g. post-restart).
	if p.log.Contains(msg.From, msg.ID) {
		logger.Info("message already in history, discarded")
		return
	}

	entry := normalizeMessage(msg)
	p.log.Append(msg.From, entry)
	logger.Debug("inbound message recorded")

	p.publish(ctx, EventKindMessage, entry)

	if msg.Type == "text" && entry.Text != "" {
		p.inbound.SetStage(key, dedupe.StageAIProcessing)
		p.respondWithEngine(ctx, msg.From, entry.Text)
		p.inbound.SetStage(key, dedupe.StageCompleted)
	}
}

// ProcessStatus applies a delivery status update in place and forwards a
// status event to subscribers whether or not a local entry matched.
func (p *Pipeline) ProcessStatus(ctx context.Context, status *provider.Status) {
	logger := p.logger.With("message_id", status.ID, "status", status.Status)

	counterparty, ok := p.log.UpdateStatus(status.ID, status.Status, status.Timestamp)
	if ok {
		logger.Debug("delivery status updated", "counterparty", counterparty)
	} else {
		logger.Debug("status references unknown message, broadcasting anyway")
	}

	p.publish(ctx, EventKindStatus, status)
}

// respondWithEngine runs the AI correlation sub-flow for one text message.
// The engine call is bracketed by typing indication; the indicator is cleared
// on every path out, including errors. The accepted reply is logged as a
// pending outbound entry and broadcast, but not sent: the engine pushes the
// actual send through HandleEngineReply on its own schedule.
func (p *Pipeline) respondWithEngine(ctx context.Context, counterparty, text string) {
	if p.engine == nil || !p.engine.Configured() {
		return
	}
	logger := p.logger.With("counterparty", counterparty)

	if err := p.sender.SendTyping(ctx, counterparty, true); err != nil {
		logger.Warn("typing indicator failed", "error", err)
	}

	reply, err := p.engine.Ask(ctx, counterparty, text)

	if typErr := p.sender.SendTyping(ctx, counterparty, false); typErr != nil {
		logger.Warn("clearing typing indicator failed", "error", typErr)
	}

	if err != nil {
		logger.Error("engine call failed", "error", err)
		return
	}
	if reply == nil {
		return
	}

	now := time.Now()
	if p.log.HasRecentAIReply(counterparty, reply.Text, replyDedupWindow, now) {
		logger.Info("identical engine reply seen recently, suppressed")
		return
	}

	// The actual provider send happens later via HandleEngineReply, so the
	// entry carries a placeholder outbound id.
	entry := &history.Entry{
		MessageID:    fmt.Sprintf("pending_%d", now.UnixMilli()),
		Direction:    history.DirectionOut,
		Kind:         "ai_reply",
		Text:         reply.Text,
		From:         p.ownID,
		To:           counterparty,
		Timestamp:    now,
		AIReply:      true,
		EngineStatus: reply.Status,
	}
	p.log.Append(counterparty, entry)
	logger.Debug("engine reply recorded, awaiting engine-owned send")

	p.publish(ctx, EventKindAIReply, entry)
}

// EngineReply is a reply pushed by the engine for actual delivery.
type EngineReply struct {
	CorrelationID string
	UserID        string
	Text          string
	Status        string
}

// EngineReplyResult is the outcome of HandleEngineReply.
type EngineReplyResult struct {
	Deduplicated bool
	MessageID    string
}

// HandleEngineReply is the second, independent entry point by which the
// engine delivers a reply to the counterparty. Replies sharing a correlation
// id within the retention window produce at most one provider send; the
// duplicate short-circuits without calling the provider. A missing
// correlation id disables deduplication for that request and is surfaced as
// a warning. This path does not append to the conversation log; the pending
// entry was recorded during the inbound flow.
func (p *Pipeline) HandleEngineReply(ctx context.Context, req *EngineReply) (*EngineReplyResult, error) {
	logger := p.logger.With("user_id", req.UserID, "correlation_id", req.CorrelationID)

	if req.CorrelationID == "" {
		logger.Warn("engine supplied no correlation id, deduplication disabled for this request")
	} else if p.replies.CheckAndMark(req.CorrelationID) {
		logger.Info("duplicate engine reply discarded")
		return &EngineReplyResult{Deduplicated: true}, nil
	}

	messageID, err := p.sender.SendText(ctx, req.UserID, req.Text)
	if err != nil {
		logger.Error("provider send failed", "error", err)
		return nil, fmt.Errorf("sending engine reply: %w", err)
	}

	logger.Info("engine reply delivered", "message_id", messageID)
	return &EngineReplyResult{MessageID: messageID}, nil
}

// publish broadcasts one event, tagging it with a fresh id. Fan-out is
// best-effort; the result is logged and otherwise ignored.
func (p *Pipeline) publish(ctx context.Context, kind string, payload any) {
	res := p.publisher.Publish(ctx, subscriber.Event{
		ID:        uuid.New().String(),
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if res.Failed > 0 {
		p.logger.Debug("broadcast finished with failures",
			"event_kind", kind,
			"delivered", res.Delivered,
			"failed", res.Failed)
	}
}

// normalizeMessage converts a provider message into a log entry by declared
// type. Unrecognized types still produce an entry with a sentinel body; they
// are logged and broadcast, never dropped silently.
func normalizeMessage(msg *provider.Message) *history.Entry {
	entry := &history.Entry{
		MessageID: msg.ID,
		Direction: history.DirectionIn,
		Kind:      msg.Type,
		From:      msg.From,
		Timestamp: parseTimestamp(msg.Timestamp),
	}

	switch msg.Type {
	case "text":
		if msg.Text != nil {
			entry.Text = msg.Text.Body
		}
	case "image":
		entry.Media = msg.Image
		entry.Text = mediaCaption(msg.Image, "[Image]")
	case "audio":
		entry.Media = msg.Audio
		entry.Text = "[Audio]"
	case "video":
		entry.Media = msg.Video
		entry.Text = mediaCaption(msg.Video, "[Video]")
	case "document":
		entry.Media = msg.Document
		entry.Text = documentName(msg.Document)
	default:
		entry.Text = "[Unsupported]"
	}
	return entry
}

func mediaCaption(media *provider.MessageMedia, fallback string) string {
	if media != nil && media.Caption != "" {
		return media.Caption
	}
	return fallback
}

func documentName(media *provider.MessageMedia) string {
	if media != nil && media.Filename != "" {
		return media.Filename
	}
	return "[Document]"
}

// parseTimestamp converts the provider's unix-seconds string, falling back
// to now for absent or malformed values.
func parseTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Now()
	}
	var secs int64
	if _, err := fmt.Sscanf(ts, "%d", &secs); err != nil || secs <= 0 {
		return time.Now()
	}
	return time.Unix(secs, 0)
}
