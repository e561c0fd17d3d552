// Package pipeline is the webhook processing state machine. It classifies
// incoming provider events, deduplicates them, updates the conversation log,
// asks the reply engine for answers to text messages, and emits events to
// subscribers.
//
// # Inbound messages
//
// Each inbound message moves through: received, deduped (stop), logged,
// broadcast, and for text messages an engine round-trip that may append an
// AI reply. Duplicate deliveries are discarded by an atomic check-and-mark
// before any other work, backed by a secondary scan of the conversation log.
//
// # Engine replies
//
// The engine pushes replies for delivery through a second, independent entry
// point (HandleEngineReply). Replies carrying a correlation id are
// deduplicated against a shorter-windowed store; at most one provider send
// happens per correlation id within the window. The two entry points are
// deliberately decoupled: the inbound flow logs a pending reply without
// sending, and the engine owns send timing.
package pipeline
