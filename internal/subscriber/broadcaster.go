// ABOUTME: Best-effort HTTP fan-out of pipeline events to registered subscribers.
// ABOUTME: Prunes subscribers whose delivery fails with a permanent error class.

package subscriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"syscall"
	"time"
)

// deliveryTimeout bounds each individual subscriber delivery attempt.
const deliveryTimeout = 3 * time.Second

// Event is an ephemeral pipeline-produced event. It exists only during
// fan-out and is never persisted.
type Event struct {
	ID        string    `json:"-"`
	Kind      string    `json:"type"`
	Payload   any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishResult reports the outcome of one fan-out. Callers are allowed to
// ignore it; best-effort delivery is the contract, not a swallowed failure.
type PublishResult struct {
	Delivered int
	Failed    int
	Pruned    []string
}

// Broadcaster fans events out to every registered subscriber.
type Broadcaster struct {
	registry *Registry
	client   *http.Client
	logger   *slog.Logger
}

// NewBroadcaster creates a broadcaster over the given registry. Pass nil
// logger for the default.
func NewBroadcaster(registry *Registry, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		registry: registry,
		client:   &http.Client{Timeout: deliveryTimeout},
		logger:   logger.With("component", "broadcaster"),
	}
}

// Publish delivers the event to all registered subscribers, one independent
// attempt each, and returns once every attempt has finished. Subscribers that
// fail permanently (not-found response or refused connection) are removed
// from the registry before Publish returns.
func (b *Broadcaster) Publish(ctx context.Context, event Event) PublishResult {
	subs := b.registry.List()
	if len(subs) == 0 {
		b.logger.Debug("no subscribers registered", "event_kind", event.Kind)
		return PublishResult{}
	}

	body, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("marshaling event", "error", err, "event_kind", event.Kind)
		return PublishResult{Failed: len(subs)}
	}

	b.logger.Debug("broadcasting",
		"event_id", event.ID,
		"event_kind", event.Kind,
		"subscribers", len(subs))

	type outcome struct {
		id        string
		err       error
		permanent bool
	}
	results := make(chan outcome, len(subs))

	for _, sub := range subs {
		go func(sub *Subscriber) {
			err := b.deliver(ctx, sub, body)
			results <- outcome{id: sub.ID, err: err, permanent: isPermanent(err)}
		}(sub)
	}

	var res PublishResult
	for range subs {
		out := <-results
		switch {
		case out.err == nil:
			res.Delivered++
		case out.permanent:
			res.Failed++
			res.Pruned = append(res.Pruned, out.id)
			b.logger.Warn("removing dead subscriber",
				"subscriber_id", out.id,
				"error", out.err)
		default:
			res.Failed++
			b.logger.Warn("delivery failed, subscriber retained",
				"subscriber_id", out.id,
				"error", out.err)
		}
	}

	for _, id := range res.Pruned {
		b.registry.Unregister(id)
	}

	return res
}

// errNotFound marks a delivery rejected by the subscriber with 404.
var errNotFound = errors.New("subscriber endpoint not found")

// deliver makes a single delivery attempt to one subscriber.
func (b *Broadcaster) deliver(ctx context.Context, sub *Subscriber, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to %s: %w", sub.CallbackURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("subscriber returned status %d", resp.StatusCode)
	}
	return nil
}

// isPermanent classifies a delivery error. A not-found response or a refused
// connection means the endpoint is gone; everything else is assumed
// transient.
func isPermanent(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, errNotFound) || errors.Is(err, syscall.ECONNREFUSED)
}
