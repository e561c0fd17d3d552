// ABOUTME: Self-expiring dedup tracker for inbound webhook deliveries.
// ABOUTME: Each entry schedules its own removal and records a processing stage.

package dedupe

import (
	"sync"
	"time"
)

// Stage describes how far processing of a tracked delivery has progressed.
// The stage is informational only; entries expire on the retention window
// regardless of stage.
type Stage string

const (
	StageStarted      Stage = "started"
	StageAIProcessing Stage = "ai_processing"
	StageCompleted    Stage = "completed"
)

// trackedEntry holds the first-seen timestamp, current stage, and the timer
// that will remove the entry when the retention window elapses.
type trackedEntry struct {
	firstSeen time.Time
	stage     Stage
	timer     *time.Timer
}

// Tracker is a thread-safe dedup set for inbound deliveries. Unlike Cache,
// each entry is individually scheduled for removal when it is created:
// delivery volume is low enough that a timer per entry is cheaper than
// letting expired keys accumulate between sweeps.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*trackedEntry
	ttl     time.Duration
	closed  bool
}

// NewTracker creates a tracker whose entries expire ttl after first sight.
func NewTracker(ttl time.Duration) *Tracker {
	return &Tracker{
		entries: make(map[string]*trackedEntry),
		ttl:     ttl,
	}
}

// CheckAndMark atomically checks whether a key has been seen and marks it at
// stage "started" if not. Returns true if the key was already seen.
func (t *Tracker) CheckAndMark(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[key]; ok {
		return true
	}
	if t.closed {
		return false
	}

	entry := &trackedEntry{
		firstSeen: time.Now(),
		stage:     StageStarted,
	}
	entry.timer = time.AfterFunc(t.ttl, func() { t.remove(key) })
	t.entries[key] = entry
	return false
}

// SetStage updates the processing stage for a tracked key. Unknown keys
// (already expired) are ignored.
func (t *Tracker) SetStage(key string, stage Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.entries[key]; ok {
		entry.stage = stage
	}
}

// Stage returns the current stage for a key, or false if the key is not
// tracked.
func (t *Tracker) Stage(key string) (Stage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok {
		return "", false
	}
	return entry.stage, true
}

// Len returns the number of tracked keys.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// remove deletes a key when its retention timer fires.
func (t *Tracker) remove(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

// Close stops all pending expiry timers and rejects further marks. Safe to
// call multiple times.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	for key, entry := range t.entries {
		entry.timer.Stop()
		delete(t.entries, key)
	}
}
