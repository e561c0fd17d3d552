// ABOUTME: In-memory append-only conversation log keyed by counterparty.
// ABOUTME: Append-only except for in-place delivery status updates by message id.

package history

import (
	"sync"
	"time"
)

// Direction indicates whether an entry was received from or sent to the
// counterparty.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Entry is a single message record in a conversation. Media carries the
// provider's type-specific metadata (image, audio, video, document) verbatim.
type Entry struct {
	MessageID       string         `json:"messageId"`
	Direction       Direction      `json:"direction"`
	Kind            string         `json:"kind"`
	Text            string         `json:"text"`
	From            string         `json:"from,omitempty"`
	To              string         `json:"to,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
	DeliveryStatus  string         `json:"deliveryStatus,omitempty"`
	StatusUpdatedAt string         `json:"statusUpdatedAt,omitempty"`
	AIReply         bool           `json:"isAiReply,omitempty"`
	EngineStatus    string         `json:"engineStatus,omitempty"`
	Media           any            `json:"media,omitempty"`
}

// ConversationSummary describes one conversation for listing endpoints.
type ConversationSummary struct {
	Counterparty string    `json:"counterparty"`
	LastMessage  string    `json:"lastMessage"`
	Timestamp    time.Time `json:"timestamp"`
	MessageCount int       `json:"messageCount"`
}

// Log is the process-wide conversation log. Conversations are kept in
// insertion order; status updates scan conversations in that order and stop
// at the first entry with a matching message id.
type Log struct {
	mu            sync.RWMutex
	conversations map[string][]*Entry
	order         []string
}

// NewLog creates an empty conversation log.
func NewLog() *Log {
	return &Log{
		conversations: make(map[string][]*Entry),
	}
}

// Append adds an entry to the counterparty's conversation, creating the
// conversation if this is its first entry.
func (l *Log) Append(counterparty string, entry *Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.conversations[counterparty]; !ok {
		l.order = append(l.order, counterparty)
	}
	l.conversations[counterparty] = append(l.conversations[counterparty], entry)
}

// Contains reports whether the counterparty's conversation already holds an
// entry with the given message id. This is the secondary duplicate check
// behind the dedup store: a linear scan, acceptable at conversation sizes
// bounded by process lifetime.
func (l *Log) Contains(counterparty, messageID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, entry := range l.conversations[counterparty] {
		if entry.MessageID == messageID {
			return true
		}
	}
	return false
}

// UpdateStatus finds the first entry across all conversations whose message
// id matches and updates its delivery status in place. Conversations are
// scanned in insertion order and only the first match is updated; only one
// match is expected in practice. Returns the owning counterparty and whether
// a match was found.
func (l *Log) UpdateStatus(messageID, status, timestamp string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, counterparty := range l.order {
		for _, entry := range l.conversations[counterparty] {
			if entry.MessageID == messageID {
				entry.DeliveryStatus = status
				entry.StatusUpdatedAt = timestamp
				return counterparty, true
			}
		}
	}
	return "", false
}

// HasRecentAIReply reports whether the counterparty's conversation holds an
// AI reply with byte-identical text newer than the window. Guards against the
// engine re-emitting the same answer across retried calls.
func (l *Log) HasRecentAIReply(counterparty, text string, window time.Duration, now time.Time) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, entry := range l.conversations[counterparty] {
		if entry.AIReply && entry.Text == text && now.Sub(entry.Timestamp) < window {
			return true
		}
	}
	return false
}

// Messages returns a copy of the counterparty's conversation. The entries
// themselves are shared; callers must not mutate them.
func (l *Log) Messages(counterparty string) []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := l.conversations[counterparty]
	out := make([]*Entry, len(entries))
	copy(out, entries)
	return out
}

// Conversations returns a summary of every conversation in insertion order.
func (l *Log) Conversations() []ConversationSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	summaries := make([]ConversationSummary, 0, len(l.order))
	for _, counterparty := range l.order {
		entries := l.conversations[counterparty]
		if len(entries) == 0 {
			continue
		}
		last := entries[len(entries)-1]
		summaries = append(summaries, ConversationSummary{
			Counterparty: counterparty,
			LastMessage:  last.Text,
			Timestamp:    last.Timestamp,
			MessageCount: len(entries),
		})
	}
	return summaries
}

// Len returns the number of conversations.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.conversations)
}
