// ABOUTME: Thread-safe registry mapping subscriber ids to callback addresses.
// ABOUTME: Registration is an upsert; removal happens on unregister or pruning.

package subscriber

import (
	"sort"
	"sync"
	"time"
)

// Subscriber is a registered callback endpoint.
type Subscriber struct {
	ID           string    `json:"clientId"`
	CallbackURL  string    `json:"callbackUrl"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Registry holds the current set of subscribers. State is in-memory only and
// lives for the process lifetime.
type Registry struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		subscribers: make(map[string]*Subscriber),
	}
}

// Register adds or replaces a subscriber. Returns true if an existing
// registration was overwritten.
func (r *Registry) Register(id, callbackURL string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, existed := r.subscribers[id]
	r.subscribers[id] = &Subscriber{
		ID:           id,
		CallbackURL:  callbackURL,
		RegisteredAt: time.Now(),
	}
	return existed
}

// Unregister removes a subscriber. Returns false if the id was not
// registered.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subscribers[id]; !ok {
		return false
	}
	delete(r.subscribers, id)
	return true
}

// Get returns the subscriber with the given id.
func (r *Registry) Get(id string) (*Subscriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.subscribers[id]
	return s, ok
}

// List returns all subscribers ordered by id.
func (r *Registry) List() []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Subscriber, 0, len(r.subscribers))
	for _, s := range r.subscribers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Clear removes every subscriber and returns how many were removed.
func (r *Registry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.subscribers)
	r.subscribers = make(map[string]*Subscriber)
	return n
}

// Len returns the number of registered subscribers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}
