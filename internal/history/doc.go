// Package history holds the in-memory conversation log: an append-only
// sequence of message entries per counterparty, queried by the history and
// status endpoints and mutated by the webhook pipeline. State lives for the
// process lifetime only.
package history
