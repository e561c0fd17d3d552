// Package subscriber tracks registered callback endpoints and fans out
// pipeline events to them.
//
// # Registry
//
// The Registry maps subscriber ids to callback addresses. Registration is an
// upsert; re-registering an id overwrites the previous callback. Subscribers
// leave the registry on explicit unregister or when the broadcaster classifies
// a delivery failure as permanent.
//
// # Broadcaster
//
// Publish delivers one event to every registered subscriber with an
// independent, bounded-timeout POST per subscriber. Delivery is best-effort:
// no retries, one attempt per event per subscriber per call, and one
// subscriber's failure never blocks the others. Failures with a "not found"
// response or a refused connection mark the subscriber dead and remove it;
// anything else (timeouts, other network errors, 5xx) is logged and the
// subscriber is kept.
package subscriber
