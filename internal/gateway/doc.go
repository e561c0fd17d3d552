// Package gateway wires the relay's components together and serves its HTTP
// surface: the provider webhook, the subscriber and messaging API, and the
// status, debug, and health endpoints.
//
// The Gateway owns every stateful component for the process lifetime:
//
//	Gateway
//	    inbound      *dedupe.Tracker    inbound webhook dedup
//	    replies      *dedupe.Cache      engine reply correlation dedup
//	    history      *history.Log       append-only conversation log
//	    registry     *subscriber.Registry
//	    broadcaster  *subscriber.Broadcaster
//	    pipeline     *pipeline.Pipeline
//	    httpServer   *http.Server
//
// Run blocks until the context is canceled, then shuts the HTTP server down
// gracefully and stops the dedup stores' background work.
package gateway
