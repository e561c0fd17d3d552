// Package engine is the HTTP client for the external conversational-reply
// engine. A single Ask call posts the counterparty's text and extracts the
// reply from either of the engine's two response shapes: a plain reply string
// or a list of typed bubbles.
package engine
