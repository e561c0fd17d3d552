// Package provider wraps the messaging provider's Graph-style HTTP API and
// defines the webhook wire types it delivers. The client covers outbound text
// sends and the typing-indicator signal; the webhook types model the nested
// entry/changes/value envelope carrying messages and status updates.
package provider
