// Package dedupe provides time-windowed deduplication for webhook deliveries
// and engine reply requests, with two eviction strategies: a periodically
// swept cache and a self-expiring per-entry tracker.
package dedupe
