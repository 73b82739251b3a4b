// Package upstream maintains the two long-lived WebSocket subscriptions to
// the trade venue: the token-trade stream and the new-token stream.
//
// The trade stream is the sole writer to its socket; the new-token listener
// enqueues subscribe requests onto a bounded channel that the trade loop
// drains. Each stream reconnects independently with capped linear-growth
// backoff.
package upstream
