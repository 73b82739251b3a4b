// Package writer persists flushed aggregation windows into the coin_metrics
// table using batched inserts.
package writer
