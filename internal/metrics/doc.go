// Package metrics provides Prometheus collectors for monitoring the tracker.
//
// Key metrics:
//   - Trade ingest rates (received, processed, replayed from buffer)
//   - Metric row throughput and loss
//   - Lifecycle transitions (phase switches, graduations, finishes)
//   - Connection state and reconnect counts
//   - Database query and flush latencies
//   - Rolling buffer size
package metrics
