// Package track owns the in-memory tracking state: one aggregation window
// per active token, the phase lifecycle state machine, and the per-tick
// flush into the metrics writer.
package track
