// Package model defines shared data types used across the tracker.
//
// All types mirror the database schema (discovered_coins, coin_streams,
// ref_coin_phases, coin_metrics).
//
// Conventions:
//   - Amounts and prices: float64 SOL units (venue-native)
//   - Timestamps: time.Time, UTC
//   - Token identity: opaque base58-like address string
package model
