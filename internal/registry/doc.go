// Package registry reads and updates the tracked-token registry in Postgres:
// the ref_coin_phases reference table and the coin_streams watch table joined
// to discovered_coins.
package registry
