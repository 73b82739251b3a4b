// Package database constructs the pgx connection pool shared by the registry
// client and the metrics writer.
package database
