// Package health serves the operational HTTP surface: the health check,
// Prometheus metrics, and config hot-reload.
package health
