// Package observability owns lpio Prometheus metrics and HTTP request
// logging/metrics middleware for lpio endpoints.
package observability
