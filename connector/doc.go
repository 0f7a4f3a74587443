// Package connector is the single entry point for outbound model provider
// traffic, wrapping a Transport with retry, circuit breaking, rate
// limiting, idempotency dedupe, metrics and tracing.
package connector
