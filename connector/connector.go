// Package connector is the Model Connector: the single entry point for all
// outbound model provider traffic. It wraps a transport with retries,
// a rolling-window circuit breaker, a per-provider rate limiter, and
// idempotency dedupe, and records token/cost metrics for every call.
package connector

import (
	"context"
	"time"

	"github.com/evalcore/evalcore/types"
)

// Message is one turn of the conversation sent to the target model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the Model Connector's invocation contract.
type Request struct {
	ModelID        string
	Messages       []Message
	Parameters     map[string]any
	Timeout        time.Duration
	IdempotencyKey string
}

// Response is what a successful Invoke returns.
type Response struct {
	Text      string
	Usage     types.TokenUsage
	LatencyMs int64
}

// Connector is implemented by every model provider adapter.
type Connector interface {
	// Invoke sends req to the connector's model provider and returns its
	// response, or a *types.Error classified into one of Timeout, Transport,
	// RateLimited, CircuitOpen, Invalid (BadRequest), or Forbidden
	// (AuthFailed).
	Invoke(ctx context.Context, req Request) (Response, error)
}

// Transport is the narrow, provider-specific seam a Connector wraps. A
// transport performs exactly one attempt; everything else (retry, circuit
// breaking, rate limiting, idempotency, metrics, tracing) is the Connector's
// job, so a new provider only has to implement this interface.
type Transport interface {
	Name() string
	Do(ctx context.Context, req Request) (Response, error)
}
