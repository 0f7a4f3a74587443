// Package conversation defines the narrow seam between the Runner and
// whatever system actually answers a TestCase's user_input — the target
// conversation system. The core never interprets what a system identifier
// means; it is opaque configuration that flows straight through to
// whichever Port implementation is wired in.
package conversation

import "context"

// Request is what the Runner composes for a single case: the case's
// user_input and context, plus a system identifier taken from the
// Execution's parameters (commonly a conversation_spec_id, but the core
// never looks inside it).
type Request struct {
	UserInput      string
	Context        map[string]any
	SystemID       string
	IdempotencyKey string
}

// Response is a completed conversation turn.
type Response struct {
	Text      string
	LatencyMs int64
}

// Port is implemented by every target conversation system adapter.
type Port interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}
