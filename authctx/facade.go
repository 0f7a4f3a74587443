// Package authctx is the Context Facade: a uniform view of the caller's
// tenant identity, role, and idempotency key, built once at the HTTP edge
// from the authorizer's claims and threaded through every component call.
// No Store or Orchestrator method accepts a tenant id as a bare string;
// they all take a Facade.
package authctx

import (
	"context"

	"github.com/evalcore/evalcore/types"
)

// Capability is a string-typed, centrally enumerated permission.
type Capability string

const (
	CapabilityManageSuites    Capability = "suites:manage"
	CapabilityExecuteSuite    Capability = "executions:start"
	CapabilityReadExecutions  Capability = "executions:read"
	CapabilityCancelExecution Capability = "executions:cancel"
)

// roleCapabilities is the static role-to-capability table. It is
// process-global and read-only after init, per the same discipline the
// Evaluator Registry uses for its catalog.
var roleCapabilities = map[string]map[Capability]bool{
	"admin": {
		CapabilityManageSuites:    true,
		CapabilityExecuteSuite:    true,
		CapabilityReadExecutions:  true,
		CapabilityCancelExecution: true,
	},
	"operator": {
		CapabilityExecuteSuite:    true,
		CapabilityReadExecutions:  true,
		CapabilityCancelExecution: true,
	},
	"viewer": {
		CapabilityReadExecutions: true,
	},
	// worker is assumed by the Orchestrator's pool when it resumes a job
	// from the queue: it never arrives over HTTP, so it carries every
	// capability a queued job legitimately needs to drive an execution
	// through its state machine.
	"worker": {
		CapabilityExecuteSuite:    true,
		CapabilityReadExecutions:  true,
		CapabilityCancelExecution: true,
	},
}

// Facade carries the caller's identity through a single request or job.
// It is constructed once (at the HTTP edge via FromContext, or at a worker
// boundary via New) and passed explicitly; it is never reconstructed from a
// request body.
type Facade struct {
	TenantID       string
	Role           string
	UserID         string
	IdempotencyKey string
}

// New builds a Facade directly, for worker entry points that resume a job
// from a persisted tenant id rather than from an HTTP request's context.
func New(tenantID, role, userID string) Facade {
	return Facade{TenantID: tenantID, Role: role, UserID: userID}
}

// FromContext extracts a Facade from a context populated by the JWT
// authentication middleware. It fails with KindForbidden if the tenant id
// is missing — a Facade with no tenant can authorize nothing.
func FromContext(ctx context.Context) (Facade, error) {
	tenantID, ok := types.TenantID(ctx)
	if !ok || tenantID == "" {
		return Facade{}, types.NewError(types.KindForbidden, "missing tenant identity")
	}
	role, _ := types.Role(ctx)
	userID, _ := types.UserID(ctx)
	idempotencyKey, _ := types.IdempotencyKey(ctx)
	return Facade{
		TenantID:       tenantID,
		Role:           role,
		UserID:         userID,
		IdempotencyKey: idempotencyKey,
	}, nil
}

// WithIdempotencyKey returns a copy of f carrying key, used when a handler
// reads the key from a request body rather than a header.
func (f Facade) WithIdempotencyKey(key string) Facade {
	f.IdempotencyKey = key
	return f
}

// Require fails with KindForbidden when the Facade's role lacks cap.
func (f Facade) Require(cap Capability) error {
	grants, ok := roleCapabilities[f.Role]
	if !ok || !grants[cap] {
		return types.NewError(types.KindForbidden, "role "+f.Role+" lacks capability "+string(cap))
	}
	return nil
}

// Context returns ctx with this Facade's fields re-injected, for passing
// identity onward into a call that only accepts a context.Context (e.g. a
// Model Connector invocation carrying the tenant id for metrics labeling).
func (f Facade) Context(ctx context.Context) context.Context {
	ctx = types.WithTenantID(ctx, f.TenantID)
	ctx = types.WithRole(ctx, f.Role)
	ctx = types.WithUserID(ctx, f.UserID)
	if f.IdempotencyKey != "" {
		ctx = types.WithIdempotencyKey(ctx, f.IdempotencyKey)
	}
	return ctx
}
