// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types provides the shared, dependency-free vocabulary of the
evaluation core: the structured error taxonomy, token accounting, and the
context-propagation helpers that carry tenant identity, role, execution id,
and idempotency key through every component call.

# Core types

  - Error / ErrorKind — structured error taxonomy with HTTP status and
    retryable mapping, no stack traces leaked to callers.
  - TokenUsage — prompt/completion/total token counts and estimated cost.

# Context propagation

WithTraceID / WithTenantID / WithUserID / WithRole / WithExecutionID /
WithIdempotencyKey and their matching readers. Most packages in this
module import types, so types itself must never import another package in
this module.
*/
package types
