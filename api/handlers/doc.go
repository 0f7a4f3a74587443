// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers implements the HTTP request handlers for the evaluation
orchestration API.

# Overview

handlers implements every HTTP endpoint's request logic: suite and test
case definition, execution lifecycle (start, status, summary, cancel,
live SSE progress), and health checks. Every handler follows the
standard net/http signature; the health handlers carry Swagger annotations.

# Core types

  - SuiteHandler      — suite and test-case CRUD, version diff and restore
  - ExecutionHandler   — start/status/summary/cancel and SSE progress streaming
  - HealthHandler      — service health checks (/health, /healthz, /ready)
  - Response           — uniform JSON response envelope (success + data + error + timestamp)
  - ErrorInfo          — structured error body (error_kind, message, retryable flag)
  - ResponseWriter     — wraps http.ResponseWriter to capture the status code
  - HealthCheck        — pluggable health check interface (database, Redis, ...)

# Key behaviors

  - Uniform response helpers: WriteSuccess / WriteCreated / WriteAccepted / WriteError
  - Request validation: DecodeJSONBody (strict mode: unknown fields are
    rejected; the body size is not limited)
  - Error taxonomy mapped to HTTP status via types.Error.HTTPStatus
  - SSE streaming: ExecutionHandler.Events produces text/event-stream
  - Every handler reads its caller's identity from the Context Facade
    (authctx.FromContext), never from the request body
*/
package handlers
