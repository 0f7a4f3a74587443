// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main provides the evalcore service entry point.

# Overview

cmd/evalcore is the executable entry point for the evaluation
orchestration core: it serves the HTTP API for suite/test-case
definitions and execution lifecycle, runs the database migrations that
back the Definition and Execution Stores, and hosts the Orchestrator's
worker pool that drains the execution queue. The program loads YAML
configuration, wires structured logging (zap), Prometheus metrics, and
config hot reload.

# Core types

  - Server        — main server managing the HTTP and Metrics ports, the
    worker pool, and graceful shutdown
  - Middleware     — HTTP middleware signature func(http.Handler) http.Handler
  - responseWriter — wraps http.ResponseWriter to capture the status code

# Key behaviors

  - Subcommands: serve (HTTP API), worker (queue drain only), migrate
    (database migrations), version, health
  - Middleware chain: Recovery, RequestID, SecurityHeaders, RequestLogger,
    MetricsMiddleware, CORS, RateLimiter (per-IP), JWTAuth (Bearer, producing
    the Context Facade from claims)
  - Config hot reload: HotReloadManager watches the config file and
    invokes callbacks on change
  - Metrics server: separate port exposing /metrics (Prometheus)
  - Graceful shutdown: signal → stop workers → stop hot reload → close
    HTTP → close Metrics → close Redis → flush telemetry
  - Build-time injection: Version, BuildTime, GitCommit via ldflags
*/
package main
