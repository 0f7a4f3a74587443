// Package queue is the Orchestrator's work queue: a single job type,
// Job{execution_id, tenant_id, system_id, max_concurrent}, delivered at-least-once with a
// visibility timeout and dead-letter routing after repeated redeliveries.
package queue
