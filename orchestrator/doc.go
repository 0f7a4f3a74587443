// Package orchestrator turns start requests into progressing executions,
// driving the Runner for every case in a suite, through a durable,
// queue-driven multi-worker pool.
package orchestrator
