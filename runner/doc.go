// Package runner executes a single TestCase end-to-end, invoking the target
// conversation and then fanning its evaluator_kinds out to the Evaluator
// Registry.
package runner
