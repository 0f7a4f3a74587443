// Package evaluator is a static catalog of named, pure evaluator functions,
// each of which grades a (case, system_response, context) triple into a
// Verdict. An evaluator's only permitted side effect is calling the Model
// Connector for an LLM-judge opinion.
package evaluator
