package api

import "time"

// =============================================================================
// Suite request/response DTOs
// =============================================================================

// CreateSuiteRequest is the body of POST /api/v1/evaluation/suites.
// @Description Create-suite request structure
type CreateSuiteRequest struct {
	// Name is unique within the caller's tenant.
	Name string `json:"name" binding:"required" example:"regression-suite-v1"`
	// EvaluatorConfig carries per-evaluator-kind settings shared by every
	// case in the suite (thresholds, model overrides).
	EvaluatorConfig map[string]any `json:"evaluator_config,omitempty"`
}

// SuiteResponse represents a suite in API responses.
// @Description Suite structure
type SuiteResponse struct {
	SuiteID         string         `json:"suite_id"`
	Name            string         `json:"name"`
	EvaluatorConfig map[string]any `json:"evaluator_config,omitempty"`
	Version         int            `json:"version"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// ListSuitesResponse is the body of GET /api/v1/evaluation/suites.
type ListSuitesResponse struct {
	Suites     []SuiteResponse `json:"suites"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// AddCaseRequest is the body of POST /api/v1/evaluation/suites/{suite_id}/evals.
// @Description Add-test-case request structure
type AddCaseRequest struct {
	// EvaluatorKinds names the evaluators this case is scored by, e.g.
	// "hallucination", "answer-relevancy".
	EvaluatorKinds []string `json:"evaluator_kinds" binding:"required"`
	// Expected carries per-evaluator-kind grading criteria.
	Expected map[string]any `json:"expected,omitempty"`
	// UserInput is fed to the target conversation system verbatim.
	UserInput string `json:"user_input" binding:"required"`
	// Context supplies any retrieved documents or prior turns an evaluator
	// needs to judge faithfulness or contextual precision.
	Context map[string]any `json:"context,omitempty"`
	// SourceConversationID, if set, marks this case as harvested from a
	// real conversation rather than hand-authored.
	SourceConversationID string `json:"source_conversation_id,omitempty"`
}

// TestCaseResponse represents a test case in API responses.
type TestCaseResponse struct {
	CaseID         string         `json:"case_id"`
	SuiteID        string         `json:"suite_id"`
	EvaluatorKinds []string       `json:"evaluator_kinds"`
	Expected       map[string]any `json:"expected,omitempty"`
	UserInput      string         `json:"user_input"`
	Context        map[string]any `json:"context,omitempty"`
	Version        int            `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
}

// FieldDiffResponse is one changed field between two suite versions.
type FieldDiffResponse struct {
	Field string `json:"field"`
	Old   any    `json:"old"`
	New   any    `json:"new"`
}

// CompareVersionsResponse is the body of the version-diff endpoint.
type CompareVersionsResponse struct {
	SuiteID     string              `json:"suite_id"`
	FromVersion int                 `json:"from_version"`
	ToVersion   int                 `json:"to_version"`
	Changes     []FieldDiffResponse `json:"changes"`
}

// RestoreSuiteRequest is an empty placeholder body; the target version is
// carried in the path, kept as a named type so handlers can extend it
// without breaking callers.
type RestoreSuiteRequest struct{}

// =============================================================================
// Execution request/response DTOs
// =============================================================================

// StartExecutionRequest is the body of POST .../suites/{suite_id}/execute.
// @Description Start-execution request structure
type StartExecutionRequest struct {
	// SystemID identifies the target conversation system to invoke for
	// every case; opaque to the orchestration core.
	SystemID string `json:"system_id" binding:"required" example:"support-bot-v3"`
	// MaxConcurrent overrides the default per-execution case concurrency.
	MaxConcurrent int `json:"max_concurrent,omitempty" example:"5"`
	// IdempotencyKey, if reused for the same (tenant, suite), returns the
	// existing execution instead of starting a duplicate run.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// StartExecutionResponse is returned on successful start.
type StartExecutionResponse struct {
	ExecutionID string `json:"execution_id"`
}

// ExecutionStatusResponse is the body of the status endpoint.
type ExecutionStatusResponse struct {
	Status      string `json:"status"`
	ProgressPct int    `json:"progress_pct"`
}

// EvaluatorSummaryResponse is the per-evaluator-kind aggregate within a
// summary response.
type EvaluatorSummaryResponse struct {
	Kind       string  `json:"kind"`
	Total      int     `json:"total"`
	Passed     int     `json:"passed"`
	Failed     int     `json:"failed"`
	PassRate   float64 `json:"pass_rate"`
	P50Latency int64   `json:"p50_latency_ms"`
	P95Latency int64   `json:"p95_latency_ms"`
	ErrorCount int     `json:"error_count"`
}

// ExecutionSummaryResponse is the body of the summary endpoint.
type ExecutionSummaryResponse struct {
	ExecutionID string                     `json:"execution_id"`
	Status      string                     `json:"status"`
	TotalCases  int                        `json:"total_cases"`
	Evaluators  []EvaluatorSummaryResponse `json:"evaluators"`
}

// CancelExecutionResponse confirms a cancel request was accepted.
type CancelExecutionResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}

// EventFrameResponse is one SSE frame of an execution's progress stream,
// JSON-encoded as the `data:` payload of a `event: <Kind>` SSE event.
type EventFrameResponse struct {
	Kind        string `json:"kind"`
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status,omitempty"`
	ProgressPct int    `json:"progress_pct,omitempty"`
	CaseID      string `json:"case_id,omitempty"`
	Evaluator   string `json:"evaluator_kind,omitempty"`
}
