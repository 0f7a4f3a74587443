package execution

// Verdict is what an evaluator returns for a single case, handed to
// RecordCaseResult to transition a pending CaseResult to its terminal state.
type Verdict struct {
	Status         CaseStatus
	Score          *float64
	Passed         *bool
	Reasoning      string
	SystemResponse string
	LatencyMs      int64
	ErrorKind      string
}

// EvaluatorSummary is the per-evaluator-kind aggregate reported in a
// get_summary response.
type EvaluatorSummary struct {
	Kind       string  `json:"kind"`
	Total      int     `json:"total"`
	Passed     int     `json:"passed"`
	Failed     int     `json:"failed"`
	PassRate   float64 `json:"pass_rate"`
	P50Latency int64   `json:"p50_latency_ms"`
	P95Latency int64   `json:"p95_latency_ms"`
	ErrorCount int     `json:"error_count"`
}

// Summary is the full get_summary response.
type Summary struct {
	ExecutionID string             `json:"execution_id"`
	Status      Status             `json:"status"`
	TotalCases  int                `json:"total_cases"`
	Evaluators  []EvaluatorSummary `json:"evaluators"`
}

// StatusView is the get_status response.
type StatusView struct {
	Status      Status `json:"status"`
	ProgressPct int    `json:"progress_pct"`
}

// EventFrame is one unit of a stream_progress sequence, framed by the API
// layer's SSE writer as `event: <Kind>` / `data: <JSON of this struct>`.
type EventFrame struct {
	Kind        string `json:"kind"` // StreamProgress: "progress" | "done" | "error"; Runner: "case_started" | "case_finished"
	ExecutionID string `json:"execution_id"`
	Status      Status `json:"status,omitempty"`
	ProgressPct int    `json:"progress_pct,omitempty"`
	CaseID      string `json:"case_id,omitempty"`
	Evaluator   string `json:"evaluator_kind,omitempty"`
}
