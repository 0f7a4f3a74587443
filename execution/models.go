// Package execution is the Execution Store: tracks execution aggregates and
// per-case results, and serves progress queries and summaries. Grounded on
// internal/database/pool.go for transaction discipline and
// agent/persistence/redis_task_store.go's pre-create-then-transition split
// for SaveTask/UpdateStatus, generalized into a guarded SQL state machine.
package execution

import (
	"time"

	"github.com/evalcore/evalcore/internal/dbtype"
)

// Status is the Execution status machine's state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// CaseStatus is a CaseResult's terminal-or-pending state.
type CaseStatus string

const (
	CaseStatusPending CaseStatus = "pending"
	CaseStatusOK      CaseStatus = "ok"
	CaseStatusFailed  CaseStatus = "failed"
	CaseStatusSkipped CaseStatus = "skipped"
)

// Execution is a single run of a Suite, pinning the suite snapshot's version
// by value so later suite edits never change what an in-flight or completed
// execution is judged against.
type Execution struct {
	ID             string         `gorm:"primaryKey;size:36" json:"execution_id"`
	TenantID       string         `gorm:"size:100;not null;index:idx_exec_tenant_suite;uniqueIndex:idx_exec_tenant_suite_key,priority:1" json:"tenant_id"`
	SuiteID        string         `gorm:"size:36;not null;index:idx_exec_tenant_suite;uniqueIndex:idx_exec_tenant_suite_key,priority:2" json:"suite_id"`
	SuiteVersion   int            `gorm:"not null" json:"suite_version"`
	Status         Status         `gorm:"size:20;not null;index" json:"status"`
	ProgressPct    int            `gorm:"not null;default:0" json:"progress_pct"`
	Summary        dbtype.JSONMap `gorm:"type:jsonb" json:"summary"`
	IdempotencyKey string         `gorm:"size:200;uniqueIndex:idx_exec_tenant_suite_key,priority:3,where:idempotency_key <> ''" json:"idempotency_key,omitempty"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (Execution) TableName() string { return "executions" }

// CaseResult pins (case_id, case_version) so a result stays reproducible
// even if the underlying TestCase is later edited.
type CaseResult struct {
	ID             string     `gorm:"primaryKey;size:36" json:"result_id"`
	TenantID       string     `gorm:"size:100;not null;uniqueIndex:idx_case_result_unique,priority:1" json:"tenant_id"`
	ExecutionID    string     `gorm:"size:36;not null;uniqueIndex:idx_case_result_unique,priority:2;index:idx_case_result_lookup" json:"execution_id"`
	CaseID         string     `gorm:"size:36;not null;uniqueIndex:idx_case_result_unique,priority:3" json:"case_id"`
	CaseVersion    int        `gorm:"not null" json:"case_version"`
	EvaluatorKind  string     `gorm:"size:100;not null;uniqueIndex:idx_case_result_unique,priority:4" json:"evaluator_kind"`
	Status         CaseStatus `gorm:"size:20;not null;index" json:"status"`
	Score          *float64   `json:"score,omitempty"`
	Passed         *bool      `json:"passed,omitempty"`
	Reasoning      string     `gorm:"type:text" json:"reasoning,omitempty"`
	SystemResponse string     `gorm:"type:text" json:"system_response,omitempty"`
	LatencyMs      int64      `json:"latency_ms"`
	ErrorKind      string     `gorm:"size:50" json:"error_kind,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (CaseResult) TableName() string { return "case_results" }
