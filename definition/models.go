// Package definition is the Definition Store: durable, versioned storage of
// suites and test cases, scoped by tenant. Grounded on
// internal/database/pool.go for transaction/retry discipline, generalizing
// the in-memory shape agent/evaluation/ab_store.go used for experiments into
// GORM-backed tables.
package definition

import (
	"time"

	"github.com/evalcore/evalcore/internal/dbtype"
)

// Suite is a named, versioned, tenant-scoped container of test cases and
// evaluator configuration. The name is immutable and unique within a tenant;
// every field change appends to SuiteVersion and increments Version.
type Suite struct {
	ID              string         `gorm:"primaryKey;size:36" json:"suite_id"`
	TenantID        string         `gorm:"size:100;not null;uniqueIndex:idx_suite_tenant_name,priority:1" json:"tenant_id"`
	Name            string         `gorm:"size:200;not null;uniqueIndex:idx_suite_tenant_name,priority:2" json:"name"`
	EvaluatorConfig dbtype.JSONMap `gorm:"type:jsonb" json:"evaluator_config"`
	Version         int            `gorm:"not null;default:1" json:"version"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (Suite) TableName() string { return "suites" }

// SuiteVersion is an immutable historical snapshot of a Suite row, appended
// on every update_suite/restore_suite call. Primary key is (entity_id,
// version), matching the _versions convention used by TestCaseVersion.
type SuiteVersion struct {
	EntityID        string         `gorm:"primaryKey;size:36;column:entity_id" json:"suite_id"`
	Version         int            `gorm:"primaryKey" json:"version"`
	TenantID        string         `gorm:"size:100;not null;index" json:"tenant_id"`
	Name            string         `gorm:"size:200;not null" json:"name"`
	EvaluatorConfig dbtype.JSONMap `gorm:"type:jsonb" json:"evaluator_config"`
	RecordedAt      time.Time      `json:"recorded_at"`
}

func (SuiteVersion) TableName() string { return "suite_versions" }

// TestCase is a single scenario within a Suite: an input, expected criteria
// per evaluator kind, and the set of evaluator kinds to apply.
type TestCase struct {
	ID                   string             `gorm:"primaryKey;size:36" json:"case_id"`
	TenantID             string             `gorm:"size:100;not null;index:idx_case_tenant_suite" json:"tenant_id"`
	SuiteID              string             `gorm:"size:36;not null;index:idx_case_tenant_suite" json:"suite_id"`
	EvaluatorKinds       dbtype.StringSlice `gorm:"type:jsonb" json:"evaluator_kinds"`
	Expected             dbtype.JSONMap     `gorm:"type:jsonb" json:"expected"`
	UserInput            string             `gorm:"type:text" json:"user_input"`
	Context              dbtype.JSONMap     `gorm:"type:jsonb" json:"context"`
	SourceConversationID string             `gorm:"size:100" json:"source_conversation_id,omitempty"`
	Version              int                `gorm:"not null;default:1" json:"version"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

func (TestCase) TableName() string { return "test_cases" }

// TestCaseVersion mirrors SuiteVersion for TestCase history.
type TestCaseVersion struct {
	EntityID       string             `gorm:"primaryKey;size:36;column:entity_id" json:"case_id"`
	Version        int                `gorm:"primaryKey" json:"version"`
	TenantID       string             `gorm:"size:100;not null;index" json:"tenant_id"`
	SuiteID        string             `gorm:"size:36;not null" json:"suite_id"`
	EvaluatorKinds dbtype.StringSlice `gorm:"type:jsonb" json:"evaluator_kinds"`
	Expected       dbtype.JSONMap     `gorm:"type:jsonb" json:"expected"`
	UserInput      string             `gorm:"type:text" json:"user_input"`
	Context        dbtype.JSONMap     `gorm:"type:jsonb" json:"context"`
	RecordedAt     time.Time          `json:"recorded_at"`
}

func (TestCaseVersion) TableName() string { return "test_case_versions" }
