package execution

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/evalcore/evalcore/authctx"
	"github.com/evalcore/evalcore/internal/database"
	"github.com/evalcore/evalcore/internal/dbtype"
	"github.com/evalcore/evalcore/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the Execution Store.
type Store struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

// NewStore builds an Execution Store over an already-initialized pool.
func NewStore(pool *database.PoolManager, logger *zap.Logger) *Store {
	return &Store{pool: pool, logger: logger.With(zap.String("component", "execution_store"))}
}

// allowedTransitions encodes the execution status machine. A transition not
// listed here fails with IllegalTransition.
var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {StatusRunning: true, StatusCancelled: true},
	StatusRunning: {StatusCompleted: true, StatusFailed: true, StatusCancelled: true},
}

// CreateExecution creates a new Execution in status pending, or returns the
// existing one for the same (tenant, suite, idempotency_key) unchanged.
func (s *Store) CreateExecution(ctx context.Context, f authctx.Facade, suiteID string, suiteVersion int, idempotencyKey string) (*Execution, bool, error) {
	if err := f.Require(authctx.CapabilityExecuteSuite); err != nil {
		return nil, false, err
	}

	if idempotencyKey != "" {
		var existing Execution
		err := s.pool.DB().WithContext(ctx).
			Where("tenant_id = ? AND suite_id = ? AND idempotency_key = ?", f.TenantID, suiteID, idempotencyKey).
			First(&existing).Error
		if err == nil {
			return &existing, false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, wrapStoreError(err)
		}
	}

	exec := Execution{
		ID:             uuid.NewString(),
		TenantID:       f.TenantID,
		SuiteID:        suiteID,
		SuiteVersion:   suiteVersion,
		Status:         StatusPending,
		ProgressPct:    0,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	if err := s.pool.DB().WithContext(ctx).Create(&exec).Error; err != nil {
		return nil, false, wrapStoreError(err)
	}
	return &exec, true, nil
}

// transition loads the execution (row-locked on Postgres), checks the
// requested move is legal, applies mutate, and saves.
func (s *Store) transition(ctx context.Context, f authctx.Facade, executionID string, to Status, mutate func(*Execution)) (*Execution, error) {
	var result Execution
	err := s.pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		query := tx
		if tx.Dialector.Name() == "postgres" {
			query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var exec Execution
		if err := query.Where("id = ? AND tenant_id = ?", executionID, f.TenantID).First(&exec).Error; err != nil {
			return err
		}

		if !allowedTransitions[exec.Status][to] {
			return types.NewError(types.KindIllegalTransition, "cannot move execution from "+string(exec.Status)+" to "+string(to))
		}

		exec.Status = to
		exec.UpdatedAt = time.Now().UTC()
		mutate(&exec)

		if err := tx.Save(&exec).Error; err != nil {
			return err
		}
		result = exec
		return nil
	})
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return &result, nil
}

// MarkRunning transitions pending -> running. Called by the Orchestrator's
// worker pool, which authenticates as the "worker" role.
func (s *Store) MarkRunning(ctx context.Context, f authctx.Facade, executionID string) (*Execution, error) {
	if err := f.Require(authctx.CapabilityExecuteSuite); err != nil {
		return nil, err
	}
	return s.transition(ctx, f, executionID, StatusRunning, func(e *Execution) {
		now := time.Now().UTC()
		e.StartedAt = &now
	})
}

// MarkCompleted transitions running -> completed, recording summary.
func (s *Store) MarkCompleted(ctx context.Context, f authctx.Facade, executionID string, summary map[string]any) (*Execution, error) {
	if err := f.Require(authctx.CapabilityExecuteSuite); err != nil {
		return nil, err
	}
	return s.transition(ctx, f, executionID, StatusCompleted, func(e *Execution) {
		now := time.Now().UTC()
		e.FinishedAt = &now
		e.ProgressPct = 100
		e.Summary = dbtype.JSONMap(summary)
	})
}

// MarkFailed transitions running -> failed.
func (s *Store) MarkFailed(ctx context.Context, f authctx.Facade, executionID string, errorKind types.ErrorKind) (*Execution, error) {
	if err := f.Require(authctx.CapabilityExecuteSuite); err != nil {
		return nil, err
	}
	return s.transition(ctx, f, executionID, StatusFailed, func(e *Execution) {
		now := time.Now().UTC()
		e.FinishedAt = &now
		e.Summary = dbtype.JSONMap{"error_kind": string(errorKind)}
	})
}

// MarkCancelled transitions pending|running -> cancelled. Callable directly
// by an API handler acting on behalf of the caller that started the
// execution, hence the separate capability check.
func (s *Store) MarkCancelled(ctx context.Context, f authctx.Facade, executionID string) (*Execution, error) {
	if err := f.Require(authctx.CapabilityCancelExecution); err != nil {
		return nil, err
	}
	return s.transition(ctx, f, executionID, StatusCancelled, func(e *Execution) {
		now := time.Now().UTC()
		e.FinishedAt = &now
	})
}

// RecordCaseStart pre-creates one pending CaseResult row per evaluator kind
// for a case about to run.
func (s *Store) RecordCaseStart(ctx context.Context, f authctx.Facade, executionID, caseID string, caseVersion int, evaluatorKinds []string) ([]CaseResult, error) {
	if err := f.Require(authctx.CapabilityExecuteSuite); err != nil {
		return nil, err
	}

	rows := make([]CaseResult, 0, len(evaluatorKinds))
	now := time.Now().UTC()
	for _, kind := range evaluatorKinds {
		rows = append(rows, CaseResult{
			ID:            uuid.NewString(),
			TenantID:      f.TenantID,
			ExecutionID:   executionID,
			CaseID:        caseID,
			CaseVersion:   caseVersion,
			EvaluatorKind: kind,
			Status:        CaseStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	if len(rows) == 0 {
		return rows, nil
	}
	if err := s.pool.DB().WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, wrapStoreError(err)
	}
	return rows, nil
}

// RecordCaseResult transitions a pending CaseResult to a terminal state
// exactly once. A second call for the same result id is a no-op that
// returns the already-recorded row.
func (s *Store) RecordCaseResult(ctx context.Context, f authctx.Facade, resultID string, verdict Verdict) (*CaseResult, error) {
	if err := f.Require(authctx.CapabilityExecuteSuite); err != nil {
		return nil, err
	}

	var result CaseResult
	err := s.pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		query := tx
		if tx.Dialector.Name() == "postgres" {
			query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var cr CaseResult
		if err := query.Where("id = ? AND tenant_id = ?", resultID, f.TenantID).First(&cr).Error; err != nil {
			return err
		}

		if cr.Status != CaseStatusPending {
			result = cr
			return nil
		}

		cr.Status = verdict.Status
		cr.Score = verdict.Score
		cr.Passed = verdict.Passed
		cr.Reasoning = verdict.Reasoning
		cr.SystemResponse = verdict.SystemResponse
		cr.LatencyMs = verdict.LatencyMs
		cr.ErrorKind = verdict.ErrorKind
		cr.UpdatedAt = time.Now().UTC()

		if err := tx.Save(&cr).Error; err != nil {
			return err
		}
		result = cr
		return nil
	})
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return &result, nil
}

// GetExecution loads the full Execution row, for a worker that needs its
// SuiteID/SuiteVersion to load the pinned Suite snapshot before running it.
func (s *Store) GetExecution(ctx context.Context, f authctx.Facade, executionID string) (*Execution, error) {
	if err := f.Require(authctx.CapabilityReadExecutions); err != nil {
		return nil, err
	}
	var exec Execution
	if err := s.pool.DB().WithContext(ctx).
		Where("id = ? AND tenant_id = ?", executionID, f.TenantID).
		First(&exec).Error; err != nil {
		return nil, wrapStoreError(err)
	}
	return &exec, nil
}

// UpdateProgress sets progress_pct via a compare-and-set that never
// decreases the stored value: a stale write from a crashed-then-resumed
// worker must not regress progress already observed by a reader.
func (s *Store) UpdateProgress(ctx context.Context, f authctx.Facade, executionID string, pct int) error {
	if err := f.Require(authctx.CapabilityExecuteSuite); err != nil {
		return err
	}
	return s.pool.DB().WithContext(ctx).Model(&Execution{}).
		Where("id = ? AND tenant_id = ? AND progress_pct < ?", executionID, f.TenantID, pct).
		Update("progress_pct", pct).Error
}

// GetStatus returns the execution's current status and progress.
func (s *Store) GetStatus(ctx context.Context, f authctx.Facade, executionID string) (*StatusView, error) {
	if err := f.Require(authctx.CapabilityReadExecutions); err != nil {
		return nil, err
	}

	var exec Execution
	if err := s.pool.DB().WithContext(ctx).
		Where("id = ? AND tenant_id = ?", executionID, f.TenantID).
		First(&exec).Error; err != nil {
		return nil, wrapStoreError(err)
	}
	return &StatusView{Status: exec.Status, ProgressPct: exec.ProgressPct}, nil
}

// GetSummary computes pass rates per evaluator kind, p50/p95 latency, and
// error counts over all case results recorded for the execution.
func (s *Store) GetSummary(ctx context.Context, f authctx.Facade, executionID string) (*Summary, error) {
	if err := f.Require(authctx.CapabilityReadExecutions); err != nil {
		return nil, err
	}

	var exec Execution
	if err := s.pool.DB().WithContext(ctx).
		Where("id = ? AND tenant_id = ?", executionID, f.TenantID).
		First(&exec).Error; err != nil {
		return nil, wrapStoreError(err)
	}

	var results []CaseResult
	if err := s.pool.DB().WithContext(ctx).
		Where("execution_id = ? AND tenant_id = ?", executionID, f.TenantID).
		Find(&results).Error; err != nil {
		return nil, wrapStoreError(err)
	}

	byKind := map[string][]CaseResult{}
	caseIDs := map[string]bool{}
	for _, r := range results {
		byKind[r.EvaluatorKind] = append(byKind[r.EvaluatorKind], r)
		caseIDs[r.CaseID] = true
	}

	kinds := make([]string, 0, len(byKind))
	for kind := range byKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	summary := &Summary{ExecutionID: executionID, Status: exec.Status, TotalCases: len(caseIDs)}
	for _, kind := range kinds {
		rows := byKind[kind]
		es := EvaluatorSummary{Kind: kind, Total: len(rows)}
		latencies := make([]int64, 0, len(rows))
		for _, r := range rows {
			if r.Status == CaseStatusFailed || r.ErrorKind != "" {
				es.ErrorCount++
			}
			if r.Passed != nil && *r.Passed {
				es.Passed++
			} else if r.Status != CaseStatusPending {
				es.Failed++
			}
			if r.LatencyMs > 0 {
				latencies = append(latencies, r.LatencyMs)
			}
		}
		if es.Total > 0 {
			es.PassRate = float64(es.Passed) / float64(es.Total)
		}
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		es.P50Latency = percentile(latencies, 0.50)
		es.P95Latency = percentile(latencies, 0.95)
		summary.Evaluators = append(summary.Evaluators, es)
	}
	return summary, nil
}

func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// StreamProgress polls the execution's status at interval and yields one
// EventFrame per observed change, finite: it closes the returned channel
// when the execution reaches a terminal status or ctx is cancelled.
// Grounded on internal/channel/tunable.go's buffered-channel shape and
// api/handlers/chat.go's SSE writer, which consumes frames from a channel
// exactly like this one.
func (s *Store) StreamProgress(ctx context.Context, f authctx.Facade, executionID string, interval time.Duration) (<-chan EventFrame, error) {
	if err := f.Require(authctx.CapabilityReadExecutions); err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	frames := make(chan EventFrame, 16)
	go func() {
		defer close(frames)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		lastPct := -1
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				status, err := s.GetStatus(ctx, f, executionID)
				if err != nil {
					frames <- EventFrame{Kind: "error", ExecutionID: executionID}
					return
				}
				if status.ProgressPct != lastPct {
					frames <- EventFrame{
						Kind:        "progress",
						ExecutionID: executionID,
						Status:      status.Status,
						ProgressPct: status.ProgressPct,
					}
					lastPct = status.ProgressPct
				}
				if isTerminal(status.Status) {
					frames <- EventFrame{Kind: "done", ExecutionID: executionID, Status: status.Status, ProgressPct: status.ProgressPct}
					return
				}
			}
		}
	}()
	return frames, nil
}

func isTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

func wrapStoreError(err error) error {
	var apiErr *types.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.NewError(types.KindNotFound, "record not found").WithCause(err)
	}
	return types.NewError(types.KindInternal, "execution store failure").WithCause(err)
}
