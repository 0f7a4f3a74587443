package execution

import (
	"context"
	"testing"
	"time"

	"github.com/evalcore/evalcore/authctx"
	"github.com/evalcore/evalcore/internal/database"
	"github.com/evalcore/evalcore/types"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Execution{}, &CaseResult{}))

	pool, err := database.NewPoolManager(db, database.DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	return NewStore(pool, zap.NewNop())
}

func operatorFacade() authctx.Facade {
	return authctx.New("tenant-a", "operator", "user-1")
}

func workerFacade(tenantID string) authctx.Facade {
	return authctx.New(tenantID, "worker", "")
}

func TestCreateExecution_IdempotentReturn(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()
	f := operatorFacade()

	exec1, created1, err := store.CreateExecution(ctx, f, "suite-1", 1, "key-1")
	require.NoError(t, err)
	assert.True(t, created1)
	assert.Equal(t, StatusPending, exec1.Status)

	exec2, created2, err := store.CreateExecution(ctx, f, "suite-1", 1, "key-1")
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Equal(t, exec1.ID, exec2.ID)
}

func TestExecutionStateMachine(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()
	f := operatorFacade()

	exec, _, err := store.CreateExecution(ctx, f, "suite-1", 1, "")
	require.NoError(t, err)

	_, err = store.MarkRunning(ctx, workerFacade(f.TenantID), exec.ID)
	require.NoError(t, err)

	completed, err := store.MarkCompleted(ctx, workerFacade(f.TenantID), exec.ID, map[string]any{"pass_rate": 1.0})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)
	assert.Equal(t, 100, completed.ProgressPct)

	_, err = store.MarkCancelled(ctx, f, exec.ID)
	require.Error(t, err)
	assert.Equal(t, types.KindIllegalTransition, types.GetErrorKind(err))
}

func TestExecutionStateMachine_CancelFromPending(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()
	f := operatorFacade()

	exec, _, err := store.CreateExecution(ctx, f, "suite-1", 1, "")
	require.NoError(t, err)

	cancelled, err := store.MarkCancelled(ctx, f, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.FinishedAt)
}

func TestRecordCaseResult_ExactlyOnce(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()
	f := operatorFacade()

	exec, _, err := store.CreateExecution(ctx, f, "suite-1", 1, "")
	require.NoError(t, err)

	rows, err := store.RecordCaseStart(ctx, workerFacade(f.TenantID), exec.ID, "case-1", 1, []string{"answer_relevancy"})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	score := 0.9
	passed := true
	verdict := Verdict{Status: CaseStatusOK, Score: &score, Passed: &passed, LatencyMs: 120}

	first, err := store.RecordCaseResult(ctx, workerFacade(f.TenantID), rows[0].ID, verdict)
	require.NoError(t, err)
	assert.Equal(t, CaseStatusOK, first.Status)

	secondVerdict := Verdict{Status: CaseStatusFailed, LatencyMs: 50}
	second, err := store.RecordCaseResult(ctx, workerFacade(f.TenantID), rows[0].ID, secondVerdict)
	require.NoError(t, err)
	assert.Equal(t, CaseStatusOK, second.Status, "second call is a no-op")
}

func TestGetSummary_PassRatesAndLatency(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()
	f := operatorFacade()

	exec, _, err := store.CreateExecution(ctx, f, "suite-1", 1, "")
	require.NoError(t, err)

	rows, err := store.RecordCaseStart(ctx, workerFacade(f.TenantID), exec.ID, "case-1", 1, []string{"answer_relevancy"})
	require.NoError(t, err)
	rows2, err := store.RecordCaseStart(ctx, workerFacade(f.TenantID), exec.ID, "case-2", 1, []string{"answer_relevancy"})
	require.NoError(t, err)

	passed := true
	failed := false
	score := 0.8
	_, err = store.RecordCaseResult(ctx, workerFacade(f.TenantID), rows[0].ID, Verdict{Status: CaseStatusOK, Score: &score, Passed: &passed, LatencyMs: 100})
	require.NoError(t, err)
	_, err = store.RecordCaseResult(ctx, workerFacade(f.TenantID), rows2[0].ID, Verdict{Status: CaseStatusOK, Score: &score, Passed: &failed, LatencyMs: 200})
	require.NoError(t, err)

	summary, err := store.GetSummary(ctx, f, exec.ID)
	require.NoError(t, err)
	require.Len(t, summary.Evaluators, 1)
	es := summary.Evaluators[0]
	assert.Equal(t, 2, es.Total)
	assert.Equal(t, 1, es.Passed)
	assert.Equal(t, 0.5, es.PassRate)
	assert.Equal(t, 2, summary.TotalCases)
}

func TestStreamProgress_TerminatesOnCompletion(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	f := operatorFacade()

	exec, _, err := store.CreateExecution(ctx, f, "suite-1", 1, "")
	require.NoError(t, err)
	_, err = store.MarkRunning(ctx, workerFacade(f.TenantID), exec.ID)
	require.NoError(t, err)

	frames, err := store.StreamProgress(ctx, f, exec.ID, 10*time.Millisecond)
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_, _ = store.MarkCompleted(context.Background(), workerFacade(f.TenantID), exec.ID, map[string]any{})
	}()

	var sawDone bool
	for frame := range frames {
		if frame.Kind == "done" {
			sawDone = true
		}
	}
	assert.True(t, sawDone)
}
