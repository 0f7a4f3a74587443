package definition

import (
	"context"
	"testing"

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
	require.NoError(t, db.AutoMigrate(&Suite{}, &SuiteVersion{}, &TestCase{}, &TestCaseVersion{}))

	pool, err := database.NewPoolManager(db, database.DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	return NewStore(pool, zap.NewNop())
}

func adminFacade() authctx.Facade {
	return authctx.New("tenant-a", "admin", "user-1")
}

func TestCreateSuite_Duplicate(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()
	f := adminFacade()

	suite, err := store.CreateSuite(ctx, f, "regression", map[string]any{"threshold": 0.5})
	require.NoError(t, err)
	assert.Equal(t, 1, suite.Version)
	assert.NotEmpty(t, suite.ID)

	_, err = store.CreateSuite(ctx, f, "regression", map[string]any{})
	require.Error(t, err)
	assert.Equal(t, types.KindConflict, types.GetErrorKind(err))
}

func TestUpdateSuite_VersionsAndStaleVersion(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()
	f := adminFacade()

	suite, err := store.CreateSuite(ctx, f, "s1", map[string]any{"v": float64(1)})
	require.NoError(t, err)

	updated, err := store.UpdateSuite(ctx, f, suite.ID, SuitePatch{
		EvaluatorConfig: map[string]any{"v": float64(2)},
		ExpectedVersion: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	_, err = store.UpdateSuite(ctx, f, suite.ID, SuitePatch{
		EvaluatorConfig: map[string]any{"v": float64(3)},
		ExpectedVersion: 1,
	})
	require.Error(t, err)
	assert.Equal(t, types.KindStaleVersion, types.GetErrorKind(err))
}

func TestAddCase_RequiresExistingSuite(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()
	f := adminFacade()

	_, err := store.AddCase(ctx, f, "missing-suite", CasePayload{UserInput: "hi"})
	require.Error(t, err)
	assert.Equal(t, types.KindNotFound, types.GetErrorKind(err))

	suite, err := store.CreateSuite(ctx, f, "s1", map[string]any{})
	require.NoError(t, err)

	tc, err := store.AddCase(ctx, f, suite.ID, CasePayload{
		EvaluatorKinds: []string{"answer_relevancy"},
		Expected:       map[string]any{"answer_relevancy": map[string]any{"min_score": 0.0}},
		UserInput:      "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, tc.Version)
	assert.Equal(t, []string(tc.EvaluatorKinds), []string{"answer_relevancy"})
}

func TestRestoreSuite(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()
	f := adminFacade()

	suite, err := store.CreateSuite(ctx, f, "s1", map[string]any{"threshold": 0.1})
	require.NoError(t, err)

	_, err = store.UpdateSuite(ctx, f, suite.ID, SuitePatch{EvaluatorConfig: map[string]any{"threshold": 0.9}})
	require.NoError(t, err)

	restored, err := store.RestoreSuite(ctx, f, suite.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, restored.Version)
	assert.Equal(t, 0.1, restored.EvaluatorConfig["threshold"])

	snapshot, _, err := store.GetSuiteForExecution(ctx, f, suite.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.1, snapshot.EvaluatorConfig["threshold"])
}

func TestGetSuiteForExecution_HistoricalVersion(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()
	f := adminFacade()

	suite, err := store.CreateSuite(ctx, f, "s1", map[string]any{"threshold": 0.1})
	require.NoError(t, err)
	_, err = store.AddCase(ctx, f, suite.ID, CasePayload{UserInput: "hi"})
	require.NoError(t, err)

	_, err = store.UpdateSuite(ctx, f, suite.ID, SuitePatch{EvaluatorConfig: map[string]any{"threshold": 0.9}})
	require.NoError(t, err)

	snapshot, cases, err := store.GetSuiteForExecution(ctx, f, suite.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.1, snapshot.EvaluatorConfig["threshold"])
	assert.Len(t, cases, 1)
}

func TestCompareSuiteVersions(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()
	f := adminFacade()

	suite, err := store.CreateSuite(ctx, f, "s1", map[string]any{"threshold": 0.1})
	require.NoError(t, err)
	_, err = store.UpdateSuite(ctx, f, suite.ID, SuitePatch{EvaluatorConfig: map[string]any{"threshold": 0.9}})
	require.NoError(t, err)

	diff, err := store.CompareSuiteVersions(ctx, f, suite.ID, 1, 2)
	require.NoError(t, err)
	require.Len(t, diff.Changes, 1)
	assert.Equal(t, "evaluator_config", diff.Changes[0].Field)
}

func TestListSuites_Pagination(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()
	f := adminFacade()

	for _, name := range []string{"alpha", "bravo", "charlie"} {
		_, err := store.CreateSuite(ctx, f, name, map[string]any{})
		require.NoError(t, err)
	}

	page, err := store.ListSuites(ctx, f, Filter{}, Sort{Field: SortByName}, "", 2)
	require.NoError(t, err)
	assert.Len(t, page.Suites, 2)
	assert.NotEmpty(t, page.NextCursor)

	next, err := store.ListSuites(ctx, f, Filter{}, Sort{Field: SortByName}, page.NextCursor, 2)
	require.NoError(t, err)
	assert.Len(t, next.Suites, 1)
	assert.Empty(t, next.NextCursor)
}

func TestListSuites_TenantIsolation(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.CreateSuite(ctx, adminFacade(), "s1", map[string]any{})
	require.NoError(t, err)

	other := authctx.New("tenant-b", "admin", "user-2")
	page, err := store.ListSuites(ctx, other, Filter{}, Sort{}, "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Suites)
}
