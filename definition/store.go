package definition

import (
	"context"
	"errors"
	"fmt"
	"strings"
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

// Store is the Definition Store: durable, versioned, tenant-scoped storage
// of suites and test cases. All mutations run through
// internal/database.PoolManager's transaction/retry discipline.
type Store struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

// NewStore builds a Definition Store over an already-initialized pool.
func NewStore(pool *database.PoolManager, logger *zap.Logger) *Store {
	return &Store{pool: pool, logger: logger.With(zap.String("component", "definition_store"))}
}

// CreateSuite inserts a new Suite at version 1 and its first history row in
// a single transaction. Fails with Conflict if (tenant, name) already
// exists.
func (s *Store) CreateSuite(ctx context.Context, f authctx.Facade, name string, evaluatorConfig map[string]any) (*Suite, error) {
	if err := f.Require(authctx.CapabilityManageSuites); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, types.NewError(types.KindInvalid, "name must not be empty")
	}

	now := time.Now().UTC()
	suite := Suite{
		ID:              uuid.NewString(),
		TenantID:        f.TenantID,
		Name:            name,
		EvaluatorConfig: dbtype.JSONMap(evaluatorConfig),
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Suite{}).
			Where("tenant_id = ? AND name = ?", f.TenantID, name).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return types.NewError(types.KindConflict, "suite name already exists for tenant")
		}

		if err := tx.Create(&suite).Error; err != nil {
			return err
		}

		version := SuiteVersion{
			EntityID:        suite.ID,
			Version:         1,
			TenantID:        f.TenantID,
			Name:            name,
			EvaluatorConfig: suite.EvaluatorConfig,
			RecordedAt:      now,
		}
		return tx.Create(&version).Error
	})
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return &suite, nil
}

// UpdateSuite atomically appends the patched suite to its history sibling
// as the next version and increments the suite row's version. The suite row is locked for the
// duration of the transaction so concurrent updates serialize; when
// patch.ExpectedVersion is set, a caller racing against a writer that
// already landed observes StaleVersion instead of silently overwriting it.
func (s *Store) UpdateSuite(ctx context.Context, f authctx.Facade, suiteID string, patch SuitePatch) (*Suite, error) {
	if err := f.Require(authctx.CapabilityManageSuites); err != nil {
		return nil, err
	}

	var updated Suite
	err := s.pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		lockedQuery := tx
		// SELECT ... FOR UPDATE is a Postgres-only row lock; SQLite (used
		// for the in-memory test double) serializes writers at the
		// connection level and doesn't parse the clause at all.
		if tx.Dialector.Name() == "postgres" {
			lockedQuery = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var suite Suite
		if err := lockedQuery.
			Where("id = ? AND tenant_id = ?", suiteID, f.TenantID).
			First(&suite).Error; err != nil {
			return err
		}

		if patch.ExpectedVersion != 0 && patch.ExpectedVersion != suite.Version {
			return types.NewError(types.KindStaleVersion, "suite has been updated since it was read")
		}

		nextVersion := suite.Version + 1
		now := time.Now().UTC()

		history := SuiteVersion{
			EntityID:        suite.ID,
			Version:         nextVersion,
			TenantID:        suite.TenantID,
			Name:            suite.Name,
			EvaluatorConfig: patch.EvaluatorConfig,
			RecordedAt:      now,
		}
		if err := tx.Create(&history).Error; err != nil {
			return err
		}

		suite.EvaluatorConfig = patch.EvaluatorConfig
		suite.Version = nextVersion
		suite.UpdatedAt = now
		if err := tx.Save(&suite).Error; err != nil {
			return err
		}

		updated = suite
		return nil
	})
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return &updated, nil
}

// AddCase inserts a new TestCase at version 1, requiring the parent suite to
// exist and be owned by the caller's tenant.
func (s *Store) AddCase(ctx context.Context, f authctx.Facade, suiteID string, payload CasePayload) (*TestCase, error) {
	if err := f.Require(authctx.CapabilityManageSuites); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tc := TestCase{
		ID:                   uuid.NewString(),
		TenantID:             f.TenantID,
		SuiteID:              suiteID,
		EvaluatorKinds:       dbtype.StringSlice(payload.EvaluatorKinds),
		Expected:             dbtype.JSONMap(payload.Expected),
		UserInput:            payload.UserInput,
		Context:              dbtype.JSONMap(payload.Context),
		SourceConversationID: payload.SourceConversationID,
		Version:              1,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err := s.pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Suite{}).
			Where("id = ? AND tenant_id = ?", suiteID, f.TenantID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return types.NewError(types.KindNotFound, "suite not found")
		}

		if err := tx.Create(&tc).Error; err != nil {
			return err
		}

		version := TestCaseVersion{
			EntityID:       tc.ID,
			Version:        1,
			TenantID:       f.TenantID,
			SuiteID:        suiteID,
			EvaluatorKinds: tc.EvaluatorKinds,
			Expected:       tc.Expected,
			UserInput:      tc.UserInput,
			Context:        tc.Context,
			RecordedAt:     now,
		}
		return tx.Create(&version).Error
	})
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return &tc, nil
}

// ListSuites returns one cursor-paginated page of suites matching filter,
// ordered by sort with the primary key always appended as a stable
// tiebreaker.
func (s *Store) ListSuites(ctx context.Context, f authctx.Facade, filter Filter, sort Sort, cursorToken string, limit int) (*Page, error) {
	if err := f.Require(authctx.CapabilityReadExecutions); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	cur, err := decodeCursor(cursorToken)
	if err != nil {
		return nil, types.NewError(types.KindInvalid, err.Error())
	}

	db := s.pool.DB().WithContext(ctx).Model(&Suite{}).Where("tenant_id = ?", f.TenantID)

	if filter.NameEquals != "" {
		db = db.Where("name = ?", filter.NameEquals)
	}
	if len(filter.NameIn) > 0 {
		db = db.Where("name IN ?", filter.NameIn)
	}
	if filter.NameContains != "" {
		db = db.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(filter.NameContains)+"%")
	}
	if filter.VersionGTE != nil {
		db = db.Where("version >= ?", *filter.VersionGTE)
	}
	if filter.VersionLTE != nil {
		db = db.Where("version <= ?", *filter.VersionLTE)
	}

	field := string(sort.Field)
	if field == "" {
		field = string(SortByCreatedAt)
	}
	dir := "ASC"
	cmp := ">"
	if sort.Descending {
		dir = "DESC"
		cmp = "<"
	}

	if cur.LastID != "" {
		// Version and created_at are compared as typed values, name as text.
		var sortArg any = cur.SortValue
		switch SortField(field) {
		case SortByVersion:
			var n int
			_, _ = fmt.Sscanf(cur.SortValue, "%d", &n)
			sortArg = n
		case SortByCreatedAt:
			ts, _ := time.Parse(time.RFC3339Nano, cur.SortValue)
			sortArg = ts
		}
		db = db.Where("("+field+", id) "+cmp+" (?, ?)", sortArg, cur.LastID)
	}

	var rows []Suite
	if err := db.Order(field + " " + dir + ", id " + dir).Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, wrapStoreError(err)
	}

	page := &Page{}
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		page.NextCursor = encodeCursor(cursor{SortValue: sortValueOf(last, SortField(field)), LastID: last.ID})
	}
	page.Suites = rows
	return page, nil
}

func sortValueOf(s Suite, field SortField) string {
	switch field {
	case SortByVersion:
		// ListSuites parses this back into an integer for the cursor
		// predicate.
		return fmt.Sprintf("%020d", s.Version)
	case SortByCreatedAt:
		return s.CreatedAt.Format(time.RFC3339Nano)
	default:
		return s.Name
	}
}

// GetSuiteForExecution returns an immutable snapshot of the suite (at the
// requested historical version, or the current version if omitted) and the
// current set of test cases belonging to it. The version pinned here is
// what the Execution Store records against the run.
func (s *Store) GetSuiteForExecution(ctx context.Context, f authctx.Facade, suiteID string, version int) (*Suite, []TestCase, error) {
	if err := f.Require(authctx.CapabilityExecuteSuite); err != nil {
		return nil, nil, err
	}

	var suite Suite
	if err := s.pool.DB().WithContext(ctx).
		Where("id = ? AND tenant_id = ?", suiteID, f.TenantID).
		First(&suite).Error; err != nil {
		return nil, nil, wrapStoreError(err)
	}

	if version != 0 && version != suite.Version {
		var hv SuiteVersion
		if err := s.pool.DB().WithContext(ctx).
			Where("entity_id = ? AND version = ? AND tenant_id = ?", suiteID, version, f.TenantID).
			First(&hv).Error; err != nil {
			return nil, nil, wrapStoreError(err)
		}
		suite.Name = hv.Name
		suite.EvaluatorConfig = hv.EvaluatorConfig
		suite.Version = hv.Version
	}

	var cases []TestCase
	if err := s.pool.DB().WithContext(ctx).
		Where("suite_id = ? AND tenant_id = ?", suiteID, f.TenantID).
		Order("created_at ASC").
		Find(&cases).Error; err != nil {
		return nil, nil, wrapStoreError(err)
	}

	return &suite, cases, nil
}

// CompareSuiteVersions reports the fields that differ between two recorded
// versions of a suite.
func (s *Store) CompareSuiteVersions(ctx context.Context, f authctx.Facade, suiteID string, v1, v2 int) (*Diff, error) {
	if err := f.Require(authctx.CapabilityReadExecutions); err != nil {
		return nil, err
	}

	var a, b SuiteVersion
	if err := s.pool.DB().WithContext(ctx).
		Where("entity_id = ? AND version = ? AND tenant_id = ?", suiteID, v1, f.TenantID).
		First(&a).Error; err != nil {
		return nil, wrapStoreError(err)
	}
	if err := s.pool.DB().WithContext(ctx).
		Where("entity_id = ? AND version = ? AND tenant_id = ?", suiteID, v2, f.TenantID).
		First(&b).Error; err != nil {
		return nil, wrapStoreError(err)
	}

	diff := &Diff{SuiteID: suiteID, FromVersion: v1, ToVersion: v2}
	if a.Name != b.Name {
		diff.Changes = append(diff.Changes, FieldDiff{Field: "name", Old: a.Name, New: b.Name})
	}
	if !jsonMapEqual(a.EvaluatorConfig, b.EvaluatorConfig) {
		diff.Changes = append(diff.Changes, FieldDiff{Field: "evaluator_config", Old: a.EvaluatorConfig, New: b.EvaluatorConfig})
	}
	return diff, nil
}

// RestoreSuite creates a new version whose fields equal a historical
// version's definition. The version counter only ever advances.
func (s *Store) RestoreSuite(ctx context.Context, f authctx.Facade, suiteID string, version int) (*Suite, error) {
	if err := f.Require(authctx.CapabilityManageSuites); err != nil {
		return nil, err
	}

	var hv SuiteVersion
	if err := s.pool.DB().WithContext(ctx).
		Where("entity_id = ? AND version = ? AND tenant_id = ?", suiteID, version, f.TenantID).
		First(&hv).Error; err != nil {
		return nil, wrapStoreError(err)
	}

	return s.UpdateSuite(ctx, f, suiteID, SuitePatch{EvaluatorConfig: hv.EvaluatorConfig})
}

func jsonMapEqual(a, b dbtype.JSONMap) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func wrapStoreError(err error) error {
	var apiErr *types.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.NewError(types.KindNotFound, "record not found").WithCause(err)
	}
	return types.NewError(types.KindInternal, "definition store failure").WithCause(err)
}
