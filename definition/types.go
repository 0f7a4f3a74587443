package definition

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/evalcore/evalcore/internal/dbtype"
)

// SuitePatch carries the mutable fields of update_suite. ExpectedVersion, if
// non-zero, makes the update optimistic: a caller that read version N and
// submits a patch is rejected with StaleVersion if the row has since moved
// past N, even though the row-level lock already serializes the write.
type SuitePatch struct {
	EvaluatorConfig dbtype.JSONMap
	ExpectedVersion int
}

// CasePayload carries the fields accepted by add_case.
type CasePayload struct {
	EvaluatorKinds       []string
	Expected             map[string]any
	UserInput            string
	Context              map[string]any
	SourceConversationID string
}

// Filter describes the list_suites predicate: per-field operators over name
// and version/created_at, matching the equality / set-membership /
// substring / range / pairwise-inequality categories named by the store
// contract.
type Filter struct {
	NameEquals           string
	NameIn               []string
	NameContains         string // case-insensitive substring
	VersionGTE           *int
	VersionLTE           *int
	CreatedByNEUpdatedBy bool // pairwise inequality, vacuous for Suite (no updated_by column)
}

// SortField is a stable sort key for list_suites. ID is always appended as
// the tiebreaker so pagination never produces duplicate or skipped rows.
type SortField string

const (
	SortByName      SortField = "name"
	SortByVersion   SortField = "version"
	SortByCreatedAt SortField = "created_at"
)

// Sort pairs a field with direction.
type Sort struct {
	Field      SortField
	Descending bool
}

// Page is one page of list_suites results plus an opaque cursor for the
// next page. NextCursor is empty when there are no further rows.
type Page struct {
	Suites     []Suite
	NextCursor string
}

// cursor is the decoded form of the opaque string handed to callers. It
// pins the sort value and id of the last row returned so the next query can
// resume with a stable keyset predicate instead of an OFFSET.
type cursor struct {
	SortValue string `json:"v"`
	LastID    string `json:"id"`
}

func encodeCursor(c cursor) string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeCursor(s string) (cursor, error) {
	var c cursor
	if s == "" {
		return c, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("definition: invalid cursor: %w", err)
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("definition: invalid cursor payload: %w", err)
	}
	return c, nil
}

// FieldDiff is one changed field between two suite versions.
type FieldDiff struct {
	Field string `json:"field"`
	Old   any    `json:"old"`
	New   any    `json:"new"`
}

// Diff is the result of compare_suite_versions.
type Diff struct {
	SuiteID     string      `json:"suite_id"`
	FromVersion int         `json:"from_version"`
	ToVersion   int         `json:"to_version"`
	Changes     []FieldDiff `json:"changes"`
}
