package handlers

import (
	"net/http"
	"strconv"

	"github.com/evalcore/evalcore/api"
	"github.com/evalcore/evalcore/authctx"
	"github.com/evalcore/evalcore/definition"
	"github.com/evalcore/evalcore/types"
	"go.uber.org/zap"
)

// SuiteHandler handles suite and test-case definition requests, delegating
// every operation to the Definition Store after extracting the caller's
// Context Facade from the request context (populated by the JWT middleware,
// never from the request body).
type SuiteHandler struct {
	store  *definition.Store
	logger *zap.Logger
}

// NewSuiteHandler builds a SuiteHandler.
func NewSuiteHandler(store *definition.Store, logger *zap.Logger) *SuiteHandler {
	return &SuiteHandler{store: store, logger: logger.With(zap.String("component", "suite_handler"))}
}

// Create handles POST /api/v1/evaluation/suites.
func (h *SuiteHandler) Create(w http.ResponseWriter, r *http.Request) {
	f, err := authctx.FromContext(r.Context())
	if err != nil {
		WriteError(w, asAPIError(err), h.logger)
		return
	}

	var req api.CreateSuiteRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	suite, cerr := h.store.CreateSuite(r.Context(), f, req.Name, req.EvaluatorConfig)
	if cerr != nil {
		WriteError(w, asAPIError(cerr), h.logger)
		return
	}

	WriteCreated(w, toSuiteResponse(suite))
}

// List handles GET /api/v1/evaluation/suites.
func (h *SuiteHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := authctx.FromContext(r.Context())
	if err != nil {
		WriteError(w, asAPIError(err), h.logger)
		return
	}

	q := r.URL.Query()
	filter := definition.Filter{
		NameEquals:   q.Get("name"),
		NameContains: q.Get("name_contains"),
	}

	sortField := definition.SortField(q.Get("sort"))
	if sortField == "" {
		sortField = definition.SortByCreatedAt
	}
	sort := definition.Sort{Field: sortField, Descending: q.Get("order") == "desc"}

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, perr := strconv.Atoi(v); perr == nil {
			limit = n
		}
	}

	page, perr := h.store.ListSuites(r.Context(), f, filter, sort, q.Get("cursor"), limit)
	if perr != nil {
		WriteError(w, asAPIError(perr), h.logger)
		return
	}

	resp := api.ListSuitesResponse{NextCursor: page.NextCursor}
	for _, s := range page.Suites {
		resp.Suites = append(resp.Suites, toSuiteResponse(&s))
	}
	WriteSuccess(w, resp)
}

// AddCase handles POST /api/v1/evaluation/suites/{suite_id}/evals.
func (h *SuiteHandler) AddCase(w http.ResponseWriter, r *http.Request) {
	f, err := authctx.FromContext(r.Context())
	if err != nil {
		WriteError(w, asAPIError(err), h.logger)
		return
	}

	suiteID := r.PathValue("suite_id")
	var req api.AddCaseRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	tc, cerr := h.store.AddCase(r.Context(), f, suiteID, definition.CasePayload{
		EvaluatorKinds:       req.EvaluatorKinds,
		Expected:             req.Expected,
		UserInput:            req.UserInput,
		Context:              req.Context,
		SourceConversationID: req.SourceConversationID,
	})
	if cerr != nil {
		WriteError(w, asAPIError(cerr), h.logger)
		return
	}

	WriteCreated(w, toTestCaseResponse(tc))
}

// CompareVersions handles GET .../suites/{suite_id}/versions/{v1}/diff/{v2}.
func (h *SuiteHandler) CompareVersions(w http.ResponseWriter, r *http.Request) {
	f, err := authctx.FromContext(r.Context())
	if err != nil {
		WriteError(w, asAPIError(err), h.logger)
		return
	}

	suiteID := r.PathValue("suite_id")
	v1, err1 := strconv.Atoi(r.PathValue("v1"))
	v2, err2 := strconv.Atoi(r.PathValue("v2"))
	if err1 != nil || err2 != nil {
		WriteError(w, types.NewError(types.KindInvalid, "version must be an integer"), h.logger)
		return
	}

	diff, derr := h.store.CompareSuiteVersions(r.Context(), f, suiteID, v1, v2)
	if derr != nil {
		WriteError(w, asAPIError(derr), h.logger)
		return
	}

	resp := api.CompareVersionsResponse{
		SuiteID:     diff.SuiteID,
		FromVersion: diff.FromVersion,
		ToVersion:   diff.ToVersion,
	}
	for _, c := range diff.Changes {
		resp.Changes = append(resp.Changes, api.FieldDiffResponse{Field: c.Field, Old: c.Old, New: c.New})
	}
	WriteSuccess(w, resp)
}

// Restore handles POST .../suites/{suite_id}/versions/{version}/restore.
func (h *SuiteHandler) Restore(w http.ResponseWriter, r *http.Request) {
	f, err := authctx.FromContext(r.Context())
	if err != nil {
		WriteError(w, asAPIError(err), h.logger)
		return
	}

	suiteID := r.PathValue("suite_id")
	version, verr := strconv.Atoi(r.PathValue("version"))
	if verr != nil {
		WriteError(w, types.NewError(types.KindInvalid, "version must be an integer"), h.logger)
		return
	}

	suite, rerr := h.store.RestoreSuite(r.Context(), f, suiteID, version)
	if rerr != nil {
		WriteError(w, asAPIError(rerr), h.logger)
		return
	}
	WriteSuccess(w, toSuiteResponse(suite))
}

func toSuiteResponse(s *definition.Suite) api.SuiteResponse {
	return api.SuiteResponse{
		SuiteID:         s.ID,
		Name:            s.Name,
		EvaluatorConfig: map[string]any(s.EvaluatorConfig),
		Version:         s.Version,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func toTestCaseResponse(tc *definition.TestCase) api.TestCaseResponse {
	return api.TestCaseResponse{
		CaseID:         tc.ID,
		SuiteID:        tc.SuiteID,
		EvaluatorKinds: []string(tc.EvaluatorKinds),
		Expected:       map[string]any(tc.Expected),
		UserInput:      tc.UserInput,
		Context:        map[string]any(tc.Context),
		Version:        tc.Version,
		CreatedAt:      tc.CreatedAt,
	}
}

// asAPIError normalizes any error returned by a store or orchestrator call
// into a *types.Error, classifying anything unexpected as internal rather
// than leaking it to the caller unclassified.
func asAPIError(err error) *types.Error {
	if apiErr, ok := err.(*types.Error); ok {
		return apiErr
	}
	return types.NewError(types.KindInternal, "unexpected error").WithCause(err)
}
