package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/evalcore/evalcore/api"
	"github.com/evalcore/evalcore/authctx"
	"github.com/evalcore/evalcore/execution"
	"github.com/evalcore/evalcore/orchestrator"
	"github.com/evalcore/evalcore/types"
	"go.uber.org/zap"
)

// ExecutionHandler handles execution lifecycle requests: starting a run,
// polling status and summary, cancelling, and streaming live progress over
// SSE.
type ExecutionHandler struct {
	orch   *orchestrator.Orchestrator
	execs  *execution.Store
	logger *zap.Logger
}

// NewExecutionHandler builds an ExecutionHandler.
func NewExecutionHandler(orch *orchestrator.Orchestrator, execs *execution.Store, logger *zap.Logger) *ExecutionHandler {
	return &ExecutionHandler{orch: orch, execs: execs, logger: logger.With(zap.String("component", "execution_handler"))}
}

// Start handles POST /api/v1/evaluation/suites/{suite_id}/execute. The
// response is 202 Accepted: the execution runs asynchronously on the
// orchestrator's worker pool, never inline with the request.
func (h *ExecutionHandler) Start(w http.ResponseWriter, r *http.Request) {
	f, err := authctx.FromContext(r.Context())
	if err != nil {
		WriteError(w, asAPIError(err), h.logger)
		return
	}

	suiteID := r.PathValue("suite_id")
	var req api.StartExecutionRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	executionID, serr := h.orch.Start(r.Context(), f, suiteID, orchestrator.StartParams{
		SystemID:       req.SystemID,
		MaxConcurrent:  req.MaxConcurrent,
		IdempotencyKey: req.IdempotencyKey,
	})
	if serr != nil {
		WriteError(w, asAPIError(serr), h.logger)
		return
	}

	WriteAccepted(w, api.StartExecutionResponse{ExecutionID: executionID})
}

// Status handles GET .../executions/{execution_id}/status.
func (h *ExecutionHandler) Status(w http.ResponseWriter, r *http.Request) {
	f, err := authctx.FromContext(r.Context())
	if err != nil {
		WriteError(w, asAPIError(err), h.logger)
		return
	}

	executionID := r.PathValue("execution_id")
	view, serr := h.execs.GetStatus(r.Context(), f, executionID)
	if serr != nil {
		WriteError(w, asAPIError(serr), h.logger)
		return
	}

	WriteSuccess(w, api.ExecutionStatusResponse{
		Status:      string(view.Status),
		ProgressPct: view.ProgressPct,
	})
}

// Summary handles GET .../executions/{execution_id}/summary.
func (h *ExecutionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	f, err := authctx.FromContext(r.Context())
	if err != nil {
		WriteError(w, asAPIError(err), h.logger)
		return
	}

	executionID := r.PathValue("execution_id")
	summary, serr := h.execs.GetSummary(r.Context(), f, executionID)
	if serr != nil {
		WriteError(w, asAPIError(serr), h.logger)
		return
	}

	resp := api.ExecutionSummaryResponse{
		ExecutionID: summary.ExecutionID,
		Status:      string(summary.Status),
		TotalCases:  summary.TotalCases,
	}
	for _, e := range summary.Evaluators {
		resp.Evaluators = append(resp.Evaluators, api.EvaluatorSummaryResponse{
			Kind:       e.Kind,
			Total:      e.Total,
			Passed:     e.Passed,
			Failed:     e.Failed,
			PassRate:   e.PassRate,
			P50Latency: e.P50Latency,
			P95Latency: e.P95Latency,
			ErrorCount: e.ErrorCount,
		})
	}
	WriteSuccess(w, resp)
}

// Cancel handles POST .../executions/{execution_id}/cancel. Cancellation is
// best-effort and observed cooperatively by whichever worker is running the
// job; this call only marks the execution cancelled and returns.
func (h *ExecutionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	f, err := authctx.FromContext(r.Context())
	if err != nil {
		WriteError(w, asAPIError(err), h.logger)
		return
	}

	executionID := r.PathValue("execution_id")
	if cerr := h.orch.Cancel(r.Context(), f, executionID); cerr != nil {
		WriteError(w, asAPIError(cerr), h.logger)
		return
	}

	WriteSuccess(w, api.CancelExecutionResponse{ExecutionID: executionID, Status: string(execution.StatusCancelled)})
}

// Events handles GET .../executions/{execution_id}/events, streaming the
// Execution Store's progress frames and its terminal frame as Server-Sent
// Events. The Runner's per-case event frames are not part of this stream.
func (h *ExecutionHandler) Events(w http.ResponseWriter, r *http.Request) {
	f, err := authctx.FromContext(r.Context())
	if err != nil {
		WriteError(w, asAPIError(err), h.logger)
		return
	}

	executionID := r.PathValue("execution_id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, types.NewError(types.KindInternal, "streaming not supported"), h.logger)
		return
	}

	events, serr := h.execs.StreamProgress(r.Context(), f, executionID, 0)
	if serr != nil {
		WriteError(w, asAPIError(serr), h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for frame := range events {
		payload, _ := json.Marshal(toEventFrameResponse(frame))
		fmt.Fprintf(w, "event: %s\n", frame.Kind)
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
}

func toEventFrameResponse(f execution.EventFrame) api.EventFrameResponse {
	return api.EventFrameResponse{
		Kind:        f.Kind,
		ExecutionID: f.ExecutionID,
		Status:      string(f.Status),
		ProgressPct: f.ProgressPct,
		CaseID:      f.CaseID,
		Evaluator:   f.Evaluator,
	}
}
