package runner

import (
	"context"
	"sync"
	"time"

	"github.com/evalcore/evalcore/authctx"
	"github.com/evalcore/evalcore/conversation"
	"github.com/evalcore/evalcore/definition"
	"github.com/evalcore/evalcore/evaluator"
	"github.com/evalcore/evalcore/execution"
	"github.com/evalcore/evalcore/types"
	"go.uber.org/zap"
)

// DefaultEvaluatorFanout bounds how many evaluators run concurrently within
// a single case.
const DefaultEvaluatorFanout = 4

// DefaultEvaluatorTimeout bounds a single evaluator call.
const DefaultEvaluatorTimeout = 30 * time.Second

// Config tunes a Runner.
type Config struct {
	EvaluatorFanout  int
	EvaluatorTimeout time.Duration
}

// DefaultConfig returns sane defaults for a Runner.
func DefaultConfig() Config {
	return Config{
		EvaluatorFanout:  DefaultEvaluatorFanout,
		EvaluatorTimeout: DefaultEvaluatorTimeout,
	}
}

// Runner executes a single TestCase end-to-end: invoking the target
// conversation, then fanning its evaluator_kinds out to the Evaluator
// Registry. Concurrency within a case is bounded by a semaphore, grounded
// on agent/evaluation/evaluator.go's `sem := make(chan struct{}, n)`
// pattern, generalized here from per-suite to per-case.
type Runner struct {
	store  *execution.Store
	conv   conversation.Port
	cfg    Config
	events *Broadcaster
	logger *zap.Logger
}

// New builds a Runner. events may be nil, in which case case_started/
// case_finished frames are simply not emitted (the Orchestrator still sees
// execution-level progress through the Execution Store).
func New(store *execution.Store, conv conversation.Port, cfg Config, events *Broadcaster, logger *zap.Logger) *Runner {
	if cfg.EvaluatorFanout <= 0 {
		cfg.EvaluatorFanout = DefaultEvaluatorFanout
	}
	if cfg.EvaluatorTimeout <= 0 {
		cfg.EvaluatorTimeout = DefaultEvaluatorTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{store: store, conv: conv, cfg: cfg, events: events, logger: logger}
}

// RunCase executes tc within exec, using systemID (taken from the
// execution's parameters) as the conversation target. It never returns an
// error for a failed conversation call or a failed evaluator: those are
// recorded as CaseResult rows under a failure-isolation contract. It
// returns an error only when the Execution Store itself is unreachable for
// the pre-create step, since without pending rows there is nothing to
// record results into.
func (r *Runner) RunCase(ctx context.Context, f authctx.Facade, exec *execution.Execution, tc *definition.TestCase, systemID string) error {
	r.emit(execution.EventFrame{Kind: "case_started", ExecutionID: exec.ID, CaseID: tc.ID})

	results, err := r.store.RecordCaseStart(ctx, f, exec.ID, tc.ID, tc.Version, []string(tc.EvaluatorKinds))
	if err != nil {
		return err
	}

	idempotencyKey := exec.ID + ":" + tc.ID
	convResp, convErr := r.conv.Invoke(ctx, conversation.Request{
		UserInput:      tc.UserInput,
		Context:        map[string]any(tc.Context),
		SystemID:       systemID,
		IdempotencyKey: idempotencyKey,
	})

	if convErr != nil {
		kind := string(types.GetErrorKind(convErr))
		for _, row := range results {
			r.recordFailed(ctx, f, row.ID, kind)
		}
		r.emit(execution.EventFrame{Kind: "case_finished", ExecutionID: exec.ID, CaseID: tc.ID})
		return nil
	}

	r.evaluateAll(ctx, f, tc, results, convResp)
	r.emit(execution.EventFrame{Kind: "case_finished", ExecutionID: exec.ID, CaseID: tc.ID})
	return nil
}

func (r *Runner) evaluateAll(ctx context.Context, f authctx.Facade, tc *definition.TestCase, results []execution.CaseResult, convResp conversation.Response) {
	sem := make(chan struct{}, r.cfg.EvaluatorFanout)
	var wg sync.WaitGroup

	for _, row := range results {
		wg.Add(1)
		go func(row execution.CaseResult) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			r.evaluateOne(ctx, f, tc, row, convResp)
		}(row)
	}
	wg.Wait()
}

func (r *Runner) evaluateOne(ctx context.Context, f authctx.Facade, tc *definition.TestCase, row execution.CaseResult, convResp conversation.Response) {
	ev, ok := evaluator.Get(row.EvaluatorKind)
	if !ok {
		r.recordSkipped(ctx, f, row.ID, convResp)
		return
	}

	evalCtx, cancel := context.WithTimeout(ctx, r.cfg.EvaluatorTimeout)
	defer cancel()

	in := evaluator.Input{
		UserInput:      tc.UserInput,
		Context:        map[string]any(tc.Context),
		SystemResponse: convResp.Text,
		Threshold:      thresholdFor(map[string]any(tc.Expected), row.EvaluatorKind),
	}

	verdict, err := ev.Evaluate(evalCtx, in)
	if err != nil {
		r.recordEvalError(ctx, f, row.ID, convResp, err)
		return
	}

	score := verdict.Score
	passed := verdict.Passed
	if _, err := r.store.RecordCaseResult(ctx, f, row.ID, execution.Verdict{
		Status:         execution.CaseStatusOK,
		Score:          &score,
		Passed:         &passed,
		Reasoning:      verdict.Reasoning,
		SystemResponse: convResp.Text,
		LatencyMs:      convResp.LatencyMs,
	}); err != nil {
		r.logger.Error("runner: failed to record case result", zap.String("result_id", row.ID), zap.Error(err))
	}
}

func (r *Runner) recordFailed(ctx context.Context, f authctx.Facade, resultID, errorKind string) {
	if _, err := r.store.RecordCaseResult(ctx, f, resultID, execution.Verdict{
		Status:    execution.CaseStatusFailed,
		ErrorKind: errorKind,
	}); err != nil {
		r.logger.Error("runner: failed to record case result", zap.String("result_id", resultID), zap.Error(err))
	}
}

func (r *Runner) recordSkipped(ctx context.Context, f authctx.Facade, resultID string, convResp conversation.Response) {
	if _, err := r.store.RecordCaseResult(ctx, f, resultID, execution.Verdict{
		Status:         execution.CaseStatusSkipped,
		ErrorKind:      "unknown_evaluator",
		SystemResponse: convResp.Text,
		LatencyMs:      convResp.LatencyMs,
	}); err != nil {
		r.logger.Error("runner: failed to record case result", zap.String("result_id", resultID), zap.Error(err))
	}
}

func (r *Runner) recordEvalError(ctx context.Context, f authctx.Facade, resultID string, convResp conversation.Response, evalErr error) {
	if _, err := r.store.RecordCaseResult(ctx, f, resultID, execution.Verdict{
		Status:         execution.CaseStatusFailed,
		ErrorKind:      "evaluator_error",
		Reasoning:      evalErr.Error(),
		SystemResponse: convResp.Text,
		LatencyMs:      convResp.LatencyMs,
	}); err != nil {
		r.logger.Error("runner: failed to record case result", zap.String("result_id", resultID), zap.Error(err))
	}
}

func (r *Runner) emit(frame execution.EventFrame) {
	if r.events != nil {
		r.events.Publish(frame)
	}
}

// thresholdFor extracts a per-kind minimum score from a TestCase's Expected
// map, if present, tolerating either a float64 (what decoding JSON, and so
// a dbtype.JSONMap round-trip, yields) or an int (a map built in Go).
func thresholdFor(expected map[string]any, kind string) *float64 {
	if expected == nil {
		return nil
	}
	raw, ok := expected[kind]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	default:
		return nil
	}
}
