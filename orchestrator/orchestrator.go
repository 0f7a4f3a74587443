package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evalcore/evalcore/authctx"
	"github.com/evalcore/evalcore/definition"
	"github.com/evalcore/evalcore/execution"
	"github.com/evalcore/evalcore/queue"
	"github.com/evalcore/evalcore/runner"
	"github.com/evalcore/evalcore/types"
	"go.uber.org/zap"
)

// DefaultPerExecutionConcurrency bounds how many cases of a single
// execution run at once, unless a caller-supplied max_concurrent overrides
// it.
const DefaultPerExecutionConcurrency = 5

// DefaultPollInterval is how often an idle worker checks the queue.
const DefaultPollInterval = 500 * time.Millisecond

// StartParams carries the per-execution parameters a caller supplies to
// start: the target conversation system (carried as
// params["conversation_spec_id"] at the HTTP edge) and an optional override
// of the per-execution case concurrency.
type StartParams struct {
	SystemID       string
	MaxConcurrent  int
	IdempotencyKey string
}

// Config tunes an Orchestrator.
type Config struct {
	PerExecutionConcurrency int
	VisibilityTimeout       time.Duration
	PollInterval            time.Duration
	// CircuitOpen, if set, lets the dispatch loop pause between cases while
	// it reports true instead of dispatching into a connector call it
	// already knows will fail; nil means never pause. cmd/evalcore passes a
	// hook that always reports false, so its dispatch never pauses.
	CircuitOpen func() bool
}

// DefaultConfig returns sane defaults for an Orchestrator.
func DefaultConfig() Config {
	return Config{
		PerExecutionConcurrency: DefaultPerExecutionConcurrency,
		VisibilityTimeout:       queue.DefaultVisibilityTimeout,
		PollInterval:            DefaultPollInterval,
	}
}

// Orchestrator turns start requests into progressing executions: workers
// claim jobs from queue.Queue and drive the Runner for every case in a
// suite. Cancellation is a check against the Execution Store's own
// persisted status between case dispatches, not an in-process flag, so it
// is visible to whichever worker process eventually picks the job up, not
// just the one that issued it.
type Orchestrator struct {
	defs   *definition.Store
	execs  *execution.Store
	runner *runner.Runner
	q      *queue.Queue
	cfg    Config
	logger *zap.Logger
}

// New builds an Orchestrator.
func New(defs *definition.Store, execs *execution.Store, r *runner.Runner, q *queue.Queue, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.PerExecutionConcurrency <= 0 {
		cfg.PerExecutionConcurrency = DefaultPerExecutionConcurrency
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = queue.DefaultVisibilityTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		defs:   defs,
		execs:  execs,
		runner: r,
		q:      q,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "orchestrator")),
	}
}

// Start validates authorization, creates the Execution row (idempotently),
// enqueues a RunExecution job, and returns the execution id. It must
// complete in bounded time: no case work happens inline, only the row
// write and the enqueue.
func (o *Orchestrator) Start(ctx context.Context, f authctx.Facade, suiteID string, params StartParams) (string, error) {
	if err := f.Require(authctx.CapabilityExecuteSuite); err != nil {
		return "", err
	}

	suite, _, err := o.defs.GetSuiteForExecution(ctx, f, suiteID, 0)
	if err != nil {
		return "", err
	}

	exec, created, err := o.execs.CreateExecution(ctx, f, suiteID, suite.Version, params.IdempotencyKey)
	if err != nil {
		return "", err
	}
	if !created {
		return exec.ID, nil
	}

	maxConcurrent := params.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = o.cfg.PerExecutionConcurrency
	}

	if _, err := o.q.Enqueue(ctx, queue.Job{
		ExecutionID:   exec.ID,
		TenantID:      f.TenantID,
		SystemID:      params.SystemID,
		MaxConcurrent: maxConcurrent,
	}); err != nil {
		return "", err
	}
	return exec.ID, nil
}

// Cancel marks the Execution cancelled. Worker loops observe this between
// case dispatches by re-reading the Execution's persisted status; cases
// already started are allowed to finish, their results still recorded. It
// is best-effort: the terminal cancelled state is reached within a bounded
// wind-down period, not immediately, and a worker that has not yet claimed
// the job simply finds it already cancelled once it does.
func (o *Orchestrator) Cancel(ctx context.Context, f authctx.Facade, executionID string) error {
	_, err := o.execs.MarkCancelled(ctx, f, executionID)
	return err
}

// isCancelled asks the Execution Store for the current status rather than
// tracking cancellation in process memory, so it gives the right answer
// regardless of which worker process issued the Cancel and which one is
// running the job.
func (o *Orchestrator) isCancelled(ctx context.Context, f authctx.Facade, executionID string) bool {
	status, err := o.execs.GetStatus(ctx, f, executionID)
	if err != nil {
		return false
	}
	return status.Status == execution.StatusCancelled
}

// RunWorker polls the queue until ctx is cancelled, running at most one
// execution to completion at a time before polling again. A given
// execution is processed by exactly one worker instance at a time; running
// more executions concurrently in one process means running more worker
// goroutines, not accepting more than one in-flight job per worker.
func (o *Orchestrator) RunWorker(ctx context.Context, workerID string) {
	logger := o.logger.With(zap.String("worker_id", workerID))
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		delivery, ok, err := o.q.Dequeue(ctx, o.cfg.VisibilityTimeout)
		if err != nil {
			logger.Error("dequeue failed", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		if err := o.runExecution(ctx, delivery.Job, logger); err != nil {
			logger.Error("execution run failed",
				zap.String("execution_id", delivery.Job.ExecutionID), zap.Error(err))
		}
		if err := o.q.Ack(ctx, delivery.ID); err != nil {
			logger.Error("ack failed", zap.String("job_id", delivery.ID), zap.Error(err))
		}
	}
}

// runExecution loads the Execution and its pinned Suite snapshot, marks it
// running, drives every TestCase through the Runner with bounded
// concurrency, and on exhaustion writes the aggregate summary and marks the
// Execution completed (or failed, only when nothing completed at all).
func (o *Orchestrator) runExecution(ctx context.Context, job queue.Job, logger *zap.Logger) error {
	f := authctx.New(job.TenantID, "worker", "")

	exec, err := o.execs.GetExecution(ctx, f, job.ExecutionID)
	if err != nil {
		return err
	}

	_, cases, err := o.defs.GetSuiteForExecution(ctx, f, exec.SuiteID, exec.SuiteVersion)
	if err != nil {
		o.execs.MarkFailed(ctx, f, exec.ID, types.GetErrorKind(err))
		return err
	}

	// A worker may claim a job for an execution that was cancelled before
	// any worker ever picked it up. MarkRunning has no transition out of a
	// terminal status, so check first: every case still needs a terminal
	// CaseResult row even though the run never starts.
	if exec.Status == execution.StatusCancelled {
		o.skipRemaining(ctx, f, exec.ID, cases, logger)
		return nil
	}

	if _, err := o.execs.MarkRunning(ctx, f, exec.ID); err != nil {
		return err
	}

	if len(cases) == 0 {
		_, err := o.execs.MarkCompleted(ctx, f, exec.ID, map[string]any{"total_cases": 0})
		return err
	}

	concurrency := job.MaxConcurrent
	if concurrency <= 0 {
		concurrency = o.cfg.PerExecutionConcurrency
	}

	o.dispatchCases(ctx, f, exec, cases, job.SystemID, concurrency, logger)

	if o.isCancelled(ctx, f, exec.ID) {
		return nil
	}

	summary, err := o.execs.GetSummary(ctx, f, exec.ID)
	if err != nil {
		return err
	}
	if nothingCompleted(summary) {
		_, err := o.execs.MarkFailed(ctx, f, exec.ID, types.KindInternal)
		return err
	}

	_, err = o.execs.MarkCompleted(ctx, f, exec.ID, summaryToMap(summary))
	return err
}

// dispatchCases fans TestCases out to the Runner bounded by a semaphore —
// the same per-level concurrency pattern as Runner's own per-case evaluator
// fan-out, one level up. Progress is written every N cases
// (N = max(1, total/20)) via UpdateProgress's compare-and-set. A case
// observed after Cancel has fired is pre-created and immediately recorded
// skipped with error_kind="cancelled" instead of being dispatched, so every
// case still gets a terminal CaseResult row.
func (o *Orchestrator) dispatchCases(ctx context.Context, f authctx.Facade, exec *execution.Execution, cases []definition.TestCase, systemID string, concurrency int, logger *zap.Logger) {
	total := len(cases)
	progressEvery := total / 20
	if progressEvery < 1 {
		progressEvery = 1
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var completed atomic.Int64

	for i, tc := range cases {
		if o.isCancelled(ctx, f, exec.ID) {
			o.skipRemaining(ctx, f, exec.ID, cases[i:], logger)
			break
		}
		for o.cfg.CircuitOpen != nil && o.cfg.CircuitOpen() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(o.cfg.PollInterval):
			}
		}

		tc := tc
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if o.isCancelled(ctx, f, exec.ID) {
				o.skipCase(ctx, f, exec.ID, tc, logger)
			} else if err := o.runner.RunCase(ctx, f, exec, &tc, systemID); err != nil {
				logger.Error("case run failed", zap.String("case_id", tc.ID), zap.Error(err))
			}

			n := completed.Add(1)
			if n%int64(progressEvery) == 0 || int(n) == total {
				pct := int(n * 100 / int64(total))
				if err := o.execs.UpdateProgress(ctx, f, exec.ID, pct); err != nil {
					logger.Warn("progress update failed", zap.Error(err))
				}
			}
		}()
	}
	wg.Wait()
}

func (o *Orchestrator) skipRemaining(ctx context.Context, f authctx.Facade, executionID string, cases []definition.TestCase, logger *zap.Logger) {
	for _, tc := range cases {
		o.skipCase(ctx, f, executionID, tc, logger)
	}
}

func (o *Orchestrator) skipCase(ctx context.Context, f authctx.Facade, executionID string, tc definition.TestCase, logger *zap.Logger) {
	rows, err := o.execs.RecordCaseStart(ctx, f, executionID, tc.ID, tc.Version, []string(tc.EvaluatorKinds))
	if err != nil {
		logger.Error("skip case: record start failed", zap.String("case_id", tc.ID), zap.Error(err))
		return
	}
	for _, row := range rows {
		if _, err := o.execs.RecordCaseResult(ctx, f, row.ID, execution.Verdict{
			Status:    execution.CaseStatusSkipped,
			ErrorKind: "cancelled",
		}); err != nil {
			logger.Error("skip case: record result failed", zap.String("result_id", row.ID), zap.Error(err))
		}
	}
}

// nothingCompleted reports whether every recorded CaseResult across every
// evaluator kind errored. An execution is only marked failed outright when
// nothing completed at all; partial failure is summarized, not fatal.
func nothingCompleted(summary *execution.Summary) bool {
	total, errored := 0, 0
	for _, es := range summary.Evaluators {
		total += es.Total
		errored += es.ErrorCount
	}
	return total > 0 && errored == total
}

func summaryToMap(summary *execution.Summary) map[string]any {
	return map[string]any{
		"total_cases": summary.TotalCases,
		"evaluators":  summary.Evaluators,
	}
}
