// Package pipeline drives every error group through classification, fix
// proposal and the submission gate, and folds the outcomes into a Result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/logmedic/internal/classify"
	"github.com/ppiankov/logmedic/internal/grouper"
	"github.com/ppiankov/logmedic/internal/llm"
	"github.com/ppiankov/logmedic/internal/logging"
	"github.com/ppiankov/logmedic/internal/metrics"
	"github.com/ppiankov/logmedic/internal/model"
	"github.com/ppiankov/logmedic/internal/retry"
	"github.com/ppiankov/logmedic/internal/scm"
)

const (
	defaultConcurrency  = 4
	defaultContextLimit = 20
	// malformedPenalty is the confidence lost per malformed attempt before
	// a successful one.
	malformedPenalty = 0.25
	cancelledDetail  = "cancelled"
)

// Classifier produces a report for one group.
type Classifier interface {
	Classify(ctx context.Context, in classify.Input) (model.ErrorReport, error)
}

// Proposer produces a fix proposal for a classified group.
type Proposer interface {
	Propose(ctx context.Context, rep model.ErrorReport, g model.ErrorGroup) (model.FixProposal, error)
}

// Prompt is what the operator is asked to approve.
type Prompt struct {
	Index    int
	Total    int
	Group    model.ErrorGroup
	Report   *model.ErrorReport
	Proposal model.FixProposal
}

// Confirmer asks the operator whether to open a pull request.
type Confirmer interface {
	Confirm(ctx context.Context, p Prompt) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, p Prompt) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, p Prompt) (bool, error) { return f(ctx, p) }

// Options configures an Orchestrator.
type Options struct {
	Classifier Classifier
	Proposer   Proposer
	Submitter  scm.Submitter // nil disables submission
	Confirmer  Confirmer     // required for submission in interactive mode
	Mode       Mode
	// Concurrency bounds groups in flight during classification and
	// proposal. Zero means 4.
	Concurrency int
	Retry       retry.Policy
	// ContextLimit caps the same-thread entries handed to the classifier.
	ContextLimit int
	// AutoApplyConfig clears RequiresReview on config changes, outside
	// interactive mode only.
	AutoApplyConfig bool
	Logger          *zap.Logger
	Metrics         *metrics.Metrics
}

// Orchestrator runs the per-group state machine.
type Orchestrator struct {
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// New validates opts and returns an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Classifier == nil {
		return nil, errors.New("pipeline: classifier is required")
	}
	if opts.Mode == "" {
		opts.Mode = ModeInteractive
	}
	if opts.Mode != ModeBatch && opts.Proposer == nil {
		return nil, fmt.Errorf("pipeline: proposer is required in %s mode", opts.Mode)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.ContextLimit <= 0 {
		opts.ContextLimit = defaultContextLimit
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	opts.Retry.Retryable = llm.Retryable
	return &Orchestrator{opts: opts, logger: logging.OrNop(opts.Logger), now: time.Now}, nil
}

// groupRun is the mutable per-group slot. Each slot is written by one
// goroutine at a time: its phase 1 worker, then the phase 2 loop.
type groupRun struct {
	outcome GroupOutcome
	failure *Failure
}

func newGroupRun(g model.ErrorGroup) *groupRun {
	r := &groupRun{outcome: GroupOutcome{Group: g, State: StateParsed, History: []State{StateParsed}, Action: ActionNone}}
	r.to(StateGrouped)
	return r
}

func (r *groupRun) to(s State) {
	if err := Transition(r.outcome.State, s); err != nil {
		panic(fmt.Sprintf("pipeline: group %s: %v", r.outcome.Group.Key, err))
	}
	r.outcome.State = s
	r.outcome.History = append(r.outcome.History, s)
}

func (r *groupRun) fail(stage Stage, detail string, attempts int) {
	r.to(StateFailed)
	r.failure = &Failure{Key: r.outcome.Group.Key, Stage: stage, Detail: detail, Attempts: attempts}
	if stage == StageSubmit {
		r.outcome.Action = ActionFailed
	}
}

func (r *groupRun) skip(reason string) {
	r.to(StateSkipped)
	r.outcome.Action = ActionSkipped
	r.outcome.SkipReason = reason
}

// Run processes every group. It always returns the Result built so far.
// The error is non-nil when the run was aborted: it wraps llm.ErrAuth
// after a credential or quota failure, or the context error after
// cancellation.
func (o *Orchestrator) Run(ctx context.Context, in Input) (*Result, error) {
	start := o.now()
	res := &Result{
		RunID:     uuid.NewString(),
		Mode:      o.opts.Mode,
		Status:    StatusRunning,
		StartedAt: start,
		Source:    in.Source,
		Warnings:  in.Warnings,
		Stats: Stats{
			Lines:    in.Lines,
			Entries:  len(in.Entries),
			Selected: in.Selected,
			Warnings: len(in.Warnings),
		},
	}
	logger := o.logger.With(zap.String("run_id", res.RunID), zap.String("mode", string(o.opts.Mode)))

	var runs []*groupRun
	if in.Groups != nil {
		for g := range in.Groups.All() {
			runs = append(runs, newGroupRun(g))
		}
	}
	res.Stats.Groups = len(runs)
	logger.Info("run started", zap.Int("groups", len(runs)), zap.Int("concurrency", o.opts.Concurrency))

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		abortOnce sync.Once
		abortErr  error
	)
	abort := func(err error) {
		abortOnce.Do(func() {
			abortErr = err
			cancel(err)
		})
	}

	// Phase 1: classify and propose, groups in parallel.
	var eg errgroup.Group
	eg.SetLimit(o.opts.Concurrency)
	for _, r := range runs {
		eg.Go(func() error {
			o.process(runCtx, logger, r, in, abort)
			return nil
		})
	}
	_ = eg.Wait()

	// Phase 2: the submission gate, one group at a time in group order.
	// After an abort nothing is submitted, but proposed groups still get a
	// reason.
	if o.opts.Mode != ModeBatch && abortErr != nil {
		for _, r := range runs {
			if r.outcome.State == StateProposed {
				r.skip("aborted: " + abortErr.Error())
			}
		}
	}
	if o.opts.Mode != ModeBatch && abortErr == nil {
		total := 0
		for _, r := range runs {
			if r.outcome.State == StateProposed {
				total++
			}
		}
		index := 0
		for _, r := range runs {
			if r.outcome.State != StateProposed {
				continue
			}
			index++
			o.gate(runCtx, logger, r, res.RunID, index, total)
		}
	}

	for _, r := range runs {
		res.Groups = append(res.Groups, r.outcome)
		if r.failure != nil {
			res.Failures = append(res.Failures, *r.failure)
		}
		o.opts.Metrics.FinalState(string(r.outcome.State))
	}
	res.FinishedAt = o.now()
	if o.opts.Metrics != nil {
		o.opts.Metrics.RunDuration.Observe(res.Duration().Seconds())
	}

	counts := res.Counts()
	fields := []zap.Field{
		zap.Int("reports", counts.Reports),
		zap.Int("proposals", counts.Proposals),
		zap.Int("submitted", counts.Submissions),
		zap.Int("failed", len(res.Failures)),
		zap.Duration("took", res.Duration()),
	}

	switch {
	case abortErr != nil:
		res.Status = StatusAborted
		logger.Error("run aborted", append(fields, zap.Error(abortErr))...)
		return res, fmt.Errorf("run aborted: %w", abortErr)
	case ctx.Err() != nil:
		res.Status = StatusAborted
		logger.Warn("run cancelled", fields...)
		return res, fmt.Errorf("run cancelled: %w", ctx.Err())
	}
	res.Status = StatusCompleted
	logger.Info("run completed", fields...)
	return res, nil
}

// process runs phase 1 for one group.
func (o *Orchestrator) process(ctx context.Context, logger *zap.Logger, r *groupRun, in Input, abort func(error)) {
	g := r.outcome.Group
	logger = logger.With(zap.Stringer("group", g.Key))

	r.to(StateClassifying)
	if ctx.Err() != nil {
		r.fail(StageClassify, cancelledDetail, 0)
		return
	}
	input := classify.Input{Group: g, Context: grouper.ContextFor(in.Entries, g, o.opts.ContextLimit)}
	rep, attempts, malformed, err := call(ctx, o, StageClassify, logger, func(c context.Context) (model.ErrorReport, error) {
		return o.opts.Classifier.Classify(c, input)
	})
	if err != nil {
		o.stageFailed(ctx, logger, r, StageClassify, attempts, err, abort)
		return
	}
	rep.Attempts = attempts
	rep.Confidence = penalize(rep.Confidence, malformed)
	r.outcome.Report = &rep
	r.to(StateClassified)
	logger.Info("group classified", zap.String("kind", string(rep.Kind)), zap.String("category", string(rep.Category)), zap.Int("attempts", attempts))

	if o.opts.Mode == ModeBatch {
		return
	}

	r.to(StateProposing)
	if ctx.Err() != nil {
		r.fail(StagePropose, cancelledDetail, 0)
		return
	}
	prop, attempts, malformed, err := call(ctx, o, StagePropose, logger, func(c context.Context) (model.FixProposal, error) {
		return o.opts.Proposer.Propose(c, rep, g)
	})
	if err != nil {
		o.stageFailed(ctx, logger, r, StagePropose, attempts, err, abort)
		return
	}
	prop.Confidence = penalize(prop.Confidence, malformed)
	if prop.Kind() == model.KindConfigChange {
		prop.RequiresReview = !(o.opts.AutoApplyConfig && o.opts.Mode != ModeInteractive)
	}
	r.outcome.Proposal = &prop
	r.to(StateProposed)
	logger.Info("fix proposed", zap.String("kind", string(prop.Kind())), zap.Int("attempts", attempts))
}

func (o *Orchestrator) stageFailed(ctx context.Context, logger *zap.Logger, r *groupRun, stage Stage, attempts int, err error, abort func(error)) {
	switch {
	case errors.Is(err, llm.ErrAuth):
		r.fail(stage, err.Error(), attempts)
		logger.Error("collaborator rejected credentials", zap.String("stage", string(stage)), zap.Error(err))
		abort(err)
	case ctx.Err() != nil:
		r.fail(stage, cancelledDetail, attempts)
		logger.Debug("group cancelled", zap.String("stage", string(stage)))
	default:
		r.fail(stage, err.Error(), attempts)
		logger.Warn("group failed", zap.String("stage", string(stage)), zap.Int("attempts", attempts), zap.Error(err))
	}
}

// gate decides whether a proposed group is submitted, and submits it.
func (o *Orchestrator) gate(ctx context.Context, logger *zap.Logger, r *groupRun, runID string, index, total int) {
	prop := *r.outcome.Proposal
	g := r.outcome.Group
	logger = logger.With(zap.Stringer("group", g.Key))

	switch {
	case ctx.Err() != nil:
		r.skip(cancelledDetail)
		return
	case prop.Kind() != model.KindPatch:
		r.skip(fmt.Sprintf("%s must be applied manually", prop.Kind()))
		return
	case o.opts.Mode == ModeDryRun:
		r.skip("dry run")
		return
	case o.opts.Submitter == nil:
		r.skip("no source control configured")
		return
	case o.opts.Mode == ModeInteractive:
		if o.opts.Confirmer == nil {
			r.skip("no operator to confirm")
			return
		}
		ok, err := o.opts.Confirmer.Confirm(ctx, Prompt{Index: index, Total: total, Group: g, Report: r.outcome.Report, Proposal: prop})
		switch {
		case ctx.Err() != nil:
			r.skip(cancelledDetail)
			return
		case err != nil:
			r.skip("confirmation failed: " + err.Error())
			return
		case !ok:
			r.skip("declined by operator")
			o.opts.Metrics.Submission("declined")
			return
		}
	}

	r.to(StateSubmitting)
	sub, err := o.opts.Submitter.Submit(ctx, scm.Request{RunID: runID, Group: g, Report: r.outcome.Report, Proposal: prop})
	if err != nil {
		r.fail(StageSubmit, err.Error(), 1)
		o.opts.Metrics.Submission("failed")
		logger.Warn("submission failed", zap.Error(err))
		return
	}
	r.outcome.Submission = sub
	r.outcome.Action = ActionSubmitted
	r.to(StateSubmitted)
	o.opts.Metrics.Submission("submitted")
	logger.Info("pull request opened", zap.String("url", sub.URL), zap.String("branch", sub.Branch))
}

// call runs fn under the retry policy and counts malformed attempts.
func call[T any](ctx context.Context, o *Orchestrator, stage Stage, logger *zap.Logger, fn func(context.Context) (T, error)) (T, int, int, error) {
	malformed := 0
	onRetry := func(a retry.Attempt) {
		if errors.Is(a.Err, llm.ErrMalformed) {
			malformed++
		}
		o.opts.Metrics.Retry(string(stage))
		logger.Debug("retrying", zap.String("stage", string(stage)), zap.Int("attempt", a.Number), zap.Duration("wait", a.Wait), zap.Error(a.Err))
	}
	v, attempts, err := retry.Do(ctx, o.opts.Retry, onRetry, func(c context.Context) (T, error) {
		started := time.Now()
		v, err := fn(c)
		o.opts.Metrics.ObserveCall(string(stage), outcome(err), time.Since(started))
		return v, err
	})
	return v, attempts, malformed, err
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind, ok := llm.KindOf(err); ok {
		return kind.String()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}

// penalize lowers confidence by malformedPenalty for each malformed
// attempt that preceded the success.
func penalize(c float64, malformed int) float64 {
	if malformed <= 0 {
		return c
	}
	return model.ClampConfidence(c * math.Pow(1-malformedPenalty, float64(malformed)))
}
