// Package pipeline holds the stage handlers. Each invocation is stateless:
// it decodes the job from the queue payload, reads earlier results from the
// status store, does its work and publishes the next hop.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bryanwahyu/paperscore/internal/application"
	appai "github.com/bryanwahyu/paperscore/internal/application/ai"
	"github.com/bryanwahyu/paperscore/internal/domain/analyst"
	"github.com/bryanwahyu/paperscore/internal/domain/documents"
	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
	"github.com/bryanwahyu/paperscore/internal/domain/review"
	"github.com/bryanwahyu/paperscore/internal/domain/stageerrors"
	"github.com/bryanwahyu/paperscore/internal/telemetry"
)

// DefaultMinContentChars is the shortest extracted text worth evaluating.
const DefaultMinContentChars = 500

// Extractor turns raw file bytes into plain text.
type Extractor interface {
	Extract(ctx context.Context, fileName string, data []byte) (string, error)
}

type PreAnalyzer interface {
	Analyze(ctx context.Context, doc review.ExtractedDocument) review.PreAnalysis
}

type Evaluator interface {
	Evaluate(ctx context.Context, agents []appai.Agent, in appai.AgentInput, progress appai.ProgressFunc) []review.AgentResult
}

type CrossValidator interface {
	Validate(ctx context.Context, doc review.ExtractedDocument, results []review.AgentResult) review.CrossValidation
}

// Outcome is the body a stage handler acknowledges a delivery with.
type Outcome struct {
	Success   bool   `json:"success"`
	Duplicate bool   `json:"duplicate,omitempty"`
	JobID     string `json:"job_id,omitempty"`
	Stage     string `json:"stage,omitempty"`
	Step      int    `json:"step,omitempty"`
	Next      string `json:"next,omitempty"`
}

// Runner executes stages.
type Runner struct {
	Documents      documents.Repository
	Ledger         documents.CreditLedger
	Status         jobs.StatusStore
	Source         documents.Source
	Extractor      Extractor
	PreAnalyzer    PreAnalyzer
	Evaluator      Evaluator
	CrossValidator CrossValidator
	Analysts       analyst.Repository
	Errors         stageerrors.Repository
	Chain          *Chain
	Clock          application.Clock
	Logger         *zap.Logger
	Metrics        *telemetry.Metrics

	MinContentChars int
}

func (r *Runner) now() time.Time {
	if r.Clock == nil {
		return time.Now().UTC()
	}
	return r.Clock.Now()
}

func (r *Runner) log() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// DecodeJob parses and validates a queue payload.
func DecodeJob(body []byte) (jobs.Job, error) {
	var j jobs.Job
	if err := json.Unmarshal(body, &j); err != nil {
		return j, fmt.Errorf("%w: %v", jobs.ErrInvalidJob, err)
	}
	if err := j.Validate(); err != nil {
		return j, err
	}
	return j, nil
}

// Handle runs one delivery of stage. Returned errors are classified by the
// HTTP layer: jobs.ErrInvalidJob, documents.ErrNotFound, jobs.ErrJobFailed,
// fatal business errors and jobs.ErrQueueUnavailable each map to their own
// status; anything else is transient and left to the queue to retry.
func (r *Runner) Handle(ctx context.Context, stage jobs.Stage, body []byte) (Outcome, error) {
	started := time.Now()
	job, err := DecodeJob(body)
	if err != nil {
		return Outcome{}, err
	}
	if cur, _ := job.Stage(); cur != stage {
		return Outcome{}, fmt.Errorf("%w: step %d of %s is %s, not %s", jobs.ErrInvalidJob, job.Step, job.Tier, cur, stage)
	}

	log := r.log().With(zap.String("job_id", job.ID), zap.String("stage", string(stage)), zap.Int("step", job.Step))
	out := Outcome{Success: true, JobID: job.ID, Stage: string(stage), Step: job.Step}

	red, err := r.guard(ctx, job, stage)
	if err != nil {
		r.Metrics.ObserveStage(string(stage), outcomeLabel(err), time.Since(started))
		return Outcome{}, err
	}
	if red != fresh {
		log.Info("duplicate delivery acknowledged")
		if next, nst, ok := jobs.Next(job); ok && red == stepDone {
			if _, err := r.Chain.Enqueue(ctx, next); err != nil {
				return Outcome{}, err
			}
			out.Next = string(nst)
		}
		out.Duplicate = true
		r.Metrics.ObserveStage(string(stage), "duplicate", time.Since(started))
		return out, nil
	}

	if job.StartedAt.IsZero() {
		job.StartedAt = r.now()
	}
	if err := r.markRunning(ctx, job, 0); err != nil {
		r.Metrics.ObserveStage(string(stage), outcomeLabel(err), time.Since(started))
		return Outcome{}, err
	}

	log.Info("stage started")
	result, err := r.run(ctx, stage, job)
	if err != nil {
		if jobs.IsFatal(err) {
			log.Warn("stage failed", zap.Error(err))
			if ferr := r.failJob(ctx, job, stage, err); ferr != nil {
				log.Error("failed to record job failure", zap.Error(ferr))
				err = errors.Join(err, ferr)
			}
		} else {
			log.Error("stage error, leaving retry to the queue", zap.Error(err))
		}
		r.Metrics.ObserveStage(string(stage), outcomeLabel(err), time.Since(started))
		return Outcome{}, err
	}

	if jobs.IsLast(job) {
		if err := r.finish(ctx, job, result); err != nil {
			r.Metrics.ObserveStage(string(stage), outcomeLabel(err), time.Since(started))
			return Outcome{}, err
		}
	} else {
		next, nst, _ := jobs.Next(job)
		if err := r.advance(ctx, job, stage, result, next); err != nil {
			r.Metrics.ObserveStage(string(stage), outcomeLabel(err), time.Since(started))
			return Outcome{}, err
		}
		out.Next = string(nst)
	}

	log.Info("stage completed", zap.Duration("took", time.Since(started)))
	r.Metrics.ObserveStage(string(stage), "ok", time.Since(started))
	return out, nil
}

type redelivery int

const (
	fresh redelivery = iota
	// stepDone: this step already stored its result; only the next hop
	// needs publishing again.
	stepDone
	// jobDone: the primary record is completed.
	jobDone
)

// guard classifies a delivery against what the stores already hold and
// refuses to touch failed jobs.
func (r *Runner) guard(ctx context.Context, job jobs.Job, stage jobs.Stage) (redelivery, error) {
	doc, err := r.Documents.Get(ctx, job.ID)
	if err != nil {
		return fresh, err
	}
	switch doc.Status {
	case documents.StatusCompleted:
		return jobDone, nil
	case documents.StatusFailed:
		return fresh, jobs.ErrJobFailed
	}

	st, err := r.Status.GetStatus(ctx, job.ID)
	if err != nil {
		return fresh, fmt.Errorf("read status: %w", err)
	}
	if st == nil {
		return fresh, nil
	}
	if st.Terminal() {
		return fresh, jobs.ErrJobFailed
	}
	if st.Step > job.Step {
		return stepDone, nil
	}
	if st.Step == job.Step && st.Status == jobs.StatusCompleted && !jobs.IsLast(job) {
		var raw json.RawMessage
		ok, err := r.Status.GetResult(ctx, job.ID, stage.Slot(), &raw)
		if err != nil {
			return fresh, fmt.Errorf("read result: %w", err)
		}
		if ok {
			return stepDone, nil
		}
	}
	return fresh, nil
}

func (r *Runner) markRunning(ctx context.Context, job jobs.Job, progress int) error {
	st := jobs.NewStatus(job, jobs.StatusRunning, progress, r.now())
	if err := r.Status.SetStatus(ctx, job.ID, st); err != nil {
		return err
	}
	if err := r.Documents.UpdateProgress(ctx, job.ID, documents.SnapshotOf(st)); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

func (r *Runner) run(ctx context.Context, stage jobs.Stage, job jobs.Job) (any, error) {
	switch stage {
	case jobs.StageExtract:
		doc, err := r.extract(ctx, job)
		return doc, err
	case jobs.StagePreAnalyze:
		pre, err := r.preAnalyze(ctx, job)
		return pre, err
	case jobs.StageDeepAnalyze:
		results, err := r.deepAnalyze(ctx, job)
		return results, err
	case jobs.StageCrossValidate:
		cv, err := r.crossValidate(ctx, job)
		return cv, err
	case jobs.StageReport:
		rep, err := r.report(ctx, job)
		return rep, err
	}
	return nil, fmt.Errorf("%w: no handler for stage %s", jobs.ErrInvalidJob, stage)
}

// advance stores the step result, marks the step completed and publishes
// the next hop.
func (r *Runner) advance(ctx context.Context, job jobs.Job, stage jobs.Stage, result any, next jobs.Job) error {
	if err := r.Status.SetResult(ctx, job.ID, stage.Slot(), result); err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	st := jobs.NewStatus(job, jobs.StatusCompleted, 100, r.now())
	if err := r.Status.SetStatus(ctx, job.ID, st); err != nil {
		return err
	}
	if err := r.Documents.UpdateProgress(ctx, job.ID, documents.SnapshotOf(st)); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if _, err := r.Chain.Enqueue(ctx, next); err != nil {
		return err
	}
	return nil
}

// finish writes the final report to the primary record and drops the
// transient results.
func (r *Runner) finish(ctx context.Context, job jobs.Job, result any) error {
	rep, ok := result.(review.FinalAnalysisResult)
	if !ok {
		return fmt.Errorf("report stage returned %T", result)
	}
	moved, err := r.Documents.Complete(ctx, job.ID, rep, rep.Metadata.PageCount)
	if err != nil {
		return fmt.Errorf("complete document: %w", err)
	}
	if !moved {
		r.log().Info("document already terminal, report discarded", zap.String("job_id", job.ID))
	} else {
		r.Metrics.JobFinished(string(job.Tier), string(documents.StatusCompleted))
	}

	st := jobs.NewStatus(job, jobs.StatusCompleted, 100, r.now())
	if err := r.Status.SetStatus(ctx, job.ID, st); err != nil && !errors.Is(err, jobs.ErrJobFailed) {
		return err
	}
	if err := r.Status.Cleanup(ctx, job.ID); err != nil {
		r.log().Warn("status cleanup failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	return nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case jobs.IsFatal(err):
		return "fatal"
	case errors.Is(err, jobs.ErrJobFailed):
		return "rejected"
	case errors.Is(err, jobs.ErrInvalidJob), errors.Is(err, documents.ErrNotFound):
		return "invalid"
	default:
		return "error"
	}
}
