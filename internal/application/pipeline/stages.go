package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	appai "github.com/bryanwahyu/paperscore/internal/application/ai"
	"github.com/bryanwahyu/paperscore/internal/application/scoring"
	"github.com/bryanwahyu/paperscore/internal/domain/analyst"
	"github.com/bryanwahyu/paperscore/internal/domain/documents"
	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
	"github.com/bryanwahyu/paperscore/internal/domain/review"
)

// extract: step 1.
func (r *Runner) extract(ctx context.Context, job jobs.Job) (review.ExtractedDocument, error) {
	data, err := r.Source.Fetch(ctx, job.SourceFileRef)
	if err != nil {
		return review.ExtractedDocument{}, fmt.Errorf("fetch %s: %w", job.SourceFileRef, err)
	}
	text, err := r.Extractor.Extract(ctx, job.SourceFileName, data)
	if err != nil {
		return review.ExtractedDocument{}, fmt.Errorf("extract %s: %w", job.SourceFileName, err)
	}

	need := r.MinContentChars
	if need <= 0 {
		need = DefaultMinContentChars
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(text)); n < need {
		return review.ExtractedDocument{}, fmt.Errorf("%w: %d characters, need %d", jobs.ErrInsufficientContent, n, need)
	}
	return review.NewExtractedDocument(text), nil
}

// preAnalyze: step 2.
func (r *Runner) preAnalyze(ctx context.Context, job jobs.Job) (review.PreAnalysis, error) {
	doc, err := load[review.ExtractedDocument](ctx, r.Status, job, jobs.StageExtract)
	if err != nil {
		return review.PreAnalysis{}, err
	}
	return r.PreAnalyzer.Analyze(ctx, doc), nil
}

// deepAnalyze: step 3 of standard and comprehensive.
func (r *Runner) deepAnalyze(ctx context.Context, job jobs.Job) ([]review.AgentResult, error) {
	doc, err := load[review.ExtractedDocument](ctx, r.Status, job, jobs.StageExtract)
	if err != nil {
		return nil, err
	}
	pre, err := load[review.PreAnalysis](ctx, r.Status, job, jobs.StagePreAnalyze)
	if err != nil {
		return nil, err
	}

	progress := func(done, total int) {
		st := jobs.NewStatus(job, jobs.StatusRunning, 10+80*done/total, r.now())
		if err := r.Status.SetStatus(ctx, job.ID, st); err != nil {
			r.log().Debug("progress update skipped", zap.String("job_id", job.ID), zap.Error(err))
			return
		}
		if err := r.Documents.UpdateProgress(ctx, job.ID, documents.SnapshotOf(st)); err != nil {
			r.log().Debug("progress update skipped", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	results := r.Evaluator.Evaluate(ctx, appai.AgentsFor(job.Tier), appai.AgentInput{Document: doc, PreAnalysis: pre}, progress)
	r.saveAudit(ctx, job, results)
	return results, nil
}

// crossValidate: step 4 of comprehensive.
func (r *Runner) crossValidate(ctx context.Context, job jobs.Job) (review.CrossValidation, error) {
	doc, err := load[review.ExtractedDocument](ctx, r.Status, job, jobs.StageExtract)
	if err != nil {
		return review.CrossValidation{}, err
	}
	results, err := load[[]review.AgentResult](ctx, r.Status, job, jobs.StageDeepAnalyze)
	if err != nil {
		return review.CrossValidation{}, err
	}
	return r.CrossValidator.Validate(ctx, doc, results), nil
}

// report: last step of every tier.
func (r *Runner) report(ctx context.Context, job jobs.Job) (review.FinalAnalysisResult, error) {
	doc, err := load[review.ExtractedDocument](ctx, r.Status, job, jobs.StageExtract)
	if err != nil {
		return review.FinalAnalysisResult{}, err
	}
	pre, err := load[review.PreAnalysis](ctx, r.Status, job, jobs.StagePreAnalyze)
	if err != nil {
		return review.FinalAnalysisResult{}, err
	}

	in := scoring.ReportInput{
		Tier:        job.Tier,
		Document:    doc,
		PreAnalysis: pre,
		SubmittedAt: job.SubmittedAt,
		Now:         r.now(),
	}
	if jobs.Includes(job.Tier, jobs.StageDeepAnalyze) {
		if in.Results, err = load[[]review.AgentResult](ctx, r.Status, job, jobs.StageDeepAnalyze); err != nil {
			return review.FinalAnalysisResult{}, err
		}
	} else {
		in.Results = appai.FromPreAnalysis(pre)
		r.saveAudit(ctx, job, in.Results)
	}
	if jobs.Includes(job.Tier, jobs.StageCrossValidate) {
		cv, err := load[review.CrossValidation](ctx, r.Status, job, jobs.StageCrossValidate)
		if err != nil {
			return review.FinalAnalysisResult{}, err
		}
		in.Cross = &cv
	}
	return scoring.BuildReport(in), nil
}

// load reads an upstream result. Absence is fatal: the TTL expired or the
// chain was broken, and retrying will not bring it back.
func load[T any](ctx context.Context, s jobs.StatusStore, job jobs.Job, st jobs.Stage) (T, error) {
	v, ok, err := jobs.LoadResult[T](ctx, s, job.ID, st)
	if err != nil {
		return v, fmt.Errorf("read %s result: %w", st, err)
	}
	if !ok {
		return v, fmt.Errorf("%w: %s result for job %s", jobs.ErrMissingDependency, st, job.ID)
	}
	return v, nil
}

// saveAudit keeps one row per agent. Best effort: the report does not read it.
func (r *Runner) saveAudit(ctx context.Context, job jobs.Job, results []review.AgentResult) {
	if r.Analysts == nil {
		return
	}
	for _, res := range results {
		raw, err := json.Marshal(res)
		if err != nil {
			continue
		}
		rec := &analyst.Record{
			JobID:     job.ID,
			OwnerID:   job.OwnerID,
			AgentID:   res.AgentID,
			AgentName: res.AgentName,
			Weight:    res.Weight,
			Score:     res.Score,
			Degraded:  res.Degraded(),
			Result:    string(raw),
			CreatedAt: r.now(),
		}
		if err := r.Analysts.Save(ctx, rec); err != nil {
			r.log().Warn("save agent audit failed", zap.String("job_id", job.ID), zap.String("agent_id", res.AgentID), zap.Error(err))
		}
	}
}
