package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/bryanwahyu/paperscore/internal/domain/documents"
	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
	"github.com/bryanwahyu/paperscore/internal/domain/stageerrors"
)

// failJob moves the job into failed in both stores. The refund is keyed on
// the primary record transition so redeliveries never refund twice.
func (r *Runner) failJob(ctx context.Context, job jobs.Job, stage jobs.Stage, cause error) error {
	msg := jobs.FailureMessage(cause)
	log := r.log().With(zap.String("job_id", job.ID), zap.String("stage", string(stage)))

	st := jobs.NewStatus(job, jobs.StatusFailed, 0, r.now())
	st.Error = msg
	if err := r.Status.SetStatus(ctx, job.ID, st); err != nil && !errors.Is(err, jobs.ErrJobFailed) {
		log.Warn("status store not updated", zap.Error(err))
	}

	moved, err := r.Documents.MarkFailed(ctx, job.ID, msg)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if moved {
		r.Metrics.JobFinished(string(job.Tier), string(documents.StatusFailed))
		if job.Credits > 0 {
			refunded, err := r.Ledger.Refund(ctx, job.OwnerID, job.ID, job.Credits)
			if err != nil {
				return fmt.Errorf("refund: %w", err)
			}
			log.Info("credits refunded", zap.Int("credits", job.Credits), zap.Bool("refunded", refunded))
		}
	}

	if r.Errors != nil {
		details, _ := json.Marshal(map[string]any{"error": cause.Error(), "tier": job.Tier})
		if err := r.Errors.Save(ctx, &stageerrors.StageError{
			JobID:       job.ID,
			OwnerID:     job.OwnerID,
			Stage:       string(stage),
			Step:        job.Step,
			Message:     msg,
			DetailsJSON: string(details),
			CreatedAt:   r.now(),
		}); err != nil {
			log.Warn("save stage error failed", zap.Error(err))
		}
	}
	return nil
}

// HandleFailure processes the queue's report for a message whose retries are
// exhausted. Undecodable reports are acknowledged so they are not resent.
func (r *Runner) HandleFailure(ctx context.Context, body []byte) (Outcome, error) {
	var rep jobs.DeliveryReport
	if err := json.Unmarshal(body, &rep); err != nil {
		r.log().Error("undecodable failure report", zap.Error(err))
		return Outcome{Success: true}, nil
	}
	job, err := DecodeJob(rep.Body)
	if err != nil {
		r.log().Error("failure report carries no valid job", zap.String("message_id", rep.MessageID), zap.Error(err))
		return Outcome{Success: true}, nil
	}
	stage, _ := job.Stage()
	out := Outcome{Success: true, JobID: job.ID, Stage: string(stage), Step: job.Step}

	doc, err := r.Documents.Get(ctx, job.ID)
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			return out, nil
		}
		return Outcome{}, err
	}
	if doc.Status.Terminal() {
		out.Duplicate = true
		return out, nil
	}

	cause := fmt.Errorf("%w after %d attempts (status %d): %s", jobs.ErrRetriesExhausted, rep.Attempts, rep.Status, rep.Error)
	r.log().Warn("delivery retries exhausted", zap.String("job_id", job.ID), zap.String("stage", string(stage)),
		zap.Int("attempts", rep.Attempts), zap.String("error", rep.Error))
	if err := r.failJob(ctx, job, stage, cause); err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// HandleCallback records completion reports; there is nothing to act on.
func (r *Runner) HandleCallback(_ context.Context, body []byte) (Outcome, error) {
	var rep jobs.DeliveryReport
	if err := json.Unmarshal(body, &rep); err != nil {
		r.log().Warn("undecodable completion report", zap.Error(err))
		return Outcome{Success: true}, nil
	}
	r.log().Debug("delivery completed", zap.String("message_id", rep.MessageID), zap.String("url", rep.URL),
		zap.Int("status", rep.Status), zap.Int("attempts", rep.Attempts))
	return Outcome{Success: true}, nil
}
