package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
)

// Routes builds the public URLs the queue delivers to.
type Routes struct {
	BaseURL string
}

func (r Routes) base() string { return strings.TrimRight(r.BaseURL, "/") }

// StageURL is the handler endpoint of a stage.
func (r Routes) StageURL(s jobs.Stage) string { return r.base() + "/stages/" + string(s) }

// CallbackURL receives completion reports.
func (r Routes) CallbackURL() string { return r.base() + "/queue/callback" }

// FailureURL receives reports for messages that exhausted their retries.
func (r Routes) FailureURL() string { return r.base() + "/queue/failure" }

// Chain publishes a job to the stage it is addressed to.
type Chain struct {
	Queue   jobs.Queue
	Routes  Routes
	Budgets map[jobs.Stage]time.Duration
	Retries int
}

// Enqueue publishes job for its current step. The deduplication id is
// derived from job and step, so re-publishing the same hop is a no-op.
func (c *Chain) Enqueue(ctx context.Context, job jobs.Job) (string, error) {
	st, err := job.Stage()
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	id, err := c.Queue.Enqueue(ctx, c.Routes.StageURL(st), payload, jobs.RetryPolicy{
		Retries:         c.Retries,
		DeduplicationID: fmt.Sprintf("%s:%d", job.ID, job.Step),
		Timeout:         c.Budgets[st],
		Callback:        c.Routes.CallbackURL(),
		FailureCallback: c.Routes.FailureURL(),
	})
	if err != nil {
		if errors.Is(err, jobs.ErrQueueUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", jobs.ErrQueueUnavailable, err)
	}
	return id, nil
}
