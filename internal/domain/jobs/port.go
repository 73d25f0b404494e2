package jobs

import (
	"context"
	"time"
)

// StatusStore holds transient job progress and stage results. Every entry
// expires after the store TTL.
type StatusStore interface {
	SetStatus(ctx context.Context, jobID string, st JobStatus) error
	// GetStatus returns nil when no status is stored.
	GetStatus(ctx context.Context, jobID string) (*JobStatus, error)
	SetResult(ctx context.Context, jobID string, slot int, v any) error
	// GetResult decodes the stored value into dst and reports whether it existed.
	GetResult(ctx context.Context, jobID string, slot int, dst any) (bool, error)
	Cleanup(ctx context.Context, jobID string) error
}

// LoadResult reads the result a stage stored for a job.
func LoadResult[T any](ctx context.Context, s StatusStore, jobID string, st Stage) (T, bool, error) {
	var v T
	ok, err := s.GetResult(ctx, jobID, st.Slot(), &v)
	return v, ok, err
}

// RetryPolicy is configured per enqueue.
type RetryPolicy struct {
	Retries         int
	DeduplicationID string
	Timeout         time.Duration
	Callback        string
	FailureCallback string
}

// Queue publishes a payload for at-least-once delivery to url.
type Queue interface {
	Enqueue(ctx context.Context, url string, payload []byte, policy RetryPolicy) (string, error)
}

// Headers attached to every queue delivery.
const (
	HeaderSignature = "Queue-Signature"
	HeaderMessageID = "Queue-Message-Id"
	HeaderRetried   = "Queue-Retried"
)

// SignatureVerifier checks the signature attached to an inbound delivery.
// target is the path the delivery arrived at.
type SignatureVerifier interface {
	Verify(signature, target string, body []byte) bool
}

// DeliveryReport is what the dispatcher posts to a message's completion or
// failure callback. Body is the original payload.
type DeliveryReport struct {
	MessageID string `json:"message_id"`
	URL       string `json:"url"`
	Status    int    `json:"status"`
	Body      []byte `json:"body"`
	Error     string `json:"error,omitempty"`
	Attempts  int    `json:"attempts"`
}
