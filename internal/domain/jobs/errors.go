package jobs

import "errors"

var (
	// ErrInvalidJob is returned when a queue payload cannot be decoded into a job.
	ErrInvalidJob = errors.New("invalid job payload")
	// ErrJobFailed is returned when a stage tries to move a failed job.
	ErrJobFailed = errors.New("job already failed")
	// ErrQueueUnavailable is returned when the broker does not accept a message.
	ErrQueueUnavailable = errors.New("queue unavailable")
	// ErrRetriesExhausted marks a job failed by the queue after the last delivery attempt.
	ErrRetriesExhausted = errors.New("delivery retries exhausted")

	// ErrMissingDependency is fatal: a required upstream result is absent.
	ErrMissingDependency = errors.New("missing upstream result")
	// ErrInsufficientContent is fatal: extracted text is too short to evaluate.
	ErrInsufficientContent = errors.New("insufficient content")
	// ErrUnsupportedFormat is fatal: no extractor can read the source file.
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

// IsFatal reports whether err is a business failure that must fail the job
// and refund credits instead of being retried by the queue.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMissingDependency) ||
		errors.Is(err, ErrInsufficientContent) ||
		errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrRetriesExhausted)
}

// FailureMessage is the user-facing text stored on a failed record.
func FailureMessage(err error) string {
	const refunded = " Your credits have been refunded."
	switch {
	case errors.Is(err, ErrInsufficientContent):
		return "The document does not contain enough readable text to analyze." + refunded
	case errors.Is(err, ErrUnsupportedFormat):
		return "The document format could not be read." + refunded
	default:
		return "We could not finish analyzing this document." + refunded
	}
}
