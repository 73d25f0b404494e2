package stageerrors

import "context"

// Repository defines persistence for stage errors
type Repository interface {
	Save(ctx context.Context, e *StageError) error
	ListByJob(ctx context.Context, jobID string, limit int) ([]*StageError, error)
}
