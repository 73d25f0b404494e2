package analyst

import "context"

// Repository port for persisting and querying agent audit records
type Repository interface {
	Save(ctx context.Context, r *Record) error
	ListByJob(ctx context.Context, jobID string) ([]*Record, error)
}
