package documents

import (
	"context"

	"github.com/bryanwahyu/paperscore/internal/domain/review"
)

// Repository port for the durable job row.
type Repository interface {
	Create(ctx context.Context, d *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	ListByOwner(ctx context.Context, owner string, page, pageSize int) (PaginatedResult, error)
	UpdateProgress(ctx context.Context, id string, ps ProcessingStatus) error
	// MarkFailed reports whether this call moved the row into failed.
	MarkFailed(ctx context.Context, id, message string) (bool, error)
	// Complete stores the final result and bumps the owner's usage counters.
	// It reports whether this call moved the row into completed.
	Complete(ctx context.Context, id string, result review.FinalAnalysisResult, pages int) (bool, error)
	Usage(ctx context.Context, owner string) (Usage, error)
}

// CreditLedger is idempotent per (job, kind).
type CreditLedger interface {
	Debit(ctx context.Context, owner, jobID string, amount int, reason string) (DebitResult, error)
	// Refund reports whether credits were returned by this call.
	Refund(ctx context.Context, owner, jobID string, amount int) (bool, error)
	Balance(ctx context.Context, owner string) (int, error)
}

// Source reads uploaded documents from object storage.
type Source interface {
	Stat(ctx context.Context, ref string) (int64, error)
	Fetch(ctx context.Context, ref string) ([]byte, error)
}
