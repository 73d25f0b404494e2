package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/bryanwahyu/paperscore/internal/domain/documents"
	"github.com/bryanwahyu/paperscore/internal/domain/review"
)

type DocumentRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const documentColumns = `id, owner_id, file_ref, file_name, tier, status,
       step, total_steps, step_name, progress,
       analysis_result, overall_score, grade, estimated_pages, credits_charged, error_message,
       created_at, updated_at, started_at, completed_at`

// Create insert dokumen baru
func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	const q = `
INSERT INTO documents
(id, owner_id, file_ref, file_name, tier, status,
 step, total_steps, step_name, progress,
 estimated_pages, credits_charged, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,
        $7,$8,$9,$10,
        $11,$12,$13,$14);`

	created := d.CreatedAt
	if created.IsZero() {
		created = r.now()
	}
	updated := d.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	ps := d.ProcessingStatus
	_, err := r.db.ExecContext(ctx, q,
		d.ID, d.OwnerID, d.FileRef, d.FileName, string(d.Tier), string(d.Status),
		ps.Step, ps.TotalSteps, ps.StepName, ps.Progress,
		d.EstimatedPages, d.CreditsCharged, created, updated,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		d         domain.Document
		result    []byte
		score     sql.NullInt64
		started   sql.NullTime
		completed sql.NullTime
	)
	if err := row.Scan(
		&d.ID, &d.OwnerID, &d.FileRef, &d.FileName, &d.Tier, &d.Status,
		&d.ProcessingStatus.Step, &d.ProcessingStatus.TotalSteps, &d.ProcessingStatus.StepName, &d.ProcessingStatus.Progress,
		&result, &score, &d.Grade, &d.EstimatedPages, &d.CreditsCharged, &d.ErrorMessage,
		&d.CreatedAt, &d.UpdatedAt, &started, &completed,
	); err != nil {
		return nil, err
	}
	if len(result) > 0 {
		var res review.FinalAnalysisResult
		if err := json.Unmarshal(result, &res); err != nil {
			return nil, fmt.Errorf("decode analysis_result of %s: %w", d.ID, err)
		}
		d.AnalysisResult = &res
	}
	if score.Valid {
		s := int(score.Int64)
		d.OverallScore = &s
	}
	if started.Valid {
		t := started.Time
		d.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		d.CompletedAt = &t
	}
	return &d, nil
}

func (r *DocumentRepository) Get(ctx context.Context, id string) (*domain.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id=$1 LIMIT 1;`
	d, err := scanDocument(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return d, nil
}

// ListByOwner paginate dokumen milik owner, terbaru dulu
func (r *DocumentRepository) ListByOwner(ctx context.Context, owner string, page, pageSize int) (domain.PaginatedResult, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE owner_id=$1;`, owner).Scan(&total); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("counting documents: %w", err)
	}

	q := `SELECT ` + documentColumns + `
FROM documents
WHERE owner_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3;`
	rows, err := r.db.QueryContext(ctx, q, owner, pageSize, offset)
	if err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var out []*domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return domain.PaginatedResult{}, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("iterating rows: %w", err)
	}
	return domain.NewPaginatedResult(out, page, pageSize, total), nil
}

// UpdateProgress moves a live record to processing. Terminal rows are left alone.
func (r *DocumentRepository) UpdateProgress(ctx context.Context, id string, ps domain.ProcessingStatus) error {
	const q = `
UPDATE documents
SET status = 'processing',
    step = $2,
    total_steps = $3,
    step_name = $4,
    progress = $5,
    started_at = COALESCE(started_at, $6),
    updated_at = $6
WHERE id = $1 AND status NOT IN ('completed','failed');`
	if _, err := r.db.ExecContext(ctx, q, id, ps.Step, ps.TotalSteps, ps.StepName, ps.Progress, r.now()); err != nil {
		return fmt.Errorf("update progress %s: %w", id, err)
	}
	return nil
}

func (r *DocumentRepository) MarkFailed(ctx context.Context, id, message string) (bool, error) {
	const q = `
UPDATE documents
SET status = 'failed',
    error_message = $2,
    completed_at = $3,
    updated_at = $3
WHERE id = $1 AND status NOT IN ('completed','failed');`
	res, err := r.db.ExecContext(ctx, q, id, message, r.now())
	if err != nil {
		return false, fmt.Errorf("mark failed %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	return false, r.mustExist(ctx, r.db, id)
}

// Complete stores the report and bumps owner usage in one transaction. Only
// the call that moves the row into completed touches the counters.
func (r *DocumentRepository) Complete(ctx context.Context, id string, result review.FinalAnalysisResult, pages int) (bool, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("encode result: %w", err)
	}
	now := r.now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	const upd = `
UPDATE documents
SET status = 'completed',
    analysis_result = $2,
    overall_score = $3,
    grade = $4,
    step = total_steps,
    progress = 100,
    completed_at = $5,
    updated_at = $5
WHERE id = $1 AND status NOT IN ('completed','failed')
RETURNING owner_id;`
	var owner string
	err = tx.QueryRowContext(ctx, upd, id, raw, result.OverallScore, result.Grade.Letter, now).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		if err := r.mustExist(ctx, tx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("complete %s: %w", id, err)
	}

	const usage = `
INSERT INTO owner_usage (owner_id, documents_analyzed, pages_analyzed, last_analysis_at)
VALUES ($1, 1, $2, $3)
ON CONFLICT (owner_id) DO UPDATE SET
  documents_analyzed = owner_usage.documents_analyzed + 1,
  pages_analyzed = owner_usage.pages_analyzed + EXCLUDED.pages_analyzed,
  last_analysis_at = EXCLUDED.last_analysis_at;`
	if _, err := tx.ExecContext(ctx, usage, owner, pages, now); err != nil {
		return false, fmt.Errorf("update usage %s: %w", owner, err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *DocumentRepository) Usage(ctx context.Context, owner string) (domain.Usage, error) {
	const q = `
SELECT documents_analyzed, pages_analyzed, last_analysis_at
FROM owner_usage WHERE owner_id=$1;`
	u := domain.Usage{OwnerID: owner}
	var last sql.NullTime
	err := r.db.QueryRowContext(ctx, q, owner).Scan(&u.DocumentsAnalyzed, &u.PagesAnalyzed, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return u, nil
	}
	if err != nil {
		return domain.Usage{}, fmt.Errorf("usage %s: %w", owner, err)
	}
	if last.Valid {
		t := last.Time
		u.LastAnalysisAt = &t
	}
	return u, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// mustExist turns a no-op conditional update into ErrNotFound when the row is missing.
func (r *DocumentRepository) mustExist(ctx context.Context, q queryer, id string) error {
	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE id=$1);`, id).Scan(&exists); err != nil {
		return fmt.Errorf("lookup %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return nil
}

// Ping is used by the health check.
func (r *DocumentRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
