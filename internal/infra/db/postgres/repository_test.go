//nolint:testpackage // Testing internal repository requires same package access
package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/paperscore/internal/domain/analyst"
	"github.com/bryanwahyu/paperscore/internal/domain/documents"
	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
	"github.com/bryanwahyu/paperscore/internal/domain/review"
	"github.com/bryanwahyu/paperscore/internal/domain/stageerrors"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

var docCols = []string{
	"id", "owner_id", "file_ref", "file_name", "tier", "status",
	"step", "total_steps", "step_name", "progress",
	"analysis_result", "overall_score", "grade", "estimated_pages", "credits_charged", "error_message",
	"created_at", "updated_at", "started_at", "completed_at",
}

func TestDocumentGet(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDocumentRepository(db)
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM documents WHERE id").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows(docCols).AddRow(
			"doc-1", "owner-1", "u/1.pdf", "1.pdf", "standard", "completed",
			4, 4, "Generating report", 100,
			[]byte(`{"overallScore":81,"grade":{"letter":"B+"}}`), 81, "B+", 45, 3, "",
			created, created, created, created,
		))

	d, err := repo.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.TierStandard, d.Tier)
	assert.Equal(t, documents.StatusCompleted, d.Status)
	assert.Equal(t, 100, d.ProcessingStatus.Progress)
	require.NotNil(t, d.AnalysisResult)
	assert.Equal(t, "B+", d.AnalysisResult.Grade.Letter)
	require.NotNil(t, d.OverallScore)
	assert.Equal(t, 81, *d.OverallScore)
	require.NotNil(t, d.CompletedAt)
}

func TestDocumentGetNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDocumentRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM documents WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, documents.ErrNotFound)
}

func TestDocumentListByOwner(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDocumentRepository(db)
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT COUNT").WithArgs("owner-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("SELECT (.+) FROM documents").
		WithArgs("owner-1", 2, 2).
		WillReturnRows(sqlmock.NewRows(docCols).AddRow(
			"doc-3", "owner-1", "u/3.txt", "3.txt", "basic", "pending",
			0, 3, "", 0,
			nil, nil, "", 1, 1, "",
			created, created, nil, nil,
		))

	res, err := repo.ListByOwner(context.Background(), "owner-1", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Total)
	assert.Equal(t, 2, res.TotalPages)
	require.Len(t, res.Data, 1)
	assert.Nil(t, res.Data[0].OverallScore)
	assert.Nil(t, res.Data[0].AnalysisResult)
	assert.Nil(t, res.Data[0].StartedAt)
}

func TestDocumentMarkFailed(t *testing.T) {
	t.Run("moves live row", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewDocumentRepository(db)
		mock.ExpectExec("UPDATE documents").
			WithArgs("doc-1", "too short", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		moved, err := repo.MarkFailed(context.Background(), "doc-1", "too short")
		require.NoError(t, err)
		assert.True(t, moved)
	})

	t.Run("terminal row is left alone", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewDocumentRepository(db)
		mock.ExpectExec("UPDATE documents").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").WithArgs("doc-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		moved, err := repo.MarkFailed(context.Background(), "doc-1", "again")
		require.NoError(t, err)
		assert.False(t, moved)
	})

	t.Run("missing row", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewDocumentRepository(db)
		mock.ExpectExec("UPDATE documents").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := repo.MarkFailed(context.Background(), "nope", "x")
		assert.ErrorIs(t, err, documents.ErrNotFound)
	})
}

func TestDocumentCompleteBumpsUsageOnce(t *testing.T) {
	result := review.FinalAnalysisResult{OverallScore: 77, Grade: review.GradeFor(77)}

	t.Run("first completion", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewDocumentRepository(db)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE documents").
			WithArgs("doc-1", sqlmock.AnyArg(), 77, "B", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow("owner-1"))
		mock.ExpectExec("INSERT INTO owner_usage").
			WithArgs("owner-1", 12, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		moved, err := repo.Complete(context.Background(), "doc-1", result, 12)
		require.NoError(t, err)
		assert.True(t, moved)
	})

	t.Run("already completed", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewDocumentRepository(db)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE documents").
			WillReturnRows(sqlmock.NewRows([]string{"owner_id"}))
		mock.ExpectQuery("SELECT EXISTS").WithArgs("doc-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		moved, err := repo.Complete(context.Background(), "doc-1", result, 12)
		require.NoError(t, err)
		assert.False(t, moved)
	})
}

func TestDocumentUsageDefaultsToZero(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDocumentRepository(db)
	mock.ExpectQuery("FROM owner_usage").WithArgs("owner-9").WillReturnError(sql.ErrNoRows)

	u, err := repo.Usage(context.Background(), "owner-9")
	require.NoError(t, err)
	assert.Equal(t, documents.Usage{OwnerID: "owner-9"}, u)
}

func TestLedgerDebit(t *testing.T) {
	t.Run("sufficient balance", func(t *testing.T) {
		db, mock := newMock(t)
		l := NewCreditLedger(db)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO credit_transactions").
			WithArgs("owner-1", "job-1", "debit", 3, "standard analysis").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("UPDATE credit_balances").
			WithArgs("owner-1", 3).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(7))
		mock.ExpectCommit()

		res, err := l.Debit(context.Background(), "owner-1", "job-1", 3, "standard analysis")
		require.NoError(t, err)
		assert.Equal(t, documents.DebitResult{Success: true, NewBalance: 7}, res)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		db, mock := newMock(t)
		l := NewCreditLedger(db)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO credit_transactions").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("UPDATE credit_balances").WillReturnRows(sqlmock.NewRows([]string{"balance"}))
		mock.ExpectRollback()
		mock.ExpectQuery("SELECT balance FROM credit_balances").WithArgs("owner-1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(2))

		res, err := l.Debit(context.Background(), "owner-1", "job-1", 5, "comprehensive analysis")
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, 2, res.NewBalance)
	})

	t.Run("repeated debit", func(t *testing.T) {
		db, mock := newMock(t)
		l := NewCreditLedger(db)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO credit_transactions").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()
		mock.ExpectQuery("SELECT balance FROM credit_balances").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(4))

		res, err := l.Debit(context.Background(), "owner-1", "job-1", 3, "standard analysis")
		require.NoError(t, err)
		assert.Equal(t, documents.DebitResult{Success: true, NewBalance: 4, Duplicate: true}, res)
	})
}

func TestLedgerRefundOnce(t *testing.T) {
	db, mock := newMock(t)
	l := NewCreditLedger(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO credit_transactions").
		WithArgs("owner-1", "job-1", "refund", 3, "job failed").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("INSERT INTO credit_balances").
		WithArgs("owner-1", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO credit_transactions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	ok, err := l.Refund(context.Background(), "owner-1", "job-1", 3)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Refund(context.Background(), "owner-1", "job-1", 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLedgerGrantRejectsNonPositive(t *testing.T) {
	db, _ := newMock(t)
	_, err := NewCreditLedger(db).Grant(context.Background(), "owner-1", 0, "promo")
	assert.Error(t, err)
}

func TestStageErrorSaveWrapsInvalidJSON(t *testing.T) {
	db, mock := newMock(t)
	repo := NewStageErrorRepository(db)

	mock.ExpectQuery("INSERT INTO pipeline_errors").
		WithArgs("job-1", "owner-1", "extract", 1, "too short", `{"raw":"not json"}`, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	e := &stageerrors.StageError{JobID: "job-1", OwnerID: "owner-1", Stage: "extract", Step: 1, Message: "too short", DetailsJSON: "not json"}
	require.NoError(t, repo.Save(context.Background(), e))
	assert.Equal(t, int64(7), e.ID)
}

func TestAnalystSaveUpserts(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAnalystRepository(db)

	mock.ExpectExec("INSERT INTO agent_results").
		WithArgs("job-1", "owner-1", "writing", "Writing & Clarity", 0.15, 50, true, "{}", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Save(context.Background(), &analyst.Record{
		JobID: "job-1", OwnerID: "owner-1", AgentID: "writing", AgentName: "Writing & Clarity",
		Weight: 0.15, Score: 50, Degraded: true,
	})
	require.NoError(t, err)
}
