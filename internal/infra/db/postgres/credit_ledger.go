package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/paperscore/internal/domain/documents"
)

const (
	kindDebit  = "debit"
	kindRefund = "refund"
	kindGrant  = "grant"
)

// CreditLedger keeps balances and a transaction log. The (job_id, kind)
// unique key makes Debit and Refund safe to repeat.
type CreditLedger struct {
	db *sql.DB
}

func NewCreditLedger(db *sql.DB) *CreditLedger { return &CreditLedger{db: db} }

func (l *CreditLedger) Debit(ctx context.Context, owner, jobID string, amount int, reason string) (domain.DebitResult, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.DebitResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := insertTx(ctx, tx, owner, jobID, kindDebit, amount, reason)
	if err != nil {
		return domain.DebitResult{}, err
	}
	if !inserted {
		if err := tx.Commit(); err != nil {
			return domain.DebitResult{}, err
		}
		bal, err := l.Balance(ctx, owner)
		if err != nil {
			return domain.DebitResult{}, err
		}
		return domain.DebitResult{Success: true, NewBalance: bal, Duplicate: true}, nil
	}

	const q = `
UPDATE credit_balances
SET balance = balance - $2, updated_at = now()
WHERE owner_id = $1 AND balance >= $2
RETURNING balance;`
	var bal int
	err = tx.QueryRowContext(ctx, q, owner, amount).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		cur, err := l.Balance(ctx, owner)
		if err != nil {
			return domain.DebitResult{}, err
		}
		return domain.DebitResult{Success: false, NewBalance: cur}, nil
	}
	if err != nil {
		return domain.DebitResult{}, fmt.Errorf("debit %s: %w", owner, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.DebitResult{}, err
	}
	return domain.DebitResult{Success: true, NewBalance: bal}, nil
}

func (l *CreditLedger) Refund(ctx context.Context, owner, jobID string, amount int) (bool, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := insertTx(ctx, tx, owner, jobID, kindRefund, amount, "job failed")
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}
	if err := credit(ctx, tx, owner, amount); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// Grant adds credits to an owner, creating the balance row when missing.
func (l *CreditLedger) Grant(ctx context.Context, owner string, amount int, reason string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := insertTx(ctx, tx, owner, "grant:"+uuid.New().String(), kindGrant, amount, reason); err != nil {
		return 0, err
	}
	const q = `
INSERT INTO credit_balances (owner_id, balance, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (owner_id) DO UPDATE SET
  balance = credit_balances.balance + EXCLUDED.balance,
  updated_at = now()
RETURNING balance;`
	var bal int
	if err := tx.QueryRowContext(ctx, q, owner, amount).Scan(&bal); err != nil {
		return 0, fmt.Errorf("grant %s: %w", owner, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return bal, nil
}

func (l *CreditLedger) Balance(ctx context.Context, owner string) (int, error) {
	var bal int
	err := l.db.QueryRowContext(ctx, `SELECT balance FROM credit_balances WHERE owner_id=$1;`, owner).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("balance %s: %w", owner, err)
	}
	return bal, nil
}

// insertTx reports false when the (job_id, kind) row already exists.
func insertTx(ctx context.Context, tx *sql.Tx, owner, jobID, kind string, amount int, reason string) (bool, error) {
	const q = `
INSERT INTO credit_transactions (owner_id, job_id, kind, amount, reason)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (job_id, kind) DO NOTHING;`
	res, err := tx.ExecContext(ctx, q, owner, jobID, kind, amount, stringOrDash(reason))
	if err != nil {
		return false, fmt.Errorf("record %s for %s: %w", kind, jobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func credit(ctx context.Context, tx *sql.Tx, owner string, amount int) error {
	const q = `
INSERT INTO credit_balances (owner_id, balance, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (owner_id) DO UPDATE SET
  balance = credit_balances.balance + EXCLUDED.balance,
  updated_at = now();`
	if _, err := tx.ExecContext(ctx, q, owner, amount); err != nil {
		return fmt.Errorf("credit %s: %w", owner, err)
	}
	return nil
}
