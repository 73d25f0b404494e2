package postgres

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/bryanwahyu/paperscore/internal/domain/analyst"
)

type AnalystRepository struct {
	db *sql.DB
}

func NewAnalystRepository(db *sql.DB) *AnalystRepository {
	return &AnalystRepository{db: db}
}

// Save inserts or updates one agent result of a job
func (r *AnalystRepository) Save(ctx context.Context, a *domain.Record) error {
	const q = `
INSERT INTO agent_results
  (job_id, owner_id, agent_id, agent_name, weight, score, degraded, result_json, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (job_id, agent_id) DO UPDATE SET
  agent_name=EXCLUDED.agent_name,
  weight=EXCLUDED.weight,
  score=EXCLUDED.score,
  degraded=EXCLUDED.degraded,
  result_json=EXCLUDED.result_json;
`
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		a.JobID, stringOrDash(a.OwnerID), a.AgentID, stringOrDash(a.AgentName),
		a.Weight, a.Score, a.Degraded, jsonOrEmpty(a.Result), createdAt,
	)
	return err
}

// ListByJob returns every agent record of a job in agent order of insertion
func (r *AnalystRepository) ListByJob(ctx context.Context, jobID string) ([]*domain.Record, error) {
	const q = `
SELECT job_id, owner_id, agent_id, agent_name, weight, score, degraded, result_json, created_at
FROM agent_results
WHERE job_id=$1
ORDER BY created_at ASC, agent_id ASC;`
	rows, err := r.db.QueryContext(ctx, q, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Record
	for rows.Next() {
		var a domain.Record
		if err := rows.Scan(&a.JobID, &a.OwnerID, &a.AgentID, &a.AgentName, &a.Weight, &a.Score, &a.Degraded, &a.Result, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
