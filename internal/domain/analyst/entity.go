package analyst

import "time"

// Record is the per-agent audit row kept for traceability. The pipeline does
// not read it back.
type Record struct {
	JobID     string    `json:"job_id"`
	OwnerID   string    `json:"owner_id"`
	AgentID   string    `json:"agent_id"`
	AgentName string    `json:"agent_name"`
	Weight    float64   `json:"weight"`
	Score     int       `json:"score"`
	Degraded  bool      `json:"degraded"`
	Result    string    `json:"result"` // AgentResult as JSON
	CreatedAt time.Time `json:"created_at"`
}
