package stageerrors

import "time"

// StageError represents a persisted pipeline failure entry
type StageError struct {
	ID          int64     `json:"id"`
	JobID       string    `json:"job_id"`
	OwnerID     string    `json:"owner_id"`
	Stage       string    `json:"stage"`
	Step        int       `json:"step"`
	Message     string    `json:"message"`
	DetailsJSON string    `json:"details_json,omitempty"` // raw JSON string
	CreatedAt   time.Time `json:"created_at"`
}
