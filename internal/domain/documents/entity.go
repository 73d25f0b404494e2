package documents

import (
	"encoding/json"
	"time"

	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
	"github.com/bryanwahyu/paperscore/internal/domain/review"
)

// Status enum
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the record can no longer change.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// ProcessingStatus is the progress snapshot clients poll.
type ProcessingStatus struct {
	Step       int    `json:"step"`
	TotalSteps int    `json:"total_steps"`
	StepName   string `json:"step_name"`
	Progress   int    `json:"progress"`
}

// SnapshotOf converts a status store record into the durable snapshot.
func SnapshotOf(st jobs.JobStatus) ProcessingStatus {
	return ProcessingStatus{
		Step:       st.Step,
		TotalSteps: st.TotalSteps,
		StepName:   st.StepName,
		Progress:   st.Progress,
	}
}

// Aggregate Root: Document
type Document struct {
	ID               string                      `json:"id"`
	OwnerID          string                      `json:"owner_id"`
	FileRef          string                      `json:"file_ref"`
	FileName         string                      `json:"file_name"`
	Tier             jobs.Tier                   `json:"tier"`
	Status           Status                      `json:"status"`
	ProcessingStatus ProcessingStatus            `json:"processing_status"`
	AnalysisResult   *review.FinalAnalysisResult `json:"analysis_result,omitempty"`
	OverallScore     *int                        `json:"overall_score,omitempty"`
	Grade            string                      `json:"grade,omitempty"`
	EstimatedPages   int                         `json:"estimated_pages"`
	CreditsCharged   int                         `json:"credits_charged"`
	ErrorMessage     string                      `json:"error_message,omitempty"`
	CreatedAt        time.Time                   `json:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at"`
	StartedAt        *time.Time                  `json:"started_at,omitempty"`
	CompletedAt      *time.Time                  `json:"completed_at,omitempty"`
}

// ResultJSON marshals the final result for storage.
func (d *Document) ResultJSON() ([]byte, error) {
	if d.AnalysisResult == nil {
		return nil, nil
	}
	return json.Marshal(d.AnalysisResult)
}

// Usage counters shown to the owner.
type Usage struct {
	OwnerID           string     `json:"owner_id"`
	DocumentsAnalyzed int        `json:"documents_analyzed"`
	PagesAnalyzed     int        `json:"pages_analyzed"`
	LastAnalysisAt    *time.Time `json:"last_analysis_at,omitempty"`
}

// DebitResult is what the ledger returns for a debit.
type DebitResult struct {
	Success    bool `json:"success"`
	NewBalance int  `json:"new_balance"`
	Duplicate  bool `json:"duplicate,omitempty"`
}
