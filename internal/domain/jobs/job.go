package jobs

import (
	"fmt"
	"strings"
	"time"
)

// Tier selects pipeline length and the agent set.
type Tier string

const (
	TierBasic         Tier = "basic"
	TierStandard      Tier = "standard"
	TierComprehensive Tier = "comprehensive"
)

// Page thresholds used to pick a tier from the estimated document size.
const (
	StandardMinPages      = 30
	ComprehensiveMinPages = 100
)

func (t Tier) Valid() bool {
	switch t {
	case TierBasic, TierStandard, TierComprehensive:
		return true
	}
	return false
}

// ParseTier normalizes a tier name coming from a payload or the command line.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// TierForPages maps an estimated page count to a tier.
func TierForPages(pages int) Tier {
	switch {
	case pages < StandardMinPages:
		return TierBasic
	case pages < ComprehensiveMinPages:
		return TierStandard
	default:
		return TierComprehensive
	}
}

// Stage identifies one independently invocable pipeline handler.
type Stage string

const (
	StageExtract       Stage = "extract"
	StagePreAnalyze    Stage = "pre-analyze"
	StageDeepAnalyze   Stage = "deep-analyze"
	StageCrossValidate Stage = "cross-validate"
	StageReport        Stage = "generate-report"
)

// Slot is the fixed key a stage writes its result under. Slots do not depend
// on the tier, so the report stage finds upstream results at the same keys
// whether or not intermediate stages ran.
func (s Stage) Slot() int {
	switch s {
	case StageExtract:
		return 1
	case StagePreAnalyze:
		return 2
	case StageDeepAnalyze:
		return 3
	case StageCrossValidate:
		return 4
	case StageReport:
		return 5
	}
	return 0
}

// DisplayName is the human readable step name shown while polling.
func (s Stage) DisplayName() string {
	switch s {
	case StageExtract:
		return "Extracting text"
	case StagePreAnalyze:
		return "Analyzing structure and references"
	case StageDeepAnalyze:
		return "Running evaluation agents"
	case StageCrossValidate:
		return "Cross-validating scores"
	case StageReport:
		return "Generating report"
	}
	return string(s)
}

func ParseStage(s string) (Stage, error) {
	st := Stage(strings.ToLower(strings.TrimSpace(s)))
	if st.Slot() == 0 {
		return "", fmt.Errorf("unknown stage %q", s)
	}
	return st, nil
}

// Job is the payload that travels with every queue message. It is
// re-serialized at each hop; no process holds it between stages.
// StartedAt is stamped by the first stage run and carried to every hop.
type Job struct {
	ID             string    `json:"job_id"`
	OwnerID        string    `json:"owner_id"`
	SourceFileRef  string    `json:"source_file_ref"`
	SourceFileName string    `json:"source_file_name"`
	Tier           Tier      `json:"tier"`
	Step           int       `json:"step"`
	TotalSteps     int       `json:"total_steps"`
	Credits        int       `json:"credits"`
	SubmittedAt    time.Time `json:"submitted_at"`
	StartedAt      time.Time `json:"started_at"`
}

// Validate checks the job against the tier plan.
func (j Job) Validate() error {
	if strings.TrimSpace(j.ID) == "" {
		return fmt.Errorf("%w: job_id is required", ErrInvalidJob)
	}
	if strings.TrimSpace(j.OwnerID) == "" {
		return fmt.Errorf("%w: owner_id is required", ErrInvalidJob)
	}
	if !j.Tier.Valid() {
		return fmt.Errorf("%w: unknown tier %q", ErrInvalidJob, j.Tier)
	}
	if j.TotalSteps != TotalSteps(j.Tier) {
		return fmt.Errorf("%w: tier %s has %d steps, got %d", ErrInvalidJob, j.Tier, TotalSteps(j.Tier), j.TotalSteps)
	}
	if j.Step < 1 || j.Step > j.TotalSteps {
		return fmt.Errorf("%w: step %d out of range", ErrInvalidJob, j.Step)
	}
	return nil
}

// Stage returns the stage this job is currently addressed to.
func (j Job) Stage() (Stage, error) {
	return StageAt(j.Tier, j.Step)
}

// Status of a job as seen through the status store.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// JobStatus is overwritten in place at each transition. StatusFailed is terminal.
type JobStatus struct {
	Step        int        `json:"step"`
	TotalSteps  int        `json:"total_steps"`
	StepName    string     `json:"step_name"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// NewStatus builds the status record for a job at its current step.
// StartedAt is the job's first start, or now before the job has started.
func NewStatus(j Job, status Status, progress int, now time.Time) JobStatus {
	name := ""
	if st, err := j.Stage(); err == nil {
		name = st.DisplayName()
	}
	started := j.StartedAt
	if started.IsZero() {
		started = now
	}
	js := JobStatus{
		Step:       j.Step,
		TotalSteps: j.TotalSteps,
		StepName:   name,
		Status:     status,
		Progress:   clampProgress(progress),
		StartedAt:  started,
	}
	if status == StatusCompleted || status == StatusFailed {
		done := now
		js.CompletedAt = &done
	}
	return js
}

// Terminal reports whether no stage may transition the status any further.
func (s JobStatus) Terminal() bool { return s.Status == StatusFailed }

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
