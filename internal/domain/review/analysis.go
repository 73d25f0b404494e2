package review

import "time"

// StructureAssessment is the pre-analysis view of document organization.
type StructureAssessment struct {
	Score           int      `json:"score"`
	SectionsFound   []string `json:"sectionsFound"`
	MissingSections []string `json:"missingSections"`
	Issues          []Issue  `json:"issues"`
	Strengths       []string `json:"strengths"`
	Feedback        string   `json:"feedback"`
}

// Reference is one parsed bibliography entry.
type Reference struct {
	Raw     string `json:"raw"`
	Authors string `json:"authors,omitempty"`
	Year    int    `json:"year,omitempty"`
	Title   string `json:"title,omitempty"`
}

// ReferenceList is the pre-analysis view of citations.
type ReferenceList struct {
	Count       int         `json:"count"`
	Style       string      `json:"style"`
	RecentRatio float64     `json:"recentRatio"`
	Score       int         `json:"score"`
	Entries     []Reference `json:"entries,omitempty"`
	Issues      []Issue     `json:"issues"`
	Strengths   []string    `json:"strengths"`
	Feedback    string      `json:"feedback"`
}

// PreAnalysis is the step 2 result.
type PreAnalysis struct {
	Structure          StructureAssessment `json:"structure"`
	References         ReferenceList       `json:"references"`
	StructureDegraded  bool                `json:"structureDegraded"`
	ReferencesDegraded bool                `json:"referencesDegraded"`
}

// Agreement between the calibration model and the first pass.
type Agreement string

const (
	AgreementAgree    Agreement = "agree"
	AgreementPartial  Agreement = "partial"
	AgreementDisagree Agreement = "disagree"
)

// CategoryReview is the calibration verdict for one agent category.
type CategoryReview struct {
	AgentID       string    `json:"agentId"`
	Score         int       `json:"score"`
	Agreement     Agreement `json:"agreement"`
	AdjustedScore *int      `json:"adjustedScore,omitempty"`
	Comment       string    `json:"comment,omitempty"`
}

// OverstatedIssue is a first-pass issue the calibration model disputes.
type OverstatedIssue struct {
	AgentID     string `json:"agentId"`
	Description string `json:"description"`
	Reason      string `json:"reason,omitempty"`
}

// CrossValidation is the step 4 result.
type CrossValidation struct {
	Categories             []CategoryReview  `json:"categories"`
	MissedIssues           []Issue           `json:"missedIssues"`
	OverstatedIssues       []OverstatedIssue `json:"overstatedIssues"`
	CalibratedOverallScore *int              `json:"calibratedOverallScore,omitempty"`
	Confidence             float64           `json:"confidence"`
	Summary                string            `json:"summary"`
	Degraded               bool              `json:"degraded"`
}

// Adjusted returns the adjusted score for an agent category, if any.
func (c CrossValidation) Adjusted(agentID string) (int, bool) {
	for _, cr := range c.Categories {
		if cr.AgentID == agentID && cr.AdjustedScore != nil {
			return ClampScore(*cr.AdjustedScore), true
		}
	}
	return 0, false
}

// CategoryScore is one row of the final report.
type CategoryScore struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Score         int     `json:"score"`
	OriginalScore int     `json:"originalScore"`
	Weight        float64 `json:"weight"`
	Calibrated    bool    `json:"calibrated"`
	Degraded      bool    `json:"degraded"`
	Feedback      string  `json:"feedback"`
}

// Recommendation priority
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

type Recommendation struct {
	Priority    string `json:"priority"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Metadata struct {
	WordCount        int      `json:"wordCount"`
	PageCount        int      `json:"pageCount"`
	SectionsDetected int      `json:"sectionsDetected"`
	ReferenceCount   int      `json:"referenceCount"`
	AgentsRun        []string `json:"agentsRun"`
	DegradedAgents   []string `json:"degradedAgents"`
	Confidence       float64  `json:"confidence,omitempty"`
	ProcessingTimeMS int64    `json:"processingTimeMs"`
}

// FinalAnalysisResult is the terminal artifact written to the primary record.
type FinalAnalysisResult struct {
	OverallScore       int              `json:"overallScore"`
	Grade              Grade            `json:"grade"`
	CategoryScores     []CategoryScore  `json:"categoryScores"`
	Issues             IssueBuckets     `json:"issues"`
	Strengths          []string         `json:"strengths"`
	Recommendations    []Recommendation `json:"recommendations"`
	ImmediateActions   []string         `json:"immediateActions"`
	Metadata           Metadata         `json:"metadata"`
	Tier               string           `json:"tier"`
	CrossValidated     bool             `json:"crossValidated"`
	CalibrationSummary string           `json:"calibrationSummary,omitempty"`
	GeneratedAt        time.Time        `json:"generatedAt"`
}
