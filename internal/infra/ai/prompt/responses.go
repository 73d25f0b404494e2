package prompt

// Wire shapes of the model answers. They mirror the schemas in schemas.go.

type IssueResponse struct {
	Severity    string `json:"severity"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Suggestion  string `json:"suggestion"`
	Example     string `json:"example"`
}

type AgentResponse struct {
	Score     float64            `json:"score"`
	SubScores map[string]float64 `json:"sub_scores"`
	Issues    []IssueResponse    `json:"issues"`
	Strengths []string           `json:"strengths"`
	Feedback  string             `json:"feedback"`
}

type StructureResponse struct {
	Score           float64         `json:"score"`
	SectionsFound   []string        `json:"sections_found"`
	MissingSections []string        `json:"missing_sections"`
	Issues          []IssueResponse `json:"issues"`
	Strengths       []string        `json:"strengths"`
	Feedback        string          `json:"feedback"`
}

type ReferenceResponse struct {
	Raw     string `json:"raw"`
	Authors string `json:"authors"`
	Year    int    `json:"year"`
	Title   string `json:"title"`
}

type ReferencesResponse struct {
	Count       int                 `json:"count"`
	Style       string              `json:"style"`
	RecentRatio float64             `json:"recent_ratio"`
	Score       *float64            `json:"score"`
	References  []ReferenceResponse `json:"references"`
	Issues      []IssueResponse     `json:"issues"`
	Strengths   []string            `json:"strengths"`
	Feedback    string              `json:"feedback"`
}

type CategoryResponse struct {
	AgentID       string   `json:"agent_id"`
	Score         float64  `json:"score"`
	Agreement     string   `json:"agreement"`
	AdjustedScore *float64 `json:"adjusted_score"`
	Comment       string   `json:"comment"`
}

type OverstatedResponse struct {
	AgentID     string `json:"agent_id"`
	Description string `json:"description"`
	Reason      string `json:"reason"`
}

type CrossValidationResponse struct {
	Categories             []CategoryResponse   `json:"categories"`
	MissedIssues           []IssueResponse      `json:"missed_issues"`
	OverstatedIssues       []OverstatedResponse `json:"overstated_issues"`
	CalibratedOverallScore *float64             `json:"calibrated_overall_score"`
	Confidence             float64              `json:"confidence"`
	Summary                string               `json:"summary"`
}
