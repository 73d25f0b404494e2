package review

// NeutralScore is what a failed agent contributes.
const NeutralScore = 50

// AgentResult is produced once per agent per job.
type AgentResult struct {
	AgentID   string         `json:"agentId"`
	AgentName string         `json:"agentName"`
	Weight    float64        `json:"weight"`
	Score     int            `json:"score"`
	SubScores map[string]int `json:"subScores,omitempty"`
	Issues    []Issue        `json:"issues"`
	Strengths []string       `json:"strengths"`
	Feedback  string         `json:"feedback"`
	Error     string         `json:"error,omitempty"`
}

// Degraded reports whether the result is a neutral stand-in for a failed call.
func (a AgentResult) Degraded() bool { return a.Error != "" }

// NeutralResult stands in for an agent whose call failed.
func NeutralResult(id, name string, weight float64, cause error) AgentResult {
	msg := "agent failed"
	if cause != nil {
		msg = cause.Error()
	}
	return AgentResult{
		AgentID:   id,
		AgentName: name,
		Weight:    weight,
		Score:     NeutralScore,
		Issues:    []Issue{},
		Strengths: []string{},
		Feedback:  "This category could not be evaluated automatically.",
		Error:     msg,
	}
}

// ClampScore keeps a score inside 0..100.
func ClampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
