package prompt

import (
	"fmt"
	"strings"
)

// CrossValidationSystem is given to the second, independent model.
const CrossValidationSystem = `You are the senior reviewer calibrating a panel of automated reviewers.
You receive a summary of each reviewer's category score with its top issues and strengths, plus a large part of the manuscript.
For every category decide whether you agree, partially agree, or disagree, give your own score, and an adjusted score when the panel score should change.
List important issues the panel missed and issues you consider overstated. Finally give one holistic calibrated overall score and your confidence.
` + jsonRules + `

Schema (example with empty values):
{
  "categories": [
    {"agent_id": "<string>", "score": 0, "agreement": "<agree|partial|disagree>", "adjusted_score": 0, "comment": "<string>"}
  ],
  "missed_issues": [{"severity": "<critical|major|minor>", "category": "<agent_id>", "description": "<string>", "suggestion": "<string>"}],
  "overstated_issues": [{"agent_id": "<string>", "description": "<string>", "reason": "<string>"}],
  "calibrated_overall_score": 0,
  "confidence": 0.0,
  "summary": "<string>"
}
Use null for adjusted_score when you agree with the panel. confidence is between 0 and 1.`

// PanelEntry condenses one agent result for the calibration prompt.
type PanelEntry struct {
	AgentID   string
	AgentName string
	Weight    float64
	Score     int
	Issues    []string
	Strengths []string
	Failed    bool
}

// CrossValidationUserPrompt renders the panel summary and the manuscript prefix.
func CrossValidationUserPrompt(panel []PanelEntry, excerpt string) string {
	var b strings.Builder
	b.WriteString("Panel results:\n")
	for _, p := range panel {
		fmt.Fprintf(&b, "\n[%s] %s (weight %.2f): score %d", p.AgentID, p.AgentName, p.Weight, p.Score)
		if p.Failed {
			b.WriteString(" (reviewer failed, neutral score)")
		}
		b.WriteString("\n")
		for _, is := range p.Issues {
			fmt.Fprintf(&b, "  issue: %s\n", is)
		}
		for _, s := range p.Strengths {
			fmt.Fprintf(&b, "  strength: %s\n", s)
		}
	}
	b.WriteString("\nManuscript:\n<<<\n")
	b.WriteString(excerpt)
	b.WriteString("\n>>>\n")
	return b.String()
}
