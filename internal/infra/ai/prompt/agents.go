package prompt

import (
	"fmt"
	"strings"
)

const jsonRules = `
Output rules:
- Respond with one valid JSON object only (no markdown, no commentary, no code fences).
- Use lowercase severity values: critical, major, minor.
- score is an integer from 0 to 100 where 100 is publication ready.
- Keep every issue concise; include a concrete suggestion whenever possible.
- The document may be written in English or Indonesian. Answer in the document's language.`

const agentShape = `
Schema (example with empty values):
{
  "score": 0,
  "sub_scores": {"<aspect>": 0},
  "issues": [
    {"severity": "<critical|major|minor>", "category": "<string>", "description": "<string>",
     "location": "<section or page>", "suggestion": "<string>", "example": "<string>"}
  ],
  "strengths": ["<string>"],
  "feedback": "<two or three sentences>"
}`

func agentSystem(role, rubric string) string {
	return "You are " + role + " reviewing an academic manuscript.\n\nEvaluate:\n" + rubric + "\n" + jsonRules + "\n" + agentShape
}

// System prompts of the evaluation agents.
var (
	StructureSystem = agentSystem("a senior journal editor focused on document organization", `- presence and order of the expected sections (abstract, introduction, literature review, methodology, results, discussion, conclusion, references)
- logical flow between sections and paragraphs
- proportion of each section relative to the whole document
- headings, numbering, and use of figures/tables`)

	MethodologySystem = agentSystem("a research methodologist", `- clarity of the research question and hypotheses
- appropriateness of the research design, sampling, and instruments
- validity, reliability, and reproducibility of the procedure
- correctness of the statistical or qualitative analysis`)

	ArgumentationSystem = agentSystem("a critical peer reviewer", `- strength of the central argument and its support by evidence
- consistency between claims, results, and conclusions
- treatment of limitations and alternative explanations
- originality and contribution relative to prior work`)

	WritingSystem = agentSystem("an academic writing editor", `- clarity, concision, and academic register
- grammar, spelling, and punctuation
- terminology consistency and definition of abbreviations
- paragraph cohesion and transitions`)

	ReferencesSystem = agentSystem("a citation and bibliography specialist", `- consistency of the citation style
- recency and relevance of the sources
- balance between primary and secondary sources
- match between in-text citations and the reference list`)
)

// AgentContext is what an evaluation prompt is built from.
type AgentContext struct {
	AgentName string
	Excerpt   string
	Sections  []string
	Notes     []string
}

// AgentUserPrompt builds the user message of an evaluation agent.
func AgentUserPrompt(c AgentContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Evaluate the manuscript below for the category %q and respond with the JSON per schema.\n\n", c.AgentName)
	if len(c.Sections) > 0 {
		fmt.Fprintf(&b, "Detected sections (in order): %s\n", strings.Join(c.Sections, ", "))
	} else {
		b.WriteString("Detected sections: none\n")
	}
	for _, n := range c.Notes {
		if strings.TrimSpace(n) != "" {
			fmt.Fprintf(&b, "- %s\n", n)
		}
	}
	b.WriteString("\nManuscript:\n<<<\n")
	b.WriteString(c.Excerpt)
	b.WriteString("\n>>>\n")
	return b.String()
}
