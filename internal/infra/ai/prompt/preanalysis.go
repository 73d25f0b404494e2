package prompt

import (
	"fmt"
	"strings"
)

// StructureAssessmentSystem asks the fast model for a quick structural pass.
const StructureAssessmentSystem = `You are an editorial assistant doing a quick structural check of the opening part of an academic manuscript.
Identify which standard sections are present and which are missing, and rate the organization.
` + jsonRules + `

Schema (example with empty values):
{
  "score": 0,
  "sections_found": ["abstract"],
  "missing_sections": ["discussion"],
  "issues": [{"severity": "<critical|major|minor>", "category": "structure", "description": "<string>", "suggestion": "<string>"}],
  "strengths": ["<string>"],
  "feedback": "<string>"
}
Use these section identifiers: abstract, introduction, literature_review, methodology, results, discussion, conclusion, references.`

// ReferenceExtractionSystem asks the fast model to parse the bibliography.
const ReferenceExtractionSystem = `You are a bibliography parser. The text is the final part of an academic manuscript and usually contains the reference list.
Extract the references, detect the citation style, and estimate the share of sources from the last ten years.
` + jsonRules + `

Schema (example with empty values):
{
  "count": 0,
  "style": "<apa|ieee|harvard|chicago|mla|vancouver|mixed|unknown>",
  "recent_ratio": 0.0,
  "score": 0,
  "references": [{"raw": "<string>", "authors": "<string>", "year": 2020, "title": "<string>"}],
  "issues": [{"severity": "<critical|major|minor>", "category": "references", "description": "<string>", "suggestion": "<string>"}],
  "strengths": ["<string>"],
  "feedback": "<string>"
}
List at most 60 references. count is the total number found, even when more than 60.`

// StructureUserPrompt wraps the document prefix.
func StructureUserPrompt(prefix string, detected []string) string {
	return fmt.Sprintf("Headings detected by a keyword scan: %s\n\nManuscript opening:\n<<<\n%s\n>>>\n",
		listOrNone(detected), prefix)
}

// ReferencesUserPrompt wraps the document suffix.
func ReferencesUserPrompt(suffix string) string {
	return fmt.Sprintf("Manuscript ending:\n<<<\n%s\n>>>\n", suffix)
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
