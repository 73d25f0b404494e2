package ai

import (
	"fmt"
	"math"
	"strings"

	domai "github.com/bryanwahyu/paperscore/internal/domain/ai"
	"github.com/bryanwahyu/paperscore/internal/domain/review"
	"github.com/bryanwahyu/paperscore/internal/infra/ai/prompt"
	"github.com/bryanwahyu/paperscore/internal/infra/ai/structured"
)

var (
	agentSchema      = structured.MustCompile("agent.json", prompt.AgentSchema)
	structureSchema  = structured.MustCompile("structure.json", prompt.StructureSchema)
	referencesSchema = structured.MustCompile("references.json", prompt.ReferencesSchema)
	crossSchema      = structured.MustCompile("cross-validation.json", prompt.CrossValidationSchema)
)

// parseCompletion decodes a model answer of wire type W and converts it. A
// provider error or an answer that fails the schema yields fallback.
func parseCompletion[W, T any](c domai.Completion, callErr error, schema *structured.Schema, convert func(W) T, fallback T) domai.Parsed[T] {
	if callErr != nil {
		return domai.Degraded(fallback, callErr)
	}
	w, err := structured.Decode[W](c.Text, schema)
	if err != nil {
		return domai.Degraded(fallback, err)
	}
	return domai.Ok(convert(w))
}

func roundScore(f float64) int {
	return review.ClampScore(int(math.Round(f)))
}

func convertIssues(in []prompt.IssueResponse, defaultCategory string) []review.Issue {
	out := make([]review.Issue, 0, len(in))
	for _, is := range in {
		desc := strings.TrimSpace(is.Description)
		if desc == "" {
			continue
		}
		cat := strings.TrimSpace(is.Category)
		if cat == "" {
			cat = defaultCategory
		}
		out = append(out, review.Issue{
			Severity:    review.ParseSeverity(is.Severity),
			Category:    cat,
			Description: desc,
			Location:    strings.TrimSpace(is.Location),
			Suggestion:  strings.TrimSpace(is.Suggestion),
			Example:     strings.TrimSpace(is.Example),
		})
	}
	return out
}

func toAgentResult(a Agent, r prompt.AgentResponse) review.AgentResult {
	var sub map[string]int
	if len(r.SubScores) > 0 {
		sub = make(map[string]int, len(r.SubScores))
		for k, v := range r.SubScores {
			sub[k] = roundScore(v)
		}
	}
	return review.AgentResult{
		AgentID:   a.ID,
		AgentName: a.Name,
		Weight:    a.Weight,
		Score:     roundScore(r.Score),
		SubScores: sub,
		Issues:    convertIssues(r.Issues, a.ID),
		Strengths: nonNilStrings(r.Strengths),
		Feedback:  strings.TrimSpace(r.Feedback),
	}
}

func nonNilStrings(s []string) []string {
	out := make([]string, 0, len(s))
	for _, v := range s {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func nonNilIssues(in []review.Issue) []review.Issue {
	if in == nil {
		return []review.Issue{}
	}
	return in
}

type panicError struct{ v any }

func (p panicError) Error() string { return fmt.Sprintf("panic: %v", p.v) }
