package ai

import (
	"fmt"
	"strings"

	domai "github.com/bryanwahyu/paperscore/internal/domain/ai"
	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
	"github.com/bryanwahyu/paperscore/internal/domain/review"
	"github.com/bryanwahyu/paperscore/internal/infra/ai/prompt"
)

// Agent ids
const (
	AgentStructure     = "structure"
	AgentMethodology   = "methodology"
	AgentArgumentation = "argumentation"
	AgentWriting       = "writing"
	AgentReferences    = "references"
)

// agentTextBudget bounds how much of the document each agent sees.
const agentTextBudget = 60000

// AgentInput is everything an agent prompt is built from.
type AgentInput struct {
	Document    review.ExtractedDocument
	PreAnalysis review.PreAnalysis
}

// Agent is one weighted evaluation unit.
type Agent struct {
	ID     string
	Name   string
	Class  domai.ModelClass
	Weight float64
	System string
	Build  func(AgentInput) string
}

// registry is fixed at build time and never mutated; callers get copies.
var registry = []Agent{
	{
		ID: AgentStructure, Name: "Structure & Organization", Class: domai.ClassFast, Weight: 0.20,
		System: prompt.StructureSystem,
		Build: func(in AgentInput) string {
			s := in.PreAnalysis.Structure
			return agentPrompt("Structure & Organization", in,
				fmt.Sprintf("Pre-analysis structure score: %d", s.Score),
				"Missing sections: "+joinOrNone(s.MissingSections))
		},
	},
	{
		ID: AgentMethodology, Name: "Methodology & Rigor", Class: domai.ClassStrong, Weight: 0.25,
		System: prompt.MethodologySystem,
		Build: func(in AgentInput) string {
			return agentPrompt("Methodology & Rigor", in,
				"Methodology section detected: "+yesNo(in.Document.Has(review.SectionMethodology)))
		},
	},
	{
		ID: AgentArgumentation, Name: "Argument & Evidence", Class: domai.ClassStrong, Weight: 0.20,
		System: prompt.ArgumentationSystem,
		Build: func(in AgentInput) string {
			return agentPrompt("Argument & Evidence", in,
				"Results section detected: "+yesNo(in.Document.Has(review.SectionResults)),
				"Discussion section detected: "+yesNo(in.Document.Has(review.SectionDiscussion)))
		},
	},
	{
		ID: AgentWriting, Name: "Writing & Clarity", Class: domai.ClassFast, Weight: 0.15,
		System: prompt.WritingSystem,
		Build: func(in AgentInput) string {
			return agentPrompt("Writing & Clarity", in,
				fmt.Sprintf("Word count: %d", in.Document.WordCount))
		},
	},
	{
		ID: AgentReferences, Name: "Citations & References", Class: domai.ClassFast, Weight: 0.20,
		System: prompt.ReferencesSystem,
		Build: func(in AgentInput) string {
			r := in.PreAnalysis.References
			return agentPrompt("Citations & References", in,
				fmt.Sprintf("References found: %d, style: %s, share from last ten years: %.0f%%",
					r.Count, r.Style, r.RecentRatio*100))
		},
	},
}

// basicAgents are the categories the basic tier reports, derived from
// pre-analysis instead of agent calls.
var basicAgents = map[string]bool{AgentStructure: true, AgentReferences: true}

// Registry returns the full agent set in registry order.
func Registry() []Agent {
	out := make([]Agent, len(registry))
	copy(out, registry)
	return out
}

// AgentsFor filters the registry by tier. Weights are not renormalized.
func AgentsFor(tier jobs.Tier) []Agent {
	if tier != jobs.TierBasic {
		return Registry()
	}
	var out []Agent
	for _, a := range registry {
		if basicAgents[a.ID] {
			out = append(out, a)
		}
	}
	return out
}

// Lookup finds an agent by id.
func Lookup(id string) (Agent, bool) {
	for _, a := range registry {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}

// FromPreAnalysis builds the basic tier category results out of the step 2
// output, in registry order.
func FromPreAnalysis(pre review.PreAnalysis) []review.AgentResult {
	var out []review.AgentResult
	for _, a := range AgentsFor(jobs.TierBasic) {
		switch a.ID {
		case AgentStructure:
			s := pre.Structure
			out = append(out, review.AgentResult{
				AgentID: a.ID, AgentName: a.Name, Weight: a.Weight,
				Score:     review.ClampScore(s.Score),
				Issues:    nonNilIssues(s.Issues),
				Strengths: nonNilStrings(s.Strengths),
				Feedback:  s.Feedback,
			})
		case AgentReferences:
			r := pre.References
			out = append(out, review.AgentResult{
				AgentID: a.ID, AgentName: a.Name, Weight: a.Weight,
				Score:     review.ClampScore(r.Score),
				Issues:    nonNilIssues(r.Issues),
				Strengths: nonNilStrings(r.Strengths),
				Feedback:  r.Feedback,
			})
		}
	}
	return out
}

func agentPrompt(name string, in AgentInput, notes ...string) string {
	return prompt.AgentUserPrompt(prompt.AgentContext{
		AgentName: name,
		Excerpt:   in.Document.Prefix(agentTextBudget),
		Sections:  sectionNames(in.Document),
		Notes:     notes,
	})
}

func sectionNames(doc review.ExtractedDocument) []string {
	out := make([]string, 0, len(doc.Sections))
	for _, s := range doc.Sections {
		out = append(out, string(s.Key))
	}
	return out
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
