package ai

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	domai "github.com/bryanwahyu/paperscore/internal/domain/ai"
	"github.com/bryanwahyu/paperscore/internal/domain/review"
	"github.com/bryanwahyu/paperscore/internal/infra/ai/prompt"
)

const (
	structurePrefixBudget  = 15000
	referencesSuffixBudget = 20000
	preAnalysisMaxTokens   = 2500
)

// PreAnalyzer runs the structure and reference passes side by side on the
// fast model, falling back to heuristics when a call fails.
type PreAnalyzer struct {
	Client  domai.Client
	Logger  *zap.Logger
	Timeout time.Duration
	Now     func() time.Time
}

func NewPreAnalyzer(client domai.Client, logger *zap.Logger, timeout time.Duration) *PreAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreAnalyzer{Client: client, Logger: logger, Timeout: timeout, Now: time.Now}
}

// Analyze never fails: each half degrades independently.
func (p *PreAnalyzer) Analyze(ctx context.Context, doc review.ExtractedDocument) review.PreAnalysis {
	var (
		structure  domai.Parsed[review.StructureAssessment]
		references domai.Parsed[review.ReferenceList]
		g          errgroup.Group
	)
	g.Go(func() error {
		structure = p.structure(ctx, doc)
		return nil
	})
	g.Go(func() error {
		references = p.references(ctx, doc)
		return nil
	})
	_ = g.Wait()

	if structure.IsDegraded() {
		p.Logger.Warn("structure pass degraded to heuristic", zap.Error(structure.Err()))
	}
	if references.IsDegraded() {
		p.Logger.Warn("reference pass degraded to heuristic", zap.Error(references.Err()))
	}
	return review.PreAnalysis{
		Structure:          structure.Value(),
		References:         references.Value(),
		StructureDegraded:  structure.IsDegraded(),
		ReferencesDegraded: references.IsDegraded(),
	}
}

func (p *PreAnalyzer) structure(ctx context.Context, doc review.ExtractedDocument) (out domai.Parsed[review.StructureAssessment]) {
	fallback := HeuristicStructure(doc)
	defer recoverDegraded(&out, fallback)

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	comp, err := p.Client.Complete(ctx, domai.Request{
		Class:     domai.ClassFast,
		System:    prompt.StructureAssessmentSystem,
		User:      prompt.StructureUserPrompt(doc.Prefix(structurePrefixBudget), sectionNames(doc)),
		MaxTokens: preAnalysisMaxTokens,
		JSON:      true,
	})
	return parseCompletion(comp, err, structureSchema, func(r prompt.StructureResponse) review.StructureAssessment {
		return review.StructureAssessment{
			Score:           roundScore(r.Score),
			SectionsFound:   nonNilStrings(r.SectionsFound),
			MissingSections: nonNilStrings(r.MissingSections),
			Issues:          convertIssues(r.Issues, AgentStructure),
			Strengths:       nonNilStrings(r.Strengths),
			Feedback:        strings.TrimSpace(r.Feedback),
		}
	}, fallback)
}

func (p *PreAnalyzer) references(ctx context.Context, doc review.ExtractedDocument) (out domai.Parsed[review.ReferenceList]) {
	fallback := HeuristicReferences(doc, p.now())
	defer recoverDegraded(&out, fallback)

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	comp, err := p.Client.Complete(ctx, domai.Request{
		Class:     domai.ClassFast,
		System:    prompt.ReferenceExtractionSystem,
		User:      prompt.ReferencesUserPrompt(doc.Suffix(referencesSuffixBudget)),
		MaxTokens: preAnalysisMaxTokens,
		JSON:      true,
	})
	return parseCompletion(comp, err, referencesSchema, func(r prompt.ReferencesResponse) review.ReferenceList {
		entries := make([]review.Reference, 0, len(r.References))
		for _, ref := range r.References {
			entries = append(entries, review.Reference{
				Raw: strings.TrimSpace(ref.Raw), Authors: strings.TrimSpace(ref.Authors),
				Year: ref.Year, Title: strings.TrimSpace(ref.Title),
			})
		}
		count := r.Count
		if count < len(entries) {
			count = len(entries)
		}
		// The model may omit a score; derive it the same way the heuristic does.
		score := 40 + 2*count
		if r.Score != nil {
			score = roundScore(*r.Score)
		}
		ratio := r.RecentRatio
		if ratio < 0 || ratio > 1 {
			ratio = fallback.RecentRatio
		}
		style := strings.ToLower(strings.TrimSpace(r.Style))
		if style == "" {
			style = "unknown"
		}
		return review.ReferenceList{
			Count:       count,
			Style:       style,
			RecentRatio: ratio,
			Score:       review.ClampScore(score),
			Entries:     entries,
			Issues:      convertIssues(r.Issues, AgentReferences),
			Strengths:   nonNilStrings(r.Strengths),
			Feedback:    strings.TrimSpace(r.Feedback),
		}
	}, fallback)
}

func (p *PreAnalyzer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Timeout > 0 {
		return context.WithTimeout(ctx, p.Timeout)
	}
	return context.WithCancel(ctx)
}

func (p *PreAnalyzer) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func recoverDegraded[T any](out *domai.Parsed[T], fallback T) {
	if r := recover(); r != nil {
		*out = domai.Degraded(fallback, panicError{r})
	}
}
