package ai

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	domai "github.com/bryanwahyu/paperscore/internal/domain/ai"
	"github.com/bryanwahyu/paperscore/internal/domain/review"
	"github.com/bryanwahyu/paperscore/internal/infra/ai/prompt"
)

const (
	crossExcerptBudget   = 40000
	crossMaxTokens       = 4000
	panelTopN            = 3
	degradedConfidence   = 0.5
	degradedCrossSummary = "Cross-validation partially completed; scores were not calibrated."
)

// CrossValidator asks the strong model to calibrate the first pass.
type CrossValidator struct {
	Client  domai.Client
	Logger  *zap.Logger
	Timeout time.Duration
}

func NewCrossValidator(client domai.Client, logger *zap.Logger, timeout time.Duration) *CrossValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CrossValidator{Client: client, Logger: logger, Timeout: timeout}
}

// DegradedCrossValidation is used when the calibration call cannot be parsed.
// It carries no calibrated overall score, so the report falls back to the
// weighted average.
func DegradedCrossValidation() review.CrossValidation {
	return review.CrossValidation{
		Categories:       []review.CategoryReview{},
		MissedIssues:     []review.Issue{},
		OverstatedIssues: []review.OverstatedIssue{},
		Confidence:       degradedConfidence,
		Summary:          degradedCrossSummary,
		Degraded:         true,
	}
}

// Validate never fails; a bad answer yields DegradedCrossValidation.
func (c *CrossValidator) Validate(ctx context.Context, doc review.ExtractedDocument, results []review.AgentResult) (out review.CrossValidation) {
	fallback := DegradedCrossValidation()
	defer func() {
		if r := recover(); r != nil {
			c.Logger.Error("cross-validation panicked", zap.Any("panic", r))
			out = fallback
		}
	}()

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	comp, err := c.Client.Complete(ctx, domai.Request{
		Class:     domai.ClassStrong,
		System:    prompt.CrossValidationSystem,
		User:      prompt.CrossValidationUserPrompt(Panel(results), doc.Prefix(crossExcerptBudget)),
		MaxTokens: crossMaxTokens,
		JSON:      true,
	})
	parsed := parseCompletion(comp, err, crossSchema, toCrossValidation, fallback)
	if parsed.IsDegraded() {
		c.Logger.Warn("cross-validation degraded", zap.Error(parsed.Err()))
	}
	return parsed.Value()
}

// Panel condenses agent results for the calibration prompt.
func Panel(results []review.AgentResult) []prompt.PanelEntry {
	out := make([]prompt.PanelEntry, 0, len(results))
	for _, r := range results {
		issues := append([]review.Issue(nil), r.Issues...)
		sort.SliceStable(issues, func(i, j int) bool {
			return severityRank(issues[i].Severity) < severityRank(issues[j].Severity)
		})
		e := prompt.PanelEntry{
			AgentID:   r.AgentID,
			AgentName: r.AgentName,
			Weight:    r.Weight,
			Score:     r.Score,
			Failed:    r.Degraded(),
		}
		for i := 0; i < len(issues) && i < panelTopN; i++ {
			e.Issues = append(e.Issues, string(issues[i].Severity)+": "+issues[i].Description)
		}
		for i := 0; i < len(r.Strengths) && i < panelTopN; i++ {
			e.Strengths = append(e.Strengths, r.Strengths[i])
		}
		out = append(out, e)
	}
	return out
}

func toCrossValidation(r prompt.CrossValidationResponse) review.CrossValidation {
	out := review.CrossValidation{
		Categories:       []review.CategoryReview{},
		MissedIssues:     convertIssues(r.MissedIssues, "general"),
		OverstatedIssues: []review.OverstatedIssue{},
		Confidence:       clampUnit(r.Confidence),
		Summary:          strings.TrimSpace(r.Summary),
	}
	seen := map[string]bool{}
	for _, cat := range r.Categories {
		id := strings.ToLower(strings.TrimSpace(cat.AgentID))
		if _, ok := Lookup(id); !ok || seen[id] {
			continue
		}
		seen[id] = true
		cr := review.CategoryReview{
			AgentID:   id,
			Score:     roundScore(cat.Score),
			Agreement: ParseAgreement(cat.Agreement),
			Comment:   strings.TrimSpace(cat.Comment),
		}
		if cat.AdjustedScore != nil {
			adj := roundScore(*cat.AdjustedScore)
			cr.AdjustedScore = &adj
		}
		out.Categories = append(out.Categories, cr)
	}
	for _, o := range r.OverstatedIssues {
		id := strings.ToLower(strings.TrimSpace(o.AgentID))
		if _, ok := Lookup(id); !ok {
			continue
		}
		out.OverstatedIssues = append(out.OverstatedIssues, review.OverstatedIssue{
			AgentID:     id,
			Description: strings.TrimSpace(o.Description),
			Reason:      strings.TrimSpace(o.Reason),
		})
	}
	if r.CalibratedOverallScore != nil {
		s := roundScore(*r.CalibratedOverallScore)
		out.CalibratedOverallScore = &s
	}
	return out
}

// ParseAgreement normalizes free-form agreement labels. Unknown labels count
// as partial.
func ParseAgreement(s string) review.Agreement {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case v == "agree" || v == "agreed" || v == "full" || v == "yes":
		return review.AgreementAgree
	case strings.HasPrefix(v, "disagree") || v == "no":
		return review.AgreementDisagree
	default:
		return review.AgreementPartial
	}
}

func severityRank(s review.Severity) int {
	switch s {
	case review.SeverityCritical:
		return 0
	case review.SeverityMajor:
		return 1
	default:
		return 2
	}
}

func clampUnit(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
