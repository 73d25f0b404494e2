// Package scoring merges stage outputs into the final report.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
	"github.com/bryanwahyu/paperscore/internal/domain/review"
)

const (
	recommendThreshold = 70
	maxRecommendations = 3
	maxImmediate       = 5
	maxStrengths       = 10
)

// ReportInput gathers everything Generate-Report reads from earlier steps.
type ReportInput struct {
	Tier        jobs.Tier
	Document    review.ExtractedDocument
	PreAnalysis review.PreAnalysis
	Results     []review.AgentResult
	// Cross is nil when the tier skips cross-validation.
	Cross       *review.CrossValidation
	SubmittedAt time.Time
	Now         time.Time
}

// WeightedScore is round(Σ score·weight / Σ weight), or 0 without weight.
func WeightedScore(scores []review.CategoryScore) int {
	var sum, weight float64
	for _, c := range scores {
		sum += float64(c.Score) * c.Weight
		weight += c.Weight
	}
	if weight == 0 {
		return 0
	}
	return review.ClampScore(int(math.Round(sum / weight)))
}

// CategoryScores applies calibration adjustments to agent results.
func CategoryScores(results []review.AgentResult, cross *review.CrossValidation) []review.CategoryScore {
	out := make([]review.CategoryScore, 0, len(results))
	for _, r := range results {
		cs := review.CategoryScore{
			ID:            r.AgentID,
			Name:          r.AgentName,
			Score:         review.ClampScore(r.Score),
			OriginalScore: review.ClampScore(r.Score),
			Weight:        r.Weight,
			Degraded:      r.Degraded(),
			Feedback:      r.Feedback,
		}
		if cross != nil {
			if adj, ok := cross.Adjusted(r.AgentID); ok {
				cs.Score = adj
				cs.Calibrated = true
			}
		}
		out = append(out, cs)
	}
	return out
}

// OverallScore prefers the calibrated holistic score and otherwise uses the
// weighted mean of the merged category scores.
func OverallScore(categories []review.CategoryScore, cross *review.CrossValidation) int {
	if cross != nil && cross.CalibratedOverallScore != nil {
		return review.ClampScore(*cross.CalibratedOverallScore)
	}
	return WeightedScore(categories)
}

// FlattenIssues lists agent issues in result order followed by missed issues.
func FlattenIssues(results []review.AgentResult, cross *review.CrossValidation) []review.Issue {
	var out []review.Issue
	for _, r := range results {
		out = append(out, r.Issues...)
	}
	if cross != nil {
		out = append(out, cross.MissedIssues...)
	}
	return out
}

// Recommendations is never empty.
func Recommendations(categories []review.CategoryScore, buckets review.IssueBuckets) []review.Recommendation {
	low := make([]review.CategoryScore, 0, len(categories))
	for _, c := range categories {
		if c.Score < recommendThreshold {
			low = append(low, c)
		}
	}
	sort.SliceStable(low, func(i, j int) bool { return low[i].Score < low[j].Score })
	if len(low) > maxRecommendations {
		low = low[:maxRecommendations]
	}

	out := make([]review.Recommendation, 0, len(low)+1)
	for _, c := range low {
		out = append(out, review.Recommendation{
			Priority:    priorityFor(c.Score),
			Category:    c.ID,
			Title:       "Strengthen " + strings.ToLower(c.Name),
			Description: fmt.Sprintf("%s scored %d/100. %s", c.Name, c.Score, feedbackOr(c.Feedback, "Review the issues listed for this category.")),
		})
	}
	if n := len(buckets.Critical); n > 0 {
		out = append(out, review.Recommendation{
			Priority:    review.PriorityHigh,
			Category:    "general",
			Title:       "Resolve critical issues",
			Description: fmt.Sprintf("%d critical %s must be addressed before submission.", n, plural(n, "issue", "issues")),
		})
	}
	if len(out) == 0 {
		out = append(out, review.Recommendation{
			Priority:    review.PriorityLow,
			Category:    "general",
			Title:       "Polish for submission",
			Description: "The manuscript is in good shape. Proofread once more and check the target venue's formatting guidelines.",
		})
	}
	return out
}

// ImmediateActions returns the action text of the first five critical issues.
func ImmediateActions(buckets review.IssueBuckets) []string {
	out := []string{}
	for _, is := range buckets.Critical {
		if len(out) == maxImmediate {
			break
		}
		out = append(out, is.ActionText())
	}
	return out
}

// Strengths dedupes case-insensitively, keeping first occurrence order.
func Strengths(results []review.AgentResult) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, r := range results {
		for _, s := range r.Strengths {
			key := strings.ToLower(strings.TrimSpace(s))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, strings.TrimSpace(s))
			if len(out) == maxStrengths {
				return out
			}
		}
	}
	return out
}

// BuildReport assembles the final artifact.
func BuildReport(in ReportInput) review.FinalAnalysisResult {
	categories := CategoryScores(in.Results, in.Cross)
	overall := OverallScore(categories, in.Cross)
	buckets := review.Bucket(FlattenIssues(in.Results, in.Cross))

	meta := review.Metadata{
		WordCount:        in.Document.WordCount,
		PageCount:        in.Document.EstimatedPageCount,
		SectionsDetected: len(in.Document.Sections),
		ReferenceCount:   in.PreAnalysis.References.Count,
		AgentsRun:        []string{},
		DegradedAgents:   []string{},
	}
	for _, r := range in.Results {
		meta.AgentsRun = append(meta.AgentsRun, r.AgentID)
		if r.Degraded() {
			meta.DegradedAgents = append(meta.DegradedAgents, r.AgentID)
		}
	}
	if !in.SubmittedAt.IsZero() && in.Now.After(in.SubmittedAt) {
		meta.ProcessingTimeMS = in.Now.Sub(in.SubmittedAt).Milliseconds()
	}

	res := review.FinalAnalysisResult{
		OverallScore:     overall,
		Grade:            review.GradeFor(overall),
		CategoryScores:   categories,
		Issues:           buckets,
		Strengths:        Strengths(in.Results),
		Recommendations:  Recommendations(categories, buckets),
		ImmediateActions: ImmediateActions(buckets),
		Metadata:         meta,
		Tier:             string(in.Tier),
		CrossValidated:   jobs.Includes(in.Tier, jobs.StageCrossValidate),
		GeneratedAt:      in.Now,
	}
	if in.Cross != nil {
		res.Metadata.Confidence = in.Cross.Confidence
		res.CalibrationSummary = in.Cross.Summary
	}
	return res
}

func priorityFor(score int) string {
	switch {
	case score < 50:
		return review.PriorityHigh
	case score < 60:
		return review.PriorityMedium
	default:
		return review.PriorityLow
	}
}

func feedbackOr(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
