package ai

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bryanwahyu/paperscore/internal/domain/review"
)

// Sections whose absence is a major problem for an academic manuscript.
var coreSections = map[review.SectionKey]bool{
	review.SectionMethodology: true,
	review.SectionResults:     true,
	review.SectionConclusion:  true,
}

// HeuristicStructure scores organization from the keyword scan alone.
func HeuristicStructure(doc review.ExtractedDocument) review.StructureAssessment {
	all := review.AllSections()
	found := make([]string, 0, len(all))
	missing := make([]string, 0, len(all))
	issues := []review.Issue{}
	for _, key := range all {
		if doc.Has(key) {
			found = append(found, string(key))
			continue
		}
		missing = append(missing, string(key))
		sev := review.SeverityMinor
		if coreSections[key] {
			sev = review.SeverityMajor
		}
		issues = append(issues, review.Issue{
			Severity:    sev,
			Category:    AgentStructure,
			Description: fmt.Sprintf("No %s section was detected.", strings.ReplaceAll(string(key), "_", " ")),
			Suggestion:  fmt.Sprintf("Add a clearly labelled %s section.", strings.ReplaceAll(string(key), "_", " ")),
		})
	}

	strengths := []string{}
	if len(missing) == 0 {
		strengths = append(strengths, "All standard sections are present.")
	}
	return review.StructureAssessment{
		Score:           40 + 60*len(found)/len(all),
		SectionsFound:   found,
		MissingSections: missing,
		Issues:          issues,
		Strengths:       strengths,
		Feedback:        fmt.Sprintf("Detected %d of %d standard sections by heading scan.", len(found), len(all)),
	}
}

var (
	referenceLine = regexp.MustCompile(`^\s*(\[\d+\]|\d+\.\s|[A-Z][A-Za-z'\-]+,\s*[A-Z]\.)`)
	ieeeLine      = regexp.MustCompile(`^\s*\[\d+\]`)
	apaYear       = regexp.MustCompile(`\((?:19|20)\d{2}[a-z]?\)`)
	anyYear       = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// HeuristicReferences counts bibliography entries after the references
// heading. now sets the ten year window for RecentRatio.
func HeuristicReferences(doc review.ExtractedDocument, now time.Time) review.ReferenceList {
	sec, ok := doc.Section(review.SectionReferences)
	if !ok {
		return review.ReferenceList{
			Count: 0,
			Style: "unknown",
			Score: 30,
			Issues: []review.Issue{{
				Severity:    review.SeverityMajor,
				Category:    AgentReferences,
				Description: "No references section was detected.",
				Suggestion:  "Add a reference list that cites the sources used in the manuscript.",
			}},
			Strengths: []string{},
			Feedback:  "The manuscript has no detectable reference list.",
		}
	}

	body := doc.Text[sec.Index:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = ""
	}

	var (
		entries      []review.Reference
		ieee, apa    int
		dated, fresh int
	)
	for _, line := range strings.Split(body, "\n") {
		if !referenceLine.MatchString(line) {
			continue
		}
		ref := review.Reference{Raw: strings.TrimSpace(line)}
		if ieeeLine.MatchString(line) {
			ieee++
		}
		if apaYear.MatchString(line) {
			apa++
		}
		if m := anyYear.FindString(line); m != "" {
			y, _ := strconv.Atoi(m)
			ref.Year = y
			dated++
			if y >= now.Year()-10 {
				fresh++
			}
		}
		entries = append(entries, ref)
	}

	count := len(entries)
	score := 40 + 2*count
	if score > 100 {
		score = 100
	}
	style := "unknown"
	switch {
	case count > 0 && ieee*2 > count:
		style = "ieee"
	case count > 0 && apa*2 > count:
		style = "apa"
	}
	ratio := 0.0
	if dated > 0 {
		ratio = float64(fresh) / float64(dated)
	}

	issues := []review.Issue{}
	if count < 10 {
		issues = append(issues, review.Issue{
			Severity:    review.SeverityMinor,
			Category:    AgentReferences,
			Description: fmt.Sprintf("Only %d references were found.", count),
			Suggestion:  "Broaden the literature base with additional relevant sources.",
		})
	}
	return review.ReferenceList{
		Count:       count,
		Style:       style,
		RecentRatio: ratio,
		Score:       score,
		Entries:     entries,
		Issues:      issues,
		Strengths:   []string{},
		Feedback:    fmt.Sprintf("Counted %d reference entries by line pattern.", count),
	}
}
