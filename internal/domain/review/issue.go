package review

import "strings"

// Severity enum
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// ParseSeverity maps the labels models tend to produce onto the three buckets.
// Unknown labels count as minor.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "blocker", "fatal", "severe":
		return SeverityCritical
	case "major", "high", "serious", "important":
		return SeverityMajor
	default:
		return SeverityMinor
	}
}

// Issue value object
type Issue struct {
	Severity    Severity `json:"severity"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Location    string   `json:"location,omitempty"`
	Suggestion  string   `json:"suggestion,omitempty"`
	Example     string   `json:"example,omitempty"`
}

// ActionText is what the report shows as an immediate action.
func (i Issue) ActionText() string {
	if s := strings.TrimSpace(i.Suggestion); s != "" {
		return s
	}
	return strings.TrimSpace(i.Description)
}

// IssueBuckets groups issues strictly by severity.
type IssueBuckets struct {
	Critical []Issue `json:"critical"`
	Major    []Issue `json:"major"`
	Minor    []Issue `json:"minor"`
	Total    int     `json:"total"`
}

// Bucket splits issues by severity, keeping their input order.
func Bucket(issues []Issue) IssueBuckets {
	b := IssueBuckets{
		Critical: []Issue{},
		Major:    []Issue{},
		Minor:    []Issue{},
	}
	for _, is := range issues {
		switch is.Severity {
		case SeverityCritical:
			b.Critical = append(b.Critical, is)
		case SeverityMajor:
			b.Major = append(b.Major, is)
		default:
			b.Minor = append(b.Minor, is)
		}
	}
	b.Total = len(b.Critical) + len(b.Major) + len(b.Minor)
	return b
}
