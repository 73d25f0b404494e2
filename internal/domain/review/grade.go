package review

// Grade value object
type Grade struct {
	Letter string `json:"letter"`
	Label  string `json:"label"`
	Color  string `json:"color"`
}

// GradeBand is an inclusive score range.
type GradeBand struct {
	Min, Max int
	Grade    Grade
}

// gradeBands is ordered from the highest band down and must not overlap.
var gradeBands = []GradeBand{
	{95, 100, Grade{"A+", "Exceptional", "#15803d"}},
	{90, 94, Grade{"A", "Excellent", "#16a34a"}},
	{85, 89, Grade{"A-", "Very Good", "#22c55e"}},
	{80, 84, Grade{"B+", "Good", "#65a30d"}},
	{75, 79, Grade{"B", "Above Average", "#ca8a04"}},
	{70, 74, Grade{"B-", "Satisfactory", "#d97706"}},
	{65, 69, Grade{"C+", "Adequate", "#ea580c"}},
	{60, 64, Grade{"C", "Needs Improvement", "#dc2626"}},
	{0, 59, Grade{"F", "Needs Major Revision", "#991b1b"}},
}

// GradeBands returns a copy of the band table.
func GradeBands() []GradeBand {
	out := make([]GradeBand, len(gradeBands))
	copy(out, gradeBands)
	return out
}

// GradeFor returns the first band containing score, or the lowest band when
// nothing matches.
func GradeFor(score int) Grade {
	for _, b := range gradeBands {
		if score >= b.Min && score <= b.Max {
			return b.Grade
		}
	}
	return gradeBands[len(gradeBands)-1].Grade
}
