package jobs

import "fmt"

// plans is the single tier branching table. Every handler asks it where to go
// next; no handler encodes tier logic of its own.
var plans = map[Tier][]Stage{
	TierBasic:         {StageExtract, StagePreAnalyze, StageReport},
	TierStandard:      {StageExtract, StagePreAnalyze, StageDeepAnalyze, StageReport},
	TierComprehensive: {StageExtract, StagePreAnalyze, StageDeepAnalyze, StageCrossValidate, StageReport},
}

// Stages returns a copy of the stage sequence for a tier.
func Stages(t Tier) []Stage {
	p := plans[t]
	out := make([]Stage, len(p))
	copy(out, p)
	return out
}

// TotalSteps is 3, 4 or 5 depending on the tier, and 0 for unknown tiers.
func TotalSteps(t Tier) int { return len(plans[t]) }

// StageAt resolves a 1-based step to its stage.
func StageAt(t Tier, step int) (Stage, error) {
	p, ok := plans[t]
	if !ok {
		return "", fmt.Errorf("%w: unknown tier %q", ErrInvalidJob, t)
	}
	if step < 1 || step > len(p) {
		return "", fmt.Errorf("%w: step %d out of range for tier %s", ErrInvalidJob, step, t)
	}
	return p[step-1], nil
}

// Includes reports whether a tier's plan runs the given stage.
func Includes(t Tier, s Stage) bool {
	for _, st := range plans[t] {
		if st == s {
			return true
		}
	}
	return false
}

// Next returns the job addressed to the following stage, or false when the
// current step is the last one.
func Next(j Job) (Job, Stage, bool) {
	if j.Step >= TotalSteps(j.Tier) {
		return j, "", false
	}
	nj := j
	nj.Step++
	st, err := StageAt(nj.Tier, nj.Step)
	if err != nil {
		return j, "", false
	}
	return nj, st, true
}

// IsLast reports whether the job is at the terminal step of its plan.
func IsLast(j Job) bool { return j.Step == TotalSteps(j.Tier) }

// First builds the step 1 job for a freshly submitted document.
func First(j Job) Job {
	j.Step = 1
	j.TotalSteps = TotalSteps(j.Tier)
	return j
}
