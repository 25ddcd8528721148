// Package gate provides the validation verdict framework for quality gates.
//
// A gate is a deterministic, side-effect-free function from state to a
// Verdict. Gates must be safely re-runnable against the same state: a
// resumed run may re-evaluate a gate it already passed through, and the
// verdict must not change.
package gate

// Verdict is the outcome of a validation gate.
type Verdict struct {
	// Score is the quality score in [0, 1].
	Score float64 `json:"score"`

	// Passed reports whether the gate's criteria were met.
	Passed bool `json:"passed"`

	// Issues itemizes what kept the score down, best first for reviewers.
	Issues []string `json:"issues,omitempty"`
}

// Func computes a verdict from the current state. Implementations must be
// pure: no mutation of state, no I/O, identical verdicts for identical
// states.
type Func[S any] func(state S) Verdict

// Threshold builds a verdict from a score and a pass threshold, clamping
// the score into [0, 1].
//
// Example:
//
//	v := gate.Threshold(score, 0.7, issues)
func Threshold(score, threshold float64, issues []string) Verdict {
	score = Clamp(score)
	return Verdict{
		Score:  score,
		Passed: score >= threshold,
		Issues: issues,
	}
}

// WithCoverage applies a secondary coverage criterion on top of a verdict:
// the verdict only passes if coverage also meets its minimum.
func WithCoverage(v Verdict, coverage, minCoverage float64, issue string) Verdict {
	if Clamp(coverage) >= minCoverage {
		return v
	}
	v.Passed = false
	if issue != "" {
		v.Issues = append(v.Issues, issue)
	}
	return v
}

// Clamp bounds a score into [0, 1].
func Clamp(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}
