package course

import (
	"fmt"

	"github.com/tailored-agentic-units/coursegraph/engine/gate"
)

// structureVerdict scores a generated course structure against the request.
// Pure over its inputs: the same state always produces the same verdict.
func structureVerdict(s CourseState, cfg GateConfig) gate.Verdict {
	if s.Structure == nil {
		return gate.Verdict{Issues: []string{"no course structure was generated"}}
	}

	var issues []string

	moduleRatio := 1.0
	if want := s.Request.Modules; want > 0 {
		got := len(s.Structure.Modules)
		moduleRatio = gate.Clamp(float64(got) / float64(want))
		if got < want {
			issues = append(issues, fmt.Sprintf("structure has %d modules, %d were requested", got, want))
		}
	}

	lessonRatio := 0.0
	if n := len(s.Structure.Modules); n > 0 {
		withLessons := 0
		for _, m := range s.Structure.Modules {
			if len(m.Lessons) >= 2 {
				withLessons++
			} else {
				issues = append(issues, fmt.Sprintf("module %q has fewer than two lessons", m.Title))
			}
		}
		lessonRatio = float64(withLessons) / float64(n)
	}

	labPresent := 1.0
	if s.Request.NeedsLabModule && !s.Structure.HasLabModule() {
		labPresent = 0
		issues = append(issues, "a hands-on lab module was requested but none is present")
	}

	score := gate.Clamp(0.5*moduleRatio + 0.4*lessonRatio + 0.1*labPresent)
	v := gate.Threshold(score, cfg.Threshold, issues)

	// A requested lab is a hard requirement, not just a score component.
	if labPresent == 0 {
		v.Passed = false
	}
	return v
}

// contentVerdict scores written lessons by coverage of the planned structure
// and by minimum length. Coverage is also checked as a standalone criterion.
func contentVerdict(s CourseState, cfg GateConfig, minWords int) gate.Verdict {
	if s.Structure == nil {
		return gate.Verdict{Issues: []string{"no course structure to validate content against"}}
	}

	planned := s.Structure.LessonCount()
	if planned == 0 {
		return gate.Verdict{Issues: []string{"course structure plans zero lessons"}}
	}

	var issues []string

	coverage := gate.Clamp(float64(len(s.Lessons)) / float64(planned))
	if len(s.Lessons) < planned {
		issues = append(issues, fmt.Sprintf("%d of %d planned lessons were written", len(s.Lessons), planned))
	}

	longEnough := 0
	for _, l := range s.Lessons {
		if l.WordCount >= minWords {
			longEnough++
		} else {
			issues = append(issues, fmt.Sprintf("lesson %q is under %d words", l.Title, minWords))
		}
	}
	lengthRatio := 0.0
	if len(s.Lessons) > 0 {
		lengthRatio = float64(longEnough) / float64(len(s.Lessons))
	}

	score := gate.Clamp(0.6*coverage + 0.4*lengthRatio)
	v := gate.Threshold(score, cfg.Threshold, issues)
	return gate.WithCoverage(v, coverage, cfg.MinCoverage, "lesson coverage is below the configured minimum")
}

// quizVerdict scores generated quizzes against the per-module counts in the
// request and a minimum question count per quiz.
func quizVerdict(s CourseState, cfg GateConfig) gate.Verdict {
	if s.Structure == nil {
		return gate.Verdict{Issues: []string{"no course structure to validate quizzes against"}}
	}

	expected := len(s.Structure.Modules) * (s.Request.GradedQuizzesPerModule + s.Request.PracticeQuizzesPerModule)
	if expected == 0 {
		return gate.Verdict{Score: 1, Passed: true}
	}

	var issues []string

	type key struct {
		module int
		kind   QuizKind
	}
	counts := make(map[key]int, len(s.Quizzes))
	for _, q := range s.Quizzes {
		counts[key{q.Module, q.Kind}]++
	}

	present := 0
	for i, m := range s.Structure.Modules {
		if got, want := counts[key{i, QuizGraded}], s.Request.GradedQuizzesPerModule; got < want {
			issues = append(issues, fmt.Sprintf("module %q has %d of %d graded quizzes", m.Title, got, want))
			present += got
		} else {
			present += want
		}
		if got, want := counts[key{i, QuizPractice}], s.Request.PracticeQuizzesPerModule; got < want {
			issues = append(issues, fmt.Sprintf("module %q has %d of %d practice quizzes", m.Title, got, want))
			present += got
		} else {
			present += want
		}
	}
	countRatio := float64(present) / float64(expected)

	questionRatio := 0.0
	if len(s.Quizzes) > 0 {
		enough := 0
		for _, q := range s.Quizzes {
			if len(q.Questions) >= 3 {
				enough++
			} else {
				issues = append(issues, fmt.Sprintf("quiz %q has fewer than three questions", q.Title))
			}
		}
		questionRatio = float64(enough) / float64(len(s.Quizzes))
	}

	score := gate.Clamp(0.7*countRatio + 0.3*questionRatio)
	return gate.Threshold(score, cfg.Threshold, issues)
}
