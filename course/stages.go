package course

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/coursegraph/engine/fanout"
	"github.com/tailored-agentic-units/coursegraph/engine/graph"
	"github.com/tailored-agentic-units/coursegraph/engine/review"
)

// pipeline binds the stage functions to their configuration and provider.
type pipeline struct {
	cfg      Config
	provider ContentProvider
}

func (p *pipeline) research(ctx context.Context, s CourseState) (CourseState, error) {
	findings, err := p.provider.Research(ctx, s.Request)
	if err != nil {
		return s, fmt.Errorf("research failed: %w", err)
	}

	s.Research = findings
	s.CurrentStep = "research_complete"
	return s, nil
}

func (p *pipeline) generateStructure(ctx context.Context, s CourseState) (CourseState, error) {
	// Feedback is empty on the first pass and carries the reviewer's
	// guidance on regeneration after a rejection.
	structure, err := p.provider.OutlineCourse(ctx, s.Request, s.Research, s.Reviews.Structure.Feedback)
	if err != nil {
		return s, fmt.Errorf("course outline failed: %w", err)
	}

	s.Structure = structure
	s.CurrentStep = "structure_generated"
	return s, nil
}

func (p *pipeline) validateStructure(ctx context.Context, s CourseState) (CourseState, error) {
	v := structureVerdict(s, p.cfg.StructureGate)
	s.Verdicts.Structure = &v
	s.CurrentStep = "structure_validated"
	return s, nil
}

func (p *pipeline) generateContent(ctx context.Context, s CourseState) (CourseState, error) {
	if s.Structure == nil {
		return s, fmt.Errorf("cannot generate content without a course structure")
	}

	refs := lessonRefs(s.Structure)
	res, err := fanout.Run(ctx, p.cfg.FanOut, refs,
		func(ctx context.Context, _ int, ref LessonRef) (Lesson, error) {
			return p.provider.WriteLesson(ctx, s.Request, ref)
		})
	if err != nil {
		return s, fmt.Errorf("lesson generation aborted: %w", err)
	}

	if ratio := res.FailureRatio(); ratio > p.cfg.MaxLessonFailureRatio {
		return s, fmt.Errorf("lesson generation failed for %d of %d lessons", res.Failed(), len(refs))
	}

	// Failures under the ratio degrade to missing lessons; the coverage
	// gate decides whether the gap needs review.
	lessons := make([]Lesson, 0, len(refs))
	for _, slot := range res.Slots {
		if slot.Err != nil {
			s.Errors = append(s.Errors,
				fmt.Sprintf("lesson %q: %v", refs[slot.Index].Plan.Title, slot.Err))
			continue
		}
		lessons = append(lessons, slot.Value)
	}

	s.Lessons = lessons
	s.CurrentStep = "content_generated"
	return s, nil
}

func (p *pipeline) validateContent(ctx context.Context, s CourseState) (CourseState, error) {
	v := contentVerdict(s, p.cfg.ContentGate, p.cfg.MinLessonWords)
	s.Verdicts.Content = &v
	s.CurrentStep = "content_validated"
	return s, nil
}

func (p *pipeline) generateQuizzes(ctx context.Context, s CourseState) (CourseState, error) {
	if s.Structure == nil {
		return s, fmt.Errorf("cannot generate quizzes without a course structure")
	}

	specs := quizSpecs(s.Request, s.Structure)
	res, err := fanout.Run(ctx, p.cfg.FanOut, specs,
		func(ctx context.Context, _ int, spec QuizSpec) (Quiz, error) {
			return p.provider.WriteQuiz(ctx, s.Request, s.Structure, spec)
		})
	if err != nil {
		return s, fmt.Errorf("quiz generation aborted: %w", err)
	}

	if ratio := res.FailureRatio(); ratio > p.cfg.MaxLessonFailureRatio {
		return s, fmt.Errorf("quiz generation failed for %d of %d quizzes", res.Failed(), len(specs))
	}

	quizzes := make([]Quiz, 0, len(specs))
	for _, slot := range res.Slots {
		if slot.Err != nil {
			s.Errors = append(s.Errors,
				fmt.Sprintf("%s quiz %d for module %d: %v",
					specs[slot.Index].Kind, specs[slot.Index].Sequence+1, specs[slot.Index].Module+1, slot.Err))
			continue
		}
		quizzes = append(quizzes, slot.Value)
	}

	s.Quizzes = quizzes
	s.CurrentStep = "quizzes_generated"
	return s, nil
}

func (p *pipeline) validateQuizzes(ctx context.Context, s CourseState) (CourseState, error) {
	v := quizVerdict(s, p.cfg.QuizGate)
	s.Verdicts.Quiz = &v
	s.CurrentStep = "quizzes_validated"
	return s, nil
}

func (p *pipeline) finalize(ctx context.Context, s CourseState) (CourseState, error) {
	stats := Statistics{Lessons: len(s.Lessons), Quizzes: len(s.Quizzes)}
	if s.Structure != nil {
		stats.Modules = len(s.Structure.Modules)
	}
	for _, l := range s.Lessons {
		stats.TotalWords += l.WordCount
	}
	for _, q := range s.Quizzes {
		stats.Questions += len(q.Questions)
	}

	s.Metadata = &CourseMetadata{Statistics: stats}
	s.CurrentStep = "finalized"
	return s, nil
}

// lessonRefs flattens the planned structure into fan-out items in module
// order, so lesson output order is deterministic.
func lessonRefs(structure *CourseStructure) []LessonRef {
	refs := make([]LessonRef, 0, structure.LessonCount())
	for i, m := range structure.Modules {
		for _, plan := range m.Lessons {
			refs = append(refs, LessonRef{Module: i, ModuleTitle: m.Title, Plan: plan})
		}
	}
	return refs
}

// quizSpecs enumerates the quizzes the request asks for, graded before
// practice within each module.
func quizSpecs(req CourseRequest, structure *CourseStructure) []QuizSpec {
	specs := make([]QuizSpec, 0,
		len(structure.Modules)*(req.GradedQuizzesPerModule+req.PracticeQuizzesPerModule))
	for i, m := range structure.Modules {
		for seq := 0; seq < req.GradedQuizzesPerModule; seq++ {
			specs = append(specs, QuizSpec{Module: i, ModuleTitle: m.Title, Kind: QuizGraded, Sequence: seq})
		}
		for seq := 0; seq < req.PracticeQuizzesPerModule; seq++ {
			specs = append(specs, QuizSpec{Module: i, ModuleTitle: m.Title, Kind: QuizPractice, Sequence: seq})
		}
	}
	return specs
}

// routeAfterGate is the shared routing rule for all three validation
// stages: a passing verdict proceeds to the next stage, a failing verdict
// suspends for review.
//
// With RequireApproval set, a passing verdict still suspends until the
// subject carries an explicit approval (applied from the posted decision on
// resume), so a human signs off on every phase.
func routeAfterGate(verdictPassed, requireApproval bool, rev SubjectReview, next string) string {
	if !verdictPassed {
		return graph.AwaitReview
	}
	if requireApproval && rev.Approval != ApprovalApproved {
		return graph.AwaitReview
	}
	return next
}

func (p *pipeline) routeStructure(s CourseState) string {
	passed := s.Verdicts.Structure != nil && s.Verdicts.Structure.Passed
	return routeAfterGate(passed, p.cfg.RequireApproval, s.Reviews.Structure, "generate_content")
}

func (p *pipeline) routeContent(s CourseState) string {
	passed := s.Verdicts.Content != nil && s.Verdicts.Content.Passed
	return routeAfterGate(passed, p.cfg.RequireApproval, s.Reviews.Content, "generate_quizzes")
}

func (p *pipeline) routeQuizzes(s CourseState) string {
	passed := s.Verdicts.Quiz != nil && s.Verdicts.Quiz.Passed
	return routeAfterGate(passed, p.cfg.RequireApproval, s.Reviews.Quiz, "finalize")
}

// ParseDecision builds a review decision from raw front-end input,
// validating the action string.
func ParseDecision(subject, action, feedback string) (review.Decision, error) {
	parsed, err := review.ParseAction(action)
	if err != nil {
		return review.Decision{}, err
	}
	return review.Decision{Subject: subject, Action: parsed, Feedback: feedback}, nil
}

// applyDecision folds a posted review decision into state before the run
// re-enters the graph. Approve and continue both mark the subject approved
// (continue is acceptance-as-is, routed identically); reject records the
// feedback the regenerating stage consumes.
func applyDecision(s CourseState, d review.Decision) CourseState {
	switch d.Action {
	case review.ActionReject:
		s.SetReview(d.Subject, ApprovalRejected, d.Feedback)
	default:
		s.SetReview(d.Subject, ApprovalApproved, d.Feedback)
	}
	return s
}
