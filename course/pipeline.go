package course

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tailored-agentic-units/coursegraph/engine/checkpoint"
	"github.com/tailored-agentic-units/coursegraph/engine/gate"
	"github.com/tailored-agentic-units/coursegraph/engine/graph"
)

// ErrSchemaVersion reports a checkpoint written under an incompatible
// CourseState schema.
var ErrSchemaVersion = errors.New("incompatible course state schema")

// Stage names in execution order.
const (
	StageResearch          = "research"
	StageGenerateStructure = "generate_structure"
	StageValidateStructure = "validate_structure"
	StageGenerateContent   = "generate_content"
	StageValidateContent   = "validate_content"
	StageGenerateQuizzes   = "generate_quizzes"
	StageValidateQuizzes   = "validate_quizzes"
	StageFinalize          = "finalize"
)

// ReviewPayload is the data attached to a pending review request: the gate
// verdict plus a compact summary of what was produced.
type ReviewPayload struct {
	Subject string        `json:"subject"`
	Verdict *gate.Verdict `json:"verdict,omitempty"`
	Summary string        `json:"summary"`
}

// NewPipeline builds the course-building workflow on the orchestration
// engine:
//
//	research -> generate_structure -> validate_structure ->
//	generate_content -> validate_content ->
//	generate_quizzes -> validate_quizzes -> finalize
//
// A validate stage suspends for review when its verdict fails (or, with
// RequireApproval, until its subject carries an explicit approval); a
// rejection re-enters the generating stage with the reviewer's feedback.
func NewPipeline(
	cfg Config,
	provider ContentProvider,
	store checkpoint.Store[CourseState],
	opts ...graph.Option[CourseState],
) (*graph.Engine[CourseState], error) {
	if provider == nil {
		return nil, fmt.Errorf("content provider cannot be nil")
	}

	p := &pipeline{cfg: cfg, provider: provider}

	opts = append(opts,
		graph.WithDecisionApplier[CourseState](applyDecision),
		graph.WithLoadCheck[CourseState](checkSchemaVersion),
	)
	eng, err := graph.New(cfg.Graph, store, opts...)
	if err != nil {
		return nil, err
	}

	stages := []struct {
		name string
		fn   graph.StageFunc[CourseState]
	}{
		{StageResearch, p.research},
		{StageGenerateStructure, p.generateStructure},
		{StageValidateStructure, p.validateStructure},
		{StageGenerateContent, p.generateContent},
		{StageValidateContent, p.validateContent},
		{StageGenerateQuizzes, p.generateQuizzes},
		{StageValidateQuizzes, p.validateQuizzes},
		{StageFinalize, p.finalize},
	}
	for _, s := range stages {
		if err := eng.AddStage(s.name, s.fn); err != nil {
			return nil, err
		}
	}

	if err := eng.SetNext(StageResearch, StageGenerateStructure); err != nil {
		return nil, err
	}
	if err := eng.SetNext(StageGenerateStructure, StageValidateStructure); err != nil {
		return nil, err
	}
	if err := eng.SetNext(StageGenerateContent, StageValidateContent); err != nil {
		return nil, err
	}
	if err := eng.SetNext(StageGenerateQuizzes, StageValidateQuizzes); err != nil {
		return nil, err
	}

	if err := eng.SetRoute(StageValidateStructure, p.routeStructure); err != nil {
		return nil, err
	}
	if err := eng.SetRoute(StageValidateContent, p.routeContent); err != nil {
		return nil, err
	}
	if err := eng.SetRoute(StageValidateQuizzes, p.routeQuizzes); err != nil {
		return nil, err
	}

	if err := eng.SetReview(StageValidateStructure, graph.ReviewSpec[CourseState]{
		Subject:     SubjectStructure,
		Payload:     structurePayload,
		RetryStage:  StageGenerateStructure,
		ResumeStage: StageGenerateContent,
	}); err != nil {
		return nil, err
	}
	if err := eng.SetReview(StageValidateContent, graph.ReviewSpec[CourseState]{
		Subject:     SubjectContent,
		Payload:     contentPayload,
		RetryStage:  StageGenerateContent,
		ResumeStage: StageGenerateQuizzes,
	}); err != nil {
		return nil, err
	}
	if err := eng.SetReview(StageValidateQuizzes, graph.ReviewSpec[CourseState]{
		Subject:     SubjectQuiz,
		Payload:     quizPayload,
		RetryStage:  StageGenerateQuizzes,
		ResumeStage: StageFinalize,
	}); err != nil {
		return nil, err
	}

	if err := eng.SetEntry(StageResearch); err != nil {
		return nil, err
	}
	if err := eng.SetTerminal(StageFinalize); err != nil {
		return nil, err
	}

	if err := eng.Validate(); err != nil {
		return nil, err
	}

	return eng, nil
}

func structurePayload(s CourseState) any {
	summary := "no structure"
	if s.Structure != nil {
		summary = fmt.Sprintf("%d modules, %d planned lessons",
			len(s.Structure.Modules), s.Structure.LessonCount())
	}
	return ReviewPayload{Subject: SubjectStructure, Verdict: s.Verdicts.Structure, Summary: summary}
}

func contentPayload(s CourseState) any {
	planned := 0
	if s.Structure != nil {
		planned = s.Structure.LessonCount()
	}
	summary := fmt.Sprintf("%d of %d lessons written", len(s.Lessons), planned)
	return ReviewPayload{Subject: SubjectContent, Verdict: s.Verdicts.Content, Summary: summary}
}

func quizPayload(s CourseState) any {
	questions := 0
	for _, q := range s.Quizzes {
		questions += len(q.Questions)
	}
	summary := fmt.Sprintf("%d quizzes, %d questions", len(s.Quizzes), questions)
	return ReviewPayload{Subject: SubjectQuiz, Verdict: s.Verdicts.Quiz, Summary: summary}
}

// DecodeReviewPayload recovers the typed payload of a pending review
// request. In the process that paused the run the payload is still a
// ReviewPayload; rehydrated from the checkpoint store it comes back as
// decoded JSON and is converted through its wire form.
func DecodeReviewPayload(v any) (ReviewPayload, bool) {
	switch p := v.(type) {
	case ReviewPayload:
		return p, true
	case map[string]any:
		raw, err := json.Marshal(p)
		if err != nil {
			return ReviewPayload{}, false
		}
		var payload ReviewPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return ReviewPayload{}, false
		}
		return payload, true
	default:
		return ReviewPayload{}, false
	}
}

// checkSchemaVersion rejects rehydrated checkpoints written under a
// different CourseState schema.
func checkSchemaVersion(s CourseState) error {
	if s.SchemaVersion != SchemaVersion {
		return fmt.Errorf("%w: checkpoint has version %d, this build reads %d",
			ErrSchemaVersion, s.SchemaVersion, SchemaVersion)
	}
	return nil
}
