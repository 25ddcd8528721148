// Package course implements the course-building pipeline on top of the
// workflow engine: research, structure outline, per-lesson content fan-out,
// quiz generation, validation gates, and human review checkpoints.
//
// Content itself comes from an external ContentProvider; this package owns
// the shared state schema, the stage and gate logic, and the graph wiring.
package course

import (
	"github.com/tailored-agentic-units/coursegraph/engine/gate"
)

// SchemaVersion identifies the CourseState layout. Checkpoints written by a
// different schema version are rejected at load rather than silently
// misread.
const SchemaVersion = 1

// Review subjects, the values carried by review requests and decisions.
const (
	SubjectStructure = "structure"
	SubjectContent   = "content"
	SubjectQuiz      = "quiz"
)

// LearnerLevel is the target audience depth for the course.
type LearnerLevel string

const (
	LevelBasic        LearnerLevel = "basic"
	LevelIntermediate LearnerLevel = "intermediate"
	LevelAdvanced     LearnerLevel = "advanced"
)

// Approval is the tri-state review flag for one subject.
type Approval string

const (
	ApprovalUndecided Approval = "undecided"
	ApprovalApproved  Approval = "approved"
	ApprovalRejected  Approval = "rejected"
)

// CourseRequest is the user-supplied course specification, immutable after
// run start.
type CourseRequest struct {
	Subject                  string       `json:"subject"`
	LearnerLevel             LearnerLevel `json:"learner_level"`
	Duration                 string       `json:"duration"`
	Modules                  int          `json:"modules"`
	GradedQuizzesPerModule   int          `json:"graded_quizzes_per_module"`
	PracticeQuizzesPerModule int          `json:"practice_quizzes_per_module"`
	NeedsLabModule           bool         `json:"needs_lab_module"`
	CustomPrompt             string       `json:"custom_prompt,omitempty"`
}

// ResearchFindings summarizes the domain research backing the outline.
type ResearchFindings struct {
	KeyAreas   []string `json:"key_areas"`
	Topics     []string `json:"topics"`
	Objectives []string `json:"objectives"`
}

// LessonPlan is one planned lesson within a module.
type LessonPlan struct {
	Title      string   `json:"title"`
	Objectives []string `json:"objectives,omitempty"`
}

// Module is one planned course module.
type Module struct {
	Title   string       `json:"title"`
	Summary string       `json:"summary,omitempty"`
	IsLab   bool         `json:"is_lab,omitempty"`
	Lessons []LessonPlan `json:"lessons"`
}

// CourseStructure is the module/lesson breakdown produced by the outline
// stage and reviewed under SubjectStructure.
type CourseStructure struct {
	Modules []Module `json:"modules"`
}

// LessonCount returns the total planned lessons across modules.
func (s *CourseStructure) LessonCount() int {
	n := 0
	for _, m := range s.Modules {
		n += len(m.Lessons)
	}
	return n
}

// HasLabModule reports whether any module is a lab.
func (s *CourseStructure) HasLabModule() bool {
	for _, m := range s.Modules {
		if m.IsLab {
			return true
		}
	}
	return false
}

// Lesson is the written content for one planned lesson.
type Lesson struct {
	Module      int    `json:"module"`
	ModuleTitle string `json:"module_title"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	WordCount   int    `json:"word_count"`
}

// QuizKind distinguishes graded from practice quizzes.
type QuizKind string

const (
	QuizGraded   QuizKind = "graded"
	QuizPractice QuizKind = "practice"
)

// QuizQuestion is one multiple-choice question.
type QuizQuestion struct {
	Prompt  string   `json:"prompt"`
	Choices []string `json:"choices"`
	Answer  int      `json:"answer"`
}

// Quiz is one generated quiz for a module.
type Quiz struct {
	Module    int            `json:"module"`
	Kind      QuizKind       `json:"kind"`
	Title     string         `json:"title"`
	Questions []QuizQuestion `json:"questions"`
}

// SubjectReview holds the tri-state approval flag and reviewer feedback for
// one review subject.
type SubjectReview struct {
	Approval Approval `json:"approval"`
	Feedback string   `json:"feedback,omitempty"`
}

// Reviews groups the per-subject review records.
type Reviews struct {
	Structure SubjectReview `json:"structure"`
	Content   SubjectReview `json:"content"`
	Quiz      SubjectReview `json:"quiz"`
}

// Verdicts groups the per-subject validation gate outcomes. A nil verdict
// means the gate has not run yet.
type Verdicts struct {
	Structure *gate.Verdict `json:"structure,omitempty"`
	Content   *gate.Verdict `json:"content,omitempty"`
	Quiz      *gate.Verdict `json:"quiz,omitempty"`
}

// Statistics summarizes the finalized course.
type Statistics struct {
	Modules    int `json:"modules"`
	Lessons    int `json:"lessons"`
	Quizzes    int `json:"quizzes"`
	Questions  int `json:"questions"`
	TotalWords int `json:"total_words"`
}

// CourseMetadata is the finalize stage's output.
type CourseMetadata struct {
	Statistics Statistics `json:"statistics"`
}

// CourseState is the shared state threaded through every pipeline stage.
//
// Each output field is written exactly once by its owning stage and is
// read-only for every other stage; regeneration after a rejection counts as
// the owning stage writing again. Fan-out sub-tasks never touch this struct
// directly — they fill disjoint slots merged once by the owning stage.
type CourseState struct {
	SchemaVersion int           `json:"schema_version"`
	Request       CourseRequest `json:"request"`

	CurrentStep string `json:"current_step"`

	Research  *ResearchFindings `json:"research,omitempty"`
	Structure *CourseStructure  `json:"structure,omitempty"`
	Lessons   []Lesson          `json:"lessons,omitempty"`
	Quizzes   []Quiz            `json:"quizzes,omitempty"`

	Verdicts Verdicts `json:"verdicts"`
	Reviews  Reviews  `json:"reviews"`

	Metadata *CourseMetadata `json:"metadata,omitempty"`

	// Errors accumulates stage-local degradations (e.g. individual lesson
	// failures the pipeline absorbed), oldest first.
	Errors []string `json:"errors,omitempty"`
}

// NewState creates the initial state for a run from a course request.
func NewState(request CourseRequest) CourseState {
	if request.LearnerLevel == "" {
		request.LearnerLevel = LevelIntermediate
	}

	return CourseState{
		SchemaVersion: SchemaVersion,
		Request:       request,
		CurrentStep:   "initialized",
		Reviews: Reviews{
			Structure: SubjectReview{Approval: ApprovalUndecided},
			Content:   SubjectReview{Approval: ApprovalUndecided},
			Quiz:      SubjectReview{Approval: ApprovalUndecided},
		},
	}
}

// Clone returns an independent deep copy. The engine clones state before
// every stage invocation, so stages can mutate their copy freely.
func (s CourseState) Clone() CourseState {
	out := s

	if s.Research != nil {
		r := *s.Research
		r.KeyAreas = append([]string(nil), s.Research.KeyAreas...)
		r.Topics = append([]string(nil), s.Research.Topics...)
		r.Objectives = append([]string(nil), s.Research.Objectives...)
		out.Research = &r
	}

	if s.Structure != nil {
		st := CourseStructure{Modules: make([]Module, len(s.Structure.Modules))}
		for i, m := range s.Structure.Modules {
			cm := m
			cm.Lessons = make([]LessonPlan, len(m.Lessons))
			for j, l := range m.Lessons {
				cl := l
				cl.Objectives = append([]string(nil), l.Objectives...)
				cm.Lessons[j] = cl
			}
			st.Modules[i] = cm
		}
		out.Structure = &st
	}

	if s.Lessons != nil {
		out.Lessons = append([]Lesson(nil), s.Lessons...)
	}

	if s.Quizzes != nil {
		out.Quizzes = make([]Quiz, len(s.Quizzes))
		for i, q := range s.Quizzes {
			cq := q
			cq.Questions = make([]QuizQuestion, len(q.Questions))
			for j, question := range q.Questions {
				cqq := question
				cqq.Choices = append([]string(nil), question.Choices...)
				cq.Questions[j] = cqq
			}
			out.Quizzes[i] = cq
		}
	}

	out.Verdicts = Verdicts{
		Structure: cloneVerdict(s.Verdicts.Structure),
		Content:   cloneVerdict(s.Verdicts.Content),
		Quiz:      cloneVerdict(s.Verdicts.Quiz),
	}

	if s.Metadata != nil {
		m := *s.Metadata
		out.Metadata = &m
	}

	if s.Errors != nil {
		out.Errors = append([]string(nil), s.Errors...)
	}

	return out
}

func cloneVerdict(v *gate.Verdict) *gate.Verdict {
	if v == nil {
		return nil
	}
	out := *v
	out.Issues = append([]string(nil), v.Issues...)
	return &out
}

// ReviewFor returns the review record for a subject.
func (s *CourseState) ReviewFor(subject string) SubjectReview {
	switch subject {
	case SubjectStructure:
		return s.Reviews.Structure
	case SubjectContent:
		return s.Reviews.Content
	case SubjectQuiz:
		return s.Reviews.Quiz
	default:
		return SubjectReview{}
	}
}

// SetReview records an approval flag and feedback for a subject.
func (s *CourseState) SetReview(subject string, approval Approval, feedback string) {
	rev := SubjectReview{Approval: approval, Feedback: feedback}
	switch subject {
	case SubjectStructure:
		s.Reviews.Structure = rev
	case SubjectContent:
		s.Reviews.Content = rev
	case SubjectQuiz:
		s.Reviews.Quiz = rev
	}
}
