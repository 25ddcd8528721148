package course

import (
	"context"
	"fmt"
	"strings"
)

// LessonRef identifies one planned lesson for content generation: the
// flattened fan-out item for the generate_content stage.
type LessonRef struct {
	Module      int
	ModuleTitle string
	Plan        LessonPlan
}

// QuizSpec identifies one quiz to generate: the fan-out item for the
// generate_quizzes stage.
type QuizSpec struct {
	Module      int
	ModuleTitle string
	Kind        QuizKind
	Sequence    int
}

// ContentProvider is the external content-producing collaborator.
//
// Implementations wrap whatever model or service actually writes course
// material. Calls are expected to carry their own timeout and retry policy;
// the pipeline only distinguishes success from failure. Regeneration after
// a rejection passes the reviewer's feedback through the feedback argument.
type ContentProvider interface {
	Research(ctx context.Context, req CourseRequest) (*ResearchFindings, error)
	OutlineCourse(ctx context.Context, req CourseRequest, research *ResearchFindings, feedback string) (*CourseStructure, error)
	WriteLesson(ctx context.Context, req CourseRequest, ref LessonRef) (Lesson, error)
	WriteQuiz(ctx context.Context, req CourseRequest, structure *CourseStructure, spec QuizSpec) (Quiz, error)
}

// StaticProvider is a deterministic ContentProvider producing templated
// material. It backs the CLI demo mode and tests; identical inputs always
// yield identical output, which the determinism guarantees of the engine
// rely on in tests.
type StaticProvider struct {
	// WordsPerLesson controls generated lesson length (default 150).
	WordsPerLesson int

	// QuestionsPerQuiz controls quiz size (default 4).
	QuestionsPerQuiz int
}

func (p *StaticProvider) wordsPerLesson() int {
	if p.WordsPerLesson > 0 {
		return p.WordsPerLesson
	}
	return 150
}

func (p *StaticProvider) questionsPerQuiz() int {
	if p.QuestionsPerQuiz > 0 {
		return p.QuestionsPerQuiz
	}
	return 4
}

func (p *StaticProvider) Research(ctx context.Context, req CourseRequest) (*ResearchFindings, error) {
	areas := []string{
		fmt.Sprintf("Foundations of %s", req.Subject),
		fmt.Sprintf("Core techniques in %s", req.Subject),
		fmt.Sprintf("Applied %s", req.Subject),
	}
	topics := make([]string, 0, req.Modules*2)
	objectives := make([]string, 0, req.Modules)
	for i := 1; i <= req.Modules; i++ {
		topics = append(topics,
			fmt.Sprintf("%s topic %d.1", req.Subject, i),
			fmt.Sprintf("%s topic %d.2", req.Subject, i),
		)
		objectives = append(objectives,
			fmt.Sprintf("Apply %s concepts from unit %d", req.Subject, i))
	}
	return &ResearchFindings{KeyAreas: areas, Topics: topics, Objectives: objectives}, nil
}

func (p *StaticProvider) OutlineCourse(ctx context.Context, req CourseRequest, research *ResearchFindings, feedback string) (*CourseStructure, error) {
	modules := make([]Module, 0, req.Modules+1)
	for i := 1; i <= req.Modules; i++ {
		modules = append(modules, Module{
			Title:   fmt.Sprintf("Module %d: %s in practice", i, req.Subject),
			Summary: fmt.Sprintf("Covers %s fundamentals for unit %d", req.Subject, i),
			Lessons: []LessonPlan{
				{Title: fmt.Sprintf("Lesson %d.1: Introduction", i)},
				{Title: fmt.Sprintf("Lesson %d.2: Deep dive", i)},
				{Title: fmt.Sprintf("Lesson %d.3: Exercises", i)},
			},
		})
	}
	if req.NeedsLabModule {
		modules = append(modules, Module{
			Title:   fmt.Sprintf("Lab: Hands-on %s", req.Subject),
			Summary: "Guided lab work",
			IsLab:   true,
			Lessons: []LessonPlan{
				{Title: "Lab setup"},
				{Title: "Lab walkthrough"},
			},
		})
	}
	return &CourseStructure{Modules: modules}, nil
}

func (p *StaticProvider) WriteLesson(ctx context.Context, req CourseRequest, ref LessonRef) (Lesson, error) {
	sentence := fmt.Sprintf("This section of %q develops %s for %s learners.",
		ref.Plan.Title, req.Subject, req.LearnerLevel)
	words := len(strings.Fields(sentence))
	var b strings.Builder
	total := 0
	for total < p.wordsPerLesson() {
		b.WriteString(sentence)
		b.WriteString(" ")
		total += words
	}

	content := strings.TrimSpace(b.String())
	return Lesson{
		Module:      ref.Module,
		ModuleTitle: ref.ModuleTitle,
		Title:       ref.Plan.Title,
		Content:     content,
		WordCount:   len(strings.Fields(content)),
	}, nil
}

func (p *StaticProvider) WriteQuiz(ctx context.Context, req CourseRequest, structure *CourseStructure, spec QuizSpec) (Quiz, error) {
	questions := make([]QuizQuestion, 0, p.questionsPerQuiz())
	for i := 1; i <= p.questionsPerQuiz(); i++ {
		questions = append(questions, QuizQuestion{
			Prompt: fmt.Sprintf("Question %d on %s (module %d)", i, req.Subject, spec.Module+1),
			Choices: []string{
				"Option A",
				"Option B",
				"Option C",
				"Option D",
			},
			Answer: (i - 1) % 4,
		})
	}

	return Quiz{
		Module:    spec.Module,
		Kind:      spec.Kind,
		Title:     fmt.Sprintf("%s quiz %d: %s", spec.Kind, spec.Sequence+1, spec.ModuleTitle),
		Questions: questions,
	}, nil
}
