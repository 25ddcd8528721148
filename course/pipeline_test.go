package course_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/tailored-agentic-units/coursegraph/course"
	"github.com/tailored-agentic-units/coursegraph/engine/checkpoint"
	"github.com/tailored-agentic-units/coursegraph/engine/graph"
	"github.com/tailored-agentic-units/coursegraph/engine/review"
)

func testPipelineConfig() course.Config {
	cfg := course.DefaultConfig()
	cfg.Graph.Observer = "noop"
	cfg.FanOut.Observer = "noop"
	return cfg
}

func testRequest() course.CourseRequest {
	return course.CourseRequest{
		Subject:                  "Go Concurrency",
		LearnerLevel:             course.LevelIntermediate,
		Duration:                 "4 weeks",
		Modules:                  3,
		GradedQuizzesPerModule:   1,
		PracticeQuizzesPerModule: 1,
		NeedsLabModule:           true,
	}
}

func approve(t *testing.T, eng *graph.Engine[course.CourseState], runID, subject string) graph.RunResult[course.CourseState] {
	t.Helper()

	result, err := eng.Resume(context.Background(), runID, review.Decision{Action: review.ActionApprove})
	if err != nil {
		t.Fatalf("approving %s failed: %v", subject, err)
	}
	return result
}

func TestPipeline_EndToEnd(t *testing.T) {
	store := checkpoint.NewMemoryStore[course.CourseState]()
	eng, err := course.NewPipeline(testPipelineConfig(), &course.StaticProvider{}, store)
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}

	// Every gate passes, so the run completes without pausing for review.
	result, err := eng.Run(context.Background(), "course-1", course.NewState(testRequest()))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Status != graph.StatusCompleted {
		t.Fatalf("expected completed run, got %s (review: %+v, errors: %v)",
			result.Status, result.Review, result.Errors)
	}
	if result.Review != nil {
		t.Fatalf("unexpected pending review: %+v", result.Review)
	}

	state := result.State
	if v := state.Verdicts.Structure; v == nil || !v.Passed {
		t.Errorf("expected passing structure verdict, got %+v", v)
	}
	if state.CurrentStep != "finalized" {
		t.Errorf("expected finalized step, got %s", state.CurrentStep)
	}
	if state.Metadata == nil {
		t.Fatal("expected course metadata")
	}

	// 3 requested modules plus the lab; lab adds 2 lessons to 3x3.
	stats := state.Metadata.Statistics
	if stats.Modules != 4 {
		t.Errorf("expected 4 modules, got %d", stats.Modules)
	}
	if stats.Lessons != 11 {
		t.Errorf("expected 11 lessons, got %d", stats.Lessons)
	}
	if stats.Quizzes != 8 {
		t.Errorf("expected 8 quizzes, got %d", stats.Quizzes)
	}
	if stats.Questions != 32 {
		t.Errorf("expected 32 questions, got %d", stats.Questions)
	}
	if stats.TotalWords == 0 {
		t.Error("expected nonzero word count")
	}

	// Lessons come back in module order despite concurrent generation.
	for i := 1; i < len(state.Lessons); i++ {
		if state.Lessons[i].Module < state.Lessons[i-1].Module {
			t.Errorf("lessons out of module order at %d: %+v", i, state.Lessons[i])
		}
	}
}

// With RequireApproval the run pauses at each validation gate in order,
// even though every verdict passes.
func TestPipeline_RequireApprovalPausesEachGate(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.RequireApproval = true

	store := checkpoint.NewMemoryStore[course.CourseState]()
	eng, err := course.NewPipeline(cfg, &course.StaticProvider{}, store)
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}

	result, err := eng.Run(context.Background(), "course-1", course.NewState(testRequest()))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Status != graph.StatusSuspended || result.Review.Subject != course.SubjectStructure {
		t.Fatalf("expected suspension at structure review, got %s / %+v", result.Status, result.Review)
	}

	payload, ok := result.Review.Payload.(course.ReviewPayload)
	if !ok {
		t.Fatalf("expected typed review payload, got %T", result.Review.Payload)
	}
	if payload.Verdict == nil || !payload.Verdict.Passed {
		t.Errorf("expected passing structure verdict in payload: %+v", payload.Verdict)
	}

	result = approve(t, eng, "course-1", course.SubjectStructure)
	if result.Status != graph.StatusSuspended || result.Review.Subject != course.SubjectContent {
		t.Fatalf("expected suspension at content review, got %s", result.Status)
	}

	result = approve(t, eng, "course-1", course.SubjectContent)
	if result.Status != graph.StatusSuspended || result.Review.Subject != course.SubjectQuiz {
		t.Fatalf("expected suspension at quiz review, got %s", result.Status)
	}

	result = approve(t, eng, "course-1", course.SubjectQuiz)
	if result.Status != graph.StatusCompleted {
		t.Fatalf("expected completed run, got %s (errors: %v)", result.Status, result.Errors)
	}
}

// feedbackProvider produces a deficient outline until reviewer feedback
// arrives, then delegates to the deterministic provider.
type feedbackProvider struct {
	course.StaticProvider
	outlines int
}

func (p *feedbackProvider) OutlineCourse(ctx context.Context, req course.CourseRequest, research *course.ResearchFindings, feedback string) (*course.CourseStructure, error) {
	p.outlines++
	if feedback == "" {
		return &course.CourseStructure{
			Modules: []course.Module{
				{Title: "Only module", Lessons: []course.LessonPlan{{Title: "Single lesson"}}},
			},
		}, nil
	}
	return p.StaticProvider.OutlineCourse(ctx, req, research, feedback)
}

func TestPipeline_RejectRegeneratesWithFeedback(t *testing.T) {
	provider := &feedbackProvider{}
	store := checkpoint.NewMemoryStore[course.CourseState]()
	eng, err := course.NewPipeline(testPipelineConfig(), provider, store)
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}

	result, err := eng.Run(context.Background(), "course-1", course.NewState(testRequest()))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	payload := result.Review.Payload.(course.ReviewPayload)
	if payload.Verdict.Passed {
		t.Fatalf("expected failing first verdict, got %+v", payload.Verdict)
	}
	firstScore := payload.Verdict.Score

	result, err = eng.Resume(context.Background(), "course-1", review.Decision{
		Action:   review.ActionReject,
		Feedback: "broaden the scope to cover all requested modules",
	})
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}

	// The regenerated structure passes its gate, so the run proceeds to
	// completion without pausing again.
	if result.Status != graph.StatusCompleted {
		t.Fatalf("expected completed run after regeneration, got %s (review: %+v, errors: %v)",
			result.Status, result.Review, result.Errors)
	}
	verdict := result.State.Verdicts.Structure
	if verdict == nil || !verdict.Passed {
		t.Fatalf("expected passing second verdict, got %+v", verdict)
	}
	if verdict.Score <= firstScore {
		t.Errorf("score did not improve: %v -> %v", firstScore, verdict.Score)
	}
	if provider.outlines != 2 {
		t.Errorf("expected 2 outline calls, got %d", provider.outlines)
	}
}

func TestPipeline_RetryLimitFailsRun(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.Graph.RetryLimit = 1

	// This provider never improves, so every regeneration fails review.
	provider := &feedbackProvider{}
	store := checkpoint.NewMemoryStore[course.CourseState]()
	eng, err := course.NewPipeline(cfg, alwaysBadOutline{provider}, store)
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}

	if _, err := eng.Run(context.Background(), "course-1", course.NewState(testRequest())); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	reject := review.Decision{Action: review.ActionReject, Feedback: "still wrong"}
	result, err := eng.Resume(context.Background(), "course-1", reject)
	if err != nil {
		t.Fatalf("first reject failed: %v", err)
	}
	if result.Status != graph.StatusSuspended {
		t.Fatalf("expected re-suspension within limit, got %s", result.Status)
	}

	result, err = eng.Resume(context.Background(), "course-1", reject)
	if err != nil {
		t.Fatalf("second reject returned error: %v", err)
	}
	if result.Status != graph.StatusFailed {
		t.Fatalf("expected failed run past retry limit, got %s", result.Status)
	}
}

// Resuming must work from a fresh pipeline instance over the same store.
func TestPipeline_ResumableAcrossRestart(t *testing.T) {
	dir := t.TempDir()

	cfg := testPipelineConfig()
	cfg.RequireApproval = true

	build := func() (*graph.Engine[course.CourseState], error) {
		store, err := checkpoint.NewFileStore[course.CourseState](dir)
		if err != nil {
			return nil, err
		}
		return course.NewPipeline(cfg, &course.StaticProvider{}, store)
	}

	first, err := build()
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}
	if _, err := first.Run(context.Background(), "course-1", course.NewState(testRequest())); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// Approve each gate from a brand-new process-equivalent.
	subjects := []string{course.SubjectStructure, course.SubjectContent, course.SubjectQuiz}
	var result graph.RunResult[course.CourseState]
	for _, subject := range subjects {
		eng, err := build()
		if err != nil {
			t.Fatalf("failed to rebuild pipeline: %v", err)
		}
		result, err = eng.Resume(context.Background(), "course-1", review.Decision{Action: review.ActionApprove})
		if err != nil {
			t.Fatalf("resume for %s failed: %v", subject, err)
		}
	}

	if result.Status != graph.StatusCompleted {
		t.Fatalf("expected completed run, got %s (errors: %v)", result.Status, result.Errors)
	}
	if result.State.Metadata == nil || result.State.Metadata.Statistics.Lessons == 0 {
		t.Error("expected finalized statistics after restart-resumes")
	}
}

func TestPipeline_LessonFailuresAbsorbedUnderRatio(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.Graph.Checkpoint.Preserve = true
	cfg.RequireApproval = true
	// High tolerance so one broken lesson degrades instead of failing.
	cfg.MaxLessonFailureRatio = 0.5
	cfg.ContentGate.MinCoverage = 0.5
	cfg.ContentGate.Threshold = 0.5
	cfg.FanOut.Attempts = 1

	provider := &flakyLessonProvider{failTitle: "Lesson 1.2: Deep dive"}
	store := checkpoint.NewMemoryStore[course.CourseState]()
	eng, err := course.NewPipeline(cfg, provider, store)
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}

	if _, err := eng.Run(context.Background(), "course-1", course.NewState(testRequest())); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	result := approve(t, eng, "course-1", course.SubjectStructure)

	if result.Status != graph.StatusSuspended || result.Review.Subject != course.SubjectContent {
		t.Fatalf("expected content review, got %s (errors: %v)", result.Status, result.Errors)
	}

	// The failed lesson is recorded in state errors, not fatal.
	found := false
	for _, msg := range result.State.Errors {
		if strings.Contains(msg, "Deep dive") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected absorbed lesson failure in state errors: %v", result.State.Errors)
	}

	planned := result.State.Structure.LessonCount()
	if len(result.State.Lessons) != planned-1 {
		t.Errorf("expected %d lessons after one failure, got %d", planned-1, len(result.State.Lessons))
	}
}

// A checkpoint written under a different state schema must be rejected on
// rehydration, not silently misread.
func TestPipeline_SchemaVersionGuardsRehydration(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.RequireApproval = true

	store := checkpoint.NewMemoryStore[course.CourseState]()
	eng, err := course.NewPipeline(cfg, &course.StaticProvider{}, store)
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}

	result, err := eng.Run(context.Background(), "course-1", course.NewState(testRequest()))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Status != graph.StatusSuspended {
		t.Fatalf("expected suspended run, got %s", result.Status)
	}

	rec, err := store.Load("course-1")
	if err != nil {
		t.Fatalf("failed to load checkpoint: %v", err)
	}
	rec.State.SchemaVersion = course.SchemaVersion + 1
	if err := store.Save(rec); err != nil {
		t.Fatalf("failed to save checkpoint: %v", err)
	}

	if _, err := eng.Status("course-1"); !errors.Is(err, course.ErrSchemaVersion) {
		t.Errorf("expected schema version error from Status, got %v", err)
	}
	decision := review.Decision{Action: review.ActionApprove}
	if _, err := eng.Resume(context.Background(), "course-1", decision); !errors.Is(err, course.ErrSchemaVersion) {
		t.Errorf("expected schema version error from Resume, got %v", err)
	}
}

// Replaying the same run and decision sequence from the same initial state
// yields an identical terminal state.
func TestPipeline_DeterministicReplay(t *testing.T) {
	run := func() course.CourseState {
		t.Helper()

		store := checkpoint.NewMemoryStore[course.CourseState]()
		eng, err := course.NewPipeline(testPipelineConfig(), &feedbackProvider{}, store)
		if err != nil {
			t.Fatalf("failed to build pipeline: %v", err)
		}

		result, err := eng.Run(context.Background(), "course-replay", course.NewState(testRequest()))
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if result.Status != graph.StatusSuspended {
			t.Fatalf("expected suspension at failing structure gate, got %s", result.Status)
		}

		result, err = eng.Resume(context.Background(), "course-replay", review.Decision{
			Action:   review.ActionReject,
			Feedback: "broaden the scope to cover all requested modules",
		})
		if err != nil {
			t.Fatalf("reject failed: %v", err)
		}
		if result.Status != graph.StatusCompleted {
			t.Fatalf("expected completed run, got %s (errors: %v)", result.Status, result.Errors)
		}
		return result.State
	}

	first := run()
	second := run()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("replayed terminal state differs:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

// A pending review's payload must decode back to its typed form after the
// run is rehydrated in a fresh process.
func TestPipeline_ReviewPayloadSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	cfg := testPipelineConfig()
	cfg.RequireApproval = true

	build := func() *graph.Engine[course.CourseState] {
		t.Helper()
		store, err := checkpoint.NewFileStore[course.CourseState](dir)
		if err != nil {
			t.Fatalf("failed to open store: %v", err)
		}
		eng, err := course.NewPipeline(cfg, &course.StaticProvider{}, store)
		if err != nil {
			t.Fatalf("failed to build pipeline: %v", err)
		}
		return eng
	}

	if _, err := build().Run(context.Background(), "course-1", course.NewState(testRequest())); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	result, err := build().Status("course-1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if result.Review == nil {
		t.Fatal("expected pending review after restart")
	}

	payload, ok := course.DecodeReviewPayload(result.Review.Payload)
	if !ok {
		t.Fatalf("failed to decode rehydrated payload of type %T", result.Review.Payload)
	}
	if payload.Subject != course.SubjectStructure {
		t.Errorf("expected structure payload, got %q", payload.Subject)
	}
	if payload.Verdict == nil || !payload.Verdict.Passed {
		t.Errorf("expected passing verdict in rehydrated payload: %+v", payload.Verdict)
	}
	if payload.Summary == "" {
		t.Error("expected payload summary to survive restart")
	}

	// The in-process form passes through unchanged, and foreign values
	// are refused.
	if direct, ok := course.DecodeReviewPayload(payload); !ok || direct != payload {
		t.Errorf("typed payload did not pass through: %+v", direct)
	}
	if _, ok := course.DecodeReviewPayload(42); ok {
		t.Error("expected decode failure for a non-payload value")
	}
}

func TestPipeline_NilProvider(t *testing.T) {
	_, err := course.NewPipeline(testPipelineConfig(), nil, checkpoint.NewMemoryStore[course.CourseState]())
	if err == nil {
		t.Error("expected error for nil provider")
	}
}

// alwaysBadOutline wraps a provider and always produces the deficient
// outline regardless of feedback.
type alwaysBadOutline struct {
	inner *feedbackProvider
}

func (p alwaysBadOutline) Research(ctx context.Context, req course.CourseRequest) (*course.ResearchFindings, error) {
	return p.inner.Research(ctx, req)
}

func (p alwaysBadOutline) OutlineCourse(ctx context.Context, req course.CourseRequest, research *course.ResearchFindings, feedback string) (*course.CourseStructure, error) {
	return p.inner.OutlineCourse(ctx, req, research, "")
}

func (p alwaysBadOutline) WriteLesson(ctx context.Context, req course.CourseRequest, ref course.LessonRef) (course.Lesson, error) {
	return p.inner.WriteLesson(ctx, req, ref)
}

func (p alwaysBadOutline) WriteQuiz(ctx context.Context, req course.CourseRequest, structure *course.CourseStructure, spec course.QuizSpec) (course.Quiz, error) {
	return p.inner.WriteQuiz(ctx, req, structure, spec)
}

// flakyLessonProvider fails exactly the lessons whose plan title matches.
type flakyLessonProvider struct {
	course.StaticProvider
	failTitle string
}

func (p *flakyLessonProvider) WriteLesson(ctx context.Context, req course.CourseRequest, ref course.LessonRef) (course.Lesson, error) {
	if ref.Plan.Title == p.failTitle {
		return course.Lesson{}, errors.New("content service unavailable")
	}
	return p.StaticProvider.WriteLesson(ctx, req, ref)
}
