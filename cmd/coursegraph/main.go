// Command coursegraph runs the course-building pipeline from the terminal.
//
// Start a run:
//
//	coursegraph -subject "Go Concurrency" -modules 4 -lab
//
// The run suspends whenever a validation gate fails (with -review, at every
// gate). Resume it with a decision:
//
//	coursegraph -resume -run <id> -action approve
//	coursegraph -resume -run <id> -action reject -feedback "broaden the scope"
//
// Apply the timeout default to an expired review:
//
//	coursegraph -expire -run <id>
//
// Runs checkpoint to disk after every stage, so any of the above works from
// a fresh process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/tailored-agentic-units/coursegraph/course"
	"github.com/tailored-agentic-units/coursegraph/engine/checkpoint"
	"github.com/tailored-agentic-units/coursegraph/engine/graph"
	"github.com/tailored-agentic-units/coursegraph/engine/progress"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to pipeline config YAML/JSON file (optional)")

		subject  = flag.String("subject", "", "Course subject (required to start a run)")
		level    = flag.String("level", "intermediate", "Learner level: basic, intermediate, advanced")
		duration = flag.String("duration", "4 weeks", "Course duration")
		modules  = flag.Int("modules", 4, "Number of modules")
		graded   = flag.Int("graded", 1, "Graded quizzes per module")
		practice = flag.Int("practice", 1, "Practice quizzes per module")
		lab      = flag.Bool("lab", false, "Include a hands-on lab module")
		prompt   = flag.String("prompt", "", "Extra instructions for content generation")
		reviewed = flag.Bool("review", false, "Pause at every validation gate for explicit sign-off")

		runID    = flag.String("run", "", "Run identifier (generated when starting if empty)")
		resume   = flag.Bool("resume", false, "Resume a suspended run with a decision")
		action   = flag.String("action", "approve", "Decision action: approve, reject, continue")
		feedback = flag.String("feedback", "", "Reviewer feedback (used with -action reject)")
		expire   = flag.Bool("expire", false, "Apply the timeout default action to an expired review")
		status   = flag.Bool("status", false, "Print the checkpointed status of a run")

		verbose = flag.Bool("verbose", false, "Enable verbose logging to stderr")
	)
	flag.Parse()

	cfg := course.DefaultConfig()
	if *configFile != "" {
		loaded, err := course.LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *reviewed {
		cfg.RequireApproval = true
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
		cfg.Graph.Observer = "slog"
		cfg.FanOut.Observer = "slog"
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	store, err := checkpoint.NewFileStore[course.CourseState](cfg.CheckpointDir)
	if err != nil {
		log.Fatalf("Failed to open checkpoint store: %v", err)
	}

	progressFile, err := openProgress(cfg.ProgressPath)
	if err != nil {
		log.Fatalf("Failed to open progress stream: %v", err)
	}
	defer progressFile.Close()

	eng, err := course.NewPipeline(cfg, &course.StaticProvider{}, store,
		graph.WithProgressSink[course.CourseState](progress.NewWriterSink(progressFile)))
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch {
	case *status:
		if *runID == "" {
			log.Fatal("-status requires -run")
		}
		result, err := eng.Status(*runID)
		if err != nil {
			log.Fatalf("Failed to read run: %v", err)
		}
		printResult(result)

	case *expire:
		if *runID == "" {
			log.Fatal("-expire requires -run")
		}
		result, expired, err := eng.ResumeOnTimeout(ctx, *runID)
		if err != nil {
			log.Fatalf("Failed to expire review: %v", err)
		}
		if !expired {
			fmt.Println("Review deadline has not elapsed; run unchanged.")
			return
		}
		printResult(result)

	case *resume:
		if *runID == "" {
			log.Fatal("-resume requires -run")
		}
		suspended, err := eng.Status(*runID)
		if err != nil {
			log.Fatalf("Failed to read run: %v", err)
		}
		decisionSubject := ""
		if suspended.Review != nil {
			decisionSubject = suspended.Review.Subject
		}
		decision, err := course.ParseDecision(decisionSubject, *action, *feedback)
		if err != nil {
			log.Fatalf("Invalid decision: %v", err)
		}
		result, err := eng.Resume(ctx, *runID, decision)
		if err != nil {
			log.Fatalf("Resume failed: %v", err)
		}
		printResult(result)

	default:
		if *subject == "" {
			fmt.Fprintln(os.Stderr, "Usage: coursegraph -subject <text> [flags], or -resume/-expire/-status -run <id>")
			flag.PrintDefaults()
			os.Exit(1)
		}
		request := course.CourseRequest{
			Subject:                  *subject,
			LearnerLevel:             course.LearnerLevel(*level),
			Duration:                 *duration,
			Modules:                  *modules,
			GradedQuizzesPerModule:   *graded,
			PracticeQuizzesPerModule: *practice,
			NeedsLabModule:           *lab,
			CustomPrompt:             *prompt,
		}
		result, err := eng.Run(ctx, *runID, course.NewState(request))
		if err != nil {
			log.Fatalf("Run failed: %v", err)
		}
		printResult(result)
	}
}

func openProgress(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func printResult(result graph.RunResult[course.CourseState]) {
	fmt.Printf("Run: %s\n", result.RunID)
	fmt.Printf("Status: %s\n", result.Status)
	fmt.Printf("Step: %s\n", result.State.CurrentStep)

	if result.Review != nil {
		fmt.Printf("\nPending review %s (%s)\n", result.Review.ID, result.Review.Subject)
		if !result.Review.Deadline.IsZero() {
			fmt.Printf("  deadline: %s\n", result.Review.Deadline.Format("2006-01-02 15:04:05"))
		}
		if payload, ok := course.DecodeReviewPayload(result.Review.Payload); ok {
			fmt.Printf("  %s\n", payload.Summary)
			if payload.Verdict != nil {
				fmt.Printf("  score: %.2f (passed: %t)\n", payload.Verdict.Score, payload.Verdict.Passed)
				for _, issue := range payload.Verdict.Issues {
					fmt.Printf("  - %s\n", issue)
				}
			}
		}
		fmt.Printf("\nResume with: coursegraph -resume -run %s -action approve|reject|continue\n", result.RunID)
	}

	if len(result.Errors) > 0 {
		fmt.Println("\nErrors:")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	if result.State.Metadata != nil {
		s := result.State.Metadata.Statistics
		fmt.Printf("\nCourse: %d modules, %d lessons (%d words), %d quizzes, %d questions\n",
			s.Modules, s.Lessons, s.TotalWords, s.Quizzes, s.Questions)
	}
}
