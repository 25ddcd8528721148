package course

import (
	"fmt"

	"github.com/tailored-agentic-units/coursegraph/engine/config"
)

// GateConfig sets the pass criteria for one validation gate.
type GateConfig struct {
	// Threshold is the minimum quality score in [0, 1].
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// MinCoverage is a secondary coverage ratio criterion (0 = unused).
	MinCoverage float64 `json:"min_coverage" yaml:"min_coverage"`
}

func (c *GateConfig) Merge(source *GateConfig) {
	if source.Threshold > 0 {
		c.Threshold = source.Threshold
	}
	if source.MinCoverage > 0 {
		c.MinCoverage = source.MinCoverage
	}
}

// Config is the full course pipeline configuration.
//
// Example YAML:
//
//	graph:
//	  name: course-builder
//	  retry_limit: 3
//	  review:
//	    ttl_seconds: 900
//	fanout:
//	  batch_size: 6
//	  max_workers: 3
//	structure_gate:
//	  threshold: 0.7
//	content_gate:
//	  threshold: 0.7
//	  min_coverage: 0.9
type Config struct {
	Graph  config.GraphConfig  `json:"graph" yaml:"graph"`
	FanOut config.FanOutConfig `json:"fanout" yaml:"fanout"`

	StructureGate GateConfig `json:"structure_gate" yaml:"structure_gate"`
	ContentGate   GateConfig `json:"content_gate" yaml:"content_gate"`
	QuizGate      GateConfig `json:"quiz_gate" yaml:"quiz_gate"`

	// RequireApproval pauses the run at every validation gate for an
	// explicit sign-off, even when the verdict passes. Off by default:
	// passing verdicts advance without review.
	RequireApproval bool `json:"require_approval" yaml:"require_approval"`

	// MinLessonWords is the word count below which a lesson counts against
	// the content gate.
	MinLessonWords int `json:"min_lesson_words" yaml:"min_lesson_words"`

	// MaxLessonFailureRatio is the fraction of fan-out items allowed to
	// fail before the generating stage itself fails. Failures under the
	// ratio degrade to missing output caught by the coverage gate.
	MaxLessonFailureRatio float64 `json:"max_lesson_failure_ratio" yaml:"max_lesson_failure_ratio"`

	// CheckpointDir is where the CLI's file checkpoint store lives.
	CheckpointDir string `json:"checkpoint_dir" yaml:"checkpoint_dir"`

	// ProgressPath is the CLI's append-only progress stream file.
	ProgressPath string `json:"progress_path" yaml:"progress_path"`
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		Graph:         config.DefaultGraphConfig("course-builder"),
		FanOut:        config.DefaultFanOutConfig(),
		StructureGate: GateConfig{Threshold: 0.7},
		ContentGate:   GateConfig{Threshold: 0.7, MinCoverage: 0.9},
		QuizGate:      GateConfig{Threshold: 0.7},

		MinLessonWords:        100,
		MaxLessonFailureRatio: 0.25,

		CheckpointDir: "course_runs",
		ProgressPath:  "course_runs/progress.jsonl",
	}
}

func (c *Config) Merge(source *Config) {
	c.Graph.Merge(&source.Graph)
	c.FanOut.Merge(&source.FanOut)
	c.StructureGate.Merge(&source.StructureGate)
	c.ContentGate.Merge(&source.ContentGate)
	c.QuizGate.Merge(&source.QuizGate)

	if source.RequireApproval {
		c.RequireApproval = true
	}
	if source.MinLessonWords > 0 {
		c.MinLessonWords = source.MinLessonWords
	}
	if source.MaxLessonFailureRatio > 0 {
		c.MaxLessonFailureRatio = source.MaxLessonFailureRatio
	}
	if source.CheckpointDir != "" {
		c.CheckpointDir = source.CheckpointDir
	}
	if source.ProgressPath != "" {
		c.ProgressPath = source.ProgressPath
	}
}

// LoadConfig reads a YAML or JSON pipeline configuration file and layers it
// over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	var fileCfg Config
	if err := config.LoadFile(path, &fileCfg); err != nil {
		return Config{}, fmt.Errorf("failed to load pipeline config: %w", err)
	}

	cfg.Merge(&fileCfg)
	return cfg, nil
}
