package config

import "time"

// CheckpointConfig controls run state persistence during graph execution.
//
// The engine checkpoints after every completed stage and whenever a run
// suspends for review, so there is no interval knob: durability is the
// contract, not an optimization. Preserve controls whether the final record
// of a successfully completed run is kept.
type CheckpointConfig struct {
	// Preserve keeps the checkpoint record after successful completion
	// (false = delete once the run reaches Completed).
	Preserve bool `json:"preserve" yaml:"preserve"`
}

// DefaultCheckpointConfig returns checkpoint configuration with cleanup on
// successful completion. Failed and suspended runs always retain their last
// record regardless of this setting.
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		Preserve: false,
	}
}

func (c *CheckpointConfig) Merge(source *CheckpointConfig) {
	if source.Preserve {
		c.Preserve = source.Preserve
	}
}

// ReviewConfig controls how suspended runs behave while awaiting a decision.
type ReviewConfig struct {
	// TTLSeconds is how long a review request stays open before the engine
	// may synthesize the default decision (0 = no deadline).
	TTLSeconds int `json:"ttl_seconds" yaml:"ttl_seconds"`

	// DefaultAction is the decision action applied when a review deadline
	// elapses with no posted decision ("approve", "reject", or "continue").
	DefaultAction string `json:"default_action" yaml:"default_action"`
}

// TTL returns the review deadline as a duration.
func (c ReviewConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// DefaultReviewConfig returns review configuration with a 30 minute deadline
// and continue-as-is as the timeout action, guaranteeing forward progress
// when no reviewer responds.
func DefaultReviewConfig() ReviewConfig {
	return ReviewConfig{
		TTLSeconds:    1800,
		DefaultAction: "continue",
	}
}

func (c *ReviewConfig) Merge(source *ReviewConfig) {
	if source.TTLSeconds > 0 {
		c.TTLSeconds = source.TTLSeconds
	}

	if source.DefaultAction != "" {
		c.DefaultAction = source.DefaultAction
	}
}

// GraphConfig defines configuration for orchestrator execution.
//
// Example YAML:
//
//	name: course-builder
//	observer: slog
//	max_iterations: 100
//	retry_limit: 3
//	checkpoint:
//	  preserve: true
//	review:
//	  ttl_seconds: 900
//	  default_action: continue
type GraphConfig struct {
	// Name identifies the graph for observability
	Name string `json:"name" yaml:"name"`

	// Observer specifies which observer implementation to use ("noop", "slog", etc.)
	Observer string `json:"observer" yaml:"observer"`

	// MaxIterations limits stage executions per run to prevent infinite loops
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`

	// RetryLimit bounds rejection cycles per generating stage. A reject
	// decision beyond this bound fails the run.
	RetryLimit int `json:"retry_limit" yaml:"retry_limit"`

	// Checkpoint configures run state persistence
	Checkpoint CheckpointConfig `json:"checkpoint" yaml:"checkpoint"`

	// Review configures suspension deadlines and the timeout decision policy
	Review ReviewConfig `json:"review" yaml:"review"`
}

// DefaultGraphConfig returns sensible defaults for orchestrator execution.
func DefaultGraphConfig(name string) GraphConfig {
	return GraphConfig{
		Name:          name,
		Observer:      "slog",
		MaxIterations: 100,
		RetryLimit:    3,
		Checkpoint:    DefaultCheckpointConfig(),
		Review:        DefaultReviewConfig(),
	}
}

func (c *GraphConfig) Merge(source *GraphConfig) {
	if source.Name != "" {
		c.Name = source.Name
	}

	if source.Observer != "" {
		c.Observer = source.Observer
	}

	if source.MaxIterations > 0 {
		c.MaxIterations = source.MaxIterations
	}

	if source.RetryLimit > 0 {
		c.RetryLimit = source.RetryLimit
	}

	c.Checkpoint.Merge(&source.Checkpoint)
	c.Review.Merge(&source.Review)
}

// FanOutConfig defines configuration for the fan-out executor.
//
// Worker sizing:
//   - BatchSize partitions items into fixed-size batches
//   - MaxWorkers bounds concurrent items within one batch
//   - MaxConcurrentBatches bounds how many batches run at once
//
// The effective global concurrency is MaxWorkers * MaxConcurrentBatches.
type FanOutConfig struct {
	// BatchSize is the number of items per batch (0 = single batch)
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// MaxWorkers bounds concurrent items within a batch
	MaxWorkers int `json:"max_workers" yaml:"max_workers"`

	// MaxConcurrentBatches bounds batches executing concurrently
	MaxConcurrentBatches int `json:"max_concurrent_batches" yaml:"max_concurrent_batches"`

	// Attempts is the per-item execution budget (1 = no retry)
	Attempts int `json:"attempts" yaml:"attempts"`

	// Observer specifies which observer implementation to use
	Observer string `json:"observer" yaml:"observer"`
}

// DefaultFanOutConfig returns fan-out defaults tuned for I/O-bound item work
// such as calls to an external content provider.
func DefaultFanOutConfig() FanOutConfig {
	return FanOutConfig{
		BatchSize:            8,
		MaxWorkers:           4,
		MaxConcurrentBatches: 2,
		Attempts:             2,
		Observer:             "slog",
	}
}

func (c *FanOutConfig) Merge(source *FanOutConfig) {
	if source.BatchSize > 0 {
		c.BatchSize = source.BatchSize
	}

	if source.MaxWorkers > 0 {
		c.MaxWorkers = source.MaxWorkers
	}

	if source.MaxConcurrentBatches > 0 {
		c.MaxConcurrentBatches = source.MaxConcurrentBatches
	}

	if source.Attempts > 0 {
		c.Attempts = source.Attempts
	}

	if source.Observer != "" {
		c.Observer = source.Observer
	}
}
