package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tailored-agentic-units/coursegraph/engine/config"
)

func TestDefaultGraphConfig(t *testing.T) {
	cfg := config.DefaultGraphConfig("test-graph")

	if cfg.Name != "test-graph" {
		t.Errorf("expected name test-graph, got %s", cfg.Name)
	}
	if cfg.Observer != "slog" {
		t.Errorf("expected slog observer, got %s", cfg.Observer)
	}
	if cfg.MaxIterations != 100 {
		t.Errorf("expected 100 max iterations, got %d", cfg.MaxIterations)
	}
	if cfg.RetryLimit != 3 {
		t.Errorf("expected retry limit 3, got %d", cfg.RetryLimit)
	}
	if cfg.Checkpoint.Preserve {
		t.Error("expected checkpoint preserve to default off")
	}
	if cfg.Review.DefaultAction != "continue" {
		t.Errorf("expected continue as timeout action, got %s", cfg.Review.DefaultAction)
	}
}

func TestGraphConfig_Merge(t *testing.T) {
	tests := []struct {
		name   string
		source config.GraphConfig
		check  func(t *testing.T, merged config.GraphConfig)
	}{
		{
			name:   "empty source keeps defaults",
			source: config.GraphConfig{},
			check: func(t *testing.T, merged config.GraphConfig) {
				if merged.Name != "base" || merged.MaxIterations != 100 {
					t.Errorf("defaults were overwritten: %+v", merged)
				}
			},
		},
		{
			name: "set fields override",
			source: config.GraphConfig{
				Observer:   "noop",
				RetryLimit: 5,
				Review:     config.ReviewConfig{TTLSeconds: 60},
			},
			check: func(t *testing.T, merged config.GraphConfig) {
				if merged.Observer != "noop" {
					t.Errorf("expected noop observer, got %s", merged.Observer)
				}
				if merged.RetryLimit != 5 {
					t.Errorf("expected retry limit 5, got %d", merged.RetryLimit)
				}
				if merged.Review.TTLSeconds != 60 {
					t.Errorf("expected ttl 60, got %d", merged.Review.TTLSeconds)
				}
				if merged.Review.DefaultAction != "continue" {
					t.Errorf("unset default action was overwritten: %s", merged.Review.DefaultAction)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultGraphConfig("base")
			cfg.Merge(&tt.source)
			tt.check(t, cfg)
		})
	}
}

func TestReviewConfig_TTL(t *testing.T) {
	cfg := config.ReviewConfig{TTLSeconds: 90}
	if got := cfg.TTL(); got != 90*time.Second {
		t.Errorf("expected 90s, got %v", got)
	}

	cfg.TTLSeconds = 0
	if got := cfg.TTL(); got != 0 {
		t.Errorf("expected zero duration, got %v", got)
	}
}

func TestDefaultFanOutConfig(t *testing.T) {
	cfg := config.DefaultFanOutConfig()

	if cfg.BatchSize != 8 {
		t.Errorf("expected batch size 8, got %d", cfg.BatchSize)
	}
	if cfg.MaxWorkers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.MaxWorkers)
	}
	if cfg.MaxConcurrentBatches != 2 {
		t.Errorf("expected 2 concurrent batches, got %d", cfg.MaxConcurrentBatches)
	}
	if cfg.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", cfg.Attempts)
	}
}

func TestLoadFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.yaml")
	content := `
name: from-yaml
observer: noop
retry_limit: 7
review:
  ttl_seconds: 120
  default_action: reject
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	var cfg config.GraphConfig
	if err := config.LoadFile(path, &cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Name != "from-yaml" {
		t.Errorf("expected name from-yaml, got %s", cfg.Name)
	}
	if cfg.RetryLimit != 7 {
		t.Errorf("expected retry limit 7, got %d", cfg.RetryLimit)
	}
	if cfg.Review.TTLSeconds != 120 || cfg.Review.DefaultAction != "reject" {
		t.Errorf("review config not loaded: %+v", cfg.Review)
	}
}

func TestLoadFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fanout.json")
	content := `{"batch_size": 3, "max_workers": 2, "attempts": 1}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	var cfg config.FanOutConfig
	if err := config.LoadFile(path, &cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.BatchSize != 3 || cfg.MaxWorkers != 2 || cfg.Attempts != 1 {
		t.Errorf("json config not loaded: %+v", cfg)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	var cfg config.GraphConfig
	if err := config.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"), &cfg); err == nil {
		t.Error("expected error for missing file, got nil")
	}
}
