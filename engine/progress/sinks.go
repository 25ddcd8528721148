package progress

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
)

// WriterSink appends one JSON line per event to an io.Writer.
//
// Write failures are swallowed: progress delivery never fails the run. The
// mutex keeps concurrent runs from interleaving partial lines.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a Sink writing JSON lines to w.
//
// Example:
//
//	f, _ := os.OpenFile("progress.jsonl", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
//	sink := progress.NewWriterSink(f)
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Emit(ctx context.Context, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Write(append(data, '\n'))
}

// SlogSink logs each event through a structured logger.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a Sink logging at Info level via logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Emit(ctx context.Context, event Event) {
	s.logger.LogAttrs(
		ctx,
		slog.LevelInfo,
		"Progress",
		slog.String("run_id", event.RunID),
		slog.String("stage", event.Stage),
		slog.String("status", string(event.Status)),
		slog.Time("timestamp", event.Timestamp),
		slog.String("detail", event.Detail),
	)
}
