package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore implements Store with one JSON file per run under a directory.
//
// Saves are atomic: the record is written to a temporary file and renamed
// over the previous snapshot, so a crash mid-save leaves the prior
// checkpoint intact. The mutex serializes writes within one process;
// distinct runs never share a file, satisfying the cross-run isolation
// contract.
type FileStore[S any] struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a Store rooted at dir, creating the directory if
// needed.
func NewFileStore[S any](dir string) (*FileStore[S], error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileStore[S]{dir: dir}, nil
}

func (f *FileStore[S]) path(runID string) string {
	return filepath.Join(f.dir, runID+".json")
}

func (f *FileStore[S]) Save(record Record[S]) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint for run %s: %w", record.RunID, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp := f.path(record.RunID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint for run %s: %w", record.RunID, err)
	}
	if err := os.Rename(tmp, f.path(record.RunID)); err != nil {
		return fmt.Errorf("failed to commit checkpoint for run %s: %w", record.RunID, err)
	}
	return nil
}

func (f *FileStore[S]) Load(runID string) (Record[S], error) {
	data, err := os.ReadFile(f.path(runID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record[S]{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return Record[S]{}, fmt.Errorf("failed to read checkpoint for run %s: %w", runID, err)
	}

	var record Record[S]
	if err := json.Unmarshal(data, &record); err != nil {
		return Record[S]{}, fmt.Errorf("failed to decode checkpoint for run %s: %w", runID, err)
	}
	return record, nil
}

func (f *FileStore[S]) Delete(runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path(runID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint for run %s: %w", runID, err)
	}
	return nil
}

func (f *FileStore[S]) List() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}
