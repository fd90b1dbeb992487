package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zjy-dev/gapwatch/internal/logger"
)

// FileStore keeps the history as JSON Lines, one snapshot per line.
type FileStore struct {
	filePath string
}

// NewFileStore creates a store for dir/coverage_history.jsonl.
func NewFileStore(dir string) *FileStore {
	return &FileStore{filePath: filepath.Join(dir, FileName)}
}

// GetFilePath returns the path of the history file.
func (s *FileStore) GetFilePath() string {
	return s.filePath
}

// Load reads the history file. A missing file is an empty history; lines
// that do not decode are skipped with a warning.
func (s *FileStore) Load() ([]Snapshot, error) {
	f, err := os.Open(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Snapshot{}, nil
		}
		return nil, fmt.Errorf("failed to open history file %s: %w", s.filePath, err)
	}
	defer f.Close()

	snapshots := []Snapshot{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal(line, &snap); err != nil || snap.Timestamp == "" {
			logger.Warn("Skipping malformed history entry at %s:%d", s.filePath, lineNo)
			continue
		}
		snapshots = append(snapshots, snap)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history file %s: %w", s.filePath, err)
	}
	return snapshots, nil
}

// Save rewrites the history file through a temp file and rename, so readers
// never see a partial history.
func (s *FileStore) Save(snapshots []Snapshot) error {
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create history directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp history file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, snap := range snapshots {
		if err := enc.Encode(snap); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to encode snapshot %s: %w", snap.Timestamp, err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close history: %w", err)
	}
	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("failed to replace history file %s: %w", s.filePath, err)
	}
	return nil
}
