// Package history persists coverage snapshots as an ordered, bounded log.
package history

import (
	"fmt"
	"path/filepath"
	"sync"
)

const (
	// DirName is the per-project directory holding watcher state.
	DirName = ".gapwatch/memory"

	// FileName is the JSON Lines history file inside DirName.
	FileName = "coverage_history.jsonl"

	// DBFileName is the SQLite history database inside DirName.
	DBFileName = "coverage_history.db"
)

// Snapshot is the project-wide coverage at one point in time.
type Snapshot struct {
	Timestamp               string            `json:"timestamp" yaml:"timestamp"` // RFC 3339, UTC
	OverallLineCoverage     float64           `json:"overall_line_coverage" yaml:"overall_line_coverage"`
	OverallFunctionCoverage float64           `json:"overall_function_coverage" yaml:"overall_function_coverage"`
	OverallBranchCoverage   float64           `json:"overall_branch_coverage" yaml:"overall_branch_coverage"`
	FileCount               int               `json:"file_count" yaml:"file_count"`
	Metadata                map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Store persists a whole history at once.
type Store interface {
	// Load returns every stored snapshot, oldest first. A store that was
	// never written returns an empty slice.
	Load() ([]Snapshot, error)

	// Save replaces the stored history with snapshots.
	Save(snapshots []Snapshot) error
}

// DefaultDir returns the history directory of the project at root.
func DefaultDir(root string) string {
	return filepath.Join(root, filepath.FromSlash(DirName))
}

// Log is an ordered snapshot log bounded to a maximum length. Appending past
// the limit drops the oldest entries.
type Log struct {
	mu      sync.Mutex
	store   Store
	limit   int
	entries []Snapshot
}

// NewLog loads the history from store. A limit of 0 or less means unbounded.
func NewLog(store Store, limit int) (*Log, error) {
	entries, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	l := &Log{store: store, limit: limit, entries: entries}
	l.trim()
	return l, nil
}

// Append adds s as the newest entry, trims the log and persists it.
// The in-memory log keeps s even when persisting fails.
func (l *Log) Append(s Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, s)
	l.trim()
	if err := l.store.Save(l.entries); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// Entries returns a copy of the log, oldest first.
func (l *Log) Entries() []Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Snapshot(nil), l.entries...)
}

// Last returns the n most recent entries, oldest first. n <= 0 returns all.
func (l *Log) Last(n int) []Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := 0
	if n > 0 && n < len(l.entries) {
		start = len(l.entries) - n
	}
	return append([]Snapshot(nil), l.entries[start:]...)
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Log) trim() {
	if l.limit > 0 && len(l.entries) > l.limit {
		l.entries = append([]Snapshot(nil), l.entries[len(l.entries)-l.limit:]...)
	}
}
