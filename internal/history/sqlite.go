package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/zjy-dev/gapwatch/internal/logger"
)

const createSnapshotsTable = `
CREATE TABLE IF NOT EXISTS snapshots (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	line_coverage REAL NOT NULL,
	function_coverage REAL NOT NULL,
	branch_coverage REAL NOT NULL,
	file_count INTEGER NOT NULL,
	metadata TEXT
)`

// SQLiteStore keeps the history in a SQLite table ordered by insertion.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database %s: %w", path, err)
	}
	// One writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(createSnapshotsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create snapshots table: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads all rows in insertion order. Rows that do not decode, or have no
// timestamp, are skipped with a warning.
func (s *SQLiteStore) Load() ([]Snapshot, error) {
	rows, err := s.db.Query(`SELECT seq, timestamp, line_coverage, function_coverage, branch_coverage, file_count, metadata
		FROM snapshots ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []Snapshot{}
	row := 0
	for rows.Next() {
		row++
		var (
			seq  int64
			snap Snapshot
			meta sql.NullString
		)
		if err := rows.Scan(&seq, &snap.Timestamp, &snap.OverallLineCoverage, &snap.OverallFunctionCoverage,
			&snap.OverallBranchCoverage, &snap.FileCount, &meta); err != nil {
			logger.Warn("Skipping malformed snapshot row %d in %s: %v", row, s.path, err)
			continue
		}
		if snap.Timestamp == "" {
			logger.Warn("Skipping snapshot %d without timestamp in %s", seq, s.path)
			continue
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &snap.Metadata); err != nil {
				logger.Warn("Skipping snapshot %d with malformed metadata: %v", seq, err)
				continue
			}
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}
	return snapshots, nil
}

// Save replaces all rows in one transaction.
func (s *SQLiteStore) Save(snapshots []Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec("DELETE FROM snapshots"); err != nil {
		return fmt.Errorf("failed to clear snapshots: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO snapshots
		(timestamp, line_coverage, function_coverage, branch_coverage, file_count, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, snap := range snapshots {
		var meta []byte
		if len(snap.Metadata) > 0 {
			if meta, err = json.Marshal(snap.Metadata); err != nil {
				return fmt.Errorf("failed to encode metadata: %w", err)
			}
		}
		if _, err = stmt.Exec(snap.Timestamp, snap.OverallLineCoverage, snap.OverallFunctionCoverage,
			snap.OverallBranchCoverage, snap.FileCount, string(meta)); err != nil {
			return fmt.Errorf("failed to insert snapshot %s: %w", snap.Timestamp, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history: %w", err)
	}
	return nil
}
