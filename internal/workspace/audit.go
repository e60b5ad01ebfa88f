package workspace

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/agentcore/internal/embed"
	_ "modernc.org/sqlite"
)

// AuditLog is an append-only record of every workspace commit, backed by
// a pure-Go SQLite database (the teacher's cross-platform, cgo-free
// default driver for on-disk stores) guarded by the same gofrs/flock-backed
// FileLock the teacher's embedder uses to serialize concurrent model
// downloads, repurposed here to serialize concurrent audit log opens
// across processes.
type AuditLog struct {
	db   *sql.DB
	lock *embed.FileLock
	path string
}

// OpenAuditLog opens (creating if needed) the audit log at path.
func OpenAuditLog(path string) (*AuditLog, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create audit log directory: %w", err)
	}

	lock := embed.NewFileLockAt(path + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("workspace: lock audit log: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("workspace: open audit log: %w", err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS commits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		files_changed INTEGER NOT NULL,
		committed_at_unix_ms INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("workspace: create audit schema: %w", err)
	}

	return &AuditLog{db: db, lock: lock, path: path}, nil
}

// RecordCommit appends one commit event.
func (a *AuditLog) RecordCommit(taskID string, filesChanged int) error {
	_, err := a.db.Exec(
		`INSERT INTO commits (task_id, files_changed, committed_at_unix_ms) VALUES (?, ?, ?)`,
		taskID, filesChanged, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("workspace: record commit: %w", err)
	}
	return nil
}

// CommitCount returns the total number of recorded commits, used by
// tests and diagnostics.
func (a *AuditLog) CommitCount() (int, error) {
	var n int
	if err := a.db.QueryRow(`SELECT COUNT(*) FROM commits`).Scan(&n); err != nil {
		return 0, fmt.Errorf("workspace: count commits: %w", err)
	}
	return n, nil
}

// Close releases the database handle and the cross-process file lock.
func (a *AuditLog) Close() error {
	dbErr := a.db.Close()
	lockErr := a.lock.Unlock()
	if dbErr != nil {
		return dbErr
	}
	return lockErr
}
