// Package store provides a SQLite-backed record of ingestion tasks and the
// status history of every document they touched. Statuses are appended, never
// updated in place, so the latest row for a document is its most recent
// attempt and earlier rows remain as an audit trail. Whether a document is
// searchable is decided by the registry; callers combine the two.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/docqa-go/internal/rag"
)

// State is the lifecycle state of one document within one ingestion.
type State string

const (
	// StateIngesting means extraction, splitting or embedding is in progress.
	StateIngesting State = "ingesting"
	// StateReady means the document's index is published and searchable.
	StateReady State = "ready"
	// StateFailed means ingestion stopped with an error; nothing was published.
	StateFailed State = "failed"
	// StateSuperseded means the index was built but a delete or a newer
	// ingestion of the same document won the publish.
	StateSuperseded State = "superseded"
	// StateDeleted means the document was removed from the registry.
	StateDeleted State = "deleted"
)

// Terminal reports whether no further transition follows s within a task.
func (s State) Terminal() bool {
	return s == StateReady || s == StateFailed || s == StateSuperseded || s == StateDeleted
}

// DocumentStatus is one recorded state of a document.
type DocumentStatus struct {
	// DocumentID is the document name.
	DocumentID string `json:"document_id"`
	// TaskID is the ingestion task that produced this status. Empty for
	// deletes issued outside a task.
	TaskID string `json:"task_id,omitempty"`
	// State is the lifecycle state.
	State State `json:"state"`
	// Chunks is the number of indexed chunks when State is ready.
	Chunks int `json:"chunks,omitempty"`
	// Error is the failure reason when State is failed or superseded.
	Error string `json:"error,omitempty"`
	// UpdatedAt is when the status was recorded.
	UpdatedAt time.Time `json:"updated_at"`
	// Attempt is a newer ingestion of a ready document that is still running
	// or did not replace it. Only set on ready statuses.
	Attempt *DocumentStatus `json:"latest_attempt,omitempty"`
}

// TaskStatus is the current status of every document in one task, in upload
// order.
type TaskStatus struct {
	ID        string           `json:"task_id"`
	CreatedAt time.Time        `json:"created_at"`
	Documents []DocumentStatus `json:"documents"`
}

// Done reports whether every document in the task reached a terminal state.
func (t *TaskStatus) Done() bool {
	for _, d := range t.Documents {
		if !d.State.Terminal() {
			return false
		}
	}
	return true
}

// StatusStore persists ingestion tasks and document statuses.
// Implementations must be safe for concurrent use.
type StatusStore interface {
	// RecordTask stores a new task and marks each document ingesting.
	RecordTask(ctx context.Context, taskID string, documents []string) error
	// SetStatus appends a status for a document.
	SetStatus(ctx context.Context, st DocumentStatus) error
	// DocumentStatus returns the latest status of a document, or an error
	// wrapping rag.ErrNotFound if the document was never seen.
	DocumentStatus(ctx context.Context, documentID string) (*DocumentStatus, error)
	// LatestStatus returns the latest status of a document in the given
	// state, or an error wrapping rag.ErrNotFound if there is none.
	LatestStatus(ctx context.Context, documentID string, state State) (*DocumentStatus, error)
	// TaskStatus returns the latest status of every document in a task, or
	// an error wrapping rag.ErrNotFound for an unknown task.
	TaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a StatusStore backed by SQLite.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the conventional path for a status database kept on
// disk. Opening it is opt-in; the default store is in memory.
// It resolves to ~/.docqa/status.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "status.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for a process-local database.
func Open(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		// WAL mode improves concurrent read performance and is safe for single-host use.
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single connection serialises writers and keeps an in-memory
	// database alive for the lifetime of the pool.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS tasks (
    id          TEXT    PRIMARY KEY,
    created_at  INTEGER NOT NULL  -- Unix timestamp (milliseconds)
);
CREATE TABLE IF NOT EXISTS task_documents (
    task_id      TEXT    NOT NULL REFERENCES tasks(id),
    position     INTEGER NOT NULL,
    document_id  TEXT    NOT NULL,
    PRIMARY KEY (task_id, position)
);
CREATE TABLE IF NOT EXISTS document_status (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id  TEXT    NOT NULL,
    task_id      TEXT    NOT NULL DEFAULT '',
    state        TEXT    NOT NULL CHECK(state IN ('ingesting','ready','failed','superseded','deleted')),
    chunks       INTEGER NOT NULL DEFAULT 0,
    error        TEXT    NOT NULL DEFAULT '',
    updated_at   INTEGER NOT NULL  -- Unix timestamp (milliseconds)
);
CREATE INDEX IF NOT EXISTS idx_document_status_document
    ON document_status (document_id, id);
CREATE INDEX IF NOT EXISTS idx_document_status_task
    ON document_status (task_id, document_id, id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// RecordTask stores a new task and marks each document ingesting, atomically.
func (s *SQLiteStore) RecordTask(ctx context.Context, taskID string, documents []string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: record task: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UnixMilli()
	if _, err = tx.ExecContext(ctx, `INSERT INTO tasks (id, created_at) VALUES (?, ?)`, taskID, now); err != nil {
		return fmt.Errorf("store: record task %s: %w", taskID, err)
	}
	for i, doc := range documents {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO task_documents (task_id, position, document_id) VALUES (?, ?, ?)`,
			taskID, i, doc); err != nil {
			return fmt.Errorf("store: record task %s document: %w", taskID, err)
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO document_status (document_id, task_id, state, updated_at) VALUES (?, ?, ?, ?)`,
			doc, taskID, string(StateIngesting), now); err != nil {
			return fmt.Errorf("store: record task %s status: %w", taskID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: record task %s commit: %w", taskID, err)
	}
	return nil
}

// SetStatus appends a status row. A zero UpdatedAt is stamped with now.
func (s *SQLiteStore) SetStatus(ctx context.Context, st DocumentStatus) error {
	if st.DocumentID == "" {
		return fmt.Errorf("store: set status: document id must not be empty")
	}
	ts := st.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	const q = `INSERT INTO document_status (document_id, task_id, state, chunks, error, updated_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, st.DocumentID, st.TaskID, string(st.State), st.Chunks, st.Error, ts.UnixMilli()); err != nil {
		return fmt.Errorf("store: set status %s: %w", st.DocumentID, err)
	}
	return nil
}

// DocumentStatus returns the most recently recorded status of a document.
func (s *SQLiteStore) DocumentStatus(ctx context.Context, documentID string) (*DocumentStatus, error) {
	const q = `
SELECT document_id, task_id, state, chunks, error, updated_at
FROM   document_status
WHERE  document_id = ?
ORDER  BY id DESC
LIMIT  1`
	st, err := scanStatus(s.db.QueryRowContext(ctx, q, documentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: document %q: %w", documentID, rag.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: document status %s: %w", documentID, err)
	}
	return st, nil
}

// LatestStatus returns the most recently recorded status of a document in state.
func (s *SQLiteStore) LatestStatus(ctx context.Context, documentID string, state State) (*DocumentStatus, error) {
	const q = `
SELECT document_id, task_id, state, chunks, error, updated_at
FROM   document_status
WHERE  document_id = ? AND state = ?
ORDER  BY id DESC
LIMIT  1`
	st, err := scanStatus(s.db.QueryRowContext(ctx, q, documentID, string(state)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: document %q has no %s status: %w", documentID, state, rag.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest %s status %s: %w", state, documentID, err)
	}
	return st, nil
}

// Reconcile closes out statuses left live by a previous process. Indices do
// not survive a restart, so every document whose latest row is ready is
// recorded deleted and every ingesting one failed. It returns the number of
// rows appended.
func (s *SQLiteStore) Reconcile(ctx context.Context) (n int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: reconcile: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UnixMilli()
	stmts := []string{
		// A document whose latest row is ready lost its index.
		`INSERT INTO document_status (document_id, state, error, updated_at)
SELECT document_id, 'deleted', 'index not kept across restart', ?
FROM   document_status
WHERE  id IN (SELECT MAX(id) FROM document_status GROUP BY document_id)
AND    state = 'ready'`,
		// A task document still ingesting will never finish.
		`INSERT INTO document_status (document_id, task_id, state, error, updated_at)
SELECT document_id, task_id, 'failed', 'interrupted by restart', ?
FROM   document_status
WHERE  id IN (SELECT MAX(id) FROM document_status GROUP BY document_id, task_id)
AND    state = 'ingesting'`,
	}
	for _, q := range stmts {
		res, err := tx.ExecContext(ctx, q, now)
		if err != nil {
			return 0, fmt.Errorf("store: reconcile: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("store: reconcile: %w", err)
		}
		n += rows
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: reconcile commit: %w", err)
	}
	return n, nil
}

// TaskStatus returns the latest status of each document of a task, in upload
// order. Statuses recorded after the task by other tasks or deletes are not
// included; use DocumentStatus for the current state of a document.
func (s *SQLiteStore) TaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	var created int64
	err := s.db.QueryRowContext(ctx, `SELECT created_at FROM tasks WHERE id = ?`, taskID).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: task %q: %w", taskID, rag.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: task %s: %w", taskID, err)
	}

	const q = `
SELECT ds.document_id, ds.task_id, ds.state, ds.chunks, ds.error, ds.updated_at
FROM   task_documents td
JOIN   document_status ds ON ds.id = (
           SELECT MAX(id) FROM document_status
           WHERE  task_id = td.task_id AND document_id = td.document_id
       )
WHERE  td.task_id = ?
ORDER  BY td.position`
	rows, err := s.db.QueryContext(ctx, q, taskID)
	if err != nil {
		return nil, fmt.Errorf("store: task %s statuses: %w", taskID, err)
	}
	defer rows.Close()

	ts := &TaskStatus{ID: taskID, CreatedAt: time.UnixMilli(created)}
	for rows.Next() {
		st, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("store: task %s scan: %w", taskID, err)
		}
		ts.Documents = append(ts.Documents, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: task %s rows: %w", taskID, err)
	}
	return ts, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable. It lets the store serve as a
// readiness dependency.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanStatus(row scanner) (*DocumentStatus, error) {
	var st DocumentStatus
	var state string
	var ts int64
	if err := row.Scan(&st.DocumentID, &st.TaskID, &state, &st.Chunks, &st.Error, &ts); err != nil {
		return nil, err
	}
	st.State = State(strings.TrimSpace(state))
	st.UpdatedAt = time.UnixMilli(ts)
	return &st, nil
}
