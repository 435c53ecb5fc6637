package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3" // cgo driver, registers as "sqlite3"
	_ "modernc.org/sqlite"          // pure-Go driver, registers as "sqlite"

	"github.com/forgecraft-labs/agentcore/pkg/models"
)

// NewSQLiteStoresFromPath creates file-backed RolloutStore and TaskStore
// using SQLite. driver selects "sqlite3" (cgo, mattn/go-sqlite3) or "sqlite"
// (pure Go, modernc.org/sqlite); an empty driver defaults to the pure-Go one
// so the binary stays cgo-free unless the operator opts in.
func NewSQLiteStoresFromPath(ctx context.Context, driver, path string) (StoreSet, error) {
	if strings.TrimSpace(path) == "" {
		return StoreSet{}, fmt.Errorf("path is required")
	}
	if driver == "" {
		driver = "sqlite"
	}
	if driver != "sqlite" && driver != "sqlite3" {
		return StoreSet{}, fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return StoreSet{}, fmt.Errorf("open database: %w", err)
	}
	if driver == "sqlite3" {
		// the cgo driver does not support concurrent writers across connections
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("ping database: %w", err)
	}
	if err := ensureSQLiteSchema(ctx, db); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("ensure schema: %w", err)
	}

	return StoreSet{
		Rollouts: &sqliteRolloutStore{db: db},
		Tasks:    &sqliteTaskStore{db: db},
		closer:   db.Close,
	}, nil
}

func ensureSQLiteSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rollout_lines (
			session_id TEXT NOT NULL,
			sequence   INTEGER NOT NULL,
			kind       TEXT NOT NULL,
			payload    TEXT NOT NULL,
			PRIMARY KEY (session_id, sequence)
		)`,
		`CREATE TABLE IF NOT EXISTS background_tasks (
			id              TEXT PRIMARY KEY,
			session_id      TEXT NOT NULL,
			concurrency_key TEXT NOT NULL,
			status          TEXT NOT NULL,
			payload         TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

type sqliteRolloutStore struct {
	db *sql.DB
}

func (s *sqliteRolloutStore) AppendLine(ctx context.Context, sessionID string, line *models.RolloutLine) error {
	if sessionID == "" || line == nil {
		return fmt.Errorf("session id and line are required")
	}
	payload, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("marshal rollout line: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO rollout_lines (session_id, sequence, kind, payload) VALUES (?,?,?,?)`,
		sessionID, line.Sequence, string(line.Kind), string(payload),
	)
	if err != nil {
		return fmt.Errorf("append rollout line: %w", err)
	}
	return nil
}

func (s *sqliteRolloutStore) LoadLines(ctx context.Context, sessionID string) ([]*models.RolloutLine, error) {
	if sessionID == "" {
		return nil, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM rollout_lines WHERE session_id = ? ORDER BY sequence ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load rollout lines: %w", err)
	}
	defer rows.Close()

	lines := []*models.RolloutLine{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan rollout line: %w", err)
		}
		var line models.RolloutLine
		if err := json.Unmarshal([]byte(payload), &line); err != nil {
			return nil, fmt.Errorf("unmarshal rollout line: %w", err)
		}
		lines = append(lines, &line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load rollout lines: %w", err)
	}
	if len(lines) == 0 {
		return nil, ErrNotFound
	}
	return lines, nil
}

func (s *sqliteRolloutStore) Fork(ctx context.Context, sessionID string, uptoSequence int64, newSessionID string) error {
	if sessionID == "" || newSessionID == "" {
		return fmt.Errorf("session ids are required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rollout_lines (session_id, sequence, kind, payload)
		 SELECT ?, sequence, kind, payload FROM rollout_lines
		 WHERE session_id = ? AND sequence <= ?`,
		newSessionID, sessionID, uptoSequence,
	)
	if err != nil {
		return fmt.Errorf("fork rollout: %w", err)
	}
	return nil
}

func (s *sqliteRolloutStore) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrNotFound
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM rollout_lines WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete rollout: %w", err)
	}
	return nil
}

type sqliteTaskStore struct {
	db *sql.DB
}

func (s *sqliteTaskStore) Put(ctx context.Context, task *models.BackgroundTask) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task is required")
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO background_tasks (id, session_id, concurrency_key, status, payload) VALUES (?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET session_id=excluded.session_id, concurrency_key=excluded.concurrency_key,
		   status=excluded.status, payload=excluded.payload`,
		task.ID, task.SessionID, task.ConcurrencyKey, string(task.Status), string(payload),
	)
	if err != nil {
		return fmt.Errorf("put task: %w", err)
	}
	return nil
}

func (s *sqliteTaskStore) Get(ctx context.Context, id string) (*models.BackgroundTask, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM background_tasks WHERE id = ?`, id)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	var task models.BackgroundTask
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &task, nil
}

func (s *sqliteTaskStore) ListActive(ctx context.Context) ([]*models.BackgroundTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM background_tasks WHERE status NOT IN (?,?,?)`,
		string(models.TaskStatusCompleted), string(models.TaskStatusFailed), string(models.TaskStatusCancelled))
	if err != nil {
		return nil, fmt.Errorf("list active tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*models.BackgroundTask{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		var task models.BackgroundTask
		if err := json.Unmarshal([]byte(payload), &task); err != nil {
			return nil, fmt.Errorf("unmarshal task: %w", err)
		}
		tasks = append(tasks, &task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active tasks: %w", err)
	}
	return tasks, nil
}

func (s *sqliteTaskStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM background_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
