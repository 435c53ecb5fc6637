package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/forgecraft-labs/agentcore/pkg/models"
)

// NewSQLStoresFromDSN creates Postgres/CockroachDB-backed RolloutStore and
// TaskStore using a DSN. The schema is created in Postgres/CockroachDB; for
// SQLite-backed deployments use NewSQLiteStoresFromPath instead.
func NewSQLStoresFromDSN(ctx context.Context, dsn string, config *CockroachConfig) (StoreSet, error) {
	if strings.TrimSpace(dsn) == "" {
		return StoreSet{}, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultCockroachConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return StoreSet{}, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("ping database: %w", err)
	}
	if err := ensureSchema(pingCtx, db); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("ensure schema: %w", err)
	}

	return StoreSet{
		Rollouts: &sqlRolloutStore{db: db},
		Tasks:    &sqlTaskStore{db: db},
		closer:   db.Close,
	}, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rollout_lines (
			session_id TEXT NOT NULL,
			sequence   BIGINT NOT NULL,
			kind       TEXT NOT NULL,
			payload    JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (session_id, sequence)
		)`,
		`CREATE TABLE IF NOT EXISTS background_tasks (
			id              TEXT PRIMARY KEY,
			session_id      TEXT NOT NULL,
			concurrency_key TEXT NOT NULL,
			status          TEXT NOT NULL,
			payload         JSONB NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

type sqlRolloutStore struct {
	db *sql.DB
}

func (s *sqlRolloutStore) AppendLine(ctx context.Context, sessionID string, line *models.RolloutLine) error {
	if sessionID == "" || line == nil {
		return fmt.Errorf("session id and line are required")
	}
	payload, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("marshal rollout line: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rollout_lines (session_id, sequence, kind, payload) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (session_id, sequence) DO NOTHING`,
		sessionID, line.Sequence, string(line.Kind), payload,
	)
	if err != nil {
		return fmt.Errorf("append rollout line: %w", err)
	}
	return nil
}

func (s *sqlRolloutStore) LoadLines(ctx context.Context, sessionID string) ([]*models.RolloutLine, error) {
	if sessionID == "" {
		return nil, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM rollout_lines WHERE session_id = $1 ORDER BY sequence ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load rollout lines: %w", err)
	}
	defer rows.Close()

	lines := []*models.RolloutLine{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan rollout line: %w", err)
		}
		var line models.RolloutLine
		if err := json.Unmarshal(payload, &line); err != nil {
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

func (s *sqlRolloutStore) Fork(ctx context.Context, sessionID string, uptoSequence int64, newSessionID string) error {
	if sessionID == "" || newSessionID == "" {
		return fmt.Errorf("session ids are required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rollout_lines (session_id, sequence, kind, payload)
		 SELECT $1, sequence, kind, payload FROM rollout_lines
		 WHERE session_id = $2 AND sequence <= $3`,
		newSessionID, sessionID, uptoSequence,
	)
	if err != nil {
		return fmt.Errorf("fork rollout: %w", err)
	}
	return nil
}

func (s *sqlRolloutStore) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrNotFound
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM rollout_lines WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete rollout: %w", err)
	}
	return nil
}

type sqlTaskStore struct {
	db *sql.DB
}

func (s *sqlTaskStore) Put(ctx context.Context, task *models.BackgroundTask) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task is required")
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO background_tasks (id, session_id, concurrency_key, status, payload, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (id) DO UPDATE SET
		   session_id = EXCLUDED.session_id,
		   concurrency_key = EXCLUDED.concurrency_key,
		   status = EXCLUDED.status,
		   payload = EXCLUDED.payload,
		   updated_at = EXCLUDED.updated_at`,
		task.ID, task.SessionID, task.ConcurrencyKey, string(task.Status), payload, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put task: %w", err)
	}
	return nil
}

func (s *sqlTaskStore) Get(ctx context.Context, id string) (*models.BackgroundTask, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM background_tasks WHERE id = $1`, id)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	var task models.BackgroundTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &task, nil
}

func (s *sqlTaskStore) ListActive(ctx context.Context) ([]*models.BackgroundTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM background_tasks WHERE status NOT IN ($1,$2,$3)`,
		string(models.TaskStatusCompleted), string(models.TaskStatusFailed), string(models.TaskStatusCancelled))
	if err != nil {
		return nil, fmt.Errorf("list active tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*models.BackgroundTask{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		var task models.BackgroundTask
		if err := json.Unmarshal(payload, &task); err != nil {
			return nil, fmt.Errorf("unmarshal task: %w", err)
		}
		tasks = append(tasks, &task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active tasks: %w", err)
	}
	return tasks, nil
}

func (s *sqlTaskStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM background_tasks WHERE id = $1`, id)
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
