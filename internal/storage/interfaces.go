package storage

import (
	"context"
	"errors"

	"github.com/forgecraft-labs/agentcore/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// RolloutStore persists rollout lines as an alternative to the default
// per-session JSONL files under the sessions directory. Lines for a given
// session are appended in order and replayed in the same order on Load.
type RolloutStore interface {
	AppendLine(ctx context.Context, sessionID string, line *models.RolloutLine) error
	LoadLines(ctx context.Context, sessionID string) ([]*models.RolloutLine, error)
	// Fork copies every line up to and including uptoSequence into a new
	// session id and returns it.
	Fork(ctx context.Context, sessionID string, uptoSequence int64, newSessionID string) error
	Delete(ctx context.Context, sessionID string) error
}

// TaskStore persists background task records as an alternative to the
// default <storage_dir>/<task_id>.json files.
type TaskStore interface {
	Put(ctx context.Context, task *models.BackgroundTask) error
	Get(ctx context.Context, id string) (*models.BackgroundTask, error)
	// ListActive returns every task not in a terminal state, used to
	// reinstate queued/running tasks on manager construction.
	ListActive(ctx context.Context) ([]*models.BackgroundTask, error)
	Delete(ctx context.Context, id string) error
}

// StoreSet groups storage dependencies.
type StoreSet struct {
	Rollouts RolloutStore
	Tasks    TaskStore
	closer   func() error
}

// Close closes any underlying resources.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
