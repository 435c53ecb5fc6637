package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/forgecraft-labs/agentcore/pkg/models"
)

// FileTaskStore persists each background task as <dir>/<task_id>.json,
// rewritten in full on every Put. It is the default TaskStore when the
// Background Task Manager is configured with a storage_dir and no
// database.
type FileTaskStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileTaskStore returns a FileTaskStore rooted at dir, creating it if
// necessary.
func NewFileTaskStore(dir string) (*FileTaskStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage: task store dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create task store dir: %w", err)
	}
	return &FileTaskStore{dir: dir}, nil
}

func (s *FileTaskStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileTaskStore) Put(ctx context.Context, task *models.BackgroundTask) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task is required")
	}
	payload, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshal task %s: %w", task.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tmp := s.path(task.ID) + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("storage: write task %s: %w", task.ID, err)
	}
	return os.Rename(tmp, s.path(task.ID))
}

func (s *FileTaskStore) Get(ctx context.Context, id string) (*models.BackgroundTask, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: read task %s: %w", id, err)
	}
	var task models.BackgroundTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("storage: unmarshal task %s: %w", id, err)
	}
	return &task, nil
}

func (s *FileTaskStore) ListActive(ctx context.Context) ([]*models.BackgroundTask, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("storage: read task store dir: %w", err)
	}
	active := []*models.BackgroundTask{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		id := entry.Name()[:len(entry.Name())-len(".json")]
		task, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		if !task.Status.Terminal() {
			active = append(active, task)
		}
	}
	return active, nil
}

func (s *FileTaskStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("storage: delete task %s: %w", id, err)
	}
	return nil
}
