package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/forgecraft-labs/agentcore/pkg/models"
)

// MemoryRolloutStore provides an in-memory RolloutStore, used in tests and
// as the fallback when no database is configured and the caller prefers a
// store over the default JSONL files.
type MemoryRolloutStore struct {
	mu    sync.RWMutex
	lines map[string][]*models.RolloutLine
}

// NewMemoryRolloutStore creates an in-memory rollout store.
func NewMemoryRolloutStore() *MemoryRolloutStore {
	return &MemoryRolloutStore{lines: make(map[string][]*models.RolloutLine)}
}

func (s *MemoryRolloutStore) AppendLine(ctx context.Context, sessionID string, line *models.RolloutLine) error {
	if sessionID == "" || line == nil {
		return fmt.Errorf("session id and line are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[sessionID] = append(s.lines[sessionID], line)
	return nil
}

func (s *MemoryRolloutStore) LoadLines(ctx context.Context, sessionID string) ([]*models.RolloutLine, error) {
	if sessionID == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	lines, ok := s.lines[sessionID]
	if !ok || len(lines) == 0 {
		return nil, ErrNotFound
	}
	out := make([]*models.RolloutLine, len(lines))
	copy(out, lines)
	return out, nil
}

func (s *MemoryRolloutStore) Fork(ctx context.Context, sessionID string, uptoSequence int64, newSessionID string) error {
	if sessionID == "" || newSessionID == "" {
		return fmt.Errorf("session ids are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	source, ok := s.lines[sessionID]
	if !ok {
		return ErrNotFound
	}
	forked := make([]*models.RolloutLine, 0, len(source))
	for _, line := range source {
		if line.Sequence <= uptoSequence {
			forked = append(forked, line)
		}
	}
	s.lines[newSessionID] = forked
	return nil
}

func (s *MemoryRolloutStore) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lines[sessionID]; !ok {
		return ErrNotFound
	}
	delete(s.lines, sessionID)
	return nil
}

// MemoryTaskStore provides an in-memory TaskStore.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*models.BackgroundTask
}

// NewMemoryTaskStore creates an in-memory task store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[string]*models.BackgroundTask)}
}

func (s *MemoryTaskStore) Put(ctx context.Context, task *models.BackgroundTask) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *task
	clone.UpdatedAt = time.Now()
	s.tasks[task.ID] = &clone
	return nil
}

func (s *MemoryTaskStore) Get(ctx context.Context, id string) (*models.BackgroundTask, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *task
	return &clone, nil
}

func (s *MemoryTaskStore) ListActive(ctx context.Context) ([]*models.BackgroundTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active := []*models.BackgroundTask{}
	for _, task := range s.tasks {
		if !task.Status.Terminal() {
			clone := *task
			active = append(active, &clone)
		}
	}
	return active, nil
}

func (s *MemoryTaskStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

// NewMemoryStores constructs a StoreSet backed by memory.
func NewMemoryStores() StoreSet {
	return StoreSet{
		Rollouts: NewMemoryRolloutStore(),
		Tasks:    NewMemoryTaskStore(),
	}
}
