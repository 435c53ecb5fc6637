// Package tasks implements the Background Task Manager: concurrency-keyed
// admission control and lifecycle persistence for independently-executing
// sub-agent runs launched off the main Agent Loop.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/forgecraft-labs/agentcore/internal/config"
	"github.com/forgecraft-labs/agentcore/internal/storage"
	"github.com/forgecraft-labs/agentcore/pkg/models"
)

// ErrQueueFull is returned by Launch when the manager is already at its
// global in-flight cap (running + queued tasks across all keys).
var ErrQueueFull = errors.New("tasks: max_total_tasks reached")

// ErrNotFound is returned when a terminal-transition method targets an
// unknown task id.
var ErrNotFound = errors.New("tasks: task not found")

// keySlot is the per-concurrency-key admission gate: a buffered channel of
// size limit acts as a counting semaphore, with 0 meaning unlimited (no
// blocking at all).
type keySlot struct {
	limit int
	sem   chan struct{}
}

func newKeySlot(limit int) *keySlot {
	if limit <= 0 {
		return &keySlot{limit: 0}
	}
	return &keySlot{limit: limit, sem: make(chan struct{}, limit)}
}

func (k *keySlot) acquire(ctx context.Context) error {
	if k.sem == nil {
		return nil
	}
	select {
	case k.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *keySlot) release() {
	if k.sem == nil {
		return
	}
	select {
	case <-k.sem:
	default:
	}
}

// LaunchInput describes a background task admission request.
type LaunchInput struct {
	Input          string
	ConcurrencyKey string // defaults to "default" (typically the agent name)
	Model          string
	ProviderPrefix string
	Metadata       map[string]any
}

// Manager enforces per-key concurrency limits and the global in-flight cap,
// assigns bg_/ses_ ids, and persists every lifecycle transition.
type Manager struct {
	cfg   config.BackgroundTaskConfig
	store storage.TaskStore

	mu       sync.Mutex
	slots    map[string]*keySlot
	inFlight int // running + queued, across all keys
	pid      int
}

// NewManager builds a Manager backed by store, using cfg to resolve
// per-key concurrency limits and the global cap.
func NewManager(cfg config.BackgroundTaskConfig, store storage.TaskStore) *Manager {
	return &Manager{
		cfg:   cfg,
		store: store,
		slots: make(map[string]*keySlot),
		pid:   os.Getpid(),
	}
}

var (
	singleton     *Manager
	singletonOnce sync.Once
	singletonMu   sync.Mutex
)

// Default returns the process-wide lazily-initialized Manager, building it
// from cfg on first call. Later calls ignore cfg once the singleton exists.
// When cfg.StorageDir is set, tasks persist to <dir>/<task_id>.json; a
// store construction failure falls back to an in-memory store rather than
// preventing the manager from existing.
func Default(cfg config.BackgroundTaskConfig) *Manager {
	singletonOnce.Do(func() {
		singletonMu.Lock()
		defer singletonMu.Unlock()
		var store = storage.TaskStore(storage.NewMemoryTaskStore())
		if cfg.StorageDir != "" {
			if fileStore, err := storage.NewFileTaskStore(cfg.StorageDir); err == nil {
				store = fileStore
			}
		}
		singleton = NewManager(cfg, store)
	})
	return singleton
}

// ResetDefault clears the process-wide singleton. Tests use this to get a
// fresh Manager without a process restart.
func ResetDefault() {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	singleton = nil
	singletonOnce = sync.Once{}
}

// resolveLimit applies the config's concurrency resolution order:
// per-model exact match, then per-provider-prefix match, then
// DefaultConcurrency, then the hard default of 5.
func (m *Manager) resolveLimit(in LaunchInput) int {
	if in.Model != "" {
		if limit, ok := m.cfg.PerModel[in.Model]; ok {
			return limit
		}
	}
	prefix := in.ProviderPrefix
	if prefix == "" && in.Model != "" {
		if idx := strings.Index(in.Model, ":"); idx >= 0 {
			prefix = in.Model[:idx]
		}
	}
	if prefix != "" {
		if limit, ok := m.cfg.PerProviderPrefix[prefix]; ok {
			return limit
		}
	}
	if m.cfg.DefaultConcurrency != 0 {
		return m.cfg.DefaultConcurrency
	}
	return 5
}

func (m *Manager) slotFor(key string, limit int) *keySlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	if !ok {
		s = newKeySlot(limit)
		m.slots[key] = s
	}
	return s
}

func (m *Manager) maxTotal() int {
	if m.cfg.MaxTotalTasks > 0 {
		return m.cfg.MaxTotalTasks
	}
	return 10
}

// Acquire blocks until a concurrency slot is free for key, or ctx is
// cancelled. Callers must pair every successful Acquire with exactly one
// Release.
func (m *Manager) Acquire(ctx context.Context, key string, limit int) error {
	if key == "" {
		key = "default"
	}
	return m.slotFor(key, limit).acquire(ctx)
}

// Release frees the concurrency slot held for key. It is idempotent-safe
// against a key that was never acquired (a no-op).
func (m *Manager) Release(key string) {
	if key == "" {
		key = "default"
	}
	m.mu.Lock()
	s, ok := m.slots[key]
	m.mu.Unlock()
	if ok {
		s.release()
	}
}

// Launch admits a new background task: it enforces the global in-flight
// cap, assigns bg_/ses_ ids, acquires the per-key concurrency slot, and
// persists the initial Queued record. The returned task transitions to
// Running only once the caller that drives its execution calls
// UpdateTaskStatus.
func (m *Manager) Launch(ctx context.Context, in LaunchInput) (*models.BackgroundTask, error) {
	m.mu.Lock()
	if m.inFlight >= m.maxTotal() {
		m.mu.Unlock()
		return nil, ErrQueueFull
	}
	m.inFlight++
	m.mu.Unlock()

	key := in.ConcurrencyKey
	if key == "" {
		key = "default"
	}
	limit := m.resolveLimit(in)
	if err := m.Acquire(ctx, key, limit); err != nil {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
		return nil, err
	}

	now := time.Now()
	taskID, sessionID := NewTaskID(now.UnixMilli(), now.UnixNano(), m.pid)
	task := &models.BackgroundTask{
		ID:             taskID,
		SessionID:      sessionID,
		ConcurrencyKey: key,
		Status:         models.TaskStatusQueued,
		Input:          in.Input,
		Metadata:       in.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.persist(ctx, task); err != nil {
		m.Release(key)
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
		return nil, fmt.Errorf("tasks: persist queued task: %w", err)
	}
	return task, nil
}

// MarkRunning transitions task to Running.
func (m *Manager) MarkRunning(ctx context.Context, id string) error {
	return m.transition(ctx, id, func(t *models.BackgroundTask) {
		t.Status = models.TaskStatusRunning
	})
}

// CompleteTask transitions task to Completed, records result, and releases
// its concurrency slot.
func (m *Manager) CompleteTask(ctx context.Context, id, result string) error {
	return m.finish(ctx, id, func(t *models.BackgroundTask) {
		t.Status = models.TaskStatusCompleted
		t.Result = result
	})
}

// FailTask transitions task to Failed, records the error, and releases its
// concurrency slot.
func (m *Manager) FailTask(ctx context.Context, id string, taskErr error) error {
	return m.finish(ctx, id, func(t *models.BackgroundTask) {
		t.Status = models.TaskStatusFailed
		if taskErr != nil {
			t.Error = taskErr.Error()
		}
	})
}

// CancelTask transitions task to Cancelled and releases its concurrency
// slot.
func (m *Manager) CancelTask(ctx context.Context, id string) error {
	return m.finish(ctx, id, func(t *models.BackgroundTask) {
		t.Status = models.TaskStatusCancelled
	})
}

// UpdateTaskStatus sets an arbitrary status. Terminal statuses route
// through the same take-and-release guard as CompleteTask/FailTask/
// CancelTask; non-terminal statuses (e.g. Running) update in place.
func (m *Manager) UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus) error {
	if status.Terminal() {
		return m.finish(ctx, id, func(t *models.BackgroundTask) {
			t.Status = status
		})
	}
	return m.transition(ctx, id, func(t *models.BackgroundTask) {
		t.Status = status
	})
}

// transition loads, mutates, and persists task without affecting
// concurrency bookkeeping.
func (m *Manager) transition(ctx context.Context, id string, mutate func(*models.BackgroundTask)) error {
	task, err := m.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	mutate(task)
	task.UpdatedAt = time.Now()
	return m.persist(ctx, task)
}

// finish applies a terminal-status mutation then takes the concurrency_key
// out of the task and releases it. Taking the key before releasing is the
// sole guard against a double release: once cleared, a second terminal
// transition on the same task id (e.g. a racing cancel after a complete)
// finds an empty key and releases nothing.
func (m *Manager) finish(ctx context.Context, id string, mutate func(*models.BackgroundTask)) error {
	task, err := m.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if task.Status.Terminal() {
		return nil
	}
	mutate(task)
	now := time.Now()
	task.UpdatedAt = now
	task.CompletedAt = &now

	key := task.ConcurrencyKey
	task.ConcurrencyKey = ""

	if err := m.persist(ctx, task); err != nil {
		return fmt.Errorf("tasks: persist terminal task: %w", err)
	}

	if key != "" {
		m.Release(key)
	}
	m.mu.Lock()
	if m.inFlight > 0 {
		m.inFlight--
	}
	m.mu.Unlock()
	return nil
}

// Get returns the current record for id.
func (m *Manager) Get(ctx context.Context, id string) (*models.BackgroundTask, error) {
	task, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return task, nil
}

// ListActive returns every non-terminal task known to the store.
func (m *Manager) ListActive(ctx context.Context) ([]*models.BackgroundTask, error) {
	return m.store.ListActive(ctx)
}

func (m *Manager) persist(ctx context.Context, task *models.BackgroundTask) error {
	return m.store.Put(ctx, task)
}
