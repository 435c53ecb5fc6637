// Package rollout implements the Rollout Recorder: the append-only JSONL
// log of everything that happens in a session (messages, tool calls and
// results, turn markers, lifecycle events), plus fork-by-message-index and
// resume-by-replay over that log.
package rollout

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/forgecraft-labs/agentcore/internal/storage"
	"github.com/forgecraft-labs/agentcore/pkg/models"
)

// Recorder appends RolloutLines to a session's JSONL file, assigning each
// line the next monotonic sequence number. It also satisfies reads and
// forks through the same storage.RolloutStore interface the database
// backends implement, so callers can swap in Postgres/SQLite without
// touching the recorder's call sites.
type Recorder struct {
	dir string

	mu       sync.Mutex
	files    map[string]*os.File
	sequence map[string]int64
}

// NewRecorder returns a Recorder writing under dir (one "<session_id>.jsonl"
// file per session).
func NewRecorder(dir string) (*Recorder, error) {
	if dir == "" {
		return nil, fmt.Errorf("rollout: dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("rollout: create dir: %w", err)
	}
	return &Recorder{
		dir:      dir,
		files:    make(map[string]*os.File),
		sequence: make(map[string]int64),
	}, nil
}

var _ storage.RolloutStore = (*Recorder)(nil)

func (r *Recorder) path(sessionID string) string {
	return filepath.Join(r.dir, sessionID+".jsonl")
}

func (r *Recorder) fileFor(sessionID string) (*os.File, error) {
	if f, ok := r.files[sessionID]; ok {
		return f, nil
	}
	f, err := os.OpenFile(r.path(sessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	r.files[sessionID] = f
	return f, nil
}

// AppendLine writes one RolloutLine to sessionID's log, assigning it the
// next sequence number in that session. It implements storage.RolloutStore
// so the recorder is interchangeable with the Postgres/SQLite backends.
func (r *Recorder) AppendLine(ctx context.Context, sessionID string, line *models.RolloutLine) error {
	if sessionID == "" || line == nil {
		return fmt.Errorf("rollout: session id and line are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := r.fileFor(sessionID)
	if err != nil {
		return fmt.Errorf("rollout: open %s: %w", sessionID, err)
	}
	r.sequence[sessionID]++
	line.Sequence = r.sequence[sessionID]
	if line.Timestamp.IsZero() {
		line.Timestamp = time.Now()
	}
	payload, err := line.MarshalJSONL()
	if err != nil {
		return fmt.Errorf("rollout: marshal line: %w", err)
	}
	if _, err := f.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("rollout: write line: %w", err)
	}
	return nil
}

// SessionMeta writes the session's opening SessionMeta line; callers
// invoke this once, before any other Append.
func (r *Recorder) SessionMeta(sessionID string, meta models.SessionMeta) error {
	return r.AppendLine(context.Background(), sessionID, &models.RolloutLine{
		Kind:        models.RolloutKindSessionMeta,
		SessionMeta: &meta,
	})
}

// LoadLines replays sessionID's full JSONL log in order.
func (r *Recorder) LoadLines(ctx context.Context, sessionID string) ([]*models.RolloutLine, error) {
	f, err := os.Open(r.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("rollout: open %s: %w", sessionID, err)
	}
	defer f.Close()

	var lines []*models.RolloutLine
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var line models.RolloutLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			return nil, fmt.Errorf("rollout: parse %s: %w", sessionID, err)
		}
		lines = append(lines, &line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("rollout: scan %s: %w", sessionID, err)
	}
	return lines, nil
}

// Fork copies every line up to and including uptoSequence from sessionID
// into a brand new session log named newSessionID, for a session branched
// mid-conversation.
func (r *Recorder) Fork(ctx context.Context, sessionID string, uptoSequence int64, newSessionID string) error {
	lines, err := r.LoadLines(ctx, sessionID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := os.OpenFile(r.path(newSessionID), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("rollout: create fork %s: %w", newSessionID, err)
	}
	defer f.Close()
	var seq int64
	for _, line := range lines {
		if line.Sequence > uptoSequence {
			break
		}
		payload, err := line.MarshalJSONL()
		if err != nil {
			return fmt.Errorf("rollout: marshal forked line: %w", err)
		}
		if _, err := f.Write(append(payload, '\n')); err != nil {
			return fmt.Errorf("rollout: write forked line: %w", err)
		}
		seq = line.Sequence
	}
	r.sequence[newSessionID] = seq
	return nil
}

// Delete removes sessionID's rollout log.
func (r *Recorder) Delete(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	if f, ok := r.files[sessionID]; ok {
		f.Close()
		delete(r.files, sessionID)
	}
	delete(r.sequence, sessionID)
	r.mu.Unlock()
	if err := os.Remove(r.path(sessionID)); err != nil {
		if os.IsNotExist(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("rollout: delete %s: %w", sessionID, err)
	}
	return nil
}

// Close closes every open session file handle.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for id, f := range r.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.files, id)
	}
	return firstErr
}

// Resume reconstructs the replay state needed to continue a session: the
// turn count and accumulated token usage implied by the log's TurnMarker
// lines, plus every message in order.
type Resume struct {
	Turns    int
	Usage    models.TokenUsage
	Messages []models.Message
}

// Replay loads sessionID's log and folds it into a Resume snapshot.
func (r *Recorder) Replay(ctx context.Context, sessionID string) (*Resume, error) {
	lines, err := r.LoadLines(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	resume := &Resume{}
	for _, line := range lines {
		switch line.Kind {
		case models.RolloutKindTurn:
			if line.Turn != nil {
				resume.Turns = line.Turn.Turn
				resume.Usage = line.Turn.Usage
			}
		case models.RolloutKindMessage:
			if line.Message != nil {
				resume.Messages = append(resume.Messages, *line.Message)
			}
		}
	}
	return resume, nil
}

// Watcher watches the rollout directory for externally truncated or
// rotated files (e.g. an operator running `truncate` or a log-rotation
// job) and invalidates the recorder's in-memory sequence counters so the
// next Append re-derives them from disk instead of silently continuing a
// stale count.
type Watcher struct {
	watcher *fsnotify.Watcher
	rec     *Recorder
}

// WatchDir starts an fsnotify watch over rec's directory. Callers should
// defer Close().
func WatchDir(rec *Recorder) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("rollout: create watcher: %w", err)
	}
	if err := fw.Add(rec.dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("rollout: watch %s: %w", rec.dir, err)
	}
	w := &Watcher{watcher: fw, rec: rec}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
				continue
			}
			sessionID := sessionIDFromPath(event.Name)
			if sessionID == "" {
				continue
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.rec.invalidate(sessionID)
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func sessionIDFromPath(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if ext != ".jsonl" {
		return ""
	}
	return base[:len(base)-len(ext)]
}

func (r *Recorder) invalidate(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.files[sessionID]; ok {
		f.Close()
		delete(r.files, sessionID)
	}
	delete(r.sequence, sessionID)
}

// Close stops the watch.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
