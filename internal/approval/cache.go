// Package approval implements the Approval Cache: a session-scoped table of
// prior user decisions keyed by tool name and a path-shaped pattern, so that
// repeat invocations matching a previously approved pattern skip the
// interactive approval prompt.
//
// The cache is never process-wide — approvals from one session must never
// silently authorize another's, so every lookup and store is namespaced by
// session id and the cache holds no global table.
package approval

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/forgecraft-labs/agentcore/internal/permission"
	"github.com/forgecraft-labs/agentcore/pkg/models"
)

// DeriveKey computes the ApprovalKey for a tool invocation. It reuses
// permission.ExtractPath so that Allow-rules in the Permission Evaluator and
// cache lookups here never disagree about what "the same invocation" means
// (see permission.ExtractPath's doc comment). For shell-shaped tools the
// working directory is folded into the pattern so that identical commands
// in different workspaces occupy distinct cache slots.
func DeriveKey(toolName string, input json.RawMessage, cwd string) models.ApprovalKey {
	path := permission.ExtractPath(input)
	pattern := path
	if isShellTool(toolName) && cwd != "" {
		pattern = cwd + "\x00" + path
	}
	return models.ApprovalKey{ToolName: toolName, Pattern: pattern}
}

func isShellTool(toolName string) bool {
	switch toolName {
	case "shell", "bash", "exec", "run_command", "shell_exec":
		return true
	default:
		return false
	}
}

type entry struct {
	decision  models.CacheDecisionKind
	decidedAt time.Time
}

// Cache is a reader-writer-locked table of per-session approval decisions.
// Per the spec's shared-resource policy, updates are write-serialized
// through the same mutex used for lookups.
type Cache struct {
	mu       sync.RWMutex
	sessions map[string]map[string]entry // sessionID -> key.String() -> entry
}

// NewCache returns an empty Approval Cache.
func NewCache() *Cache {
	return &Cache{sessions: make(map[string]map[string]entry)}
}

// Lookup returns the cached decision for key within sessionID, if any.
func (c *Cache) Lookup(sessionID string, key models.ApprovalKey) (models.CacheDecisionKind, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bucket, ok := c.sessions[sessionID]
	if !ok {
		return "", false
	}
	e, ok := bucket[key.String()]
	if !ok {
		return "", false
	}
	return e.decision, true
}

// Store records decision for key within sessionID. Storing
// models.CacheApproveOnce is a deliberate no-op: ApproveOnce is by
// definition single-use and must never populate the cache (see
// models.FromReviewDecision, the single source of truth for
// cacheability).
func (c *Cache) Store(sessionID string, key models.ApprovalKey, decision models.CacheDecisionKind) {
	if decision == "" || decision == models.CacheApproveOnce {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	bucket, ok := c.sessions[sessionID]
	if !ok {
		bucket = make(map[string]entry)
		c.sessions[sessionID] = bucket
	}
	bucket[key.String()] = entry{decision: decision, decidedAt: time.Now()}
}

// RecordDecision maps a ReviewDecision to its CacheDecision form via
// models.FromReviewDecision and stores it if cacheable. It returns the
// CacheDecision that was (or would have been) recorded, for callers that
// need to know the resolved form regardless of cacheability.
func (c *Cache) RecordDecision(sessionID string, key models.ApprovalKey, decision models.ReviewDecisionKind) models.CacheDecisionKind {
	kind, cacheable := models.FromReviewDecision(decision)
	if !cacheable {
		return kind
	}
	c.Store(sessionID, key, kind)
	return kind
}

// Deny records a permanent per-session denial for key, so that future
// invocations matching the same key abort without re-prompting.
func (c *Cache) Deny(sessionID string, key models.ApprovalKey) {
	c.Store(sessionID, key, models.CacheDenySession)
	// Store() special-cases CacheApproveOnce, not CacheDenySession, so the
	// write above always lands.
}

// Reset discards every cached decision for sessionID. Called when a
// session ends.
func (c *Cache) Reset(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
}
