// Package permission implements the rule-based allow/deny/ask classifier
// that gates every tool invocation before it reaches the approval cache or
// an interactive approval prompt.
package permission

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

// Decision is the outcome of evaluating a tool invocation against the
// configured rule set.
type Decision string

const (
	Allow Decision = "allow"
	Deny  Decision = "deny"
	Ask   Decision = "ask"
)

// pathFields is the field priority order used to extract a path-shaped
// argument from a tool's input, first match wins. This order, and the
// command fallback below, is shared verbatim with the approval cache's key
// derivation (internal/approval) so that Allow-rules and cached approvals
// never disagree about what "the same invocation" means.
var pathFields = []string{
	"path", "file_path", "filePath", "file",
	"url", "uri", "query", "target", "directory", "dir",
}

// ExtractPath derives the path-shaped argument for a tool invocation: the
// first populated field in pathFields, else the shell "command" string if
// present, else the wildcard "*".
func ExtractPath(input json.RawMessage) string {
	if len(input) == 0 {
		return "*"
	}
	var fields map[string]any
	if err := json.Unmarshal(input, &fields); err != nil {
		return "*"
	}
	for _, name := range pathFields {
		if v, ok := fields[name]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	if v, ok := fields["command"]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "*"
}

// Rule is one ordered entry in the evaluator's rule set. ToolPattern and
// PathPattern are glob patterns (filepath.Match syntax); an empty
// ToolPattern matches any tool.
type Rule struct {
	ToolPattern string
	PathPattern string
	Decision    Decision
}

// Evaluator holds an ordered rule set plus the default decision for
// invocations matching no rule.
type Evaluator struct {
	rules   []Rule
	fallback Decision
}

// NewEvaluator builds an evaluator from ordered rules. fallback is returned
// when no rule matches; it is typically Ask.
func NewEvaluator(rules []Rule, fallback Decision) *Evaluator {
	if fallback == "" {
		fallback = Ask
	}
	return &Evaluator{rules: rules, fallback: fallback}
}

// Evaluate extracts the path-shaped argument from input and evaluates it
// against the rule set in order, first match wins. It returns the
// resolved decision and the extracted path (callers reuse the path to
// derive an ApprovalKey without re-extracting it).
func (e *Evaluator) Evaluate(toolName string, input json.RawMessage) (Decision, string) {
	path := ExtractPath(input)
	for _, rule := range e.rules {
		if !matchGlob(rule.ToolPattern, toolName) {
			continue
		}
		if !matchGlob(rule.PathPattern, path) {
			continue
		}
		return rule.Decision, path
	}
	return e.fallback, path
}

// matchGlob matches name against pattern using filepath.Match semantics,
// with an empty pattern or a bare "*" always matching.
func matchGlob(pattern, name string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	if ok, err := filepath.Match(pattern, name); err == nil && ok {
		return true
	}
	// Allow a leading/trailing "*" prefix/suffix match for patterns like
	// "edge:*" or "*.secret", which filepath.Match also supports, but fall
	// back to a plain substring check for patterns containing "*" in the
	// middle of a path-like string (filepath.Match treats "/" specially).
	if strings.Contains(pattern, "*") {
		prefix, suffix, ok := splitStar(pattern)
		if ok {
			return strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix)
		}
	}
	return pattern == name
}

func splitStar(pattern string) (prefix, suffix string, ok bool) {
	idx := strings.Index(pattern, "*")
	if idx < 0 {
		return "", "", false
	}
	return pattern[:idx], pattern[idx+1:], true
}
