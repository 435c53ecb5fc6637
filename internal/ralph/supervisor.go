// Package ralph implements the Ralph Supervisor: a dual-condition exit
// gate plus stagnation circuit breaker that wraps a long-running,
// self-iterating Agent Loop and decides when it is truly done rather than
// merely claiming to be.
package ralph

import (
	"regexp"
	"strings"
	"time"

	"github.com/forgecraft-labs/agentcore/internal/config"
	"github.com/forgecraft-labs/agentcore/pkg/models"
)

var (
	promiseRe = regexp.MustCompile(`(?s)<promise>(.*?)</promise>`)
	statusRe  = regexp.MustCompile(`(?s)---RALPH_STATUS---(.*?)---END_RALPH_STATUS---`)
	exitRe    = regexp.MustCompile(`EXIT_SIGNAL:\s*true`)
)

// SignalWeights assigns a confidence weight to each recognized signal.
// Defaults follow the spec: a promise token or explicit exit signal is
// weighted heavily on its own; objective corroboration contributes less
// per signal but several can stack.
type SignalWeights struct {
	Promise         int
	ExitSignal      int
	CompletionKeyword int
	TestsPassing    int
	BuildSuccess    int
	AllTodosComplete int
	GoalScore       int
}

// DefaultSignalWeights returns the spec's default weighting.
func DefaultSignalWeights() SignalWeights {
	return SignalWeights{
		Promise:           50,
		ExitSignal:        50,
		CompletionKeyword: 10,
		TestsPassing:      15,
		BuildSuccess:      15,
		AllTodosComplete:  10,
		GoalScore:         10,
	}
}

var completionKeywords = []string{
	"task complete", "all done", "implementation complete", "finished implementing",
}

// Goal is one named completion criterion supplied by the caller (e.g. "all
// tests pass", "lint is clean"); Ralph doesn't evaluate these itself — the
// caller runs its own check and reports Pass.
type Goal struct {
	Name string
	Pass bool
}

// Assessment is one iteration's signal snapshot, built by ScanOutput plus
// any caller-supplied goal results.
type Assessment struct {
	SubjectivePresent bool   // a <promise> token or EXIT_SIGNAL: true was found
	PromisePhrase     string
	ObjectiveCount    int // number of distinct objective signals observed
	Confidence        int // 0-100, capped
	Goals             []Goal
	AllGoalsPass      bool
}

// ScanOutput inspects one iteration's raw model output for the subjective
// and objective completion signals and returns the resulting Assessment.
// Confidence is the capped sum of every matched signal's weight.
func ScanOutput(output string, weights SignalWeights, goals []Goal) Assessment {
	a := Assessment{Goals: goals, AllGoalsPass: true}
	confidence := 0

	block := statusRe.FindStringSubmatch(output)
	scope := output
	if block != nil {
		scope = block[1]
	}

	if m := promiseRe.FindStringSubmatch(scope); m != nil {
		a.SubjectivePresent = true
		a.PromisePhrase = strings.TrimSpace(m[1])
		confidence += weights.Promise
	}
	if exitRe.MatchString(scope) {
		a.SubjectivePresent = true
		confidence += weights.ExitSignal
	}

	lower := strings.ToLower(output)
	for _, kw := range completionKeywords {
		if strings.Contains(lower, kw) {
			a.ObjectiveCount++
			confidence += weights.CompletionKeyword
			break
		}
	}
	if strings.Contains(lower, "tests pass") || strings.Contains(lower, "all tests passed") {
		a.ObjectiveCount++
		confidence += weights.TestsPassing
	}
	if strings.Contains(lower, "build succeeded") || strings.Contains(lower, "build success") {
		a.ObjectiveCount++
		confidence += weights.BuildSuccess
	}
	if strings.Contains(lower, "all todos complete") || strings.Contains(lower, "all tasks complete") {
		a.ObjectiveCount++
		confidence += weights.AllTodosComplete
	}

	for _, g := range goals {
		if g.Pass {
			a.ObjectiveCount++
			confidence += weights.GoalScore
		} else {
			a.AllGoalsPass = false
		}
	}

	if confidence > 100 {
		confidence = 100
	}
	a.Confidence = confidence
	return a
}

// Decision is the supervisor's verdict for one iteration.
type Decision string

const (
	// DecisionContinue means keep iterating.
	DecisionContinue Decision = "continue"
	// DecisionExit means the loop has genuinely finished.
	DecisionExit Decision = "exit"
	// DecisionAbort means a circuit breaker, session expiry, or branch
	// change forced termination regardless of completion signals.
	DecisionAbort Decision = "abort"
)

// Supervisor evaluates one supervised Agent Loop's iterations against the
// spec's dual-condition exit gate and stagnation circuit breaker.
type Supervisor struct {
	cfg     config.RalphConfig
	weights SignalWeights
	breaker *Breaker
	state   models.RalphState
}

// NewSupervisor builds a Supervisor from cfg, starting state for a loop
// beginning now with startBranch as the tracked git branch.
func NewSupervisor(cfg config.RalphConfig, maxIterations int, completionPromise string, startBranch string) *Supervisor {
	now := time.Now()
	sessionExpiry := cfg.SessionExpiry
	if sessionExpiry <= 0 {
		sessionExpiry = 24 * time.Hour
	}
	minConfidence := cfg.MaxConfidence
	if minConfidence <= 0 {
		minConfidence = 80
	}
	return &Supervisor{
		cfg:     cfg,
		weights: DefaultSignalWeights(),
		breaker: NewBreaker(BreakerConfig{
			Name:               "ralph",
			ZeroChangeLimit:    cfg.ZeroChangeLimit,
			RepeatedErrorLimit: cfg.RepeatedErrorLimit,
			OutputDeclinePct:   cfg.OutputDeclinePct,
		}),
		state: models.RalphState{
			Active:               true,
			MaxIterations:        maxIterations,
			CompletionPromise:    completionPromise,
			MinConfidence:        minConfidence,
			RequireDualCondition: true,
			SessionHours:         sessionExpiry.Hours(),
			GitBranch:            startBranch,
			StartedAt:            now,
			LastCheckedAt:        now,
		},
	}
}

// State returns a snapshot of the supervisor's current RalphState.
func (s *Supervisor) State() models.RalphState {
	return s.state
}

// Evaluate runs one iteration's output and goal results through the exit
// gate, the circuit breaker, and the forced-termination checks (session
// expiry, git branch change), in that order, and returns the resulting
// Decision.
func (s *Supervisor) Evaluate(output string, sig IterationSignal, goals []Goal, currentBranch string) (Decision, Assessment) {
	s.state.Iteration++
	s.state.LastCheckedAt = time.Now()

	if s.state.GitBranch != "" && currentBranch != "" && currentBranch != s.state.GitBranch {
		s.state.Active = false
		return DecisionAbort, Assessment{}
	}
	if time.Since(s.state.StartedAt) > time.Duration(s.state.SessionHours*float64(time.Hour)) {
		s.state.Active = false
		return DecisionAbort, Assessment{}
	}
	if s.state.MaxIterations > 0 && s.state.Iteration > s.state.MaxIterations {
		s.state.Active = false
		return DecisionAbort, Assessment{}
	}

	s.breaker.Observe(sig)
	if s.breaker.State() == BreakerOpen {
		s.state.Active = false
		s.state.CircuitBreakerTripped = true
		s.state.CircuitBreakerReason = s.breaker.Reason()
		return DecisionAbort, Assessment{}
	}

	assessment := ScanOutput(output, s.weights, goals)
	if s.canExit(assessment) {
		s.state.Active = false
		return DecisionExit, assessment
	}
	return DecisionContinue, assessment
}

// canExit applies the spec's dual-condition gate: confidence must clear
// MinConfidence, and if RequireDualCondition is set, both a subjective
// signal AND at least two objective signals must be present; if goals are
// configured, every goal must pass.
func (s *Supervisor) canExit(a Assessment) bool {
	if a.Confidence < s.state.MinConfidence {
		return false
	}
	if s.state.RequireDualCondition {
		if !a.SubjectivePresent || a.ObjectiveCount < 2 {
			return false
		}
	}
	if len(a.Goals) > 0 && !a.AllGoalsPass {
		return false
	}
	return true
}
