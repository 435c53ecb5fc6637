package ralph

import (
	"strconv"
	"sync"
)

// BreakerState mirrors internal/infra.CircuitBreaker's three-state shape
// (Closed/Open/HalfOpen), adapted here to a single one-way trip: once
// Ralph's breaker opens, the supervised loop is done — there is no
// half-open retry, since the failure signal is "this iteration made no
// progress," not "this downstream call timed out."
type BreakerState string

const (
	BreakerClosed BreakerState = "closed"
	BreakerOpen   BreakerState = "open"
)

// BreakerConfig mirrors infra.CircuitBreakerConfig's shape: named
// thresholds plus an OnStateChange hook, adapted to Ralph's three trip
// conditions instead of a single failure counter.
type BreakerConfig struct {
	Name string

	// ZeroChangeLimit trips the breaker after this many consecutive
	// iterations that changed no files.
	ZeroChangeLimit int
	// RepeatedErrorLimit trips the breaker after this many consecutive
	// iterations reporting the same error signature.
	RepeatedErrorLimit int
	// OutputDeclinePct trips the breaker when an iteration's output size
	// falls below this fraction of the rolling baseline (e.g. 0.3 means a
	// 70% decline).
	OutputDeclinePct float64

	OnStateChange func(from, to BreakerState, reason string)
}

// IterationSignal is what one Agent Loop iteration reports to the breaker.
type IterationSignal struct {
	FilesChanged  int
	ErrorSignature string // empty if the iteration had no error
	OutputSize    int
}

// Breaker trips a Ralph-supervised loop when it stops making forward
// progress, grounded on internal/infra.CircuitBreaker's state-machine
// shape but evaluating Ralph's specific stagnation signals rather than a
// generic failure counter.
type Breaker struct {
	cfg BreakerConfig

	mu                sync.Mutex
	state             BreakerState
	zeroChangeStreak  int
	lastErrorSig      string
	errorStreak       int
	outputBaseline    float64
	sampleCount       int
	reason            string
}

// NewBreaker builds a Breaker from cfg, defaulting any unset threshold to
// the spec's values (3 zero-change iterations, 5 repeated errors, 70%
// output decline).
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.ZeroChangeLimit <= 0 {
		cfg.ZeroChangeLimit = 3
	}
	if cfg.RepeatedErrorLimit <= 0 {
		cfg.RepeatedErrorLimit = 5
	}
	if cfg.OutputDeclinePct <= 0 {
		cfg.OutputDeclinePct = 0.7
	}
	return &Breaker{cfg: cfg, state: BreakerClosed}
}

// State returns the breaker's current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reason returns the trip reason, if open.
func (b *Breaker) Reason() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reason
}

// Observe records one iteration's signal and trips the breaker if any of
// the three stagnation conditions now hold. Once open, Observe is a no-op:
// the breaker does not auto-reset.
func (b *Breaker) Observe(sig IterationSignal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen {
		return
	}

	if sig.FilesChanged == 0 {
		b.zeroChangeStreak++
	} else {
		b.zeroChangeStreak = 0
	}

	if sig.ErrorSignature != "" && sig.ErrorSignature == b.lastErrorSig {
		b.errorStreak++
	} else {
		b.errorStreak = 1
		b.lastErrorSig = sig.ErrorSignature
	}

	declined := false
	if b.sampleCount > 0 && b.outputBaseline > 0 {
		threshold := b.outputBaseline * (1 - b.cfg.OutputDeclinePct)
		if float64(sig.OutputSize) < threshold {
			declined = true
		}
	}
	b.sampleCount++
	if b.outputBaseline == 0 {
		b.outputBaseline = float64(sig.OutputSize)
	} else {
		b.outputBaseline = b.outputBaseline + (float64(sig.OutputSize)-b.outputBaseline)/float64(b.sampleCount)
	}

	switch {
	case b.zeroChangeStreak >= b.cfg.ZeroChangeLimit:
		b.trip("zero file changes across " + strconv.Itoa(b.zeroChangeStreak) + " consecutive iterations")
	case sig.ErrorSignature != "" && b.errorStreak >= b.cfg.RepeatedErrorLimit:
		b.trip("same error repeated " + strconv.Itoa(b.errorStreak) + " times: " + sig.ErrorSignature)
	case declined:
		b.trip("output size declined more than the configured threshold against the rolling baseline")
	}
}

func (b *Breaker) trip(reason string) {
	from := b.state
	b.state = BreakerOpen
	b.reason = reason
	if b.cfg.OnStateChange != nil {
		go b.cfg.OnStateChange(from, BreakerOpen, reason)
	}
}

// Reset returns the breaker to its initial closed state, clearing all
// streak bookkeeping.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.zeroChangeStreak = 0
	b.errorStreak = 0
	b.lastErrorSig = ""
	b.reason = ""
	b.outputBaseline = 0
	b.sampleCount = 0
}
