// Package resilience keeps storymix responsive while one of its external
// services (text analysis or speech synthesis) is down.
//
// [CircuitBreaker] counts consecutive failures of one service. Once the
// threshold is reached it opens and rejects calls with [ErrCircuitOpen] so
// queued generation tasks fail fast instead of each waiting out its own
// timeout. After a cooldown a few probe calls decide whether it closes again.
// Nothing here retries: every error goes back to the caller unchanged.
//
// [TTSGuard] and [LLMGuard] put a breaker in front of a provider and satisfy
// the provider interface themselves, so the rest of storymix never sees the
// breaker. All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned instead of calling a service whose breaker is
// open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the mode a [CircuitBreaker] is in.
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota
	// StateOpen rejects every call until the cooldown has passed.
	StateOpen
	// StateHalfOpen admits a bounded number of probe calls.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero values take defaults.
type CircuitBreakerConfig struct {
	// Name identifies the guarded service in logs and metrics, e.g.
	// "tts/openai".
	Name string

	// MaxFailures consecutive failures open the breaker. Default 5.
	MaxFailures int

	// ResetTimeout is the cooldown before probing. Default 30s.
	ResetTimeout time.Duration

	// HalfOpenMax probes must succeed to close the breaker. Default 3.
	HalfOpenMax int

	// OnStateChange observes every transition. It runs under the breaker's
	// lock and must not call back into it.
	OnStateChange func(name string, to State)

	// Logger receives one line per transition. Default slog.Default().
	Logger *slog.Logger
}

// CircuitBreaker is a closed/open/half-open breaker for one service.
type CircuitBreaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	probeLimit  int
	notify      func(string, State)
	log         *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	state    State
	failures int       // consecutive, closed state only
	openedAt time.Time // last failure that kept or made the breaker open
	admitted int       // probes let through in this half-open round
	passed   int       // probes that succeeded in this round
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.ResetTimeout,
		probeLimit:  cfg.HalfOpenMax,
		notify:      cfg.OnStateChange,
		log:         cfg.Logger,
		now:         time.Now,
	}
	if cb.maxFailures <= 0 {
		cb.maxFailures = 5
	}
	if cb.cooldown <= 0 {
		cb.cooldown = 30 * time.Second
	}
	if cb.probeLimit <= 0 {
		cb.probeLimit = 3
	}
	if cb.log == nil {
		cb.log = slog.Default()
	}
	return cb
}

// Call runs fn through cb and returns its value, or the zero value on any
// error including [ErrCircuitOpen].
func Call[R any](cb *CircuitBreaker, fn func() (R, error)) (R, error) {
	var out R
	err := cb.Execute(func() error {
		var err error
		out, err = fn()
		return err
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return out, nil
}

// Execute calls fn unless the breaker rejects it with [ErrCircuitOpen], and
// returns fn's error. A [context.Canceled] result is neither a success nor a
// failure: the caller gave up, the service did not.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, err)
	return err
}

// admit decides whether a call may proceed and reports whether it is a
// half-open probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return false, ErrCircuitOpen
		}
		cb.admitted, cb.passed = 0, 0
		cb.transition(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.admitted >= cb.probeLimit {
			return false, ErrCircuitOpen
		}
		cb.admitted++
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) settle(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case errors.Is(err, context.Canceled):
		if probe && cb.state == StateHalfOpen {
			cb.admitted--
		}

	case err != nil:
		cb.openedAt = cb.now()
		if probe {
			cb.transition(StateOpen)
			return
		}
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.maxFailures {
			cb.transition(StateOpen)
		}

	case probe:
		if cb.state != StateHalfOpen {
			return
		}
		cb.passed++
		if cb.passed >= cb.probeLimit {
			cb.failures = 0
			cb.transition(StateClosed)
		}

	default:
		cb.failures = 0
	}
}

// transition moves to s, then logs and notifies. cb.mu must be held.
func (cb *CircuitBreaker) transition(s State) {
	if cb.state == s {
		return
	}
	from := cb.state
	cb.state = s

	level := slog.LevelInfo
	if s == StateOpen {
		level = slog.LevelWarn
	}
	cb.log.Log(context.Background(), level, "circuit breaker state changed",
		"breaker", cb.name,
		"from", from.String(),
		"to", s.String(),
		"consecutive_failures", cb.failures,
	)
	if cb.notify != nil {
		cb.notify(cb.name, s)
	}
}

// State returns the current state. An open breaker whose cooldown has passed
// reports [StateHalfOpen]; the transition itself happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cooldown {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and forgets all failures.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures, cb.admitted, cb.passed = 0, 0, 0
	cb.transition(StateClosed)
}

// Name returns the guarded service's name.
func (cb *CircuitBreaker) Name() string { return cb.name }
