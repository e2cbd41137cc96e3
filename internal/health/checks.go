package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/storymix/internal/resilience"
)

// ErrNotConfigured is reported by [Configured] for a missing dependency.
var ErrNotConfigured = errors.New("not configured")

// Configured returns a checker that fails while ok is false.
func Configured(name string, ok bool) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if !ok {
				return ErrNotConfigured
			}
			return nil
		},
	}
}

// Breaker returns a checker that fails while cb is open. A half-open breaker
// is reported ready so that probe traffic can reach the service.
func Breaker(name string, cb *resilience.CircuitBreaker) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if s := cb.State(); s == resilience.StateOpen {
				return fmt.Errorf("circuit %s is %s", cb.Name(), s)
			}
			return nil
		},
	}
}
