// Package scheduler runs generation work in two independently bounded pools,
// one for speech synthesis and one for sound effects.
//
// Each [Pool] admits queued tasks in FIFO order as slots free up. A task's
// place in the queue is fixed when it is reserved with [Pool.Reserve], so
// work handed to goroutines keeps the order in which it was reserved. There is
// no priority and no cancellation after admission: a task that has acquired a
// slot runs to completion even if the caller's context is cancelled.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Default pool limits.
const (
	DefaultSpeechConcurrency  = 4
	DefaultEffectsConcurrency = 2
)

// Pool is a FIFO, semaphore-gated task executor.
type Pool struct {
	name   string
	limit  int
	sem    *semaphore.Weighted
	active atomic.Int64
	queued atomic.Int64

	mu   sync.Mutex
	tail chan struct{} // closed once the last reserved ticket left the queue
}

// NewPool returns a pool admitting at most limit concurrent tasks. A limit
// below one is raised to one.
func NewPool(name string, limit int) *Pool {
	limit = max(limit, 1)
	tail := make(chan struct{})
	close(tail)
	return &Pool{name: name, limit: limit, sem: semaphore.NewWeighted(int64(limit)), tail: tail}
}

// Ticket is a reserved place in a pool's queue. Tickets reach the semaphore
// one at a time in reservation order. Every ticket must be used by exactly one
// call to [Ticket.Do]; an unused ticket stalls the tickets behind it.
type Ticket struct {
	pool  *Pool
	after <-chan struct{}
	turn  chan struct{}
}

// Reserve takes the next place in the queue without blocking.
func (p *Pool) Reserve() *Ticket {
	turn := make(chan struct{})
	p.mu.Lock()
	t := &Ticket{pool: p, after: p.tail, turn: turn}
	p.tail = turn
	p.mu.Unlock()
	p.queued.Add(1)
	return t
}

// Do waits for the ticket's turn and a free slot, then runs fn in the calling
// goroutine. ctx only bounds the wait; fn receives a context that keeps ctx's
// values but is never cancelled.
func (t *Ticket) Do(ctx context.Context, fn func(context.Context) error) error {
	p := t.pool
	select {
	case <-t.after:
	case <-ctx.Done():
		go func() {
			<-t.after
			close(t.turn)
		}()
		p.queued.Add(-1)
		return fmt.Errorf("scheduler: %s pool: %w", p.name, ctx.Err())
	}
	err := p.sem.Acquire(ctx, 1)
	close(t.turn)
	p.queued.Add(-1)
	if err != nil {
		return fmt.Errorf("scheduler: %s pool: %w", p.name, err)
	}
	p.active.Add(1)
	defer func() {
		p.active.Add(-1)
		p.sem.Release(1)
	}()
	return fn(context.WithoutCancel(ctx))
}

// Do reserves a ticket and uses it at once.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	return p.Reserve().Do(ctx, fn)
}

// Name returns the pool's name.
func (p *Pool) Name() string { return p.name }

// Limit returns the maximum number of concurrently running tasks.
func (p *Pool) Limit() int { return p.limit }

// Active returns the number of running tasks.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Queued returns the number of tasks waiting for a slot.
func (p *Pool) Queued() int { return int(p.queued.Load()) }

// Run is [Pool.Do] for functions that return a value.
func Run[V any](ctx context.Context, p *Pool, fn func(context.Context) (V, error)) (V, error) {
	return RunTicket(ctx, p.Reserve(), fn)
}

// RunTicket is [Ticket.Do] for functions that return a value.
func RunTicket[V any](ctx context.Context, t *Ticket, fn func(context.Context) (V, error)) (V, error) {
	var v V
	err := t.Do(ctx, func(ctx context.Context) error {
		var err error
		v, err = fn(ctx)
		return err
	})
	return v, err
}

// Scheduler groups the speech and effects pools.
type Scheduler struct {
	Speech  *Pool
	Effects *Pool
}

// New returns a scheduler with the given pool limits. Non-positive limits fall
// back to the defaults.
func New(speechConcurrency, effectsConcurrency int) *Scheduler {
	if speechConcurrency <= 0 {
		speechConcurrency = DefaultSpeechConcurrency
	}
	if effectsConcurrency <= 0 {
		effectsConcurrency = DefaultEffectsConcurrency
	}
	return &Scheduler{
		Speech:  NewPool("speech", speechConcurrency),
		Effects: NewPool("effects", effectsConcurrency),
	}
}
