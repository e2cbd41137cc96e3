package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/storymix/internal/scheduler"
)

// waitFor polls cond until it holds or the test deadline of one second passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 1s")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPool_RespectsLimit(t *testing.T) {
	t.Parallel()
	p := scheduler.NewPool("speech", 3)

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Do(context.Background(), func(context.Context) error {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	if got := peak.Load(); got > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", got)
	}
}

func TestPool_FIFOAdmission(t *testing.T) {
	t.Parallel()
	p := scheduler.NewPool("effects", 1)

	gate := make(chan struct{})
	go func() {
		_ = p.Do(context.Background(), func(context.Context) error {
			<-gate
			return nil
		})
	}()
	waitFor(t, func() bool { return p.Active() == 1 })

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Do(context.Background(), func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		waitFor(t, func() bool { return p.Queued() == i+1 })
		// Let the goroutine park inside Acquire before queueing the next one.
		time.Sleep(5 * time.Millisecond)
	}
	close(gate)
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("admission order = %v, want 0..4", order)
		}
	}
}

func TestPool_NoCancellationAfterAdmission(t *testing.T) {
	t.Parallel()
	p := scheduler.NewPool("speech", 1)
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(taskCtx context.Context) error {
			close(started)
			time.Sleep(10 * time.Millisecond)
			return taskCtx.Err()
		})
	}()
	<-started
	cancel()
	if err := <-done; err != nil {
		t.Errorf("admitted task saw %v, want nil", err)
	}
}

func TestPool_CancelWhileQueued(t *testing.T) {
	t.Parallel()
	p := scheduler.NewPool("speech", 1)
	gate := make(chan struct{})
	defer close(gate)
	go func() {
		_ = p.Do(context.Background(), func(context.Context) error {
			<-gate
			return nil
		})
	}()
	waitFor(t, func() bool { return p.Active() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	err := p.Do(ctx, func(context.Context) error {
		t.Error("task must not run")
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
	if p.Queued() != 0 {
		t.Errorf("Queued = %d, want 0", p.Queued())
	}
}

func TestScheduler_PoolsIndependent(t *testing.T) {
	t.Parallel()
	s := scheduler.New(1, 1)

	gate := make(chan struct{})
	defer close(gate)
	go func() {
		_ = s.Speech.Do(context.Background(), func(context.Context) error {
			<-gate
			return nil
		})
	}()
	waitFor(t, func() bool { return s.Speech.Active() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := scheduler.Run(ctx, s.Effects, func(context.Context) (string, error) { return "thunder", nil })
	if err != nil || v != "thunder" {
		t.Errorf("Run = (%q, %v), want (thunder, nil)", v, err)
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	s := scheduler.New(0, -1)
	if s.Speech.Limit() != scheduler.DefaultSpeechConcurrency {
		t.Errorf("speech limit = %d", s.Speech.Limit())
	}
	if s.Effects.Limit() != scheduler.DefaultEffectsConcurrency {
		t.Errorf("effects limit = %d", s.Effects.Limit())
	}
}

func TestTicket_ReservationOrder(t *testing.T) {
	t.Parallel()
	p := scheduler.NewPool("speech", 1)
	tickets := make([]*scheduler.Ticket, 5)
	for i := range tickets {
		tickets[i] = p.Reserve()
	}
	if p.Queued() != 5 {
		t.Errorf("Queued = %d, want 5", p.Queued())
	}

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := len(tickets) - 1; i >= 0; i-- {
		wg.Go(func() {
			_ = tickets[i].Do(context.Background(), func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		})
		time.Sleep(time.Millisecond)
	}
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("admission order = %v, want 0..4", order)
		}
	}
}

func TestTicket_CancelledTicketPassesTurn(t *testing.T) {
	t.Parallel()
	p := scheduler.NewPool("effects", 1)
	first, second, third := p.Reserve(), p.Reserve(), p.Reserve()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := second.Do(ctx, func(context.Context) error {
		t.Error("cancelled ticket must not run")
		return nil
	}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want Canceled", err)
	}

	ran := make(chan string, 2)
	go func() {
		_ = third.Do(context.Background(), func(context.Context) error { ran <- "third"; return nil })
	}()
	_ = first.Do(context.Background(), func(context.Context) error { ran <- "first"; return nil })

	if a, b := <-ran, <-ran; a != "first" || b != "third" {
		t.Errorf("ran %s then %s, want first then third", a, b)
	}
	if p.Queued() != 0 {
		t.Errorf("Queued = %d, want 0", p.Queued())
	}
}
