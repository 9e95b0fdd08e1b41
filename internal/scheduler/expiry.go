// Package scheduler fires a callback when a running countdown reaches zero,
// so the stored state is frozen even when nobody is looking at the timer.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// FireFunc is invoked once per deadline, on its own goroutine.
type FireFunc func(ctx context.Context, timerID string)

type Expiry struct {
	clock   clockwork.Clock
	fire    FireFunc
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]clockwork.Timer
	stopped bool
}

func NewExpiry(clock clockwork.Clock, fire FireFunc) *Expiry {
	return &Expiry{
		clock:   clock,
		fire:    fire,
		timeout: 10 * time.Second,
		pending: make(map[string]clockwork.Timer),
	}
}

// Schedule arms a one-shot timer for timerID at deadline, replacing any
// earlier one. Deadlines in the past fire right away.
func (e *Expiry) Schedule(timerID string, deadline time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}

	if existing, ok := e.pending[timerID]; ok {
		existing.Stop()
		delete(e.pending, timerID)
	}

	delay := deadline.Sub(e.clock.Now())
	if delay < 0 {
		delay = 0
	}

	var timer clockwork.Timer
	timer = e.clock.AfterFunc(delay, func() {
		e.mu.Lock()
		if e.pending[timerID] != timer {
			e.mu.Unlock()
			return
		}
		delete(e.pending, timerID)
		e.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		log.Debug().Str("timer_id", timerID).Msg("countdown deadline reached")
		e.fire(ctx, timerID)
	})
	e.pending[timerID] = timer
}

func (e *Expiry) Cancel(timerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if timer, ok := e.pending[timerID]; ok {
		timer.Stop()
		delete(e.pending, timerID)
	}
}

// Pending reports how many deadlines are armed.
func (e *Expiry) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Stop cancels everything and ignores later Schedule calls.
func (e *Expiry) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	for id, timer := range e.pending {
		timer.Stop()
		delete(e.pending, id)
	}
}
