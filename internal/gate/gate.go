// Package gate provides a bounded concurrency limiter with a FIFO wait
// queue. It exists for the speech-synthesis path, where the upstream provider
// enforces a hard cap on simultaneous requests, but carries no provider
// specifics and is injected wherever an outbound call budget applies.
package gate

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueFull is returned when the wait queue is at capacity.
var ErrQueueFull = errors.New("gate: wait queue full")

// Gate admits at most Limit concurrent holders; further callers wait in FIFO
// order up to QueueCap deep.
type Gate struct {
	mu       sync.Mutex
	limit    int
	queueCap int
	inFlight int
	waiters  []chan struct{}
}

func New(limit, queueCap int) *Gate {
	if limit <= 0 {
		limit = 1
	}
	if queueCap < 0 {
		queueCap = 0
	}
	return &Gate{limit: limit, queueCap: queueCap}
}

// Acquire blocks until a slot is free, the queue rejects the caller, or ctx
// is done. A nil return must be paired with exactly one Release.
func (g *Gate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	if g.inFlight < g.limit {
		g.inFlight++
		g.mu.Unlock()
		return nil
	}
	if len(g.waiters) >= g.queueCap {
		g.mu.Unlock()
		return ErrQueueFull
	}
	ch := make(chan struct{})
	g.waiters = append(g.waiters, ch)
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		for i, w := range g.waiters {
			if w == ch {
				g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
				g.mu.Unlock()
				return ctx.Err()
			}
		}
		g.mu.Unlock()
		// the slot was handed over between ctx.Done and the lock; give it back
		g.Release()
		return ctx.Err()
	}
}

// Release frees a slot, handing it to the oldest waiter if any.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.waiters) > 0 {
		ch := g.waiters[0]
		g.waiters = g.waiters[1:]
		close(ch)
		return
	}
	if g.inFlight > 0 {
		g.inFlight--
	}
}

// InFlight returns the number of currently admitted holders.
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Waiting returns the current wait-queue depth.
func (g *Gate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waiters)
}
