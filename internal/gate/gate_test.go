package gate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireUpToLimit(t *testing.T) {
	g := New(2, 4)
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx))
	require.NoError(t, g.Acquire(ctx))
	assert.Equal(t, 2, g.InFlight())
}

func TestQueueFull(t *testing.T) {
	g := New(1, 0)
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx))
	err := g.Acquire(ctx)
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestReleaseHandsSlotToOldestWaiter(t *testing.T) {
	g := New(1, 2)
	ctx := context.Background()
	require.NoError(t, g.Acquire(ctx))

	order := make(chan int, 2)
	started := make(chan struct{})
	go func() {
		close(started)
		_ = g.Acquire(ctx)
		order <- 1
	}()
	<-started
	// make sure the first waiter is queued before the second
	waitFor(t, func() bool { return g.Waiting() == 1 })

	go func() {
		_ = g.Acquire(ctx)
		order <- 2
	}()
	waitFor(t, func() bool { return g.Waiting() == 2 })

	g.Release()
	assert.Equal(t, 1, <-order)
	g.Release()
	assert.Equal(t, 2, <-order)
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	g := New(1, 2)
	require.NoError(t, g.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Acquire(ctx) }()
	waitFor(t, func() bool { return g.Waiting() == 1 })

	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, g.Waiting())

	// slot still usable after the cancelled waiter left
	g.Release()
	require.NoError(t, g.Acquire(context.Background()))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
