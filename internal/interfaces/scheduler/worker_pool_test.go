package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_ProcessesAllJobs(t *testing.T) {
	wp := NewWorkerPool(3, 0, 20)
	wp.Start()

	var n int32
	for i := 0; i < 10; i++ {
		require.NoError(t, wp.Submit(funcJob{fn: func(context.Context) error {
			atomic.AddInt32(&n, 1)
			return nil
		}}))
	}
	wp.Shutdown()

	assert.Equal(t, int32(10), atomic.LoadInt32(&n))
}

func TestWorkerPool_QueueFull(t *testing.T) {
	wp := NewWorkerPool(1, 0, 1)
	block := funcJob{fn: func(context.Context) error { return nil }}

	// Not started, so the single slot fills.
	require.NoError(t, wp.Submit(block))
	assert.ErrorIs(t, wp.Submit(block), ErrQueueFull)
	assert.Equal(t, 0, wp.SubmitBatch([]Job{block, block}))

	wp.Start()
	wp.Shutdown()
}

func TestWorkerPool_SubmitAfterShutdown(t *testing.T) {
	wp := NewWorkerPool(1, 0, 1)
	wp.Start()
	wp.Shutdown()
	wp.Shutdown() // idempotent

	err := wp.Submit(funcJob{fn: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestWorkerPool_JobTimeout(t *testing.T) {
	wp := NewWorkerPool(1, 0, 1)
	wp.SetJobTimeout(20 * time.Millisecond)
	wp.Start()

	errCh := make(chan error, 1)
	require.NoError(t, wp.Submit(funcJob{fn: func(ctx context.Context) error {
		<-ctx.Done()
		errCh <- ctx.Err()
		return ctx.Err()
	}}))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("job was not cancelled by its timeout")
	}
	wp.Shutdown()
}

func TestWorkerPool_ShutdownWithTimeoutCancelsRunningJobs(t *testing.T) {
	wp := NewWorkerPool(1, 0, 1)
	wp.Start()

	started := make(chan struct{})
	cancelled := make(chan struct{})
	require.NoError(t, wp.Submit(funcJob{fn: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}}))

	<-started
	wp.ShutdownWithTimeout(20 * time.Millisecond)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("running job was not cancelled")
	}
}
