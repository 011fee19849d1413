package reactor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedWorkerPool_SubmitRunsTask(t *testing.T) {
	pool := NewFixedWorkerPool(2, 4)
	defer pool.Close()

	done := make(chan struct{})
	ok := pool.Submit(func() { close(done) })
	require.True(t, ok)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("submitted task never ran")
	}
}

func TestFixedWorkerPool_RejectsWhenSaturated(t *testing.T) {
	pool := NewFixedWorkerPool(1, 0)
	release := make(chan struct{})
	defer func() {
		// Unblock the occupying task so Close doesn't hang.
		close(release)
		pool.Close()
	}()

	started := make(chan struct{})
	require.True(t, pool.Submit(func() {
		close(started)
		<-release
	}))
	<-started

	// The single worker is busy and the queue has zero depth, so the next
	// submit must be rejected rather than blocking the caller.
	assert.False(t, pool.Submit(func() {}))
}

func TestDispatcher_RecoversPanicFromCallback(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	pool := NewFixedWorkerPool(1, 1)
	defer pool.Close()

	d := newDispatcher(pool, nil)
	ok := d.submit(func() {
		defer wg.Done()
		panic("boom")
	})
	require.True(t, ok)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("panicking callback was never observed to run to completion")
	}

	// The pool itself must still be usable after a callback panics.
	ran := make(chan struct{})
	require.True(t, d.submit(func() { close(ran) }))
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("dispatcher stopped accepting work after a recovered panic")
	}
}

func TestPanicString(t *testing.T) {
	assert.Equal(t, "boom", panicString("boom"))
	assert.Equal(t, ErrHandleClosed.Error(), panicString(ErrHandleClosed))
	assert.Equal(t, "non-error panic value", panicString(42))
}
