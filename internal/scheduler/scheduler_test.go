package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hyvote/hyquery/internal/scheduler"
)

func TestStartFiresImmediatelyThenOnInterval(t *testing.T) {
	var calls atomic.Int32
	p := scheduler.Start(context.Background(), 10*time.Millisecond, func(context.Context) {
		calls.Add(1)
	})
	defer p.Stop()

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, time.Millisecond, "first call should happen without waiting a full tick")
	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
}

func TestStopPreventsFurtherCalls(t *testing.T) {
	var calls atomic.Int32
	p := scheduler.Start(context.Background(), 10*time.Millisecond, func(context.Context) {
		calls.Add(1)
	})

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, time.Millisecond)
	p.Stop()

	after := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, calls.Load(), "no more calls should fire after Stop returns")
}

func TestStopIsIdempotent(t *testing.T) {
	p := scheduler.Start(context.Background(), 10*time.Millisecond, func(context.Context) {})
	p.Stop()
	assert.NotPanics(t, func() { p.Stop() })
}

func TestParentContextCancelStopsLoop(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	p := scheduler.Start(ctx, 10*time.Millisecond, func(context.Context) {
		calls.Add(1)
	})

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, time.Millisecond)
	cancel()
	time.Sleep(30 * time.Millisecond)
	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, calls.Load())

	p.Stop()
}
