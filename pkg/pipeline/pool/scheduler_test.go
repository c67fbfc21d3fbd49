package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/open-telemetry/otap-go/pkg/pipeline"
)

// countingTask reports done after exactly n steps.
type countingTask struct {
	remaining int32
	steps     *int32
}

func (t *countingTask) Step(ctx context.Context) (bool, error) {
	atomic.AddInt32(t.steps, 1)
	if atomic.AddInt32(&t.remaining, -1) <= 0 {
		return true, nil
	}
	return false, nil
}

func TestSchedulerRunsTaskUntilDone(t *testing.T) {
	s := New(nil)
	var steps int32
	s.Schedule(context.Background(), "t1", &countingTask{remaining: 5, steps: &steps})

	done := make(chan struct{})
	go func() { s.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not converge")
	}
	require.Equal(t, int32(5), atomic.LoadInt32(&steps))
}

func TestSchedulerStopsOnContextCancelWhenTaskNeverFinishes(t *testing.T) {
	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())

	var steps int32
	s.Schedule(ctx, "never-done", &countingTask{remaining: 1 << 30, steps: &steps})

	cancel()

	done := make(chan struct{})
	go func() { s.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}
}

func TestSchedulerRunsMultipleTasksConcurrently(t *testing.T) {
	s := New(nil)
	var steps int32
	const n = 20
	for i := 0; i < n; i++ {
		s.Schedule(context.Background(), "t", &countingTask{remaining: 3, steps: &steps})
	}

	done := make(chan struct{})
	go func() { s.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not converge")
	}
	require.Equal(t, int32(3*n), atomic.LoadInt32(&steps))
}

var _ pipeline.Task = (*countingTask)(nil)
