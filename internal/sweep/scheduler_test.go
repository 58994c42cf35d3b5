package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextFire(t *testing.T) {
	loc := time.UTC

	tests := []struct {
		name string
		now  time.Time
		hour int
		want time.Time
	}{
		{
			name: "before the hour fires today",
			now:  time.Date(2024, 5, 1, 8, 30, 0, 0, loc),
			hour: 10,
			want: time.Date(2024, 5, 1, 10, 0, 0, 0, loc),
		},
		{
			name: "exactly at the hour fires tomorrow",
			now:  time.Date(2024, 5, 1, 10, 0, 0, 0, loc),
			hour: 10,
			want: time.Date(2024, 5, 2, 10, 0, 0, 0, loc),
		},
		{
			name: "after the hour fires tomorrow",
			now:  time.Date(2024, 5, 1, 17, 45, 0, 0, loc),
			hour: 10,
			want: time.Date(2024, 5, 2, 10, 0, 0, 0, loc),
		},
		{
			name: "rolls over a month boundary",
			now:  time.Date(2024, 5, 31, 23, 0, 0, 0, loc),
			hour: 10,
			want: time.Date(2024, 6, 1, 10, 0, 0, 0, loc),
		},
		{
			name: "midnight schedule",
			now:  time.Date(2024, 5, 1, 0, 0, 1, 0, loc),
			hour: 0,
			want: time.Date(2024, 5, 2, 0, 0, 0, 0, loc),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextFire(tt.now, tt.hour))
		})
	}
}

type countingRunner struct {
	calls  atomic.Int32
	err    error
	onCall func(n int32)
}

func (r *countingRunner) Run(context.Context) error {
	n := r.calls.Add(1)
	if r.onCall != nil {
		r.onCall(n)
	}
	return r.err
}

func TestSchedulerFiresAndSwallowsSweepErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &countingRunner{
		err: errors.New("sweep blew up"),
		onCall: func(n int32) {
			if n == 2 {
				cancel()
			}
		},
	}

	s := NewScheduler(runner, 10)
	// Pin the clock just before the fire hour so each loop iteration
	// waits only a few milliseconds.
	s.now = func() time.Time {
		return time.Date(2024, 5, 1, 9, 59, 59, int(time.Second-5*time.Millisecond), time.UTC)
	}

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}

	// A failed sweep did not stop the loop from firing again
	require.GreaterOrEqual(t, runner.calls.Load(), int32(2))
}

func TestSchedulerStopsOnCancelWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	runner := &countingRunner{}
	s := NewScheduler(runner, 10)
	// Far from the fire hour: the scheduler sits in its timer wait
	s.now = func() time.Time {
		return time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)
	}

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}

	assert.Equal(t, int32(0), runner.calls.Load())
}
