package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestIntervalSchedulerFiresImmediatelyAndOnTicks(t *testing.T) {
	t.Parallel()

	s := NewIntervalScheduler(10 * time.Millisecond)
	var fired atomic.Int32
	reached := make(chan struct{})

	err := s.Start(context.Background(), func(time.Time) {
		if fired.Add(1) == 3 {
			close(reached)
		}
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-reached:
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler fired %d times", fired.Load())
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	after := fired.Load()
	time.Sleep(30 * time.Millisecond)
	if fired.Load() != after {
		t.Fatalf("job fired after Stop")
	}
}

func TestIntervalSchedulerStopsWithContext(t *testing.T) {
	t.Parallel()

	s := NewIntervalScheduler(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan time.Time, 1)

	if err := s.Start(ctx, func(tick time.Time) { first <- tick }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(ctx, func(time.Time) { t.Errorf("second Start must be ignored") }); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	select {
	case <-first:
	case <-time.After(2 * time.Second):
		t.Fatalf("initial run did not fire")
	}
	cancel()

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop after cancel: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
