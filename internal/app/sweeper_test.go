package app

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewStaleRunSweeperDefaults(t *testing.T) {
	if s := NewStaleRunSweeper(nil, time.Minute, time.Minute); s != nil {
		t.Fatalf("expected nil sweeper without a repository")
	}
	s := NewStaleRunSweeper(&fakeExecRepo{}, 0, 0)
	if s == nil {
		t.Fatalf("expected non-nil sweeper")
	}
	if s.maxRunAge != 20*time.Minute {
		t.Fatalf("maxRunAge = %v", s.maxRunAge)
	}
	if s.interval != 10*time.Minute {
		t.Fatalf("interval = %v", s.interval)
	}
}

func TestSweepOnceFailsStaleRows(t *testing.T) {
	execs := &fakeExecRepo{sweepN: 3}
	s := NewStaleRunSweeper(execs, 20*time.Minute, time.Hour)

	s.sweepOnce(context.Background())

	calls, cutoff, marker := execs.sweepState()
	if calls != 1 {
		t.Fatalf("sweep calls = %d", calls)
	}
	if marker != staleRunMessage {
		t.Fatalf("marker = %q", marker)
	}
	want := time.Now().UTC().Add(-20 * time.Minute)
	if d := cutoff.Sub(want); d < -2*time.Second || d > 2*time.Second {
		t.Fatalf("cutoff = %v, want about %v", cutoff, want)
	}
}

func TestSweepOnceSurvivesRepoError(t *testing.T) {
	execs := &fakeExecRepo{sweepErr: errors.New("connection reset")}
	s := NewStaleRunSweeper(execs, time.Minute, time.Hour)
	s.sweepOnce(context.Background())

	calls, _, _ := execs.sweepState()
	if calls != 1 {
		t.Fatalf("sweep calls = %d", calls)
	}
}

func TestSweeperRunSweepsImmediatelyAndStopsOnCancel(t *testing.T) {
	execs := &fakeExecRepo{}
	s := NewStaleRunSweeper(execs, time.Minute, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if calls, _, _ := execs.sweepState(); calls >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no initial sweep observed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("sweeper did not stop on cancel")
	}
}
