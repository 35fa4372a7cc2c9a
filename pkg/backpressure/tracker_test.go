package backpressure

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestTracker() *Tracker {
	return NewTracker(zerolog.Nop())
}

func TestObserveAndPenalty(t *testing.T) {
	tr := newTestTracker()

	if got := tr.Penalty("a.example"); got != 0 {
		t.Errorf("Penalty(clean host) = %v, want 0", got)
	}

	tr.Observe("a.example", 500*time.Millisecond)
	got := tr.Penalty("a.example")
	if got <= 0 || got > 500*time.Millisecond {
		t.Errorf("Penalty() = %v, want in (0, 500ms]", got)
	}

	if got := tr.Penalty("b.example"); got != 0 {
		t.Errorf("Penalty(other host) = %v, want 0, penalties are per host", got)
	}
}

func TestObserveLongerPenaltyWins(t *testing.T) {
	tr := newTestTracker()

	tr.Observe("a.example", 1*time.Second)
	tr.Observe("a.example", 10*time.Millisecond)

	if got := tr.Penalty("a.example"); got < 500*time.Millisecond {
		t.Errorf("Penalty() = %v, shorter observation must not shrink the window", got)
	}
}

func TestObserveIgnoresNonPositive(t *testing.T) {
	tr := newTestTracker()

	tr.Observe("a.example", 0)
	tr.Observe("a.example", -time.Second)

	if got := tr.Penalty("a.example"); got != 0 {
		t.Errorf("Penalty() = %v, want 0", got)
	}
}

func TestPenaltyExpires(t *testing.T) {
	tr := newTestTracker()

	tr.Observe("a.example", 20*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	if got := tr.Penalty("a.example"); got != 0 {
		t.Errorf("Penalty() after expiry = %v, want 0", got)
	}
}

func TestWaitBlocksForWindow(t *testing.T) {
	tr := newTestTracker()
	tr.Observe("a.example", 50*time.Millisecond)

	start := time.Now()
	if err := tr.Wait(context.Background(), "a.example"); err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Wait() returned after %v, want ~50ms", elapsed)
	}
}

func TestWaitHonorsCancellation(t *testing.T) {
	tr := newTestTracker()
	tr.Observe("a.example", 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := tr.Wait(ctx, "a.example")
	if err == nil {
		t.Fatal("Wait() should return the context error on cancellation")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Wait() blocked %v past cancellation", elapsed)
	}
}

func TestWaitNoPenalty(t *testing.T) {
	tr := newTestTracker()

	start := time.Now()
	if err := tr.Wait(context.Background(), "a.example"); err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
		t.Errorf("Wait() on clean host took %v, want immediate return", elapsed)
	}
}
