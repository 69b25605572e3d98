package resilience

import (
	"testing"
	"time"

	"github.com/hivecore/hivecore/internal/hiveerr"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New(3, time.Minute)
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	if b.State() != Open {
		t.Fatalf("expected Open after reaching threshold, got %s", b.State())
	}
	allowed, err := b.Allow()
	if allowed || !hiveerr.Is(err, hiveerr.CircuitOpen) {
		t.Fatalf("expected Allow to reject with CircuitOpen while Open, got allowed=%v err=%v", allowed, err)
	}
}

func TestBreakerHalfOpenAfterTimeout(t *testing.T) {
	b := New(1, 10*time.Millisecond)
	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("expected Open immediately after one failure at threshold 1")
	}
	time.Sleep(20 * time.Millisecond)
	if b.State() != HalfOpen {
		t.Fatalf("expected HalfOpen after recovery timeout elapsed, got %s", b.State())
	}
}

func TestBreakerOnlyOneHalfOpenProbe(t *testing.T) {
	b := New(1, 10*time.Millisecond)
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	allowed1, err1 := b.Allow()
	if !allowed1 || err1 != nil {
		t.Fatalf("expected first HalfOpen probe to be allowed, got allowed=%v err=%v", allowed1, err1)
	}
	allowed2, err2 := b.Allow()
	if allowed2 || !hiveerr.Is(err2, hiveerr.CircuitOpen) {
		t.Fatalf("expected second concurrent probe to be rejected, got allowed=%v err=%v", allowed2, err2)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := New(1, 10*time.Millisecond)
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	b.State() // trigger transition to HalfOpen
	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("expected a failed HalfOpen probe to reopen the circuit, got %s", b.State())
	}
}

func TestBreakerHalfOpenSuccessCloses(t *testing.T) {
	b := New(1, 10*time.Millisecond)
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	b.State()
	b.RecordSuccess()
	if b.State() != Closed {
		t.Fatalf("expected a successful HalfOpen probe to close the circuit, got %s", b.State())
	}
}

func TestBreakerDoRunsWhenClosed(t *testing.T) {
	b := New(3, time.Minute)
	ran := false
	err := b.Do(func() error {
		ran = true
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("expected Do to run fn while Closed, ran=%v err=%v", ran, err)
	}
}

func TestBreakerDoSkipsWhenOpen(t *testing.T) {
	b := New(1, time.Minute)
	b.RecordFailure()
	ran := false
	err := b.Do(func() error {
		ran = true
		return nil
	})
	if ran {
		t.Fatalf("expected Do to skip fn while Open")
	}
	if !hiveerr.Is(err, hiveerr.CircuitOpen) {
		t.Fatalf("expected CircuitOpen error, got %v", err)
	}
}
