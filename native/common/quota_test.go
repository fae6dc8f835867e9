package common

import (
	"errors"
	"math"
	"testing"
)

func TestCheckQuotaLimit(t *testing.T) {
	q := Quota{MaxOps: 10, WindowBlocks: 100}
	prev := Usage{Window: 1}

	next, err := CheckQuota(q, 1, prev, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Ops != 10 {
		t.Fatalf("unexpected op count: %d", next.Ops)
	}

	denied, err := CheckQuota(q, 1, next, 1)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if denied != next {
		t.Fatalf("expected counters to remain unchanged on denial")
	}

	rollover, err := CheckQuota(q, 2, next, 1)
	if err != nil {
		t.Fatalf("unexpected error after window rollover: %v", err)
	}
	if rollover.Window != 2 || rollover.Ops != 1 {
		t.Fatalf("unexpected state after rollover: %+v", rollover)
	}
}

func TestCheckQuotaOverflow(t *testing.T) {
	prev := Usage{Ops: math.MaxUint32, Window: 3}
	if _, err := CheckQuota(Quota{}, 3, prev, 1); !errors.Is(err, ErrQuotaCounterOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestLimiterPerCaller(t *testing.T) {
	l := NewLimiter(Quota{MaxOps: 2, WindowBlocks: 10})
	a := [20]byte{1}
	b := [20]byte{2}
	for i := 0; i < 2; i++ {
		if err := l.Allow(a, 5); err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
	}
	if err := l.Allow(a, 9); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}
	if err := l.Allow(b, 9); err != nil {
		t.Fatalf("callers must not share counters: %v", err)
	}
	if err := l.Allow(a, 10); err != nil {
		t.Fatalf("next window should reset: %v", err)
	}

	var unlimited *Limiter
	if err := unlimited.Allow(a, 0); err != nil {
		t.Fatalf("nil limiter must allow: %v", err)
	}
}

func TestLimiterRelease(t *testing.T) {
	l := NewLimiter(Quota{MaxOps: 1, WindowBlocks: 10})
	a := [20]byte{1}
	if err := l.Allow(a, 3); err != nil {
		t.Fatalf("allow: %v", err)
	}
	l.Release(a, 3)
	if err := l.Allow(a, 4); err != nil {
		t.Fatalf("released charge should be reusable: %v", err)
	}
	l.Release(a, 12)
	if err := l.Allow(a, 5); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("release in another window must not refund, got %v", err)
	}
	l.Release([20]byte{9}, 5)

	var unlimited *Limiter
	unlimited.Release(a, 0)
}

func TestGuard(t *testing.T) {
	if err := Guard(nil, "escrow"); err != nil {
		t.Fatalf("nil view must allow: %v", err)
	}
	paused := StaticPauses{"escrow": true}
	if err := Guard(paused, "escrow"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused, got %v", err)
	}
	if err := Guard(paused, "other"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	failing := failingView{err: errors.New("disk")}
	if err := Guard(failing, "escrow"); err == nil || errors.Is(err, ErrModulePaused) {
		t.Fatalf("read errors must surface, got %v", err)
	}
}

type failingView struct{ err error }

func (f failingView) IsPaused(string) (bool, error) { return false, f.err }
