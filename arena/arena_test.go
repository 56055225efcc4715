package arena

import (
	"testing"
	"time"
)

func TestAcquireZero(t *testing.T) {
	a := New(1024, time.Hour)
	defer a.Close()

	p, err := a.Acquire(0)
	if err != nil {
		t.Fatalf("Acquire(0) error: %v", err)
	}
	if p.Bytes != nil {
		t.Fatalf("expected nil Bytes for zero-size acquire, got %v", p.Bytes)
	}
}

func TestAcquirePooledTier(t *testing.T) {
	a := New(1024, time.Hour)
	defer a.Close()

	p, err := a.Acquire(100)
	if err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	if len(p.Bytes) != 100 {
		t.Fatalf("len = %d, want 100", len(p.Bytes))
	}
	if p.large {
		t.Fatalf("expected pooled tier for size 100 with threshold 1024")
	}

	a.Release(p)
}

func TestAcquireDirectHeapTier(t *testing.T) {
	a := New(1024, time.Hour)
	defer a.Close()

	p, err := a.Acquire(4096)
	if err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	if len(p.Bytes) != 4096 {
		t.Fatalf("len = %d, want 4096", len(p.Bytes))
	}
	if !p.large {
		t.Fatalf("expected direct-heap tier for size 4096 with threshold 1024")
	}

	a.Release(p)
	if !p.tracked.released.Load() {
		t.Fatalf("expected tracked entry marked released after Release")
	}
}

func TestReleaseReusesPooledBuffer(t *testing.T) {
	a := New(1024, time.Hour)
	defer a.Close()

	p1, _ := a.Acquire(50)
	buf1 := p1.Bytes
	a.Release(p1)

	p2, _ := a.Acquire(50)
	if &buf1[0] != &p2.Bytes[0] {
		t.Skip("pool reuse is best-effort, not guaranteed under GC pressure")
	}
}

func TestSweepDropsReleasedEntries(t *testing.T) {
	a := New(64, 10*time.Millisecond)
	defer a.Close()

	p, _ := a.Acquire(4096)
	a.Release(p)

	time.Sleep(50 * time.Millisecond)

	a.reclaimer.mu.Lock()
	n := len(a.reclaimer.entries)
	a.reclaimer.mu.Unlock()

	if n != 0 {
		t.Fatalf("expected reclaimer to drop released entry, got %d remaining", n)
	}
}

func TestReleaseNilIsNoop(t *testing.T) {
	a := New(1024, time.Hour)
	defer a.Close()

	a.Release(nil)
	a.Release(&Payload{})
}
