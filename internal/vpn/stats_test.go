package vpn

import (
	"testing"
	"time"
)

func TestTrafficCacheFirstObservationYieldsZeroRate(t *testing.T) {
	cache := NewTrafficCache()

	rate := cache.Observe("client-a", 100, 200)
	if rate.Up != 0 || rate.Down != 0 {
		t.Fatalf("expected zero rate on first observation, got %+v", rate)
	}
}

func TestTrafficCacheComputesRateAfterInterval(t *testing.T) {
	cache := NewTrafficCache()
	base := time.Unix(1000, 0)
	cache.now = func() time.Time { return base }

	cache.Observe("client-a", 1000, 2000)

	cache.now = func() time.Time { return base.Add(2 * time.Second) }
	rate := cache.Observe("client-a", 3000, 6000)

	if rate.Up != 1000 {
		t.Fatalf("expected up rate 1000 B/s, got %v", rate.Up)
	}
	if rate.Down != 2000 {
		t.Fatalf("expected down rate 2000 B/s, got %v", rate.Down)
	}
}

func TestTrafficCacheIgnoresTooCloseObservations(t *testing.T) {
	cache := NewTrafficCache()
	base := time.Unix(1000, 0)
	cache.now = func() time.Time { return base }

	cache.Observe("client-a", 0, 0)

	cache.now = func() time.Time { return base.Add(100 * time.Millisecond) }
	rate := cache.Observe("client-a", 1<<20, 1<<20)

	if rate.Up != 0 || rate.Down != 0 {
		t.Fatalf("expected zero rate within 500ms, got %+v", rate)
	}
}

func TestTrafficCacheClampsCounterResetToZero(t *testing.T) {
	cache := NewTrafficCache()
	base := time.Unix(1000, 0)
	cache.now = func() time.Time { return base }

	cache.Observe("client-a", 100, 200)

	cache.now = func() time.Time { return base.Add(time.Second) }
	rate := cache.Observe("client-a", 5, 50)

	if rate.Up != 0 || rate.Down != 0 {
		t.Fatalf("counter reset must clamp to zero, got %+v", rate)
	}

	// The snapshot is always overwritten, so the next poll measures
	// from the reset counters.
	cache.now = func() time.Time { return base.Add(2 * time.Second) }
	rate = cache.Observe("client-a", 1005, 1050)
	if rate.Up != 1000 || rate.Down != 1000 {
		t.Fatalf("expected snapshot (5,50) after reset, next rate got %+v", rate)
	}
}
