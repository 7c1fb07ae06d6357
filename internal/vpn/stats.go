package vpn

import (
	"sync"
	"time"
)

// minRateInterval guards against near-simultaneous polls producing
// wildly inflated rates from a tiny time delta.
const minRateInterval = 500 * time.Millisecond

// Rate is instantaneous throughput in bytes per second per direction.
type Rate struct {
	Up   float64 `json:"up"`
	Down float64 `json:"down"`
}

type trafficSample struct {
	up, down   int64
	observedAt time.Time
}

// TrafficCache derives instantaneous throughput from consecutive polls
// of the panel's cumulative per-identity byte counters. Entries are
// never evicted; the identity population is bounded by active configs,
// not by request volume.
type TrafficCache struct {
	mu      sync.Mutex
	entries map[string]trafficSample

	now func() time.Time
}

func NewTrafficCache() *TrafficCache {
	return &TrafficCache{entries: make(map[string]trafficSample), now: time.Now}
}

// Observe records the latest cumulative counters for an identity and
// returns the rate since the previous observation. The rate is zero on
// the first observation, when fewer than 500ms elapsed, or when a
// counter went backwards (panel restart or reset). The snapshot is
// always overwritten, so the next poll measures from here.
func (c *TrafficCache) Observe(identity string, up, down int64) Rate {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var rate Rate
	if prev, ok := c.entries[identity]; ok {
		elapsed := now.Sub(prev.observedAt)
		if elapsed > minRateInterval {
			secs := elapsed.Seconds()
			rate.Up = clampRate(float64(up-prev.up) / secs)
			rate.Down = clampRate(float64(down-prev.down) / secs)
		}
	}
	c.entries[identity] = trafficSample{up: up, down: down, observedAt: now}
	return rate
}

func clampRate(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
