package gateway

import (
	"math"
	"slices"
	"sync"
)

// LatencyTracker keeps the last N batch latencies (event receipt to snapshot
// fan-out, in milliseconds) and reports percentiles over them.
type LatencyTracker struct {
	mu      sync.Mutex
	samples []float64
	next    int
	filled  bool
}

// NewLatencyTracker holds up to capacity samples (default 10000).
func NewLatencyTracker(capacity int) *LatencyTracker {
	if capacity <= 0 {
		capacity = 10000
	}
	return &LatencyTracker{samples: make([]float64, capacity)}
}

// Record adds one sample, overwriting the oldest once full.
func (lt *LatencyTracker) Record(ms float64) {
	lt.mu.Lock()
	lt.samples[lt.next] = ms
	lt.next++
	if lt.next == len(lt.samples) {
		lt.next = 0
		lt.filled = true
	}
	lt.mu.Unlock()
}

// Count returns the number of samples held.
func (lt *LatencyTracker) Count() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.count()
}

func (lt *LatencyTracker) count() int {
	if lt.filled {
		return len(lt.samples)
	}
	return lt.next
}

// Percentiles returns p50, p95 and p99, or zeros with no samples.
func (lt *LatencyTracker) Percentiles() (p50, p95, p99 float64) {
	lt.mu.Lock()
	sorted := slices.Clone(lt.samples[:lt.count()])
	lt.mu.Unlock()
	if len(sorted) == 0 {
		return 0, 0, 0
	}
	slices.Sort(sorted)
	return quantile(sorted, 0.50), quantile(sorted, 0.95), quantile(sorted, 0.99)
}

// quantile linearly interpolates between the closest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := q * float64(n-1)
	lo := int(math.Floor(rank))
	if lo+1 >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}
