package runtime

import (
	"math"
	"slices"
	"time"
)

const latencySampleSize = 256

// LatencyMetrics summarises the most recent handler durations.
type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

// latencyRing keeps the last len(samples) durations.
type latencyRing struct {
	samples []int64
	next    int
	filled  int
	last    int64
}

func newLatencyRing(size int) *latencyRing {
	if size <= 0 {
		size = latencySampleSize
	}
	return &latencyRing{samples: make([]int64, size)}
}

func (r *latencyRing) add(d time.Duration) {
	r.samples[r.next] = int64(d)
	r.last = int64(d)
	r.next = (r.next + 1) % len(r.samples)
	if r.filled < len(r.samples) {
		r.filled++
	}
}

func (r *latencyRing) snapshot() LatencyMetrics {
	if r == nil || r.filled == 0 {
		return LatencyMetrics{}
	}
	sorted := slices.Clone(r.samples[:r.filled])
	slices.Sort(sorted)

	var sum int64
	for _, v := range sorted {
		sum += v
	}
	return LatencyMetrics{
		AverageNs:  sum / int64(len(sorted)),
		P50Ns:      percentile(sorted, 0.50),
		P95Ns:      percentile(sorted, 0.95),
		P99Ns:      percentile(sorted, 0.99),
		LastNs:     r.last,
		SampleSize: r.filled,
	}
}

// percentile interpolates linearly between the two closest ranks of sorted.
func percentile(sorted []int64, quantile float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	if quantile <= 0 {
		return sorted[0]
	}
	if quantile >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := quantile * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower] + int64(float64(sorted[upper]-sorted[lower])*frac)
}
