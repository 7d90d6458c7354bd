package metrics

import (
	"math"
	"sort"
	"sync"
)

// DefaultSampleSize bounds the latency sample rings. Old observations are
// overwritten once the ring is full, so percentiles reflect recent traffic.
const DefaultSampleSize = 10000

// Sample is a bounded ring of float64 observations supporting percentile
// estimation. Writers overwrite the oldest slot; readers sort a copy.
type Sample struct {
	mu    sync.RWMutex
	buf   []float64
	next  int
	full  bool
	sum   float64
	count uint64 // lifetime observation count
}

// NewSample creates a ring holding up to capacity observations.
func NewSample(capacity int) *Sample {
	if capacity <= 0 {
		capacity = DefaultSampleSize
	}
	return &Sample{buf: make([]float64, capacity)}
}

// Observe records one value.
func (s *Sample) Observe(v float64) {
	s.mu.Lock()
	s.buf[s.next] = v
	s.next++
	if s.next == len(s.buf) {
		s.next = 0
		s.full = true
	}
	s.sum += v
	s.count++
	s.mu.Unlock()
}

// Len returns how many observations are currently held.
func (s *Sample) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size()
}

func (s *Sample) size() int {
	if s.full {
		return len(s.buf)
	}
	return s.next
}

// values returns a sorted copy of the held observations. Must hold mu.
func (s *Sample) values() []float64 {
	n := s.size()
	out := make([]float64, n)
	copy(out, s.buf[:n])
	sort.Float64s(out)
	return out
}

// Percentile returns the nearest-rank percentile p in [0, 100] of the held
// observations, or 0 when empty.
func (s *Sample) Percentile(p float64) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vals := s.values()
	return percentileOf(vals, p)
}

func percentileOf(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// SampleSnapshot is a consistent view of a Sample for reporting.
type SampleSnapshot struct {
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Sum   float64 `json:"-"`
	Count uint64  `json:"samples"`
}

// Snapshot computes p50/p95/p99 with a single sort.
func (s *Sample) Snapshot() SampleSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vals := s.values()
	return SampleSnapshot{
		P50:   percentileOf(vals, 50),
		P95:   percentileOf(vals, 95),
		P99:   percentileOf(vals, 99),
		Sum:   s.sum,
		Count: s.count,
	}
}
