package profile

import (
	"math"
	"sort"
)

// QuantileSketch is a Greenwald-Khanna summary: bounded memory, rank error at
// most epsilon*N. With the default epsilon of 0.01 the estimated median of N
// values sits within ±0.01*N positions of the true median.
type QuantileSketch struct {
	epsilon float64
	n       int64
	tuples  []gkTuple
	pending []float64
}

type gkTuple struct {
	value float64
	g     int64
	delta int64
}

func NewQuantileSketch(epsilon float64) *QuantileSketch {
	if epsilon <= 0 {
		epsilon = 0.01
	}
	return &QuantileSketch{
		epsilon: epsilon,
		pending: make([]float64, 0, 64),
	}
}

// Insert buffers the value; buffered values are folded in sorted runs to keep
// per-row cost low.
func (s *QuantileSketch) Insert(v float64) {
	s.pending = append(s.pending, v)
	if len(s.pending) >= 64 {
		s.flush()
	}
}

func (s *QuantileSketch) flush() {
	if len(s.pending) == 0 {
		return
	}
	sort.Float64s(s.pending)
	for _, v := range s.pending {
		s.insertOne(v)
	}
	s.pending = s.pending[:0]
	s.compress()
}

func (s *QuantileSketch) insertOne(v float64) {
	idx := sort.Search(len(s.tuples), func(i int) bool {
		return s.tuples[i].value >= v
	})

	var delta int64
	if idx > 0 && idx < len(s.tuples) {
		delta = int64(math.Floor(2 * s.epsilon * float64(s.n)))
	}

	t := gkTuple{value: v, g: 1, delta: delta}
	s.tuples = append(s.tuples, gkTuple{})
	copy(s.tuples[idx+1:], s.tuples[idx:])
	s.tuples[idx] = t
	s.n++
}

func (s *QuantileSketch) compress() {
	if len(s.tuples) < 2 {
		return
	}
	threshold := int64(math.Floor(2 * s.epsilon * float64(s.n)))

	// The first tuple carries the minimum and is never merged away.
	for i := len(s.tuples) - 2; i >= 1; i-- {
		if s.tuples[i].g+s.tuples[i+1].g+s.tuples[i+1].delta <= threshold {
			s.tuples[i+1].g += s.tuples[i].g
			s.tuples = append(s.tuples[:i], s.tuples[i+1:]...)
		}
	}
}

// Count returns the number of inserted values.
func (s *QuantileSketch) Count() int64 {
	return s.n + int64(len(s.pending))
}

// Query returns the estimated value at quantile q in [0,1]. ok is false when
// the sketch is empty.
func (s *QuantileSketch) Query(q float64) (float64, bool) {
	s.flush()
	if s.n == 0 || len(s.tuples) == 0 {
		return 0, false
	}
	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}

	rank := int64(math.Ceil(q * float64(s.n)))
	if rank < 1 {
		rank = 1
	}
	budget := rank + int64(math.Floor(s.epsilon*float64(s.n)))

	var rmin int64
	for i, t := range s.tuples {
		rmin += t.g
		if rmin+t.delta > budget {
			if i == 0 {
				return t.value, true
			}
			return s.tuples[i-1].value, true
		}
	}
	return s.tuples[len(s.tuples)-1].value, true
}
