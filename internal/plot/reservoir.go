package plot

import "math/rand"

// SampleRow is one sampled observation: the numeric values of the selected
// columns plus an optional class label.
type SampleRow struct {
	Values []float64
	Label  string
}

// Reservoir keeps a fixed-size uniform sample of a stream (algorithm R). The
// seed is derived from the artifact key, so the same request over the same
// file yields the same sample, and therefore byte-identical artifacts.
type Reservoir struct {
	capacity int
	seen     int64
	rows     []SampleRow
	rng      *rand.Rand
}

func NewReservoir(capacity int, seed int64) *Reservoir {
	if capacity <= 0 {
		capacity = 1
	}
	return &Reservoir{
		capacity: capacity,
		rows:     make([]SampleRow, 0, capacity),
		rng:      rand.New(rand.NewSource(seed)),
	}
}

func (r *Reservoir) Add(row SampleRow) {
	r.seen++
	if len(r.rows) < r.capacity {
		r.rows = append(r.rows, row)
		return
	}
	if j := r.rng.Int63n(r.seen); j < int64(r.capacity) {
		r.rows[j] = row
	}
}

func (r *Reservoir) Rows() []SampleRow {
	return r.rows
}

func (r *Reservoir) Seen() int64 {
	return r.seen
}
