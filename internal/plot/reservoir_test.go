package plot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReservoirKeepsEverythingUnderCapacity(t *testing.T) {
	r := NewReservoir(10, 1)
	for i := 0; i < 5; i++ {
		r.Add(SampleRow{Values: []float64{float64(i)}})
	}

	assert.Len(t, r.Rows(), 5)
	assert.Equal(t, int64(5), r.Seen())
}

func TestReservoirBoundedSize(t *testing.T) {
	r := NewReservoir(100, 1)
	for i := 0; i < 10000; i++ {
		r.Add(SampleRow{Values: []float64{float64(i)}})
	}

	assert.Len(t, r.Rows(), 100)
	assert.Equal(t, int64(10000), r.Seen())
}

func TestReservoirDeterministicForSeed(t *testing.T) {
	sample := func(seed int64) []SampleRow {
		r := NewReservoir(50, seed)
		for i := 0; i < 5000; i++ {
			r.Add(SampleRow{Values: []float64{float64(i)}})
		}
		return r.Rows()
	}

	assert.Equal(t, sample(42), sample(42))
	assert.NotEqual(t, sample(42), sample(43))
}
