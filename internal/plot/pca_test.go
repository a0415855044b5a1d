package plot

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectPCACapturesDominantDirection(t *testing.T) {
	// Points near the line y = x with small noise: PC1 must carry nearly all
	// the variance.
	rng := rand.New(rand.NewSource(3))
	rows := make([]SampleRow, 500)
	for i := range rows {
		v := rng.NormFloat64() * 10
		noise := rng.NormFloat64() * 0.1
		rows[i] = SampleRow{Values: []float64{v, v + noise}}
	}

	projected := projectPCA(rows, 2)
	require.Len(t, projected, len(rows))

	var var1, var2 float64
	for _, p := range projected {
		var1 += p[0] * p[0]
		var2 += p[1] * p[1]
	}

	assert.Greater(t, var1, var2*10)
}

func TestProjectPCADeterministic(t *testing.T) {
	rows := make([]SampleRow, 100)
	for i := range rows {
		rows[i] = SampleRow{Values: []float64{float64(i), float64(i % 7), float64(i % 13)}}
	}

	a := projectPCA(rows, 3)
	b := projectPCA(rows, 3)
	assert.Equal(t, a, b)
}

func TestProjectPCAHandlesConstantColumn(t *testing.T) {
	rows := make([]SampleRow, 50)
	for i := range rows {
		rows[i] = SampleRow{Values: []float64{float64(i), 5}}
	}

	projected := projectPCA(rows, 2)
	require.Len(t, projected, 50)
	for _, p := range projected {
		assert.False(t, math.IsNaN(p[0]))
		assert.False(t, math.IsNaN(p[1]))
	}
}

func TestProjectPCAEmpty(t *testing.T) {
	assert.Nil(t, projectPCA(nil, 2))
	assert.Nil(t, projectPCA([]SampleRow{{Values: []float64{1, 2}}}, 1))
}
