package plot

import "math"

// projectPCA standardizes the sampled rows and projects them onto the two
// leading principal components, found by power iteration with deflation.
// Deterministic: the start vector is fixed, so a fixed sample gives a fixed
// projection.
func projectPCA(rows []SampleRow, dims int) [][2]float64 {
	n := len(rows)
	if n == 0 || dims < 2 {
		return nil
	}

	std := standardize(rows, dims)
	cov := covariance(std, dims)

	pc1 := powerIteration(cov, dims)
	deflate(cov, pc1)
	pc2 := powerIteration(cov, dims)

	out := make([][2]float64, n)
	for i, row := range std {
		var x, y float64
		for j := 0; j < dims; j++ {
			x += row[j] * pc1[j]
			y += row[j] * pc2[j]
		}
		out[i] = [2]float64{x, y}
	}
	return out
}

func standardize(rows []SampleRow, dims int) [][]float64 {
	n := float64(len(rows))

	means := make([]float64, dims)
	for _, row := range rows {
		for j := 0; j < dims; j++ {
			means[j] += row.Values[j]
		}
	}
	for j := range means {
		means[j] /= n
	}

	stds := make([]float64, dims)
	for _, row := range rows {
		for j := 0; j < dims; j++ {
			d := row.Values[j] - means[j]
			stds[j] += d * d
		}
	}
	for j := range stds {
		stds[j] = math.Sqrt(stds[j] / n)
		if stds[j] == 0 {
			stds[j] = 1
		}
	}

	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = make([]float64, dims)
		for j := 0; j < dims; j++ {
			out[i][j] = (row.Values[j] - means[j]) / stds[j]
		}
	}
	return out
}

func covariance(rows [][]float64, dims int) [][]float64 {
	n := float64(len(rows))
	cov := make([][]float64, dims)
	for i := range cov {
		cov[i] = make([]float64, dims)
	}

	for _, row := range rows {
		for i := 0; i < dims; i++ {
			for j := i; j < dims; j++ {
				cov[i][j] += row[i] * row[j]
			}
		}
	}
	for i := 0; i < dims; i++ {
		for j := i; j < dims; j++ {
			cov[i][j] /= n
			cov[j][i] = cov[i][j]
		}
	}
	return cov
}

func powerIteration(m [][]float64, dims int) []float64 {
	v := make([]float64, dims)
	for i := range v {
		v[i] = 1 / math.Sqrt(float64(dims))
	}

	next := make([]float64, dims)
	for iter := 0; iter < 100; iter++ {
		for i := 0; i < dims; i++ {
			var s float64
			for j := 0; j < dims; j++ {
				s += m[i][j] * v[j]
			}
			next[i] = s
		}

		var norm float64
		for _, x := range next {
			norm += x * x
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			return v
		}

		var diff float64
		for i := range v {
			nv := next[i] / norm
			diff += math.Abs(nv - v[i])
			v[i] = nv
		}
		if diff < 1e-10 {
			break
		}
	}
	return v
}

// deflate removes the component along v: m -= lambda * v v^T.
func deflate(m [][]float64, v []float64) {
	dims := len(v)

	// Rayleigh quotient gives the eigenvalue for the found eigenvector.
	var lambda float64
	for i := 0; i < dims; i++ {
		var s float64
		for j := 0; j < dims; j++ {
			s += m[i][j] * v[j]
		}
		lambda += v[i] * s
	}

	for i := 0; i < dims; i++ {
		for j := 0; j < dims; j++ {
			m[i][j] -= lambda * v[i] * v[j]
		}
	}
}
