// SPDX-License-Identifier: MIT

// Package matrix - numeric kernels on *Dense.
//
// Purpose:
//   - Matrix-vector products for quadratic forms (x'Qx, gradients (Q+Q')x).
//   - In-place row operations for Gauss-Jordan tableau pivoting.
//
// All kernels operate on the flat data slice directly and keep fixed loop
// orders, so results are bit-for-bit reproducible for identical inputs.

package matrix

import "math"

// DefaultPivotTol is the magnitude below which Pivot refuses an element.
const DefaultPivotTol = 1e-12

// Dot returns Σ a[i]*b[i]. Returns ErrDimensionMismatch when lengths differ.
func Dot(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, matrixErrorf("Dot", ErrDimensionMismatch)
	}
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}

	return s, nil
}

// MatVec computes dst = m·x.
// MAIN DESCRIPTION:
//   - Dense matrix-vector product with caller-owned destination.
//
// Implementation:
//   - Stage 1: validate len(x)==Cols and len(dst)==Rows.
//   - Stage 2: row-major accumulation (cache-friendly).
//
// Errors:
//   - ErrNilMatrix, ErrDimensionMismatch.
//
// Complexity:
//   - Time O(r*c), Space O(1).
func MatVec(m *Dense, x, dst []float64) error {
	if m == nil {
		return matrixErrorf("MatVec", ErrNilMatrix)
	}
	if len(x) != m.c || len(dst) != m.r {
		return matrixErrorf("MatVec", ErrDimensionMismatch)
	}
	var (
		i, j int
		s    float64
		off  int
	)
	for i = 0; i < m.r; i++ {
		s = 0
		off = i * m.c
		for j = 0; j < m.c; j++ {
			s += m.data[off+j] * x[j]
		}
		dst[i] = s
	}

	return nil
}

// MatTVec computes dst = m'·x without materializing the transpose.
func MatTVec(m *Dense, x, dst []float64) error {
	if m == nil {
		return matrixErrorf("MatTVec", ErrNilMatrix)
	}
	if len(x) != m.r || len(dst) != m.c {
		return matrixErrorf("MatTVec", ErrDimensionMismatch)
	}
	var (
		i, j int
		off  int
	)
	for j = 0; j < m.c; j++ {
		dst[j] = 0
	}
	for i = 0; i < m.r; i++ {
		off = i * m.c
		for j = 0; j < m.c; j++ {
			dst[j] += m.data[off+j] * x[i]
		}
	}

	return nil
}

// QuadForm returns x'·m·x for a square m.
func QuadForm(m *Dense, x []float64) (float64, error) {
	if m == nil {
		return 0, matrixErrorf("QuadForm", ErrNilMatrix)
	}
	if m.r != m.c || len(x) != m.c {
		return 0, matrixErrorf("QuadForm", ErrDimensionMismatch)
	}
	var (
		i, j int
		s    float64
		off  int
	)
	for i = 0; i < m.r; i++ {
		off = i * m.c
		for j = 0; j < m.c; j++ {
			s += x[i] * m.data[off+j] * x[j]
		}
	}

	return s, nil
}

// ScaleRow multiplies row i by f in place.
func (m *Dense) ScaleRow(i int, f float64) error {
	if i < 0 || i >= m.r {
		return denseErrorf("ScaleRow", i, 0, ErrOutOfRange)
	}
	row := m.data[i*m.c : (i+1)*m.c]
	for j := range row {
		row[j] *= f
	}

	return nil
}

// AddScaledRow performs row[dst] += f * row[src] in place.
func (m *Dense) AddScaledRow(dst, src int, f float64) error {
	if dst < 0 || dst >= m.r || src < 0 || src >= m.r {
		return denseErrorf("AddScaledRow", dst, src, ErrOutOfRange)
	}
	if f == 0 {
		return nil
	}
	var (
		d = m.data[dst*m.c : (dst+1)*m.c]
		s = m.data[src*m.c : (src+1)*m.c]
	)
	for j := range d {
		d[j] += f * s[j]
	}

	return nil
}

// Pivot performs a Gauss-Jordan pivot on element (r, c):
// row r is scaled so that m[r][c] == 1, then column c is eliminated from
// every other row.
//
// Implementation:
//   - Stage 1: bounds check and |m[r][c]| > DefaultPivotTol, else ErrZeroPivot.
//   - Stage 2: ScaleRow(r, 1/p).
//   - Stage 3: for each k != r with m[k][c] != 0, AddScaledRow(k, r, -m[k][c]).
//   - Stage 4: snap the pivot column to exact unit vector to stop drift.
//
// Complexity:
//   - Time O(r*c), Space O(1).
func (m *Dense) Pivot(r, c int) error {
	if r < 0 || r >= m.r || c < 0 || c >= m.c {
		return denseErrorf("Pivot", r, c, ErrOutOfRange)
	}
	p := m.data[r*m.c+c]
	if math.Abs(p) <= DefaultPivotTol {
		return denseErrorf("Pivot", r, c, ErrZeroPivot)
	}
	_ = m.ScaleRow(r, 1/p)
	var (
		k int
		f float64
	)
	for k = 0; k < m.r; k++ {
		if k == r {
			continue
		}
		f = m.data[k*m.c+c]
		if f == 0 {
			continue
		}
		_ = m.AddScaledRow(k, r, -f)
		m.data[k*m.c+c] = 0
	}
	m.data[r*m.c+c] = 1

	return nil
}
