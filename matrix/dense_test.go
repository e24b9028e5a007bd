// SPDX-License-Identifier: MIT
// Package matrix_test contains unit tests for Dense storage and numeric kernels.
package matrix_test

import (
	"math"
	"testing"

	"github.com/katalvlaran/parqg/matrix"
	"github.com/stretchr/testify/require"
)

// TestNewDenseInvalidDimensions ensures that NewDense rejects bad shapes.
func TestNewDenseInvalidDimensions(t *testing.T) {
	_, err := matrix.NewDense(-1, 5)                     // negative rows
	require.ErrorIs(t, err, matrix.ErrInvalidDimensions) // expect ErrInvalidDimensions

	_, err = matrix.NewDense(5, 0)                       // zero columns
	require.ErrorIs(t, err, matrix.ErrInvalidDimensions) // expect ErrInvalidDimensions

	m, err := matrix.NewDense(0, 3) // zero rows is a growable tableau
	require.NoError(t, err)
	require.Equal(t, 0, m.Rows())
}

// TestAtSetOutOfRange ensures At() and Set() return ErrOutOfRange on invalid access.
func TestAtSetOutOfRange(t *testing.T) {
	m, err := matrix.NewDense(2, 2)
	require.NoError(t, err)

	_, err = m.At(-1, 0)
	require.ErrorIs(t, err, matrix.ErrOutOfRange)
	_, err = m.At(0, 2)
	require.ErrorIs(t, err, matrix.ErrOutOfRange)
	require.ErrorIs(t, m.Set(2, 0, 1.23), matrix.ErrOutOfRange)
	require.ErrorIs(t, m.Set(0, 0, math.NaN()), matrix.ErrNaNInf)
}

// TestAppendRowAndView checks growth and the no-copy row view.
func TestAppendRowAndView(t *testing.T) {
	m, err := matrix.NewDense(0, 3)
	require.NoError(t, err)

	require.NoError(t, m.AppendRow([]float64{1, 2, 3}))
	require.NoError(t, m.AppendRow([]float64{4, 5, 6}))
	require.ErrorIs(t, m.AppendRow([]float64{1}), matrix.ErrDimensionMismatch)
	require.Equal(t, 2, m.Rows())

	row, err := m.Row(1)
	require.NoError(t, err)
	row[0] = 40 // view mutation is visible
	v, err := m.At(1, 0)
	require.NoError(t, err)
	require.Equal(t, 40.0, v)

	clone := m.Clone()
	require.NoError(t, clone.Set(0, 0, 100))
	v, _ = m.At(0, 0)
	require.Equal(t, 1.0, v) // original untouched
}

// TestNewDenseFromRagged rejects ragged literals.
func TestNewDenseFromRagged(t *testing.T) {
	_, err := matrix.NewDenseFrom([][]float64{{1, 2}, {3}})
	require.ErrorIs(t, err, matrix.ErrInvalidDimensions)

	_, err = matrix.NewDenseFrom([][]float64{{1, math.Inf(1)}})
	require.ErrorIs(t, err, matrix.ErrNaNInf)
}

// ---------------------------
// Kernels
// ---------------------------

// TestMatVecAndQuadForm validates products against hand-computed values.
func TestMatVecAndQuadForm(t *testing.T) {
	q, err := matrix.NewDenseFrom([][]float64{
		{2, 1},
		{1, 3},
	})
	require.NoError(t, err)

	dst := make([]float64, 2)
	require.NoError(t, matrix.MatVec(q, []float64{1, 2}, dst))
	require.Equal(t, []float64{4, 7}, dst)

	require.NoError(t, matrix.MatTVec(q, []float64{1, 2}, dst))
	require.Equal(t, []float64{4, 7}, dst) // symmetric

	v, err := matrix.QuadForm(q, []float64{1, 2})
	require.NoError(t, err)
	require.Equal(t, 18.0, v) // 2 + 2*1*2 + 3*4

	require.ErrorIs(t, matrix.MatVec(q, []float64{1}, dst), matrix.ErrDimensionMismatch)
	require.ErrorIs(t, matrix.MatVec(nil, []float64{1}, dst), matrix.ErrNilMatrix)

	d, err := matrix.Dot([]float64{1, 2, 3}, []float64{4, 5, 6})
	require.NoError(t, err)
	require.Equal(t, 32.0, d)
}

// TestPivotEliminatesColumn checks the Gauss-Jordan invariant after Pivot.
func TestPivotEliminatesColumn(t *testing.T) {
	m, err := matrix.NewDenseFrom([][]float64{
		{2, 4, 6},
		{1, 3, 5},
		{-1, 0, 2},
	})
	require.NoError(t, err)

	require.NoError(t, m.Pivot(0, 0))
	for i := 0; i < 3; i++ {
		v, _ := m.At(i, 0)
		if i == 0 {
			require.Equal(t, 1.0, v)
		} else {
			require.Equal(t, 0.0, v)
		}
	}
	row0, _ := m.Row(0)
	require.Equal(t, []float64{1, 2, 3}, row0)
	row2, _ := m.Row(2)
	require.Equal(t, []float64{0, 2, 5}, row2)

	z, err := matrix.NewDenseFrom([][]float64{{0, 1}, {1, 0}})
	require.NoError(t, err)
	require.ErrorIs(t, z.Pivot(0, 0), matrix.ErrZeroPivot)
}
