// SPDX-License-Identifier: MIT

package lp

import (
	"errors"
	"fmt"
	"math"
)

// Sentinel errors for model validation.
var (
	// ErrShape indicates Obj/Lower/Upper of different lengths.
	ErrShape = errors.New("lp: objective and bound vectors differ in length")

	// ErrColumn indicates a row term referencing a missing column.
	ErrColumn = errors.New("lp: row references unknown column")

	// ErrValue indicates a NaN coefficient or an impossible infinite bound.
	ErrValue = errors.New("lp: invalid numeric value")
)

// Term is one row coefficient.
type Term struct {
	Col  int
	Coef float64
}

// Row is Lower <= Σ Coef*x[Col] <= Upper. Missing sides are ±Inf.
type Row struct {
	Name  string
	Terms []Term
	Lower float64
	Upper float64
}

// Model is min Obj·x subject to Rows and Lower <= x <= Upper.
type Model struct {
	Obj   []float64
	Lower []float64
	Upper []float64
	Rows  []Row
}

// NewModel returns a model with n free columns and zero costs.
func NewModel(n int) *Model {
	m := &Model{
		Obj:   make([]float64, n),
		Lower: make([]float64, n),
		Upper: make([]float64, n),
	}
	for j := 0; j < n; j++ {
		m.Lower[j] = math.Inf(-1)
		m.Upper[j] = math.Inf(1)
	}

	return m
}

// NumCols returns the number of columns.
func (m *Model) NumCols() int { return len(m.Obj) }

// NumRows returns the number of rows.
func (m *Model) NumRows() int { return len(m.Rows) }

// AddCol appends a column and returns its index.
func (m *Model) AddCol(cost, lower, upper float64) int {
	m.Obj = append(m.Obj, cost)
	m.Lower = append(m.Lower, lower)
	m.Upper = append(m.Upper, upper)

	return len(m.Obj) - 1
}

// AddRow appends r and returns its index.
func (m *Model) AddRow(r Row) int {
	m.Rows = append(m.Rows, r)

	return len(m.Rows) - 1
}

// Clone returns a deep copy.
func (m *Model) Clone() *Model {
	out := &Model{
		Obj:   append([]float64(nil), m.Obj...),
		Lower: append([]float64(nil), m.Lower...),
		Upper: append([]float64(nil), m.Upper...),
		Rows:  make([]Row, len(m.Rows)),
	}
	for i, r := range m.Rows {
		r.Terms = append([]Term(nil), r.Terms...)
		out.Rows[i] = r
	}

	return out
}

// Activity returns Σ Coef*x[Col] for row i.
func (m *Model) Activity(i int, x []float64) float64 {
	var s float64
	for _, t := range m.Rows[i].Terms {
		s += t.Coef * x[t.Col]
	}

	return s
}

// MaxViolation returns the largest bound or row violation of x.
func (m *Model) MaxViolation(x []float64) float64 {
	var v float64
	for j := range x {
		v = math.Max(v, m.Lower[j]-x[j])
		v = math.Max(v, x[j]-m.Upper[j])
	}
	for i, r := range m.Rows {
		a := m.Activity(i, x)
		v = math.Max(v, r.Lower-a)
		v = math.Max(v, a-r.Upper)
	}

	return v
}

// Validate checks shapes, column references and numeric values.
func (m *Model) Validate() error {
	n := len(m.Obj)
	if len(m.Lower) != n || len(m.Upper) != n {
		return ErrShape
	}
	for j := 0; j < n; j++ {
		if math.IsNaN(m.Obj[j]) || math.IsInf(m.Obj[j], 0) ||
			math.IsNaN(m.Lower[j]) || math.IsNaN(m.Upper[j]) ||
			math.IsInf(m.Lower[j], 1) || math.IsInf(m.Upper[j], -1) {
			return fmt.Errorf("column %d: %w", j, ErrValue)
		}
	}
	for i, r := range m.Rows {
		if math.IsNaN(r.Lower) || math.IsNaN(r.Upper) {
			return fmt.Errorf("row %d: %w", i, ErrValue)
		}
		for _, t := range r.Terms {
			if t.Col < 0 || t.Col >= n {
				return fmt.Errorf("row %d: %w", i, ErrColumn)
			}
			if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
				return fmt.Errorf("row %d: %w", i, ErrValue)
			}
		}
	}

	return nil
}
