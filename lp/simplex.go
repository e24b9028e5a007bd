// SPDX-License-Identifier: MIT

// Package lp is a dense two-phase tableau simplex.
//
// Rationale (succinct):
//  1. The model is rewritten in standard form y >= 0:
//     - fixed column:      x = l (no tableau column),
//     - lower-bounded:     x = l + y, plus row y <= u-l when u is finite,
//     - upper-bounded:     x = u - y,
//     - free:              x = y⁺ - y⁻.
//     Rows become <=, >= or = rows with slack/surplus columns.
//  2. Rows are normalized to rhs >= 0. A row whose slack enters with +1
//     starts with the slack basic; every other row gets an artificial.
//  3. Phase I minimizes the artificial sum; Phase II the true cost with
//     artificial columns blocked.
//  4. Pivoting follows Bland's rule over a fixed column ranking, which
//     guarantees termination. A warm start reorders the ranking so the
//     parent's basic columns are tried first; any fixed ranking is valid.
//
// Complexity:
//   - Per pivot O(m*w) on an (m+1)×(w+1) tableau; pivots bounded by MaxIter.
package lp

import (
	"context"
	"math"
	"sort"

	"github.com/katalvlaran/parqg/engine"
	"github.com/katalvlaran/parqg/matrix"
)

// Options configures the simplex.
type Options struct {
	// MaxIter caps the total number of pivots over both phases.
	MaxIter int `yaml:"max_iter" json:"max_iter" toml:"max_iter"`

	// Tol is the optimality and pivot tolerance.
	Tol float64 `yaml:"tol" json:"tol" toml:"tol"`

	// FeasTol is the Phase I infeasibility threshold.
	FeasTol float64 `yaml:"feas_tol" json:"feas_tol" toml:"feas_tol"`
}

// DefaultOptions returns the defaults used by the solver.
func DefaultOptions() Options {
	return Options{MaxIter: 100000, Tol: 1e-9, FeasTol: 1e-7}
}

// Solver is a stateless LP engine; one value may be shared by goroutines.
type Solver struct {
	opts Options
}

// NewSolver returns a Solver; zero fields of opts take their defaults.
func NewSolver(opts Options) *Solver {
	d := DefaultOptions()
	if opts.MaxIter <= 0 {
		opts.MaxIter = d.MaxIter
	}
	if opts.Tol <= 0 {
		opts.Tol = d.Tol
	}
	if opts.FeasTol <= 0 {
		opts.FeasTol = d.FeasTol
	}

	return &Solver{opts: opts}
}

const (
	senseLE int8 = -1
	senseEQ int8 = 0
	senseGE int8 = 1
)

// column substitution x = off + Σ sign*y
type colMap struct {
	off         float64
	plus, minus int // y columns, -1 when absent
}

type standard struct {
	cols   []colMap
	yOwner []int
	ySign  []float64
	rows   [][]float64
	rhs    []float64
	sense  []int8
	cost   []float64
}

func (sf *standard) newY(owner int, sign float64) int {
	sf.yOwner = append(sf.yOwner, owner)
	sf.ySign = append(sf.ySign, sign)

	return len(sf.yOwner) - 1
}

// buildStandard returns engine.Infeasible when bounds or constant rows are
// contradictory, engine.Unknown otherwise.
func buildStandard(m *Model, tol float64) (*standard, engine.Status) {
	var (
		n      = m.NumCols()
		sf     = &standard{cols: make([]colMap, n)}
		bounds []struct {
			y   int
			cap float64
		}
	)
	for j := 0; j < n; j++ {
		lo, hi := m.Lower[j], m.Upper[j]
		cm := colMap{plus: -1, minus: -1}
		switch {
		case lo > hi+tol:
			return nil, engine.Infeasible
		case !math.IsInf(lo, 0) && !math.IsInf(hi, 0) && hi-lo <= tol:
			cm.off = lo
		case !math.IsInf(lo, 0):
			cm.off = lo
			cm.plus = sf.newY(j, 1)
			if !math.IsInf(hi, 0) {
				bounds = append(bounds, struct {
					y   int
					cap float64
				}{cm.plus, hi - lo})
			}
		case !math.IsInf(hi, 0):
			cm.off = hi
			cm.minus = sf.newY(j, -1)
		default:
			cm.plus = sf.newY(j, 1)
			cm.minus = sf.newY(j, -1)
		}
		sf.cols[j] = cm
	}
	nY := len(sf.yOwner)

	sf.cost = make([]float64, nY)
	for y := 0; y < nY; y++ {
		sf.cost[y] = m.Obj[sf.yOwner[y]] * sf.ySign[y]
	}

	for _, r := range m.Rows {
		var (
			coef = make([]float64, nY)
			c0   float64
			nz   bool
		)
		for _, t := range r.Terms {
			cm := sf.cols[t.Col]
			c0 += t.Coef * cm.off
			if cm.plus >= 0 {
				coef[cm.plus] += t.Coef
			}
			if cm.minus >= 0 {
				coef[cm.minus] -= t.Coef
			}
		}
		for _, a := range coef {
			if a != 0 {
				nz = true
				break
			}
		}
		if !nz {
			if c0 < r.Lower-tol*math.Max(1, math.Abs(r.Lower)) || c0 > r.Upper+tol*math.Max(1, math.Abs(r.Upper)) {
				return nil, engine.Infeasible
			}
			continue
		}
		lo, hi := r.Lower-c0, r.Upper-c0
		switch {
		case r.Lower == r.Upper:
			sf.addRow(coef, lo, senseEQ)
		default:
			if !math.IsInf(hi, 0) {
				sf.addRow(coef, hi, senseLE)
			}
			if !math.IsInf(lo, 0) {
				sf.addRow(append([]float64(nil), coef...), lo, senseGE)
			}
		}
	}
	for _, b := range bounds {
		coef := make([]float64, nY)
		coef[b.y] = 1
		sf.addRow(coef, b.cap, senseLE)
	}

	return sf, engine.Unknown
}

func (sf *standard) addRow(coef []float64, rhs float64, sense int8) {
	sf.rows = append(sf.rows, coef)
	sf.rhs = append(sf.rhs, rhs)
	sf.sense = append(sf.sense, sense)
}

// tableau is the working state of one solve.
type tableau struct {
	t       *matrix.Dense
	m       int // constraint rows; row m is the reduced-cost row
	rhsCol  int
	nY      int
	artFrom int // first artificial column
	basis   []int
	rank    []int
	blocked []bool
	tol     float64
	iters   int
}

func newTableau(sf *standard, ws *engine.WarmStart, tol float64) *tableau {
	var (
		m     = len(sf.rows)
		nY    = len(sf.yOwner)
		nS    int
		nA    int
		slack = make([]int, m)
		flip  = make([]bool, m)
	)
	for i := 0; i < m; i++ {
		slack[i] = -1
		if sf.sense[i] != senseEQ {
			slack[i] = nY + nS
			nS++
		}
		flip[i] = sf.rhs[i] < 0
		// slack coefficient after normalization is +1 only for (LE, no flip) or (GE, flip)
		if !((sf.sense[i] == senseLE && !flip[i]) || (sf.sense[i] == senseGE && flip[i])) {
			nA++
		}
	}
	var (
		width  = nY + nS + nA
		d, _   = matrix.NewDense(m+1, width+1)
		tb     = &tableau{t: d, m: m, rhsCol: width, nY: nY, artFrom: nY + nS, tol: tol}
		nextA  = nY + nS
		row    []float64
		sign   float64
		slackC float64
	)
	tb.basis = make([]int, m)
	tb.blocked = make([]bool, width)
	for i := 0; i < m; i++ {
		row, _ = d.Row(i)
		sign = 1
		if flip[i] {
			sign = -1
		}
		for j, a := range sf.rows[i] {
			row[j] = sign * a
		}
		row[width] = sign * sf.rhs[i]
		if slack[i] >= 0 {
			slackC = 1
			if sf.sense[i] == senseGE {
				slackC = -1
			}
			row[slack[i]] = sign * slackC
			if sign*slackC > 0 {
				tb.basis[i] = slack[i]
				continue
			}
		}
		row[nextA] = 1
		tb.basis[i] = nextA
		nextA++
	}
	tb.rank = rankColumns(sf, ws, width)

	return tb
}

// rankColumns orders columns for Bland's rule: warm-start structural
// columns first, then remaining y columns, slacks, artificials.
func rankColumns(sf *standard, ws *engine.WarmStart, width int) []int {
	var (
		rank = make([]int, width)
		seen = make([]bool, width)
		next int
	)
	put := func(c int) {
		if c >= 0 && c < width && !seen[c] {
			seen[c] = true
			rank[c] = next
			next++
		}
	}
	if ws != nil {
		for _, j := range ws.Basis {
			if j >= 0 && j < len(sf.cols) {
				put(sf.cols[j].plus)
				put(sf.cols[j].minus)
			}
		}
	}
	for c := 0; c < width; c++ {
		put(c)
	}

	return rank
}

// iterate runs simplex pivots until optimality, unboundedness or the cap.
func (tb *tableau) iterate(ctx context.Context, maxIter int) engine.Status {
	for {
		if tb.iters >= maxIter {
			return engine.IterationLimit
		}
		if tb.iters&63 == 0 && ctx.Err() != nil {
			return engine.Error
		}
		enter := tb.entering()
		if enter < 0 {
			return engine.Optimal
		}
		leave := tb.leaving(enter)
		if leave < 0 {
			return engine.Unbounded
		}
		if err := tb.t.Pivot(leave, enter); err != nil {
			return engine.Error
		}
		tb.basis[leave] = enter
		tb.iters++
	}
}

func (tb *tableau) entering() int {
	var (
		obj, _ = tb.t.Row(tb.m)
		best   = -1
	)
	for j := 0; j < tb.rhsCol; j++ {
		if tb.blocked[j] || obj[j] >= -tb.tol {
			continue
		}
		if best < 0 || tb.rank[j] < tb.rank[best] {
			best = j
		}
	}

	return best
}

func (tb *tableau) leaving(enter int) int {
	var (
		best  = -1
		bestR float64
		a, r  float64
		row   []float64
	)
	for i := 0; i < tb.m; i++ {
		row, _ = tb.t.Row(i)
		a = row[enter]
		if a <= tb.tol {
			continue
		}
		r = math.Max(row[tb.rhsCol], 0) / a
		switch {
		case best < 0 || r < bestR-1e-12:
			best, bestR = i, r
		case r <= bestR+1e-12 && tb.rank[tb.basis[i]] < tb.rank[tb.basis[best]]:
			best, bestR = i, math.Min(r, bestR)
		}
	}

	return best
}

// setObjective loads cost into the reduced-cost row and prices out the basis.
func (tb *tableau) setObjective(cost func(col int) float64) {
	obj, _ := tb.t.Row(tb.m)
	for j := 0; j <= tb.rhsCol; j++ {
		obj[j] = 0
	}
	for j := 0; j < tb.rhsCol; j++ {
		obj[j] = cost(j)
	}
	for i, b := range tb.basis {
		if cb := cost(b); cb != 0 {
			_ = tb.t.AddScaledRow(tb.m, i, -cb)
		}
	}
}

// driveOutArtificials pivots zero-level artificials out of the basis.
// Rows with no usable column are redundant and keep their artificial.
func (tb *tableau) driveOutArtificials() {
	for i, b := range tb.basis {
		if b < tb.artFrom {
			continue
		}
		row, _ := tb.t.Row(i)
		for j := 0; j < tb.artFrom; j++ {
			if math.Abs(row[j]) > 1e-9 {
				if tb.t.Pivot(i, j) == nil {
					tb.basis[i] = j
				}
				break
			}
		}
	}
}

// Solve minimizes m. ws may be nil. The model is not modified.
func (s *Solver) Solve(ctx context.Context, m *Model, ws *engine.WarmStart) engine.Solution {
	if err := m.Validate(); err != nil {
		return engine.Solution{Status: engine.Error}
	}
	sf, st := buildStandard(m, s.opts.Tol)
	if st != engine.Unknown {
		return engine.Solution{Status: st}
	}
	tb := newTableau(sf, ws, s.opts.Tol)

	// Phase I
	if tb.artFrom < tb.rhsCol {
		tb.setObjective(func(c int) float64 {
			if c >= tb.artFrom {
				return 1
			}
			return 0
		})
		st = tb.iterate(ctx, s.opts.MaxIter)
		if st != engine.Optimal {
			return engine.Solution{Status: phaseOneStatus(st), Iterations: tb.iters}
		}
		obj, _ := tb.t.Row(tb.m)
		if -obj[tb.rhsCol] > s.opts.FeasTol {
			return engine.Solution{Status: engine.Infeasible, Iterations: tb.iters}
		}
		tb.driveOutArtificials()
		for j := tb.artFrom; j < tb.rhsCol; j++ {
			tb.blocked[j] = true
		}
	}

	// Phase II
	tb.setObjective(func(c int) float64 {
		if c < tb.nY {
			return sf.cost[c]
		}
		return 0
	})
	st = tb.iterate(ctx, s.opts.MaxIter)
	if st != engine.Optimal {
		return engine.Solution{Status: st, Iterations: tb.iters}
	}

	return tb.extract(m, sf)
}

// Phase I cannot be unbounded (the artificial sum is bounded below by 0).
func phaseOneStatus(st engine.Status) engine.Status {
	if st == engine.Unbounded {
		return engine.Error
	}

	return st
}

func (tb *tableau) extract(m *Model, sf *standard) engine.Solution {
	var (
		y     = make([]float64, tb.nY)
		x     = make([]float64, m.NumCols())
		basic = make(map[int]struct{})
		row   []float64
		obj   float64
	)
	for i, b := range tb.basis {
		if b < tb.nY {
			row, _ = tb.t.Row(i)
			y[b] = math.Max(row[tb.rhsCol], 0)
			basic[sf.yOwner[b]] = struct{}{}
		}
	}
	for j, cm := range sf.cols {
		x[j] = cm.off
		if cm.plus >= 0 {
			x[j] += y[cm.plus]
		}
		if cm.minus >= 0 {
			x[j] -= y[cm.minus]
		}
		x[j] = math.Max(m.Lower[j], math.Min(m.Upper[j], x[j]))
		obj += m.Obj[j] * x[j]
	}
	bs := make([]int, 0, len(basic))
	for j := range basic {
		bs = append(bs, j)
	}
	sort.Ints(bs)

	return engine.Solution{Status: engine.Optimal, X: x, Objective: obj, Iterations: tb.iters, Basis: bs}
}
