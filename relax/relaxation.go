// SPDX-License-Identifier: MIT

// Package relax builds and maintains the linear relaxation a worker solves
// at every node: the linear rows of the problem, every outer-approximation
// cut accumulated so far, and the node's variable bounds.
//
// Column j < NumVars is problem variable j. A nonlinear objective adds one
// epigraph column eta (minimized) that cuts of kind cutpool.KindObjective
// bound from below. Cuts are globally valid, so a worker keeps them for the
// whole search; only bounds change from node to node.
package relax

import (
	"errors"
	"fmt"
	"math"

	"github.com/katalvlaran/parqg/cutpool"
	"github.com/katalvlaran/parqg/engine"
	"github.com/katalvlaran/parqg/lp"
	"github.com/katalvlaran/parqg/problem"
)

// Sentinel errors.
var (
	// ErrInfeasible reports bounds proven empty while building the relaxation.
	ErrInfeasible = errors.New("relax: empty variable domain")
	// ErrUnknownColumn is returned for a bound change on a missing variable.
	ErrUnknownColumn = errors.New("relax: unknown variable")
)

// Relaxation is one worker's LP relaxation. It is not safe for concurrent use.
type Relaxation struct {
	model     *lp.Model
	nVars     int
	epi       int // epigraph column, -1 for a linear objective
	objConst  float64
	rootLower []float64
	rootUpper []float64
	cuts      int
}

// Build returns the root relaxation of p. A non-nil pre contributes bound
// tightenings and cuts once, before anything else is added.
func Build(p *problem.Problem, pre Preprocessor) (*Relaxation, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var (
		n = p.NumVars()
		r = &Relaxation{model: lp.NewModel(n), nVars: n, epi: -1}
	)
	r.model.Lower, r.model.Upper = p.Bounds()
	for _, c := range p.LinearConstraints() {
		lf, err := problem.Linearize(c.F, n)
		if err != nil {
			return nil, fmt.Errorf("relax: constraint %q: %w", c.Name, err)
		}
		row := lp.Row{Name: c.Name, Lower: c.Lower - lf.Const, Upper: c.Upper - lf.Const}
		for _, t := range lf.Terms {
			row.Terms = append(row.Terms, lp.Term{Col: t.Var, Coef: t.Coef})
		}
		r.model.AddRow(row)
	}
	if obj := p.Objective(); obj.Linear() {
		lf, err := problem.Linearize(obj.F, n)
		if err != nil {
			return nil, fmt.Errorf("relax: objective: %w", err)
		}
		for _, t := range lf.Terms {
			r.model.Obj[t.Var] = t.Coef
		}
		r.objConst = lf.Const
	} else {
		r.epi = r.model.AddCol(1, math.Inf(-1), math.Inf(1))
	}

	if pre != nil {
		changes, cuts, err := pre.Preprocess(p)
		if err != nil {
			return nil, err
		}
		for _, c := range changes {
			if c.Var < 0 || c.Var >= n {
				return nil, fmt.Errorf("relax: preprocess x%d: %w", c.Var, ErrUnknownColumn)
			}
			lo := math.Max(r.model.Lower[c.Var], c.Lower)
			hi := math.Min(r.model.Upper[c.Var], c.Upper)
			if lo > hi {
				return nil, fmt.Errorf("relax: preprocess %s: %w", c, ErrInfeasible)
			}
			r.model.Lower[c.Var], r.model.Upper[c.Var] = lo, hi
		}
		for _, c := range cuts {
			c.Kind = cutpool.KindPreprocess
			r.AddCut(c)
		}
	}
	r.rootLower = append([]float64(nil), r.model.Lower...)
	r.rootUpper = append([]float64(nil), r.model.Upper...)

	return r, nil
}

// Col maps a cut variable to a column of this relaxation.
func (r *Relaxation) Col(v int) (int, bool) {
	if v == cutpool.EpigraphVar {
		return r.epi, r.epi >= 0
	}

	return v, v >= 0 && v < r.nVars
}

// AddCut appends c as a row. It reports false when c references a column the
// relaxation does not have.
func (r *Relaxation) AddCut(c cutpool.Cut) bool {
	row, ok := cutpool.Remap(c, r.Col)
	if !ok {
		return false
	}
	row.Name = fmt.Sprintf("oa_%s_%d_%d", c.Kind, c.Origin, c.Seq)
	r.model.AddRow(row)
	r.cuts++

	return true
}

// Model returns the LP model. Callers must not keep it across AddCut calls.
func (r *Relaxation) Model() *lp.Model { return r.model }

// NumVars returns the number of problem variables.
func (r *Relaxation) NumVars() int { return r.nVars }

// NumCuts returns the number of cuts added since Build, preprocessing included.
func (r *Relaxation) NumCuts() int { return r.cuts }

// HasEpigraph reports whether the objective is modeled by an epigraph column.
func (r *Relaxation) HasEpigraph() bool { return r.epi >= 0 }

// Objective returns the relaxation objective of an LP solution.
func (r *Relaxation) Objective(sol engine.Solution) float64 {
	return sol.Objective + r.objConst
}

// Point returns the problem-variable part of an LP point.
func (r *Relaxation) Point(x []float64) []float64 {
	return append([]float64(nil), x[:r.nVars]...)
}

// EpigraphValue returns the epigraph column value of an LP point.
func (r *Relaxation) EpigraphValue(x []float64) (float64, bool) {
	if r.epi < 0 || r.epi >= len(x) {
		return 0, false
	}

	return x[r.epi], true
}

// Bounds returns copies of the current problem-variable bounds.
func (r *Relaxation) Bounds() (lower, upper []float64) {
	lower = append([]float64(nil), r.model.Lower[:r.nVars]...)
	upper = append([]float64(nil), r.model.Upper[:r.nVars]...)

	return lower, upper
}

// SetBound installs c on the relaxation.
func (r *Relaxation) SetBound(c problem.BoundChange) error {
	if c.Var < 0 || c.Var >= r.nVars {
		return fmt.Errorf("SetBound(%d): %w", c.Var, ErrUnknownColumn)
	}
	r.model.Lower[c.Var], r.model.Upper[c.Var] = c.Lower, c.Upper

	return nil
}

// ResetBounds restores the root bounds; cuts are kept.
func (r *Relaxation) ResetBounds() {
	copy(r.model.Lower, r.rootLower)
	copy(r.model.Upper, r.rootUpper)
}

// Clone returns an independent copy.
func (r *Relaxation) Clone() *Relaxation {
	out := *r
	out.model = r.model.Clone()
	out.rootLower = append([]float64(nil), r.rootLower...)
	out.rootUpper = append([]float64(nil), r.rootUpper...)

	return &out
}
