// SPDX-License-Identifier: MIT

package relax

import (
	"fmt"
	"math"

	"github.com/katalvlaran/parqg/cutpool"
	"github.com/katalvlaran/parqg/problem"
)

// Preprocessor contributes tightened bounds and extra cuts to the root
// relaxation. It runs once per solve.
type Preprocessor interface {
	Preprocess(p *problem.Problem) ([]problem.BoundChange, []cutpool.Cut, error)
}

// SingletonBounds turns linear constraints with a single variable into bounds
// and rounds the bounds of discrete variables inward.
type SingletonBounds struct {
	// Tol absorbs round-off when rounding discrete bounds.
	Tol float64
}

// Preprocess implements Preprocessor.
func (s SingletonBounds) Preprocess(p *problem.Problem) ([]problem.BoundChange, []cutpool.Cut, error) {
	tol := s.Tol
	if tol <= 0 {
		tol = 1e-9
	}
	lower, upper := p.Bounds()
	for _, c := range p.LinearConstraints() {
		lf, err := problem.Linearize(c.F, p.NumVars())
		if err != nil {
			return nil, nil, err
		}
		if len(lf.Terms) != 1 {
			continue
		}
		var (
			t      = lf.Terms[0]
			lo, hi = (c.Lower - lf.Const) / t.Coef, (c.Upper - lf.Const) / t.Coef
		)
		if t.Coef < 0 {
			lo, hi = hi, lo
		}
		lower[t.Var] = math.Max(lower[t.Var], lo)
		upper[t.Var] = math.Min(upper[t.Var], hi)
	}

	var out []problem.BoundChange
	for _, v := range p.Vars() {
		lo, hi := lower[v.ID], upper[v.ID]
		if v.Type.Discrete() {
			lo, hi = math.Ceil(lo-tol), math.Floor(hi+tol)
		}
		if lo > hi+tol {
			return nil, nil, fmt.Errorf("relax: %s in [%g, %g]: %w", v.Name, lo, hi, ErrInfeasible)
		}
		if lo != v.Lower || hi != v.Upper {
			out = append(out, problem.BoundChange{Var: v.ID, Lower: lo, Upper: math.Max(lo, hi)})
		}
	}

	return out, nil, nil
}
