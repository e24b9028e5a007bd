// SPDX-License-Identifier: MIT

// Package nlp is a convex continuous NLP engine (Kelley cutting planes).
//
// Rationale (succinct):
//  1. The continuous problem (discrete variables already fixed by bounds)
//     is approximated from outside by an LP: linear rows are copied, every
//     nonlinear row g(x) <= ub is replaced by tangent planes
//     g(x̂) + ∇g(x̂)·(x - x̂) <= ub, and a nonlinear objective is moved into
//     an epigraph column t with tangent planes f(x̂) + ∇f(x̂)·(x - x̂) <= t.
//  2. Each round solves the LP, evaluates the true functions at its optimum
//     x_k, and stops once no row (and no epigraph gap) is violated beyond
//     FeasTol. Otherwise tangents at x_k are added and the LP is re-solved,
//     warm-started from the previous basis.
//  3. The LP value is a valid lower bound for convex problems, so an LP
//     infeasibility proves NLP infeasibility, and an LP value at or above
//     the cutoff proves ObjectiveCutoff.
//  4. On infeasibility an elastic copy (every nonlinear row relaxed by a
//     shared s >= 0, minimize s) yields the point of least maximal violation.
//
// Complexity:
//   - Rounds bounded by MaxIter; each round is one warm-started LP solve plus
//     O(rows·n) function/gradient work.
package nlp

import (
	"context"
	"math"

	"github.com/katalvlaran/parqg/engine"
	"github.com/katalvlaran/parqg/lp"
	"github.com/katalvlaran/parqg/problem"
)

// Options configures the cutting-plane loop.
type Options struct {
	// MaxIter caps cutting-plane rounds of the main phase.
	MaxIter int `yaml:"max_iter" json:"max_iter" toml:"max_iter"`

	// FeasTol is the absolute violation accepted at termination.
	FeasTol float64 `yaml:"feas_tol" json:"feas_tol" toml:"feas_tol"`

	// FeasibilityIter caps rounds of the minimum-violation phase.
	FeasibilityIter int `yaml:"feasibility_iter" json:"feasibility_iter" toml:"feasibility_iter"`

	// LP configures the inner LP engine.
	LP lp.Options `yaml:"lp" json:"lp" toml:"lp"`
}

// DefaultOptions returns the defaults used by the solver.
func DefaultOptions() Options {
	return Options{MaxIter: 500, FeasTol: 1e-7, FeasibilityIter: 200, LP: lp.DefaultOptions()}
}

// Solver is stateless; one value may be shared by goroutines.
type Solver struct {
	opts Options
	lp   *lp.Solver
}

// NewSolver returns a Solver; zero fields of opts take their defaults.
func NewSolver(opts Options) *Solver {
	d := DefaultOptions()
	if opts.MaxIter <= 0 {
		opts.MaxIter = d.MaxIter
	}
	if opts.FeasTol <= 0 {
		opts.FeasTol = d.FeasTol
	}
	if opts.FeasibilityIter <= 0 {
		opts.FeasibilityIter = d.FeasibilityIter
	}

	return &Solver{opts: opts, lp: lp.NewSolver(opts.LP)}
}

// outer is the LP outer approximation under construction.
type outer struct {
	p      *problem.Problem
	n      int
	model  *lp.Model
	epi    int // epigraph column, -1 for a linear objective
	elast  int // elastic column of the feasibility phase, -1 otherwise
	objLin *problem.LinearFunction
	nl     []problem.Constraint
	grad   []float64
}

func newOuter(p *problem.Problem) (*outer, error) {
	var (
		n = p.NumVars()
		o = &outer{p: p, n: n, model: lp.NewModel(n), epi: -1, elast: -1,
			nl: p.NonlinearConstraints(), grad: make([]float64, n)}
	)
	o.model.Lower, o.model.Upper = p.Bounds()
	for _, c := range p.LinearConstraints() {
		lf, err := problem.Linearize(c.F, n)
		if err != nil {
			return nil, err
		}
		row := lp.Row{Name: c.Name, Lower: c.Lower - lf.Const, Upper: c.Upper - lf.Const}
		for _, t := range lf.Terms {
			row.Terms = append(row.Terms, lp.Term{Col: t.Var, Coef: t.Coef})
		}
		o.model.AddRow(row)
	}
	if obj := p.Objective(); obj.Linear() {
		lf, err := problem.Linearize(obj.F, n)
		if err != nil {
			return nil, err
		}
		o.objLin = lf
		for _, t := range lf.Terms {
			o.model.Obj[t.Var] = t.Coef
		}
	} else {
		o.epi = o.model.AddCol(1, math.Inf(-1), math.Inf(1))
	}

	return o, nil
}

// tangent appends f(x̂) + ∇f(x̂)(x - x̂) - extra <= ub, where extra is the
// epigraph or elastic column (-1 for none).
func (o *outer) tangent(f problem.Function, xh []float64, ub float64, extra int) error {
	fx, err := f.Eval(xh)
	if err != nil {
		return err
	}
	if err = f.Gradient(xh, o.grad); err != nil {
		return err
	}
	row := lp.Row{Lower: math.Inf(-1), Upper: ub - fx}
	for j, g := range o.grad {
		if g != 0 {
			row.Terms = append(row.Terms, lp.Term{Col: j, Coef: g})
			row.Upper += g * xh[j]
		}
	}
	if extra >= 0 {
		row.Terms = append(row.Terms, lp.Term{Col: extra, Coef: -1})
	}
	o.model.AddRow(row)

	return nil
}

// objective returns the true objective value at x.
func (o *outer) objective(x []float64) (float64, error) {
	return o.p.Objective().F.Eval(x)
}

// lowerBound returns the LP value in objective units.
func (o *outer) lowerBound(sol engine.Solution) float64 {
	if o.epi >= 0 {
		return sol.X[o.epi]
	}

	return sol.Objective + o.objLin.Const
}

// startPoint picks a point inside the bounds: midpoint, finite side, or 0.
func startPoint(lower, upper []float64) []float64 {
	x := make([]float64, len(lower))
	for j := range x {
		lo, hi := lower[j], upper[j]
		switch {
		case !math.IsInf(lo, 0) && !math.IsInf(hi, 0):
			x[j] = 0.5 * (lo + hi)
		case !math.IsInf(lo, 0):
			x[j] = lo
		case !math.IsInf(hi, 0):
			x[j] = hi
		}
	}

	return x
}

// Solve minimizes the continuous problem p. Discrete variables are expected
// to be fixed by their bounds; their integrality is not enforced here.
// cutoff = +Inf disables ObjectiveCutoff.
func (s *Solver) Solve(ctx context.Context, p *problem.Problem, cutoff float64) engine.Solution {
	o, err := newOuter(p)
	if err != nil {
		return engine.Solution{Status: engine.Error}
	}
	x0 := startPoint(o.model.Lower[:o.n], o.model.Upper[:o.n])
	for _, c := range o.nl {
		if err = o.tangent(c.F, x0, c.Upper, -1); err != nil {
			return engine.Solution{Status: engine.Error}
		}
	}
	if o.epi >= 0 {
		if err = o.tangent(p.Objective().F, x0, 0, o.epi); err != nil {
			return engine.Solution{Status: engine.Error}
		}
	}

	var (
		ws    *engine.WarmStart
		sol   engine.Solution
		xk    []float64
		iters int
	)
	for iters = 1; iters <= s.opts.MaxIter; iters++ {
		sol = s.lp.Solve(ctx, o.model, ws)
		switch sol.Status {
		case engine.Optimal:
		case engine.Infeasible:
			return s.minViolation(ctx, p, iters)
		case engine.Unbounded, engine.IterationLimit:
			return engine.Solution{Status: sol.Status, Iterations: iters}
		default:
			return engine.Solution{Status: engine.Error, Iterations: iters}
		}
		ws = engine.FromSolution(sol)
		xk = sol.X[:o.n]
		if o.lowerBound(sol) >= cutoff {
			return s.finish(o, engine.ObjectiveCutoff, xk, iters)
		}

		added := 0
		for _, c := range o.nl {
			gx, err := c.F.Eval(xk)
			if err != nil {
				return engine.Solution{Status: engine.Error, X: xk, Iterations: iters}
			}
			if gx-c.Upper > s.opts.FeasTol {
				if err = o.tangent(c.F, xk, c.Upper, -1); err != nil {
					return engine.Solution{Status: engine.Error, X: xk, Iterations: iters}
				}
				added++
			}
		}
		if o.epi >= 0 {
			fx, err := o.objective(xk)
			if err != nil {
				return engine.Solution{Status: engine.Error, X: xk, Iterations: iters}
			}
			if fx-sol.X[o.epi] > s.opts.FeasTol*math.Max(1, math.Abs(fx)) {
				if err = o.tangent(p.Objective().F, xk, 0, o.epi); err != nil {
					return engine.Solution{Status: engine.Error, X: xk, Iterations: iters}
				}
				added++
			}
		}
		if added == 0 {
			return s.finish(o, engine.Optimal, xk, iters)
		}
	}

	return s.finish(o, engine.IterationLimit, xk, s.opts.MaxIter)
}

func (s *Solver) finish(o *outer, st engine.Status, x []float64, iters int) engine.Solution {
	x = append([]float64(nil), x...)
	fx, err := o.objective(x)
	if err != nil {
		return engine.Solution{Status: engine.Error, X: x, Iterations: iters}
	}

	return engine.Solution{Status: st, X: x, Objective: fx, Iterations: iters}
}

// minViolation runs the elastic phase and reports Infeasible at the point of
// least maximal violation. X is nil when the linear rows alone are infeasible.
func (s *Solver) minViolation(ctx context.Context, p *problem.Problem, iters int) engine.Solution {
	o, err := newOuter(p)
	if err != nil {
		return engine.Solution{Status: engine.Error, Iterations: iters}
	}
	// the elastic phase ignores the objective
	if o.epi >= 0 {
		o.model.Obj[o.epi] = 0
		o.model.Lower[o.epi], o.model.Upper[o.epi] = 0, 0
	}
	for j := 0; j < o.n; j++ {
		o.model.Obj[j] = 0
	}
	o.elast = o.model.AddCol(1, 0, math.Inf(1))
	x0 := startPoint(o.model.Lower[:o.n], o.model.Upper[:o.n])
	for _, c := range o.nl {
		if err = o.tangent(c.F, x0, c.Upper, o.elast); err != nil {
			return engine.Solution{Status: engine.Error, Iterations: iters}
		}
	}

	var (
		ws   *engine.WarmStart
		sol  engine.Solution
		best []float64
	)
	for k := 0; k < s.opts.FeasibilityIter; k++ {
		sol = s.lp.Solve(ctx, o.model, ws)
		if sol.Status != engine.Optimal {
			break
		}
		ws = engine.FromSolution(sol)
		best = append(best[:0], sol.X[:o.n]...)
		added := 0
		for _, c := range o.nl {
			gx, err := c.F.Eval(best)
			if err != nil {
				return engine.Solution{Status: engine.Infeasible, X: best, Iterations: iters + k}
			}
			if gx-c.Upper-sol.X[o.elast] > s.opts.FeasTol {
				if err = o.tangent(c.F, best, c.Upper, o.elast); err != nil {
					return engine.Solution{Status: engine.Infeasible, X: best, Iterations: iters + k}
				}
				added++
			}
		}
		if added == 0 {
			break
		}
	}
	if best == nil {
		return engine.Solution{Status: engine.Infeasible, Iterations: iters, Objective: math.Inf(1)}
	}
	fx, _ := p.Objective().F.Eval(best)

	return engine.Solution{Status: engine.Infeasible, X: best, Objective: fx, Iterations: iters}
}
