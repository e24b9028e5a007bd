// SPDX-License-Identifier: MIT

package problem

import (
	"fmt"
	"math"
	"sort"

	"github.com/katalvlaran/parqg/matrix"
)

// Function is a real-valued function of the full variable vector.
//
// Gradient overwrites every entry of g (len(g) == len(x)). Implementations
// must be safe for concurrent use: workers evaluate shared functions in parallel.
type Function interface {
	Eval(x []float64) (float64, error)
	Gradient(x, g []float64) error
	IsLinear() bool
}

// Term is one coefficient of a linear function.
type Term struct {
	Var  int
	Coef float64
}

// LinearFunction is Σ Coef*x[Var] + Const with terms sorted by Var.
type LinearFunction struct {
	Terms []Term
	Const float64
}

// NewLinear merges duplicate variables, drops zeros and sorts terms by index.
func NewLinear(constant float64, terms ...Term) *LinearFunction {
	acc := make(map[int]float64, len(terms))
	for _, t := range terms {
		acc[t.Var] += t.Coef
	}
	out := &LinearFunction{Const: constant, Terms: make([]Term, 0, len(acc))}
	for v, c := range acc {
		if c != 0 {
			out.Terms = append(out.Terms, Term{Var: v, Coef: c})
		}
	}
	sort.Slice(out.Terms, func(i, j int) bool { return out.Terms[i].Var < out.Terms[j].Var })

	return out
}

// Eval implements Function.
func (f *LinearFunction) Eval(x []float64) (float64, error) {
	s := f.Const
	for _, t := range f.Terms {
		if t.Var < 0 || t.Var >= len(x) {
			return 0, ErrUnknownVar
		}
		s += t.Coef * x[t.Var]
	}

	return s, nil
}

// Gradient implements Function.
func (f *LinearFunction) Gradient(x, g []float64) error {
	if len(g) != len(x) {
		return ErrDimension
	}
	clear(g)
	for _, t := range f.Terms {
		if t.Var < 0 || t.Var >= len(g) {
			return ErrUnknownVar
		}
		g[t.Var] += t.Coef
	}

	return nil
}

// IsLinear implements Function.
func (f *LinearFunction) IsLinear() bool { return true }

// QuadraticFunction is xs'·Q·xs + Lin(x), where xs = x restricted to Vars.
type QuadraticFunction struct {
	Vars []int
	Q    *matrix.Dense
	Lin  *LinearFunction
}

// NewQuadratic validates that Q is len(vars)×len(vars). lin may be nil.
func NewQuadratic(vars []int, q *matrix.Dense, lin *LinearFunction) (*QuadraticFunction, error) {
	if q == nil || q.Rows() != len(vars) || q.Cols() != len(vars) {
		return nil, fmt.Errorf("NewQuadratic: %w", matrix.ErrDimensionMismatch)
	}
	if lin == nil {
		lin = &LinearFunction{}
	}

	return &QuadraticFunction{Vars: append([]int(nil), vars...), Q: q, Lin: lin}, nil
}

func (f *QuadraticFunction) gather(x []float64) ([]float64, error) {
	xs := make([]float64, len(f.Vars))
	for i, v := range f.Vars {
		if v < 0 || v >= len(x) {
			return nil, ErrUnknownVar
		}
		xs[i] = x[v]
	}

	return xs, nil
}

// Eval implements Function.
func (f *QuadraticFunction) Eval(x []float64) (float64, error) {
	xs, err := f.gather(x)
	if err != nil {
		return 0, err
	}
	q, err := matrix.QuadForm(f.Q, xs)
	if err != nil {
		return 0, err
	}
	l, err := f.Lin.Eval(x)
	if err != nil {
		return 0, err
	}

	return q + l, nil
}

// Gradient implements Function: (Q + Q')·xs scattered, plus the linear part.
func (f *QuadraticFunction) Gradient(x, g []float64) error {
	xs, err := f.gather(x)
	if err != nil {
		return err
	}
	if err = f.Lin.Gradient(x, g); err != nil {
		return err
	}
	var (
		qx  = make([]float64, len(xs))
		qtx = make([]float64, len(xs))
	)
	if err = matrix.MatVec(f.Q, xs, qx); err != nil {
		return err
	}
	if err = matrix.MatTVec(f.Q, xs, qtx); err != nil {
		return err
	}
	for i, v := range f.Vars {
		g[v] += qx[i] + qtx[i]
	}

	return nil
}

// IsLinear implements Function.
func (f *QuadraticFunction) IsLinear() bool { return false }

// closureFunc adapts plain Go functions.
type closureFunc struct {
	eval func(x []float64) float64
	grad func(x, g []float64)
}

// FuncOf wraps eval as a nonlinear Function. When grad is nil the gradient is
// approximated by central differences with step 1e-6*max(1, |x_i|).
func FuncOf(eval func(x []float64) float64, grad func(x, g []float64)) Function {
	return &closureFunc{eval: eval, grad: grad}
}

func (f *closureFunc) Eval(x []float64) (float64, error) {
	v := f.eval(x)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v, ErrEval
	}

	return v, nil
}

func (f *closureFunc) Gradient(x, g []float64) error {
	if len(g) != len(x) {
		return ErrDimension
	}
	if f.grad != nil {
		f.grad(x, g)
		return checkFinite(g)
	}

	return CentralDifference(f.eval, x, g)
}

func (f *closureFunc) IsLinear() bool { return false }

// CentralDifference fills g with a central-difference gradient of eval at x.
// x is restored before returning.
func CentralDifference(eval func(x []float64) float64, x, g []float64) error {
	var (
		h, orig, fp, fm float64
		xp              = append([]float64(nil), x...)
	)
	for i := range xp {
		orig = xp[i]
		h = 1e-6 * math.Max(1, math.Abs(orig))
		xp[i] = orig + h
		fp = eval(xp)
		xp[i] = orig - h
		fm = eval(xp)
		xp[i] = orig
		g[i] = (fp - fm) / (2 * h)
	}

	return checkFinite(g)
}

func checkFinite(g []float64) error {
	for _, v := range g {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrEval
		}
	}

	return nil
}

// sumFunc adds functions; it is linear only when every part is.
type sumFunc struct {
	parts []Function
}

// SumOf returns f1 + f2 + ... .
func SumOf(parts ...Function) Function {
	return &sumFunc{parts: parts}
}

func (f *sumFunc) Eval(x []float64) (float64, error) {
	var s float64
	for _, p := range f.parts {
		v, err := p.Eval(x)
		if err != nil {
			return 0, err
		}
		s += v
	}

	return s, nil
}

func (f *sumFunc) Gradient(x, g []float64) error {
	clear(g)
	tmp := make([]float64, len(g))
	for _, p := range f.parts {
		if err := p.Gradient(x, tmp); err != nil {
			return err
		}
		for i := range g {
			g[i] += tmp[i]
		}
	}

	return nil
}

func (f *sumFunc) IsLinear() bool {
	for _, p := range f.parts {
		if !p.IsLinear() {
			return false
		}
	}

	return true
}
