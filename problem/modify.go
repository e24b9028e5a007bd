// SPDX-License-Identifier: MIT

package problem

import (
	"fmt"
	"math"
)

// BoundChange sets variable Var to [Lower, Upper].
type BoundChange struct {
	Var   int
	Lower float64
	Upper float64
}

// String implements fmt.Stringer.
func (b BoundChange) String() string {
	return fmt.Sprintf("x%d in [%g, %g]", b.Var, b.Lower, b.Upper)
}

// ChangeBound installs c and returns the change that restores the previous bounds.
func (p *Problem) ChangeBound(c BoundChange) (BoundChange, error) {
	if c.Var < 0 || c.Var >= len(p.vars) {
		return BoundChange{}, fmt.Errorf("ChangeBound(%d): %w", c.Var, ErrUnknownVar)
	}
	if math.IsNaN(c.Lower) || math.IsNaN(c.Upper) {
		return BoundChange{}, fmt.Errorf("ChangeBound(%d): %w", c.Var, ErrBadBounds)
	}
	v := &p.vars[c.Var]
	undo := BoundChange{Var: c.Var, Lower: v.Lower, Upper: v.Upper}
	v.Lower, v.Upper = c.Lower, c.Upper

	return undo, nil
}

// Fixing is a scoped set of bound changes. Release restores every bound
// in reverse order and is idempotent, so it is safe to defer.
type Fixing struct {
	p     *Problem
	saved []BoundChange
}

// Release undoes all changes held by f.
func (f *Fixing) Release() {
	if f == nil || f.p == nil {
		return
	}
	for i := len(f.saved) - 1; i >= 0; i-- {
		_, _ = f.p.ChangeBound(f.saved[i])
	}
	f.saved = nil
	f.p = nil
}

// Len returns the number of variables held fixed.
func (f *Fixing) Len() int { return len(f.saved) }

// FixDiscrete fixes every discrete variable to round(x[j]) clamped to its bounds.
func FixDiscrete(p *Problem, x []float64) (*Fixing, error) {
	if len(x) < len(p.vars) {
		return nil, fmt.Errorf("FixDiscrete: %w", ErrDimension)
	}
	f := &Fixing{p: p}
	for _, v := range p.vars {
		if !v.Type.Discrete() {
			continue
		}
		val := math.Max(v.Lower, math.Min(v.Upper, math.Round(x[v.ID])))
		undo, err := p.ChangeBound(BoundChange{Var: v.ID, Lower: val, Upper: val})
		if err != nil {
			f.Release()
			return nil, err
		}
		f.saved = append(f.saved, undo)
	}

	return f, nil
}

// Tolerances pairs an absolute and a relative tolerance.
type Tolerances struct {
	Abs float64 `yaml:"abs" json:"abs" toml:"abs"`
	Rel float64 `yaml:"rel" json:"rel" toml:"rel"`
}

// Exceeds reports whether excess is beyond the absolute tolerance, or beyond
// the relative tolerance scaled by |ref| when ref is non-zero.
func (t Tolerances) Exceeds(excess, ref float64) bool {
	return excess > t.Abs || (ref != 0 && excess > math.Abs(ref)*t.Rel)
}

// Close reports whether a >= b - tol in either the absolute or relative sense,
// i.e. a does not undercut b beyond tolerance.
func (t Tolerances) Close(a, b float64) bool {
	return a >= b-t.Abs || a >= b-math.Abs(b)*t.Rel
}

// Fractional reports whether v is farther than tol from the nearest integer.
func Fractional(v, tol float64) bool {
	return math.Abs(v-math.Round(v)) > tol
}

// Linearize returns f as an explicit LinearFunction over n variables.
// It requires f.IsLinear(); coefficients are read from the gradient at 0.
func Linearize(f Function, n int) (*LinearFunction, error) {
	if lf, ok := f.(*LinearFunction); ok {
		return lf, nil
	}
	if !f.IsLinear() {
		return nil, fmt.Errorf("Linearize: %w", ErrNonconvexForm)
	}
	var (
		zero = make([]float64, n)
		g    = make([]float64, n)
	)
	c, err := f.Eval(zero)
	if err != nil {
		return nil, err
	}
	if err = f.Gradient(zero, g); err != nil {
		return nil, err
	}
	terms := make([]Term, 0, n)
	for j, a := range g {
		if a != 0 {
			terms = append(terms, Term{Var: j, Coef: a})
		}
	}

	return NewLinear(c, terms...), nil
}
