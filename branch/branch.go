// SPDX-License-Identifier: MIT

// Package branch chooses branching variables and builds child bound changes.
//
// A Brancher receives the relaxation point of a node whose discrete variables
// are not all integral and returns the branches that define its children.
// The first branch returned is the preferred one; the tree manager dives into
// it when diving is enabled.
//
// Policies:
//   - MostFractional: fractional part closest to 1/2 (ties: lowest index).
//   - FirstFractional: lowest-index fractional variable.
//   - MaxObjective: largest |objective coefficient| among fractional variables.
//   - PseudoCost: product score of per-variable down/up degradation averages,
//     shared across workers through read-only snapshots.
package branch

import (
	"errors"
	"fmt"
	"math"

	"github.com/katalvlaran/parqg/problem"
)

// ErrUnknownPolicy is returned by New for an unregistered policy name.
var ErrUnknownPolicy = errors.New("branch: unknown policy")

// Direction tells which side of the split a branch takes.
type Direction int

const (
	// Down restricts the variable to <= floor(value).
	Down Direction = iota
	// Up restricts the variable to >= ceil(value).
	Up
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == Down {
		return "down"
	}

	return "up"
}

// Branch is one child-defining restriction.
type Branch struct {
	Var     int
	Dir     Direction
	Value   float64 // relaxation value of Var at the parent
	Changes []problem.BoundChange
}

// String implements fmt.Stringer.
func (b Branch) String() string {
	return fmt.Sprintf("%s x%d (%.6g) %v", b.Dir, b.Var, b.Value, b.Changes)
}

// Frac returns the distance from Value to the bound this branch imposes.
func (b Branch) Frac() float64 {
	f := b.Value - math.Floor(b.Value)
	if b.Dir == Up {
		return 1 - f
	}

	return f
}

// Candidate is the branching input for one node.
type Candidate struct {
	X      []float64         // relaxation point over problem variables
	Lower  []float64         // node bounds
	Upper  []float64         // node bounds
	Types  []problem.VarType // variable types
	Obj    []float64         // objective gradient at X (for MaxObjective)
	IntTol float64
	NodeLb float64
}

// fractional lists discrete variables whose value is not integral.
func (c Candidate) fractional() []int {
	var out []int
	for j, t := range c.Types {
		if t.Discrete() && c.Lower[j] < c.Upper[j] && problem.Fractional(c.X[j], c.IntTol) {
			out = append(out, j)
		}
	}

	return out
}

// Brancher proposes child branches; nil means no fractional variable.
type Brancher interface {
	Branch(c Candidate) []Branch
	Name() string
}

// Split returns the down and up branches of variable j, preferred side first.
// A fractional value splits at floor/ceil. An integral value v splits into
// [lo, v] / [v+1, hi], or [lo, v-1] / [v, hi] when v is the upper bound, so
// both children shrink the domain.
func Split(c Candidate, j int) []Branch {
	var (
		v      = c.X[j]
		lo, hi = c.Lower[j], c.Upper[j]
		dHi    float64
		uLo    float64
	)
	if problem.Fractional(v, c.IntTol) {
		dHi, uLo = math.Floor(v), math.Ceil(v)
	} else {
		r := math.Round(v)
		if r < hi {
			dHi, uLo = r, r+1
		} else {
			dHi, uLo = r-1, r
		}
	}
	down := Branch{Var: j, Dir: Down, Value: v, Changes: []problem.BoundChange{{Var: j, Lower: lo, Upper: dHi}}}
	up := Branch{Var: j, Dir: Up, Value: v, Changes: []problem.BoundChange{{Var: j, Lower: uLo, Upper: hi}}}
	if v-math.Floor(v) >= 0.5 {
		return []Branch{up, down}
	}

	return []Branch{down, up}
}

// FixingBranches splits the lowest-index unfixed discrete variable at its
// current value. It serves nodes whose point is integral but which could not
// be resolved by cuts; nil means every discrete variable is fixed.
func FixingBranches(c Candidate) []Branch {
	for j, t := range c.Types {
		if t.Discrete() && c.Lower[j] < c.Upper[j] {
			x := c
			x.X = append([]float64(nil), c.X...)
			x.X[j] = math.Max(c.Lower[j], math.Min(c.Upper[j], math.Round(c.X[j])))
			return Split(x, j)
		}
	}

	return nil
}

// ---------------------------
// Simple policies
// ---------------------------

// MostFractional branches on the variable whose fractional part is closest to 1/2.
type MostFractional struct{}

// Name implements Brancher.
func (MostFractional) Name() string { return "most-fractional" }

// Branch implements Brancher.
func (MostFractional) Branch(c Candidate) []Branch {
	var (
		best      = -1
		bestScore float64
	)
	for _, j := range c.fractional() {
		f := c.X[j] - math.Floor(c.X[j])
		s := math.Min(f, 1-f)
		if best < 0 || s > bestScore {
			best, bestScore = j, s
		}
	}
	if best < 0 {
		return nil
	}

	return Split(c, best)
}

// FirstFractional branches on the lowest-index fractional variable.
type FirstFractional struct{}

// Name implements Brancher.
func (FirstFractional) Name() string { return "first-fractional" }

// Branch implements Brancher.
func (FirstFractional) Branch(c Candidate) []Branch {
	fr := c.fractional()
	if len(fr) == 0 {
		return nil
	}

	return Split(c, fr[0])
}

// MaxObjective branches on the fractional variable with the largest
// |objective coefficient|, falling back to MostFractional without objective data.
type MaxObjective struct{}

// Name implements Brancher.
func (MaxObjective) Name() string { return "max-objective" }

// Branch implements Brancher.
func (MaxObjective) Branch(c Candidate) []Branch {
	if len(c.Obj) != len(c.X) {
		return MostFractional{}.Branch(c)
	}
	var (
		best      = -1
		bestScore float64
	)
	for _, j := range c.fractional() {
		if s := math.Abs(c.Obj[j]); best < 0 || s > bestScore {
			best, bestScore = j, s
		}
	}
	if best < 0 {
		return nil
	}

	return Split(c, best)
}

// New returns the policy registered under name.
func New(name string) (Brancher, error) {
	switch name {
	case "", "pseudo-cost":
		return NewPseudoCost(), nil
	case "most-fractional":
		return MostFractional{}, nil
	case "first-fractional":
		return FirstFractional{}, nil
	case "max-objective":
		return MaxObjective{}, nil
	default:
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownPolicy)
	}
}
