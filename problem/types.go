// SPDX-License-Identifier: MIT

package problem

import (
	"errors"
	"fmt"
	"math"
)

// Sentinel errors for model construction and validation.
var (
	// ErrBadBounds is returned when a variable or constraint has Lower > Upper
	// or a NaN bound.
	ErrBadBounds = errors.New("problem: invalid bounds")

	// ErrUnknownVar indicates a variable index outside [0, NumVars).
	ErrUnknownVar = errors.New("problem: unknown variable")

	// ErrUnboundedDiscrete indicates a binary/integer variable without finite bounds.
	ErrUnboundedDiscrete = errors.New("problem: discrete variable needs finite bounds")

	// ErrNonconvexForm indicates a nonlinear constraint with a finite lower bound;
	// only g(x) <= ub rows are accepted for nonlinear functions.
	ErrNonconvexForm = errors.New("problem: nonlinear constraint must be of the form g(x) <= ub")

	// ErrNilFunction indicates a constraint or objective without a function.
	ErrNilFunction = errors.New("problem: nil function")

	// ErrDimension indicates a point whose length does not match NumVars.
	ErrDimension = errors.New("problem: point dimension mismatch")

	// ErrEval indicates a function evaluation that produced NaN or Inf.
	ErrEval = errors.New("problem: function evaluation is not finite")
)

// VarType classifies a decision variable.
type VarType int

const (
	// Continuous variables take any real value within bounds.
	Continuous VarType = iota
	// Binary variables take values in {0, 1}.
	Binary
	// Integer variables take integral values within bounds.
	Integer
)

// String implements fmt.Stringer.
func (t VarType) String() string {
	switch t {
	case Continuous:
		return "continuous"
	case Binary:
		return "binary"
	case Integer:
		return "integer"
	default:
		return fmt.Sprintf("VarType(%d)", int(t))
	}
}

// Discrete reports whether the type requires integral values.
func (t VarType) Discrete() bool { return t == Binary || t == Integer }

// Variable is one decision variable. ID equals its index in the problem.
type Variable struct {
	ID    int
	Name  string
	Type  VarType
	Lower float64
	Upper float64
}

// Fixed reports whether the variable's bounds coincide.
func (v Variable) Fixed() bool { return v.Lower == v.Upper }

// Constraint is Lower <= F(x) <= Upper. Missing sides are ±Inf.
type Constraint struct {
	ID    int
	Name  string
	F     Function
	Lower float64
	Upper float64
}

// Linear reports whether the constraint function is linear.
func (c Constraint) Linear() bool { return c.F.IsLinear() }

// Objective is minimized.
type Objective struct {
	F Function
}

// Linear reports whether the objective function is linear.
func (o Objective) Linear() bool { return o.F == nil || o.F.IsLinear() }

// Problem is a minimization MINLP: variables with bounds and types, linear and
// nonlinear constraints, and a (possibly nonlinear) objective.
//
// Functions are stateless and shared between clones; bounds are per clone, so
// every worker can fix variables on its own copy without synchronization.
type Problem struct {
	Name string

	vars []Variable
	cons []Constraint
	obj  Objective
}

// New returns an empty problem.
func New(name string) *Problem {
	return &Problem{Name: name}
}

// AddVar appends a variable and returns its index.
// Binary bounds are intersected with [0, 1].
func (p *Problem) AddVar(name string, t VarType, lower, upper float64) (int, error) {
	if t == Binary {
		lower = math.Max(lower, 0)
		upper = math.Min(upper, 1)
	}
	if math.IsNaN(lower) || math.IsNaN(upper) || lower > upper {
		return -1, fmt.Errorf("AddVar(%q): %w", name, ErrBadBounds)
	}
	if t.Discrete() && (math.IsInf(lower, 0) || math.IsInf(upper, 0)) {
		return -1, fmt.Errorf("AddVar(%q): %w", name, ErrUnboundedDiscrete)
	}
	id := len(p.vars)
	p.vars = append(p.vars, Variable{ID: id, Name: name, Type: t, Lower: lower, Upper: upper})

	return id, nil
}

// AddConstraint appends lower <= f(x) <= upper and returns its index.
func (p *Problem) AddConstraint(name string, f Function, lower, upper float64) (int, error) {
	if f == nil {
		return -1, fmt.Errorf("AddConstraint(%q): %w", name, ErrNilFunction)
	}
	if math.IsNaN(lower) || math.IsNaN(upper) || lower > upper {
		return -1, fmt.Errorf("AddConstraint(%q): %w", name, ErrBadBounds)
	}
	if !f.IsLinear() && !math.IsInf(lower, -1) {
		return -1, fmt.Errorf("AddConstraint(%q): %w", name, ErrNonconvexForm)
	}
	id := len(p.cons)
	p.cons = append(p.cons, Constraint{ID: id, Name: name, F: f, Lower: lower, Upper: upper})

	return id, nil
}

// SetObjective installs the function to minimize.
func (p *Problem) SetObjective(f Function) error {
	if f == nil {
		return fmt.Errorf("SetObjective: %w", ErrNilFunction)
	}
	p.obj = Objective{F: f}

	return nil
}

// NumVars returns the number of variables.
func (p *Problem) NumVars() int { return len(p.vars) }

// NumConstraints returns the number of constraints.
func (p *Problem) NumConstraints() int { return len(p.cons) }

// Var returns variable i. It panics on a bad index like a slice access.
func (p *Problem) Var(i int) Variable { return p.vars[i] }

// Vars returns a copy of all variables.
func (p *Problem) Vars() []Variable {
	out := make([]Variable, len(p.vars))
	copy(out, p.vars)

	return out
}

// Constraints returns the constraint slice (read-only by convention).
func (p *Problem) Constraints() []Constraint { return p.cons }

// Objective returns the objective.
func (p *Problem) Objective() Objective { return p.obj }

// LinearConstraints returns the linear constraints in index order.
func (p *Problem) LinearConstraints() []Constraint {
	var out []Constraint
	for _, c := range p.cons {
		if c.Linear() {
			out = append(out, c)
		}
	}

	return out
}

// NonlinearConstraints returns the nonlinear constraints in index order.
func (p *Problem) NonlinearConstraints() []Constraint {
	var out []Constraint
	for _, c := range p.cons {
		if !c.Linear() {
			out = append(out, c)
		}
	}

	return out
}

// Discrete returns the indices of binary and integer variables.
func (p *Problem) Discrete() []int {
	var out []int
	for _, v := range p.vars {
		if v.Type.Discrete() {
			out = append(out, v.ID)
		}
	}

	return out
}

// Bounds returns copies of the lower and upper bound vectors.
func (p *Problem) Bounds() (lower, upper []float64) {
	lower = make([]float64, len(p.vars))
	upper = make([]float64, len(p.vars))
	for i, v := range p.vars {
		lower[i], upper[i] = v.Lower, v.Upper
	}

	return lower, upper
}

// Clone returns a copy with independent bounds. Functions are shared.
func (p *Problem) Clone() *Problem {
	out := &Problem{Name: p.Name, obj: p.obj}
	out.vars = append([]Variable(nil), p.vars...)
	out.cons = append([]Constraint(nil), p.cons...)

	return out
}

// Validate checks the model for the forms the solver supports.
func (p *Problem) Validate() error {
	if p.obj.F == nil {
		return fmt.Errorf("Validate: objective: %w", ErrNilFunction)
	}
	for _, v := range p.vars {
		if v.Lower > v.Upper {
			return fmt.Errorf("Validate: var %q: %w", v.Name, ErrBadBounds)
		}
		if v.Type.Discrete() && (math.IsInf(v.Lower, 0) || math.IsInf(v.Upper, 0)) {
			return fmt.Errorf("Validate: var %q: %w", v.Name, ErrUnboundedDiscrete)
		}
	}
	for _, c := range p.cons {
		if !c.Linear() && !math.IsInf(c.Lower, -1) {
			return fmt.Errorf("Validate: constraint %q: %w", c.Name, ErrNonconvexForm)
		}
	}

	return nil
}

// EvalObjective evaluates the objective at x.
func (p *Problem) EvalObjective(x []float64) (float64, error) {
	if len(x) != len(p.vars) {
		return 0, ErrDimension
	}

	return p.obj.F.Eval(x)
}
