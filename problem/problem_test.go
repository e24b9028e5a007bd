// SPDX-License-Identifier: MIT
// Package problem_test validates model construction, functions and scoped fixing.
package problem_test

import (
	"math"
	"testing"

	"github.com/katalvlaran/parqg/matrix"
	"github.com/katalvlaran/parqg/problem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var inf = math.Inf(1)

// ---------------------------
// Construction & validation
// ---------------------------

func TestAddVarGuards(t *testing.T) {
	p := problem.New("guards")

	_, err := p.AddVar("bad", problem.Continuous, 2, 1)
	require.ErrorIs(t, err, problem.ErrBadBounds)

	_, err = p.AddVar("z", problem.Integer, 0, inf)
	require.ErrorIs(t, err, problem.ErrUnboundedDiscrete)

	id, err := p.AddVar("b", problem.Binary, -5, 5) // clipped to [0,1]
	require.NoError(t, err)
	v := p.Var(id)
	require.Equal(t, 0.0, v.Lower)
	require.Equal(t, 1.0, v.Upper)
	require.Equal(t, []int{id}, p.Discrete())
}

func TestNonlinearRowMustBeUpperBounded(t *testing.T) {
	p := problem.New("form")
	x, _ := p.AddVar("x", problem.Continuous, -1, 1)
	sq := problem.FuncOf(func(v []float64) float64 { return v[x] * v[x] }, nil)

	_, err := p.AddConstraint("two-sided", sq, 0.5, 1)
	require.ErrorIs(t, err, problem.ErrNonconvexForm)

	_, err = p.AddConstraint("ok", sq, -inf, 1)
	require.NoError(t, err)
	require.Len(t, p.NonlinearConstraints(), 1)
	require.Empty(t, p.LinearConstraints())

	require.ErrorIs(t, p.Validate(), problem.ErrNilFunction) // no objective yet
	require.NoError(t, p.SetObjective(problem.NewLinear(0, problem.Term{Var: x, Coef: 1})))
	require.NoError(t, p.Validate())
}

// ---------------------------
// Functions
// ---------------------------

func TestLinearFunctionMergesTerms(t *testing.T) {
	f := problem.NewLinear(1, problem.Term{Var: 2, Coef: 1}, problem.Term{Var: 0, Coef: 3},
		problem.Term{Var: 2, Coef: 1}, problem.Term{Var: 1, Coef: 0})
	require.Equal(t, []problem.Term{{Var: 0, Coef: 3}, {Var: 2, Coef: 2}}, f.Terms)

	v, err := f.Eval([]float64{1, 7, 2})
	require.NoError(t, err)
	require.Equal(t, 8.0, v)

	g := make([]float64, 3)
	require.NoError(t, f.Gradient([]float64{9, 9, 9}, g))
	require.Equal(t, []float64{3, 0, 2}, g)
}

func TestQuadraticGradientMatchesFiniteDifference(t *testing.T) {
	q, err := matrix.NewDenseFrom([][]float64{{2, 1}, {0, 1}})
	require.NoError(t, err)
	f, err := problem.NewQuadratic([]int{0, 2}, q, problem.NewLinear(0, problem.Term{Var: 1, Coef: -1}))
	require.NoError(t, err)

	x := []float64{1.5, -2, 0.5}
	val, err := f.Eval(x)
	require.NoError(t, err)
	// 2*1.5^2 + 1*1.5*0.5 + 0.5^2 + 2 = 4.5 + 0.75 + 0.25 + 2
	assert.InDelta(t, 7.5, val, 1e-12)

	g := make([]float64, 3)
	require.NoError(t, f.Gradient(x, g))

	fd := make([]float64, 3)
	eval := func(v []float64) float64 { r, _ := f.Eval(v); return r }
	require.NoError(t, problem.CentralDifference(eval, x, fd))
	for i := range g {
		assert.InDelta(t, fd[i], g[i], 1e-6, "component %d", i)
	}
}

func TestLinearizeSum(t *testing.T) {
	f := problem.SumOf(
		problem.NewLinear(1, problem.Term{Var: 0, Coef: 2}),
		problem.NewLinear(-3, problem.Term{Var: 1, Coef: 4}),
	)
	require.True(t, f.IsLinear())
	lf, err := problem.Linearize(f, 2)
	require.NoError(t, err)
	require.Equal(t, -2.0, lf.Const)
	require.Equal(t, []problem.Term{{Var: 0, Coef: 2}, {Var: 1, Coef: 4}}, lf.Terms)
}

// ---------------------------
// Scoped fixing
// ---------------------------

func TestFixDiscreteReleaseRestoresBounds(t *testing.T) {
	p := problem.New("fix")
	x, _ := p.AddVar("x", problem.Continuous, 0, 4)
	y, _ := p.AddVar("y", problem.Integer, 0, 5)
	b, _ := p.AddVar("b", problem.Binary, 0, 1)

	fix, err := problem.FixDiscrete(p, []float64{1.3, 2.6, 0.9999})
	require.NoError(t, err)
	require.Equal(t, 2, fix.Len())
	require.True(t, p.Var(y).Fixed())
	require.Equal(t, 3.0, p.Var(y).Lower)
	require.Equal(t, 1.0, p.Var(b).Upper)
	require.False(t, p.Var(x).Fixed())

	fix.Release()
	fix.Release() // idempotent
	require.Equal(t, 0.0, p.Var(y).Lower)
	require.Equal(t, 5.0, p.Var(y).Upper)
	require.Equal(t, 0.0, p.Var(b).Lower)
}

func TestCloneHasIndependentBounds(t *testing.T) {
	p := problem.New("clone")
	y, _ := p.AddVar("y", problem.Integer, 0, 5)
	c := p.Clone()
	_, err := c.ChangeBound(problem.BoundChange{Var: y, Lower: 2, Upper: 2})
	require.NoError(t, err)
	require.Equal(t, 0.0, p.Var(y).Lower)
	_, err = c.ChangeBound(problem.BoundChange{Var: 9})
	require.ErrorIs(t, err, problem.ErrUnknownVar)
}

// ---------------------------
// Tolerances
// ---------------------------

func TestTolerances(t *testing.T) {
	tol := problem.Tolerances{Abs: 1e-6, Rel: 1e-3}

	require.False(t, tol.Exceeds(1e-7, 0))
	require.True(t, tol.Exceeds(1e-5, 0))
	require.True(t, tol.Exceeds(1e-7, 1e-5)) // relative side fires for tiny refs

	require.True(t, tol.Close(9.995, 10)) // relative
	require.True(t, tol.Close(-1e-7, 0))  // absolute
	require.False(t, tol.Close(9.9, 10))  // neither
	require.True(t, problem.Fractional(0.5, 1e-6))
	require.False(t, problem.Fractional(2.0000001, 1e-6))
}
