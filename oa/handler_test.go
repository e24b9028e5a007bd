// SPDX-License-Identifier: MIT
// Package oa_test covers NLP outcome dispatch and cut construction.
package oa_test

import (
	"context"
	"math"
	"testing"

	"github.com/katalvlaran/parqg/cutpool"
	"github.com/katalvlaran/parqg/engine"
	"github.com/katalvlaran/parqg/internal/testmodels"
	"github.com/katalvlaran/parqg/nlp"
	"github.com/katalvlaran/parqg/oa"
	"github.com/katalvlaran/parqg/problem"
	"github.com/katalvlaran/parqg/relax"
	"github.com/katalvlaran/parqg/solpool"
	"github.com/stretchr/testify/require"
)

// fakeEngine returns a canned solution and records what it was asked to solve.
type fakeEngine struct {
	sol          engine.Solution
	calls        int
	seen         *problem.Problem
	lower, upper []float64
}

func (f *fakeEngine) Solve(_ context.Context, p *problem.Problem, _ float64) engine.Solution {
	f.calls++
	f.seen = p
	f.lower, f.upper = p.Bounds()
	return f.sol
}

type fixture struct {
	h    *oa.Handler
	eng  *fakeEngine
	rel  *relax.Relaxation
	pool *cutpool.Pool
	sols *solpool.Pool
}

func newFixture(t *testing.T, p *problem.Problem, sol engine.Solution) fixture {
	t.Helper()
	rel, err := relax.Build(p, nil)
	require.NoError(t, err)
	f := fixture{
		eng:  &fakeEngine{sol: sol},
		rel:  rel,
		pool: cutpool.NewPool(0),
		sols: solpool.New(4),
	}
	f.h = oa.NewHandler(p, f.eng, f.pool, f.sols, oa.DefaultOptions())
	return f
}

func TestFractionalPointContinues(t *testing.T) {
	f := newFixture(t, testmodels.Disk(), engine.Solution{Status: engine.Optimal})
	st, found := f.h.Separate(context.Background(), []float64{1, 1, 0.5}, -1.5, f.rel)
	require.Equal(t, oa.Continue, st)
	require.False(t, found)
	require.Equal(t, 0, f.eng.calls)
}

func TestFeasibleWithinTolerancePrunesWithoutCut(t *testing.T) {
	sol := engine.Solution{Status: engine.Optimal, X: []float64{0.5, 0.5, 0}, Objective: -1}
	f := newFixture(t, testmodels.Disk(), sol)

	st, found := f.h.Separate(context.Background(), []float64{0.5, 0.5, 0}, -1, f.rel)
	require.Equal(t, oa.Prune, st)
	require.True(t, found)
	require.Equal(t, 0, f.pool.Len())
	require.Equal(t, 0, f.rel.NumCuts())
	require.Equal(t, -1.0, f.sols.BestValue())

	// the discrete variable was fixed for the solve and released afterwards
	require.Equal(t, 0.0, f.eng.upper[2])
	require.Equal(t, problem.Variable{ID: 2, Name: "y", Type: problem.Binary, Lower: 0, Upper: 1}, f.eng.seen.Var(2))
}

func TestInfeasibleNLPAddsCut(t *testing.T) {
	r := math.Sqrt(0.5)
	sol := engine.Solution{Status: engine.Infeasible, X: []float64{r, r, 0}}
	f := newFixture(t, testmodels.Disk(), sol)

	st, found := f.h.Separate(context.Background(), []float64{1, 1, 0}, -2, f.rel)
	require.Equal(t, oa.Resolve, st)
	require.False(t, found)
	require.Equal(t, 1, f.pool.Len())
	require.Equal(t, 1, f.rel.NumCuts())

	c := f.pool.Since(0)[0]
	require.Equal(t, cutpool.KindConstraint, c.Kind)
	require.InDelta(t, 2, c.Upper, 1e-9) // 2r*x1 + 2r*x2 - 3y <= 2
	require.Greater(t, c.Violation([]float64{1, 1, 0}, func(v int) (int, bool) { return v, true }), 0.5)
	require.Equal(t, oa.Stats{NLPSolved: 1, NLPInfeasible: 1, Cuts: 1}, f.h.Stats())
}

func TestOptimalButNotCloseResolves(t *testing.T) {
	r := math.Sqrt(0.5)
	sol := engine.Solution{Status: engine.Optimal, X: []float64{r, r, 0}, Objective: -2 * r}
	f := newFixture(t, testmodels.Disk(), sol)

	st, found := f.h.Separate(context.Background(), []float64{1, 1, 0}, -2, f.rel)
	require.Equal(t, oa.Resolve, st)
	require.True(t, found) // the NLP point still improves the incumbent
	require.InDelta(t, -2*r, f.sols.BestValue(), 1e-12)
	require.Equal(t, 1, f.rel.NumCuts())
}

func TestIterationLimitLinearizesAtRelaxationPoint(t *testing.T) {
	f := newFixture(t, testmodels.Disk(), engine.Solution{Status: engine.IterationLimit})

	st, _ := f.h.Separate(context.Background(), []float64{1, 1, 0}, -2, f.rel)
	require.Equal(t, oa.Resolve, st)
	c := f.pool.Since(0)[0]
	require.Equal(t, cutpool.KindEngineLimit, c.Kind)
	require.InDelta(t, 3, c.Upper, 1e-9) // 2x1 + 2x2 - 3y <= 3
}

func TestEngineErrorAddsNoCut(t *testing.T) {
	for _, status := range []engine.Status{engine.Error, engine.Unknown, engine.Unbounded} {
		f := newFixture(t, testmodels.Disk(), engine.Solution{Status: status})
		st, _ := f.h.Separate(context.Background(), []float64{1, 1, 0}, -2, f.rel)
		require.Equal(t, oa.Error, st, status.String())
		require.Equal(t, 0, f.pool.Len())
		require.Equal(t, 1, f.h.Stats().NLPError)
		require.Equal(t, status, f.h.LastNLP())
	}
}

func TestCutoffAtFeasiblePointPrunes(t *testing.T) {
	sol := engine.Solution{Status: engine.ObjectiveCutoff, X: []float64{0.5, 0.5, 0}}
	f := newFixture(t, testmodels.Disk(), sol)

	st, found := f.h.Separate(context.Background(), []float64{0.5, 0.5, 0}, -1, f.rel)
	require.Equal(t, oa.Prune, st)
	require.True(t, found)
	require.Equal(t, -1.0, f.sols.BestValue())
}

func TestNonlinearObjectiveCut(t *testing.T) {
	p := testmodels.Disk()
	require.NoError(t, p.SetObjective(problem.FuncOf(
		func(x []float64) float64 { return x[0]*x[0] + x[1]*x[1] - x[0] },
		func(x, g []float64) { g[0], g[1], g[2] = 2*x[0]-1, 2*x[1], 0 },
	)))
	sol := engine.Solution{Status: engine.Optimal, X: []float64{0.5, 0, 0}, Objective: -0.25}
	f := newFixture(t, p, sol)
	require.True(t, f.rel.HasEpigraph())

	st, _ := f.h.Separate(context.Background(), []float64{0.5, 0, 0, -5}, -5, f.rel)
	require.Equal(t, oa.Resolve, st)
	c := f.pool.Since(0)[0]
	require.Equal(t, cutpool.KindObjective, c.Kind)
	require.Equal(t, []problem.Term{{Var: cutpool.EpigraphVar, Coef: -1}}, c.Terms) // flat gradient at the minimizer
	require.InDelta(t, 0.25, c.Upper, 1e-12)

	require.False(t, f.h.IsFeasible([]float64{0.5, 0, 0}, -5))
	require.True(t, f.h.IsFeasible([]float64{0.5, 0, 0}, -0.25))
}

// TestGradientCutKeepsFeasiblePoint checks that a linearization of a convex
// constraint at a feasible point does not cut that point off.
func TestGradientCutKeepsFeasiblePoint(t *testing.T) {
	var (
		p   = testmodels.Disk()
		f   = newFixture(t, p, engine.Solution{})
		con = p.NonlinearConstraints()[0]
	)
	for _, z := range [][]float64{{0.3, 0.4, 0}, {1, 1, 1}, {0, 0, 0}, {1.9, 0.6, 1}} {
		gz, err := con.F.Eval(z)
		require.NoError(t, err)
		require.LessOrEqual(t, gz, con.Upper)

		terms, k, err := f.h.LinearAt(con.F, gz, z)
		require.NoError(t, err)
		var act float64
		for _, tm := range terms {
			act += tm.Coef * z[tm.Var]
		}
		require.LessOrEqual(t, act+k, con.Upper+1e-9)
		require.InDelta(t, gz, act+k, 1e-9) // tight at z
	}
}

func TestInitRelaxation(t *testing.T) {
	p := testmodels.Disk()
	rel, err := relax.Build(p, nil)
	require.NoError(t, err)
	pool := cutpool.NewPool(0)
	h := oa.NewHandler(p, nlp.NewSolver(nlp.DefaultOptions()), pool, solpool.New(1), oa.DefaultOptions())

	require.NoError(t, h.InitRelaxation(context.Background(), rel))
	require.Equal(t, 1, rel.NumCuts())
	require.Equal(t, cutpool.KindRoot, pool.Since(0)[0].Kind)
	require.Equal(t, 1, h.Stats().NLPFeasible)

	f := newFixture(t, testmodels.Infeasible(), engine.Solution{Status: engine.Infeasible})
	require.ErrorIs(t, f.h.InitRelaxation(context.Background(), f.rel), oa.ErrRootInfeasible)
}

func TestInitRelaxationFallsBackToMidpoint(t *testing.T) {
	f := newFixture(t, testmodels.Disk(), engine.Solution{Status: engine.Error})
	require.NoError(t, f.h.InitRelaxation(context.Background(), f.rel))
	require.Equal(t, 1, f.rel.NumCuts())
	// tangent at the bound midpoint (1, 1, 0.5): 2x1 + 2x2 - 3y <= 3
	c := f.pool.Since(0)[0]
	require.InDelta(t, 3, c.Upper, 1e-9)
}

func TestSeparationStatusString(t *testing.T) {
	require.Equal(t, "resolve", oa.Resolve.String())
	require.Equal(t, "SeparationStatus(9)", oa.SeparationStatus(9).String())
}
