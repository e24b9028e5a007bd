// SPDX-License-Identifier: MIT
// Package lp_test validates the dense simplex on small hand-solved models.
// Focus:
//  1. Optimal vertices for mixed bound kinds (lower, upper, free, fixed).
//  2. Infeasible and unbounded detection.
//  3. Warm-start invariance of the optimum.
package lp_test

import (
	"context"
	"math"
	"testing"

	"github.com/katalvlaran/parqg/engine"
	"github.com/katalvlaran/parqg/lp"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

var inf = math.Inf(1)

// classic returns max x+y s.t. x+2y<=4, 3x+y<=6, x,y>=0 as a minimization.
func classic() *lp.Model {
	m := lp.NewModel(2)
	m.Obj = []float64{-1, -1}
	m.Lower = []float64{0, 0}
	m.AddRow(lp.Row{Terms: []lp.Term{{Col: 0, Coef: 1}, {Col: 1, Coef: 2}}, Lower: -inf, Upper: 4})
	m.AddRow(lp.Row{Terms: []lp.Term{{Col: 0, Coef: 3}, {Col: 1, Coef: 1}}, Lower: -inf, Upper: 6})

	return m
}

func solve(t *testing.T, m *lp.Model, ws *engine.WarmStart) engine.Solution {
	t.Helper()

	return lp.NewSolver(lp.DefaultOptions()).Solve(context.Background(), m, ws)
}

func TestClassicVertex(t *testing.T) {
	sol := solve(t, classic(), nil)
	require.Equal(t, engine.Optimal, sol.Status)
	require.InDelta(t, 1.6, sol.X[0], eps)
	require.InDelta(t, 1.2, sol.X[1], eps)
	require.InDelta(t, -2.8, sol.Objective, eps)
	require.Equal(t, []int{0, 1}, sol.Basis)
}

func TestWarmStartSameOptimum(t *testing.T) {
	m := classic()
	cold := solve(t, m, nil)
	warm := solve(t, m, engine.FromSolution(cold))
	require.Equal(t, engine.Optimal, warm.Status)
	require.InDelta(t, cold.Objective, warm.Objective, eps)

	// a bogus hint must not change the answer either
	odd := solve(t, m, &engine.WarmStart{Basis: []int{1, 7, -3}})
	require.InDelta(t, cold.Objective, odd.Objective, eps)
}

func TestBoundKinds(t *testing.T) {
	cases := []struct {
		name  string
		build func() *lp.Model
		x     []float64
		obj   float64
	}{
		{
			name: "upper-only",
			build: func() *lp.Model {
				m := lp.NewModel(1)
				m.Obj[0] = -1
				m.Upper[0] = 5
				return m
			},
			x: []float64{5}, obj: -5,
		},
		{
			name: "free-with-equality",
			build: func() *lp.Model {
				m := lp.NewModel(2) // x free, y in [0,2]
				m.Obj[0] = 1
				m.Lower[1], m.Upper[1] = 0, 2
				m.AddRow(lp.Row{Terms: []lp.Term{{Col: 0, Coef: 1}, {Col: 1, Coef: -1}}, Lower: -3, Upper: -3})
				return m
			},
			x: []float64{-3, 0}, obj: -3,
		},
		{
			name: "fixed-column",
			build: func() *lp.Model {
				m := lp.NewModel(2)
				m.Obj[1] = 1
				m.Lower[0], m.Upper[0] = 2, 2
				m.Lower[1] = -10
				m.AddRow(lp.Row{Terms: []lp.Term{{Col: 1, Coef: 1}, {Col: 0, Coef: -1}}, Lower: 0, Upper: inf})
				return m
			},
			x: []float64{2, 2}, obj: 2,
		},
		{
			name: "boxed-max",
			build: func() *lp.Model {
				m := lp.NewModel(2)
				m.Obj = []float64{-2, -3}
				m.Lower = []float64{0, 0}
				m.Upper = []float64{1, 1}
				m.AddRow(lp.Row{Terms: []lp.Term{{Col: 0, Coef: 1}, {Col: 1, Coef: 1}}, Lower: -inf, Upper: 1.5})
				return m
			},
			x: []float64{0.5, 1}, obj: -4,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sol := solve(t, tc.build(), nil)
			require.Equal(t, engine.Optimal, sol.Status)
			require.InDeltaSlice(t, tc.x, sol.X, 1e-9)
			require.InDelta(t, tc.obj, sol.Objective, 1e-9)
		})
	}
}

func TestInfeasibleAndUnbounded(t *testing.T) {
	m := lp.NewModel(1)
	m.Lower[0], m.Upper[0] = 0, 1
	m.AddRow(lp.Row{Terms: []lp.Term{{Col: 0, Coef: 1}}, Lower: 2, Upper: inf})
	require.Equal(t, engine.Infeasible, solve(t, m, nil).Status)

	crossed := lp.NewModel(1)
	crossed.Lower[0], crossed.Upper[0] = 3, 1
	require.Equal(t, engine.Infeasible, solve(t, crossed, nil).Status)

	constant := lp.NewModel(1)
	constant.Lower[0], constant.Upper[0] = 1, 1
	constant.AddRow(lp.Row{Terms: []lp.Term{{Col: 0, Coef: 2}}, Lower: -inf, Upper: 1})
	require.Equal(t, engine.Infeasible, solve(t, constant, nil).Status)

	u := lp.NewModel(1)
	u.Obj[0] = -1
	u.Lower[0] = 0
	require.Equal(t, engine.Unbounded, solve(t, u, nil).Status)
}

func TestInvalidModelIsError(t *testing.T) {
	m := lp.NewModel(1)
	m.AddRow(lp.Row{Terms: []lp.Term{{Col: 3, Coef: 1}}, Lower: 0, Upper: 1})
	require.ErrorIs(t, m.Validate(), lp.ErrColumn)
	require.Equal(t, engine.Error, solve(t, m, nil).Status)
}

func TestCancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sol := lp.NewSolver(lp.Options{}).Solve(ctx, classic(), nil)
	require.Equal(t, engine.Error, sol.Status)
}

func TestIterationCap(t *testing.T) {
	sol := lp.NewSolver(lp.Options{MaxIter: 1}).Solve(context.Background(), classic(), nil)
	require.Equal(t, engine.IterationLimit, sol.Status)
}

func TestModelCloneAndViolation(t *testing.T) {
	m := classic()
	c := m.Clone()
	c.Rows[0].Terms[0].Coef = 100
	require.Equal(t, 1.0, m.Rows[0].Terms[0].Coef)
	require.InDelta(t, 0.0, m.MaxViolation([]float64{1.6, 1.2}), 1e-12)
	require.InDelta(t, 1.0, m.MaxViolation([]float64{2, 1}), 1e-12)
}
