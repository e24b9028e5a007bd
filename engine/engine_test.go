// SPDX-License-Identifier: MIT
package engine_test

import (
	"testing"

	"github.com/katalvlaran/parqg/engine"
	"github.com/stretchr/testify/require"
)

func TestStatusPredicates(t *testing.T) {
	cases := []struct {
		status     engine.Status
		optimal    bool
		infeasible bool
	}{
		{engine.Optimal, true, false},
		{engine.LocalOptimal, true, false},
		{engine.Infeasible, false, true},
		{engine.LocalInfeasible, false, true},
		{engine.ObjectiveCutoff, false, true},
		{engine.IterationLimit, false, false},
		{engine.Unbounded, false, false},
		{engine.Error, false, false},
		{engine.Unknown, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.status.String(), func(t *testing.T) {
			s := engine.Solution{Status: tc.status}
			require.Equal(t, tc.optimal, s.IsOptimal())
			require.Equal(t, tc.infeasible, s.IsInfeasible())
		})
	}
	require.Equal(t, "Status(42)", engine.Status(42).String())
}

func TestWarmStartFromSolution(t *testing.T) {
	require.Nil(t, engine.FromSolution(engine.Solution{Status: engine.Infeasible}))

	sol := engine.Solution{Status: engine.Optimal, X: []float64{1, 2}, Basis: []int{0}, Objective: 3}
	ws := engine.FromSolution(sol)
	require.NotNil(t, ws)
	sol.X[0] = 99 // copy is independent
	require.Equal(t, []float64{1, 2}, ws.X)
	require.Equal(t, 3.0, ws.Objective)

	var nilWS *engine.WarmStart
	require.Nil(t, nilWS.Clone())
}
