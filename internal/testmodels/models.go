// SPDX-License-Identifier: MIT

// Package testmodels builds small convex MINLPs shared by tests.
package testmodels

import (
	"fmt"
	"math"

	"github.com/katalvlaran/parqg/matrix"
	"github.com/katalvlaran/parqg/problem"
)

// Disk is
//
//	min  -x1 - x2 + y
//	s.t. x1² + x2² - 3y <= 1
//	     x1, x2 in [0, 2], y binary
//
// with optimum -2*sqrt(2)+1 at y = 1, x1 = x2 = sqrt(2).
func Disk() *problem.Problem {
	p := problem.New("disk")
	must(p.AddVar("x1", problem.Continuous, 0, 2))
	must(p.AddVar("x2", problem.Continuous, 0, 2))
	must(p.AddVar("y", problem.Binary, 0, 1))
	must(p.AddConstraint("disk", circle(0, 1, 2, 3), math.Inf(-1), 1))
	check(p.SetObjective(problem.NewLinear(0,
		problem.Term{Var: 0, Coef: -1}, problem.Term{Var: 1, Coef: -1}, problem.Term{Var: 2, Coef: 1})))

	return p
}

// SynthesisOptimum is the optimal value of Synthesis.
const SynthesisOptimum = -2.5

// Synthesis is a five-variable process-selection problem:
//
//	min  -2x1 - 1.5x2 + 1.2y1 + 0.3y2 + 0.4y3
//	s.t. x1² + x2² - 3y1 <= 1
//	     x1 - 2y2 <= 0
//	     x2 - 2y3 <= 0
//	     y1 + y2 + y3 <= 2
//	     x1, x2 in [0, 2], y binary
//
// The optimum -2.5 is attained at y = (1, 1, 0), x = (2, 0).
func Synthesis() *problem.Problem {
	p := problem.New("synthesis")
	must(p.AddVar("x1", problem.Continuous, 0, 2))
	must(p.AddVar("x2", problem.Continuous, 0, 2))
	must(p.AddVar("y1", problem.Binary, 0, 1))
	must(p.AddVar("y2", problem.Binary, 0, 1))
	must(p.AddVar("y3", problem.Binary, 0, 1))
	must(p.AddConstraint("capacity", circle(0, 1, 2, 3), math.Inf(-1), 1))
	must(p.AddConstraint("link1", problem.NewLinear(0,
		problem.Term{Var: 0, Coef: 1}, problem.Term{Var: 3, Coef: -2}), math.Inf(-1), 0))
	must(p.AddConstraint("link2", problem.NewLinear(0,
		problem.Term{Var: 1, Coef: 1}, problem.Term{Var: 4, Coef: -2}), math.Inf(-1), 0))
	must(p.AddConstraint("select", problem.NewLinear(0,
		problem.Term{Var: 2, Coef: 1}, problem.Term{Var: 3, Coef: 1}, problem.Term{Var: 4, Coef: 1}), math.Inf(-1), 2))
	check(p.SetObjective(problem.NewLinear(0,
		problem.Term{Var: 0, Coef: -2}, problem.Term{Var: 1, Coef: -1.5},
		problem.Term{Var: 2, Coef: 1.2}, problem.Term{Var: 3, Coef: 0.3}, problem.Term{Var: 4, Coef: 0.4})))

	return p
}

// Infeasible requires x1 + x2 >= 3 inside the disk x1² + x2² <= 4.
func Infeasible() *problem.Problem {
	p := problem.New("infeasible")
	must(p.AddVar("x1", problem.Continuous, 0, 2))
	must(p.AddVar("x2", problem.Continuous, 0, 2))
	must(p.AddVar("y", problem.Binary, 0, 1))
	must(p.AddConstraint("disk", circle(0, 1, 2, 0), math.Inf(-1), 4))
	must(p.AddConstraint("reach", problem.NewLinear(0,
		problem.Term{Var: 0, Coef: 1}, problem.Term{Var: 1, Coef: 1}), 3, math.Inf(1)))
	check(p.SetObjective(problem.NewLinear(0, problem.Term{Var: 2, Coef: 1})))

	return p
}

// SelectionOptimum is the optimal value of Selection.
const SelectionOptimum = -9.5

// Selection picks at most two of four units to enlarge:
//
//	min  Σ -w_i x_i + c_i y_i
//	s.t. x_i² - 3y_i <= 1      i = 1..4
//	     y1 + y2 + y3 + y4 <= 2
//	     x in [0, 2], y binary
//
// with w = (2, 1.8, 1.6, 1.4) and c = (0.5, 0.6, 0.7, 0.8). Every unit has
// its own nonlinear row, so each fixed subproblem yields several cuts. The
// optimum -9.5 enlarges units 1 and 2.
func Selection() *problem.Problem {
	var (
		w = []float64{2, 1.8, 1.6, 1.4}
		c = []float64{0.5, 0.6, 0.7, 0.8}
		n = len(w)
	)
	p := problem.New("selection")
	for i := 0; i < n; i++ {
		must(p.AddVar(fmt.Sprintf("x%d", i+1), problem.Continuous, 0, 2))
	}
	for i := 0; i < n; i++ {
		must(p.AddVar(fmt.Sprintf("y%d", i+1), problem.Binary, 0, 1))
	}
	var (
		obj    = make([]problem.Term, 0, 2*n)
		budget = make([]problem.Term, 0, n)
	)
	for i := 0; i < n; i++ {
		must(p.AddConstraint(fmt.Sprintf("size%d", i+1), square(i, n+i, 3), math.Inf(-1), 1))
		obj = append(obj, problem.Term{Var: i, Coef: -w[i]}, problem.Term{Var: n + i, Coef: c[i]})
		budget = append(budget, problem.Term{Var: n + i, Coef: 1})
	}
	must(p.AddConstraint("budget", problem.NewLinear(0, budget...), math.Inf(-1), 2))
	check(p.SetObjective(problem.NewLinear(0, obj...)))

	return p
}

// square returns x[a]² - k*x[y].
func square(a, y int, k float64) problem.Function {
	q, err := matrix.NewDenseFrom([][]float64{{1}})
	check(err)
	f, err := problem.NewQuadratic([]int{a}, q, problem.NewLinear(0, problem.Term{Var: y, Coef: -k}))
	check(err)

	return f
}

// circle returns x[a]² + x[b]² - k*x[y].
func circle(a, b, y int, k float64) problem.Function {
	q, err := matrix.NewDenseFrom([][]float64{{1, 0}, {0, 1}})
	check(err)
	f, err := problem.NewQuadratic([]int{a, b}, q, problem.NewLinear(0, problem.Term{Var: y, Coef: -k}))
	check(err)

	return f
}

func must(_ int, err error) { check(err) }

func check(err error) {
	if err != nil {
		panic(err)
	}
}
