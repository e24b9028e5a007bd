// SPDX-License-Identifier: MIT

// Package oa separates relaxation points by outer approximation.
//
// For a relaxation point x* whose discrete variables are integral, the
// Handler fixes those variables, solves the continuous NLP and turns the
// outcome into a SeparationStatus:
//
//	optimal, relaxation objective within tolerance  -> Prune
//	optimal otherwise                               -> cuts at the NLP point, Resolve
//	infeasible or cut off                           -> feasibility cuts, Resolve
//	iteration limit                                 -> cuts at x* itself, Resolve
//	unbounded, error, unknown                       -> Error (no cut)
//
// A cut linearizes a convex function f at a point z:
//
//	f(z) + ∇f(z)·(y - z) <= ub
//
// and is kept only when x* violates it beyond the absolute-or-relative
// solution tolerance. A nonlinear objective is linearized into the epigraph
// column of the relaxation.
//
// When no cut separates x* and x* satisfies every nonlinear constraint, x* is
// itself a solution of the node: it is offered to the solution pool and the
// node is pruned.
package oa
