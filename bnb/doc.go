// SPDX-License-Identifier: MIT

// Package bnb coordinates a parallel branch-and-bound search for convex MINLPs
// whose nodes are bounded by LP outer approximations.
//
// A Solver runs T workers over one shared tree.Manager and one solution pool.
// Each worker owns a relaxation, an oa.Handler, a cut pool and a brancher, and
// loops:
//
//  1. take the child it dived into, or pop the best active node
//  2. install the node bounds (incrementally after a dive)
//  3. pull the cuts peers added since the last pull and merge peer pseudo-costs
//  4. solve the LP and let the handler separate until the node is pruned,
//     needs branching, or the cut round cap is hit
//  5. prune the node or create its children, keeping one when diving
//  6. recompute the global bound and evaluate the stop conditions
//
// Stop conditions are checked in order: zero gap, gap limit, time limit, node
// limit, solution limit. A stop only prevents new node starts; in-flight solves
// complete and carried children are returned to the tree. When the tree runs
// empty the incumbent decides: -Inf is unbounded, +Inf infeasible, anything
// else optimal.
//
// Engine failures are statuses, not errors. A node whose NLP fails keeps its
// error streak, gets cuts at the relaxation point while the streak is below
// MaxErrorStreak, and is branched without cuts after that. Only broken
// protocol invariants abort a run, with ErrContractViolation.
//
// Example:
//
//	s := bnb.New(p, bnb.WithWorkers(4), bnb.WithGapLimit(0.01))
//	res, err := s.Solve(ctx)
//	if err != nil {
//		return err
//	}
//	fmt.Println(res.Status, res.Objective)
package bnb
