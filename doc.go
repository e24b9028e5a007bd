// Package parqg is a parallel branch-and-bound solver for convex mixed-integer
// nonlinear programs, driven by outer-approximation cuts.
//
// 🚀 What is parqg?
//
//	A pure-Go LP/NLP branch-and-bound that brings together:
//		• Models: variables, linear and convex nonlinear constraints, objective
//		• Engines: a dense tableau simplex for relaxations, a cutting-plane NLP
//		• Cuts: gradient linearizations shared between workers through cut pools
//		• Search: best-bound, depth-first and best-then-dive node selection
//		• Branching: pseudo-cost, most/first fractional, max objective
//		• Driver: T workers over one tree, gap/time/node/solution limits
//
// Under the hood, everything is organized under these subpackages:
//
//	problem/   model types, functions, bound changes and fixings
//	matrix/    dense linear algebra under the engines
//	lp/        warm-startable simplex over the relaxation
//	nlp/       continuous NLP engine for fixed-integer subproblems
//	engine/    engine statuses and solutions
//	relax/     linear relaxation with node bounds and cut rows
//	cutpool/   append-only per-worker cut pools with read cursors
//	solpool/   shared incumbent pool
//	oa/        outer-approximation handler: separation and linearization
//	branch/    branching policies
//	tree/      concurrent node store and selection
//	bnb/       the parallel driver
//	config/    YAML/JSON/TOML settings with environment overrides
//	modelfile/ model files with expression bodies
//
// Quick example:
//
//	s := bnb.New(p, bnb.WithWorkers(4), bnb.WithGapLimit(0.01))
//	res, err := s.Solve(ctx)
//
// The parqg command solves model files from the shell:
//
//	parqg solve model.yaml --workers 8 --time-limit 5m
package parqg
