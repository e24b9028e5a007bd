// Package problem defines the mixed-integer nonlinear program solved by parqg.
//
// A Problem holds typed variables with bounds, constraints Lower <= F(x) <= Upper
// and an objective to minimize. Nonlinear constraints are restricted to the
// convex-friendly form g(x) <= ub, which is what outer approximation can
// linearize safely.
//
// Functions (LinearFunction, QuadraticFunction, FuncOf, SumOf) are stateless
// and shared by every clone of a Problem; bounds are owned by each clone.
// Workers therefore Clone the problem once and then fix discrete variables
// on their own copy:
//
//	fix, err := problem.FixDiscrete(p, x)
//	if err != nil { ... }
//	defer fix.Release()
//
// Tolerances pairs absolute and relative tolerances; every feasibility,
// violation and pruning decision in the solver goes through it.
package problem
