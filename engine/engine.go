// SPDX-License-Identifier: MIT

// Package engine holds the vocabulary shared by the LP and NLP engines:
// solve statuses, solutions and warm-start payloads.
package engine

import "fmt"

// Status is the outcome of one engine solve.
type Status int

const (
	// Unknown is the zero value: no solve has completed.
	Unknown Status = iota
	// Optimal means a (global, for convex problems) optimum was found.
	Optimal
	// LocalOptimal means a local optimum was found.
	LocalOptimal
	// Infeasible means the problem was proven infeasible.
	Infeasible
	// LocalInfeasible means the engine converged to an infeasible stationary point.
	LocalInfeasible
	// ObjectiveCutoff means every feasible point is worse than the cutoff.
	ObjectiveCutoff
	// IterationLimit means the engine stopped on its iteration cap.
	IterationLimit
	// Unbounded means the objective decreases without bound.
	Unbounded
	// Error means the engine failed numerically.
	Error
)

var statusNames = [...]string{
	Unknown:         "unknown",
	Optimal:         "optimal",
	LocalOptimal:    "local-optimal",
	Infeasible:      "infeasible",
	LocalInfeasible: "local-infeasible",
	ObjectiveCutoff: "objective-cutoff",
	IterationLimit:  "iteration-limit",
	Unbounded:       "unbounded",
	Error:           "error",
}

// String implements fmt.Stringer.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}

	return statusNames[s]
}

// Solution is the result of an engine solve.
type Solution struct {
	Status     Status
	X          []float64 // primal point; may be nil when the engine has none
	Objective  float64
	Iterations int
	Basis      []int // structural basis at termination (LP only)
}

// IsOptimal reports Optimal or LocalOptimal.
func (s Solution) IsOptimal() bool {
	return s.Status == Optimal || s.Status == LocalOptimal
}

// IsInfeasible reports Infeasible, LocalInfeasible or ObjectiveCutoff.
func (s Solution) IsInfeasible() bool {
	return s.Status == Infeasible || s.Status == LocalInfeasible || s.Status == ObjectiveCutoff
}

// HasPoint reports whether X is populated.
func (s Solution) HasPoint() bool { return len(s.X) > 0 }

// WarmStart carries a parent's final LP state into its children.
// Basis lists structural columns that were basic at the parent's optimum;
// the LP engine tries them first when choosing entering columns.
type WarmStart struct {
	Basis     []int
	X         []float64
	Objective float64
}

// Clone returns a deep copy; nil stays nil.
func (w *WarmStart) Clone() *WarmStart {
	if w == nil {
		return nil
	}

	return &WarmStart{
		Basis:     append([]int(nil), w.Basis...),
		X:         append([]float64(nil), w.X...),
		Objective: w.Objective,
	}
}

// FromSolution captures s as a warm start. Returns nil for non-optimal solutions.
func FromSolution(s Solution) *WarmStart {
	if !s.IsOptimal() {
		return nil
	}

	return (&WarmStart{Basis: s.Basis, X: s.X, Objective: s.Objective}).Clone()
}
