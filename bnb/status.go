// SPDX-License-Identifier: MIT

package bnb

import (
	"fmt"
	"time"

	"github.com/katalvlaran/parqg/oa"
)

// Status is the state of a solve.
type Status int

const (
	NotStarted Status = iota
	SolvedOptimal
	SolvedGapLimit
	SolvedInfeasible
	SolvedUnbounded
	TimeLimitReached
	IterationLimitReached
	SolLimitReached
	// SearchIncomplete ends a search that ran out of nodes after abandoning
	// some it could not settle, without closing the gap over them.
	SearchIncomplete
)

var statusNames = [...]string{
	NotStarted:            "not-started",
	SolvedOptimal:         "optimal",
	SolvedGapLimit:        "gap-limit",
	SolvedInfeasible:      "infeasible",
	SolvedUnbounded:       "unbounded",
	TimeLimitReached:      "time-limit",
	IterationLimitReached: "node-limit",
	SolLimitReached:       "solution-limit",
	SearchIncomplete:      "incomplete",
}

// String implements fmt.Stringer.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}

	return statusNames[s]
}

// Solved reports whether the status proves optimality, infeasibility or
// unboundedness (within the gap limit for SolvedGapLimit).
func (s Status) Solved() bool {
	switch s {
	case SolvedOptimal, SolvedGapLimit, SolvedInfeasible, SolvedUnbounded:
		return true
	default:
		return false
	}
}

// Stats summarizes a solve.
type Stats struct {
	NodesProcessed int
	NodesCreated   int
	NodesPruned    int
	NodesAbandoned int // fixed nodes left unsettled when the NLP engine failed
	CutsAdded      int
	CutsImported   int
	NLPSolved      int
	NLPOptimal     int
	NLPInfeasible  int
	NLPIterLimit   int
	NLPError       int
	Elapsed        time.Duration
}

func (s *Stats) addHandler(h oa.Stats) {
	s.CutsAdded += h.Cuts
	s.NLPSolved += h.NLPSolved
	s.NLPOptimal += h.NLPFeasible
	s.NLPInfeasible += h.NLPInfeasible
	s.NLPIterLimit += h.NLPIterLimit
	s.NLPError += h.NLPError
}

// Result is the outcome of Solve.
type Result struct {
	Status    Status
	Objective float64   // +Inf without a solution
	X         []float64 // best solution, nil without one
	Bound     float64
	Gap       float64 // percent
	Stats     Stats
	RunID     string
}

// BoundPoint is one entry of the bound trace.
type BoundPoint struct {
	At time.Duration
	Lb float64
	Ub float64
}
