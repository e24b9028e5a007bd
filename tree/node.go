// SPDX-License-Identifier: MIT

package tree

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/katalvlaran/parqg/branch"
	"github.com/katalvlaran/parqg/engine"
	"github.com/katalvlaran/parqg/problem"
)

// NodeStatus is the processing state of a node.
type NodeStatus int

const (
	// NotProcessed is the state of a freshly created node.
	NotProcessed NodeStatus = iota
	// Continue means the node must be branched.
	Continue
	// Optimal means the node subproblem was solved; no branching needed.
	Optimal
	// HitUb means the node bound reached the incumbent.
	HitUb
	// Infeasible means the node relaxation is infeasible.
	Infeasible
	// Dominated means the tree pruned the node by bound before processing.
	Dominated
	// Stopped means processing was interrupted.
	Stopped
	// Abandoned means the node left the tree unsettled; its bound still
	// limits what the search can prove.
	Abandoned
)

var nodeStatusNames = [...]string{
	NotProcessed: "not-processed",
	Continue:     "continue",
	Optimal:      "optimal",
	HitUb:        "hit-ub",
	Infeasible:   "infeasible",
	Dominated:    "dominated",
	Stopped:      "stopped",
	Abandoned:    "abandoned",
}

// String implements fmt.Stringer.
func (s NodeStatus) String() string {
	if s < 0 || int(s) >= len(nodeStatusNames) {
		return fmt.Sprintf("NodeStatus(%d)", int(s))
	}

	return nodeStatusNames[s]
}

// Prunable reports whether a node in status s is pruned rather than branched.
func (s NodeStatus) Prunable() bool {
	switch s {
	case Optimal, HitUb, Infeasible, Dominated, Abandoned:
		return true
	default:
		return false
	}
}

// Node is one subproblem of the search tree.
//
// ID, Parent, Depth, Branch and WarmStart are immutable after creation and
// may be read by any goroutine. Status and ErrorStreak are written only by the
// worker holding the node. The lower bound is atomic: the holder raises it
// while the manager reads it under its own lock.
type Node struct {
	ID        int
	Parent    *Node
	Depth     int
	Branch    *branch.Branch // nil for the root
	WarmStart *engine.WarmStart

	Status      NodeStatus
	ErrorStreak int // consecutive separation errors along the dive path

	lb    atomic.Uint64
	index int // position in the active heap, -1 when not active
}

func newNode(id int, parent *Node, b *branch.Branch, ws *engine.WarmStart) *Node {
	n := &Node{ID: id, Parent: parent, Branch: b, WarmStart: ws, index: -1}
	if parent != nil {
		n.Depth = parent.Depth + 1
		n.lb.Store(parent.lb.Load())
	} else {
		n.lb.Store(math.Float64bits(math.Inf(-1)))
	}

	return n
}

// NewRoot returns a root node with lower bound -Inf.
func NewRoot() *Node { return newNode(0, nil, nil, nil) }

// Lb returns the node's lower bound.
func (n *Node) Lb() float64 { return math.Float64frombits(n.lb.Load()) }

// raiseLb sets lb = max(lb, v) and returns the resulting bound.
func (n *Node) raiseLb(v float64) float64 {
	for {
		old := n.lb.Load()
		cur := math.Float64frombits(old)
		if !(v > cur) {
			return cur
		}
		if n.lb.CompareAndSwap(old, math.Float64bits(v)) {
			return v
		}
	}
}

// Changes returns the bound changes from the root down to n, in application
// order. Later changes on the same variable override earlier ones.
func (n *Node) Changes() []problem.BoundChange {
	var path []*Node
	for c := n; c != nil; c = c.Parent {
		if c.Branch != nil {
			path = append(path, c)
		}
	}
	var out []problem.BoundChange
	for i := len(path) - 1; i >= 0; i-- {
		out = append(out, path[i].Branch.Changes...)
	}

	return out
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	return fmt.Sprintf("node %d (depth %d, lb %.6g, %s)", n.ID, n.Depth, n.Lb(), n.Status)
}
