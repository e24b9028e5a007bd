// SPDX-License-Identifier: MIT

package tree

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/katalvlaran/parqg/branch"
	"github.com/katalvlaran/parqg/engine"
	"github.com/katalvlaran/parqg/problem"
)

// Sentinel errors for Manager operations.
var (
	// ErrRootExists is returned when InsertRoot is called twice.
	ErrRootExists = errors.New("tree: root already inserted")
	// ErrNotActive is returned when removing a node that is not in the active set.
	ErrNotActive = errors.New("tree: node not active")
	// ErrNotHeld is returned when a worker acts on a node it does not hold.
	ErrNotHeld = errors.New("tree: node not held by worker")
	// ErrHolding is returned when a worker pops while already holding a node.
	ErrHolding = errors.New("tree: worker already holds a node")
	// ErrBadStatus is returned when pruning a node whose status does not allow it.
	ErrBadStatus = errors.New("tree: node status does not allow pruning")
	// ErrNoBranches is returned when Branch receives no branches.
	ErrNoBranches = errors.New("tree: no branches")
	// ErrStopped is returned by Pop and Next after Stop.
	ErrStopped = errors.New("tree: search stopped")
	// ErrExhausted is returned by Pop and Next when no active or held node remains.
	ErrExhausted = errors.New("tree: search exhausted")
)

// Policy selects the next active node and whether to dive.
type Policy int

const (
	// BestBound pops the lowest lower bound and never dives.
	BestBound Policy = iota
	// DepthFirst pops the deepest node and always dives.
	DepthFirst
	// BestThenDive pops the lowest lower bound and dives while the child's
	// bound stays close to the best active bound.
	BestThenDive
)

var policyNames = [...]string{"best-bound", "depth-first", "best-then-dive"}

// String implements fmt.Stringer.
func (p Policy) String() string {
	if p < 0 || int(p) >= len(policyNames) {
		return fmt.Sprintf("Policy(%d)", int(p))
	}

	return policyNames[p]
}

// ParsePolicy maps a policy name to its value.
func ParsePolicy(s string) (Policy, error) {
	if s == "" {
		return BestThenDive, nil
	}
	for i, name := range policyNames {
		if name == s {
			return Policy(i), nil
		}
	}

	return 0, fmt.Errorf("tree: unknown policy %q", s)
}

// Options configures a Manager.
type Options struct {
	Policy Policy
	// Tol decides when a node bound has reached the incumbent.
	Tol problem.Tolerances
	// DiveSlack is the relative distance, for BestThenDive, a dive may drift
	// above the best active bound.
	DiveSlack float64
}

// DefaultOptions returns BestThenDive with 1e-6 tolerances.
func DefaultOptions() Options {
	return Options{
		Policy:    BestThenDive,
		Tol:       problem.Tolerances{Abs: 1e-6, Rel: 1e-6},
		DiveSlack: 0.1,
	}
}

// Manager owns the shared search tree.
//
// Every mutation runs under one mutex. Pop combines candidate selection,
// removal from the active set and assignment to a worker, so a node is never
// handed to two workers. Held nodes stay part of the bound computation until
// they are pruned or branched.
type Manager struct {
	mu   sync.Mutex
	cond *sync.Cond
	opts Options

	root   *Node
	active nodeHeap
	held   map[int]*Node // worker -> node

	nextID    int
	ub        float64
	lb        float64
	pruned    int
	dominated int
	stopped   bool
}

// NewManager returns an empty tree.
func NewManager(opts Options) *Manager {
	m := &Manager{
		opts: opts,
		held: make(map[int]*Node),
		ub:   math.Inf(1),
		lb:   math.Inf(-1),
	}
	m.cond = sync.NewCond(&m.mu)
	m.active.policy = opts.Policy

	return m
}

// InsertRoot creates the root node and places it in the active set.
func (m *Manager) InsertRoot() (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.root != nil {
		return nil, ErrRootExists
	}
	m.root = NewRoot()
	m.nextID = 1
	heap.Push(&m.active, m.root)
	m.cond.Broadcast()

	return m.root, nil
}

// Root returns the root node, or nil before InsertRoot.
func (m *Manager) Root() *Node {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.root
}

// Candidate returns the highest-priority active node without removing it.
// Nodes whose bound reached the incumbent are removed and marked Dominated
// on the way.
func (m *Manager) Candidate() *Node {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.candidateLocked()
}

func (m *Manager) candidateLocked() *Node {
	for m.active.Len() > 0 {
		n := m.active.nodes[0]
		if !m.dominatedLocked(n) {
			return n
		}
		heap.Pop(&m.active)
		n.Status = Dominated
		m.pruned++
		m.dominated++
	}

	return nil
}

func (m *Manager) dominatedLocked(n *Node) bool { return m.reachedLocked(n.Lb()) }

func (m *Manager) reachedLocked(lb float64) bool {
	if math.IsInf(m.ub, 1) {
		return false
	}

	return m.opts.Tol.Close(lb, m.ub)
}

// Reached reports whether a bound lb has reached the incumbent within tolerance.
func (m *Manager) Reached(lb float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.reachedLocked(lb)
}

// RemoveActive removes n from the active set.
func (m *Manager) RemoveActive(n *Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.index < 0 || n.index >= m.active.Len() || m.active.nodes[n.index] != n {
		return ErrNotActive
	}
	heap.Remove(&m.active, n.index)

	return nil
}

// Pop selects, removes and assigns the best candidate to worker in one step.
// It returns (nil, nil) when the active set is empty but other workers still
// hold nodes that may produce children.
func (m *Manager) Pop(worker int) (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.popLocked(worker)
}

func (m *Manager) popLocked(worker int) (*Node, error) {
	if m.stopped {
		return nil, ErrStopped
	}
	if _, ok := m.held[worker]; ok {
		return nil, fmt.Errorf("worker %d: %w", worker, ErrHolding)
	}
	n := m.candidateLocked()
	if n == nil {
		if len(m.held) == 0 {
			m.cond.Broadcast()
			return nil, ErrExhausted
		}
		return nil, nil
	}
	heap.Pop(&m.active)
	m.held[worker] = n

	return n, nil
}

// Next is Pop that waits for work. It returns ErrStopped, ErrExhausted or
// the context error once no node can be handed out anymore.
func (m *Manager) Next(ctx context.Context, worker int) (*Node, error) {
	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	defer stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := m.popLocked(worker)
		if n != nil || err != nil {
			return n, err
		}
		m.cond.Wait()
	}
}

// Held returns the node held by worker, if any.
func (m *Manager) Held(worker int) *Node {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.held[worker]
}

// Release returns the node held by worker to the active set unprocessed.
func (m *Manager) Release(worker int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.held[worker]
	if !ok {
		return
	}
	delete(m.held, worker)
	n.Status = NotProcessed
	heap.Push(&m.active, n)
	m.cond.Broadcast()
}

// Prune discards the node held by worker. Its status must be one of
// Optimal, HitUb, Infeasible, Dominated or Abandoned.
func (m *Manager) Prune(worker int, n *Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[worker] != n {
		return fmt.Errorf("prune node %d by worker %d: %w", n.ID, worker, ErrNotHeld)
	}
	if !n.Status.Prunable() {
		return fmt.Errorf("prune node %d (%s): %w", n.ID, n.Status, ErrBadStatus)
	}
	delete(m.held, worker)
	m.pruned++
	m.cond.Broadcast()

	return nil
}

// Branch creates one child of parent per branch. When the policy dives, the
// first child stays with worker and is returned; the others join the active
// set. Otherwise every child is active and Branch returns nil.
// MAIN DESCRIPTION:
//   - Replaces the held parent by its children in one critical section.
//
// Implementation:
//   - Stage 1: reject an empty branch list and a parent worker does not hold.
//   - Stage 2: decide the dive under the lock (never after Stop).
//   - Stage 3: children inherit the parent bound, warm start and error streak.
//
// Behavior highlights:
//   - The carried child replaces the parent in the held map, so UpdateLb
//     never misses it.
//   - Waiting workers are woken once for the whole batch.
//
// Errors:
//   - ErrNoBranches, ErrNotHeld.
//
// Complexity:
//   - O(k log A) for k branches and A active nodes.
func (m *Manager) Branch(worker int, parent *Node, branches []branch.Branch, ws *engine.WarmStart) (*Node, error) {
	if len(branches) == 0 {
		return nil, fmt.Errorf("branch node %d: %w", parent.ID, ErrNoBranches)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[worker] != parent {
		return nil, fmt.Errorf("branch node %d by worker %d: %w", parent.ID, worker, ErrNotHeld)
	}
	delete(m.held, worker)

	var (
		dive  = !m.stopped && m.shouldDiveLocked(parent)
		carry *Node
	)
	for i := range branches {
		b := branches[i]
		child := newNode(m.nextID, parent, &b, ws)
		child.ErrorStreak = parent.ErrorStreak
		m.nextID++
		if i == 0 && dive {
			carry = child
			m.held[worker] = child
			continue
		}
		heap.Push(&m.active, child)
	}
	m.cond.Broadcast()

	return carry, nil
}

// ShouldDive reports whether a worker branching parent keeps its first child.
func (m *Manager) ShouldDive(parent *Node) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.shouldDiveLocked(parent)
}

func (m *Manager) shouldDiveLocked(parent *Node) bool {
	switch m.opts.Policy {
	case DepthFirst:
		return true
	case BestThenDive:
		best := m.candidateLocked()
		if best == nil {
			return true
		}
		lb := parent.Lb()
		return lb <= best.Lb()+m.opts.DiveSlack*(1+math.Abs(best.Lb()))
	default:
		return false
	}
}

// UpdateNodeLb raises the bound of a node; the caller must hold it.
func (m *Manager) UpdateNodeLb(n *Node, v float64) float64 { return n.raiseLb(v) }

// UpdateLb recomputes the global lower bound as the minimum over active and
// held nodes, capped by the incumbent, and returns it.
// Implementation:
//   - Scan active and held nodes under the lock; start from the incumbent.
//
// Behavior highlights:
//   - The reported bound never decreases: a smaller minimum (a node whose
//     bound was set before a peer raised the global one) is ignored.
//   - An empty tree reports the incumbent, +Inf without one.
//
// Complexity:
//   - O(A + H) for A active and H held nodes.
func (m *Manager) UpdateLb() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.ub
	for _, n := range m.active.nodes {
		v = math.Min(v, n.Lb())
	}
	for _, n := range m.held {
		v = math.Min(v, n.Lb())
	}
	if v > m.lb {
		m.lb = v
	}

	return m.lb
}

// SetUb lowers the incumbent value and reports whether it changed.
func (m *Manager) SetUb(v float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !(v < m.ub) {
		return false
	}
	m.ub = v

	return true
}

// Ub returns the incumbent value.
func (m *Manager) Ub() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.ub
}

// Lb returns the last computed global lower bound.
func (m *Manager) Lb() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lb
}

// Gap returns the relative gap in percent between the last bound and the incumbent.
func (m *Manager) Gap() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Gap(m.lb, m.ub)
}

// Gap returns 100*(ub-lb)/(|ub|+1e-6), +Inf when either side is unbounded
// and 0 when lb >= ub.
func Gap(lb, ub float64) float64 {
	if math.IsInf(ub, 1) || math.IsInf(lb, -1) {
		return math.Inf(1)
	}
	g := (ub - lb) / (math.Abs(ub) + 1e-6) * 100
	if g <= 0 {
		return 0
	}

	return g
}

// Stop prevents further Pop calls from handing out nodes and wakes waiters.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.cond.Broadcast()
	m.mu.Unlock()
}

// Stopped reports whether Stop was called.
func (m *Manager) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.stopped
}

// Done reports whether the search stopped or no node is left.
func (m *Manager) Done() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.stopped || (m.root != nil && m.active.Len() == 0 && len(m.held) == 0)
}

// Size returns the number of unfinished nodes (active plus held).
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.active.Len() + len(m.held)
}

// ActiveCount returns the number of active nodes.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.active.Len()
}

// InFlight returns the number of held nodes.
func (m *Manager) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.held)
}

// Created returns the number of nodes created, root included.
func (m *Manager) Created() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.nextID
}

// Pruned returns the number of pruned nodes and how many of them were
// dominated by the incumbent before being processed.
func (m *Manager) Pruned() (pruned, dominated int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.pruned, m.dominated
}

// ---------------------------
// Active set ordering
// ---------------------------

type nodeHeap struct {
	policy Policy
	nodes  []*Node
}

func (h *nodeHeap) Len() int { return len(h.nodes) }

func (h *nodeHeap) Less(i, j int) bool {
	a, b := h.nodes[i], h.nodes[j]
	if h.policy == DepthFirst && a.Depth != b.Depth {
		return a.Depth > b.Depth
	}
	if la, lb := a.Lb(), b.Lb(); la != lb {
		return la < lb
	}
	if h.policy == DepthFirst {
		return a.ID > b.ID
	}

	return a.ID < b.ID
}

func (h *nodeHeap) Swap(i, j int) {
	h.nodes[i], h.nodes[j] = h.nodes[j], h.nodes[i]
	h.nodes[i].index = i
	h.nodes[j].index = j
}

func (h *nodeHeap) Push(x any) {
	n := x.(*Node)
	n.index = len(h.nodes)
	h.nodes = append(h.nodes, n)
}

func (h *nodeHeap) Pop() any {
	last := len(h.nodes) - 1
	n := h.nodes[last]
	h.nodes[last] = nil
	h.nodes = h.nodes[:last]
	n.index = -1

	return n
}
