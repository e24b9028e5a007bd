// SPDX-License-Identifier: MIT
// Package tree_test verifies the search tree protocol and its thread-safety.
package tree_test

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/katalvlaran/parqg/branch"
	"github.com/katalvlaran/parqg/problem"
	"github.com/katalvlaran/parqg/tree"
	"github.com/stretchr/testify/require"
)

// split returns two branches on variable v.
func split(v int) []branch.Branch {
	return []branch.Branch{
		{Var: v, Dir: branch.Down, Value: 0.4, Changes: []problem.BoundChange{{Var: v, Lower: 0, Upper: 0}}},
		{Var: v, Dir: branch.Up, Value: 0.4, Changes: []problem.BoundChange{{Var: v, Lower: 1, Upper: 1}}},
	}
}

func newManager(p tree.Policy) *tree.Manager {
	opts := tree.DefaultOptions()
	opts.Policy = p
	return tree.NewManager(opts)
}

func TestRootAndPop(t *testing.T) {
	m := newManager(tree.BestBound)
	_, err := m.Pop(0)
	require.ErrorIs(t, err, tree.ErrExhausted) // nothing inserted yet

	root, err := m.InsertRoot()
	require.NoError(t, err)
	_, err = m.InsertRoot()
	require.ErrorIs(t, err, tree.ErrRootExists)
	require.True(t, math.IsInf(root.Lb(), -1))

	n, err := m.Pop(0)
	require.NoError(t, err)
	require.Same(t, root, n)
	require.Equal(t, 1, m.InFlight())

	// worker 1 has nothing to do but the tree is not exhausted
	n, err = m.Pop(1)
	require.NoError(t, err)
	require.Nil(t, n)

	_, err = m.Pop(0)
	require.ErrorIs(t, err, tree.ErrHolding)
	require.ErrorIs(t, m.RemoveActive(root), tree.ErrNotActive)
}

func TestPruneRequiresProcessedStatus(t *testing.T) {
	m := newManager(tree.BestBound)
	root, _ := m.InsertRoot()
	n, _ := m.Pop(0)

	for _, st := range []tree.NodeStatus{tree.NotProcessed, tree.Continue, tree.Stopped} {
		n.Status = st
		require.ErrorIs(t, m.Prune(0, n), tree.ErrBadStatus, st.String())
	}
	require.ErrorIs(t, m.Prune(1, n), tree.ErrNotHeld)
	require.True(t, tree.Abandoned.Prunable())
	require.Equal(t, "abandoned", tree.Abandoned.String())

	root.Status = tree.Infeasible
	require.NoError(t, m.Prune(0, root))
	require.True(t, m.Done())
	_, err := m.Pop(0)
	require.ErrorIs(t, err, tree.ErrExhausted)
	pruned, _ := m.Pruned()
	require.Equal(t, 1, pruned)
}

func TestBranchBestBoundKeepsChildrenActive(t *testing.T) {
	m := newManager(tree.BestBound)
	root, _ := m.InsertRoot()
	_, _ = m.Pop(0)
	m.UpdateNodeLb(root, 3)
	root.Status = tree.Continue

	carry, err := m.Branch(0, root, split(0), nil)
	require.NoError(t, err)
	require.Nil(t, carry)
	require.Equal(t, 2, m.ActiveCount())
	require.Equal(t, 3, m.Created())

	c := m.Candidate()
	require.Equal(t, 1, c.ID) // equal bounds: lowest id first
	require.Equal(t, 1, c.Depth)
	require.Equal(t, 3.0, c.Lb()) // inherited from parent
	require.Equal(t, []problem.BoundChange{{Var: 0, Lower: 0, Upper: 0}}, c.Changes())

	require.NoError(t, m.RemoveActive(c))
	require.Equal(t, 1, m.ActiveCount())

	_, err = m.Branch(0, root, nil, nil)
	require.ErrorIs(t, err, tree.ErrNoBranches)
}

func TestDepthFirstDivesAndPopsDeepest(t *testing.T) {
	m := newManager(tree.DepthFirst)
	root, _ := m.InsertRoot()
	_, _ = m.Pop(0)

	carry, err := m.Branch(0, root, split(0), nil)
	require.NoError(t, err)
	require.NotNil(t, carry)
	require.Same(t, carry, m.Held(0))
	require.Equal(t, 1, m.ActiveCount())

	deeper, err := m.Branch(0, carry, split(1), nil)
	require.NoError(t, err)
	require.Equal(t, 2, deeper.Depth)
	require.Equal(t, []problem.BoundChange{
		{Var: 0, Lower: 0, Upper: 0},
		{Var: 1, Lower: 0, Upper: 0},
	}, deeper.Changes())

	deeper.Status = tree.Optimal
	require.NoError(t, m.Prune(0, deeper))
	n, err := m.Pop(0)
	require.NoError(t, err)
	require.Equal(t, 2, n.Depth) // sibling of the pruned dive beats the depth-1 node
}

func TestDominatedNodesAreSkipped(t *testing.T) {
	m := newManager(tree.BestBound)
	root, _ := m.InsertRoot()
	_, _ = m.Pop(0)
	m.UpdateNodeLb(root, 5)
	_, err := m.Branch(0, root, split(0), nil)
	require.NoError(t, err)

	require.True(t, m.SetUb(5))
	require.False(t, m.SetUb(6)) // incumbent never increases
	require.Nil(t, m.Candidate())
	pruned, dominated := m.Pruned()
	require.Equal(t, 2, pruned)
	require.Equal(t, 2, dominated)
	require.True(t, m.Done())
}

func TestUpdateLbIncludesHeldNodesAndIsMonotone(t *testing.T) {
	m := newManager(tree.BestBound)
	root, _ := m.InsertRoot()
	require.True(t, math.IsInf(m.UpdateLb(), -1))

	_, _ = m.Pop(0)
	m.UpdateNodeLb(root, 2)
	require.Equal(t, 2.0, m.UpdateLb())
	require.Equal(t, 2.0, m.UpdateNodeLb(root, 1)) // node bound never decreases

	m.SetUb(10)
	require.InDelta(t, 80, m.Gap(), 1e-4)

	carry, err := m.Branch(0, root, split(0), nil)
	require.NoError(t, err)
	require.Nil(t, carry)
	n, _ := m.Pop(1)
	m.UpdateNodeLb(n, 7)
	require.Equal(t, 2.0, m.UpdateLb()) // the other child is still at 2

	n.Status = tree.HitUb
	require.NoError(t, m.Prune(1, n))
	last, _ := m.Pop(1)
	m.UpdateNodeLb(last, math.Inf(1))
	last.Status = tree.Infeasible
	require.NoError(t, m.Prune(1, last))
	require.Equal(t, 10.0, m.UpdateLb()) // exhausted tree: bound meets incumbent
	require.Equal(t, 0.0, m.Gap())
}

func TestGap(t *testing.T) {
	cases := []struct {
		lb, ub, want float64
	}{
		{0, math.Inf(1), math.Inf(1)},
		{math.Inf(-1), 3, math.Inf(1)},
		{5, 5, 0},
		{6, 5, 0},
		{-2, 0, 2e8},
	}
	for _, tc := range cases {
		require.InDelta(t, tc.want, tree.Gap(tc.lb, tc.ub), 1e-3)
	}
}

func TestStopReleasesWaiters(t *testing.T) {
	m := newManager(tree.BestBound)
	_, _ = m.InsertRoot()
	_, _ = m.Pop(0)

	errc := make(chan error, 1)
	go func() {
		_, err := m.Next(context.Background(), 1)
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	m.Stop()
	require.ErrorIs(t, <-errc, tree.ErrStopped)
	require.True(t, m.Done())
}

func TestNextHonorsContext(t *testing.T) {
	m := newManager(tree.BestBound)
	_, _ = m.InsertRoot()
	_, _ = m.Pop(0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.Next(ctx, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReleaseReturnsNode(t *testing.T) {
	m := newManager(tree.DepthFirst)
	root, _ := m.InsertRoot()
	_, _ = m.Pop(0)
	carry, _ := m.Branch(0, root, split(0), nil)
	require.NotNil(t, carry)

	m.Release(0)
	require.Nil(t, m.Held(0))
	require.Equal(t, 2, m.ActiveCount())
	require.Equal(t, tree.NotProcessed, carry.Status)
}

// TestConcurrentExclusivity runs workers that pop, branch to a fixed depth
// and prune, asserting that no node id is ever held by two workers at once
// and that every created node is finished exactly once.
func TestConcurrentExclusivity(t *testing.T) {
	const (
		workers  = 8
		maxDepth = 9
	)
	for _, p := range []tree.Policy{tree.BestBound, tree.DepthFirst, tree.BestThenDive} {
		t.Run(p.String(), func(t *testing.T) {
			m := newManager(p)
			_, err := m.InsertRoot()
			require.NoError(t, err)

			var (
				inUse    sync.Map
				finished atomic.Int64
				wg       sync.WaitGroup
				ctx      = context.Background()
			)
			wg.Add(workers)
			for w := 0; w < workers; w++ {
				go func(id int) {
					defer wg.Done()
					var n *tree.Node
					for {
						if n == nil {
							var err error
							n, err = m.Next(ctx, id)
							if err != nil {
								require.ErrorIs(t, err, tree.ErrExhausted)
								return
							}
						}
						_, dup := inUse.LoadOrStore(n.ID, id)
						require.False(t, dup, "node %d held twice", n.ID)
						m.UpdateNodeLb(n, float64(n.Depth))
						inUse.Delete(n.ID)

						if n.Depth >= maxDepth {
							n.Status = tree.Optimal
							require.NoError(t, m.Prune(id, n))
							finished.Add(1)
							n = nil
							continue
						}
						n.Status = tree.Continue
						next, err := m.Branch(id, n, split(n.Depth), nil)
						require.NoError(t, err)
						finished.Add(1)
						n = next
					}
				}(w)
			}
			wg.Wait()

			require.Equal(t, int64(1<<(maxDepth+1)-1), finished.Load())
			require.Equal(t, 1<<(maxDepth+1)-1, m.Created())
			require.Equal(t, 0, m.Size())
			require.True(t, math.IsInf(m.UpdateLb(), 1)) // no incumbent: exhausted means infeasible
		})
	}
}

func TestReached(t *testing.T) {
	m := newManager(tree.BestBound)
	require.False(t, m.Reached(100)) // no incumbent yet
	m.SetUb(10)
	require.True(t, m.Reached(10))
	require.True(t, m.Reached(10-1e-7))
	require.False(t, m.Reached(9))
}
