// SPDX-License-Identifier: MIT
// Package cutpool_test verifies append-only pools and per-source cursors.
package cutpool_test

import (
	"math"
	"sync"
	"testing"

	"github.com/katalvlaran/parqg/cutpool"
	"github.com/katalvlaran/parqg/problem"
	"github.com/stretchr/testify/require"
)

func cut(v int, ub float64) cutpool.Cut {
	return cutpool.Cut{Terms: []problem.Term{{Var: v, Coef: 1}}, Lower: math.Inf(-1), Upper: ub}
}

func TestAddStampsOriginAndSeq(t *testing.T) {
	p := cutpool.NewPool(3)
	a := p.Add(cut(0, 1))
	b := p.Add(cut(1, 2))
	require.Equal(t, 3, a.Origin)
	require.Equal(t, 0, a.Seq)
	require.Equal(t, 1, b.Seq)
	require.Equal(t, 2, p.Len())
	require.Len(t, p.Since(1), 1)
	require.Nil(t, p.Since(5))
}

func TestCursorDeliversEachPeerCutOnce(t *testing.T) {
	pools := []*cutpool.Pool{cutpool.NewPool(0), cutpool.NewPool(1), cutpool.NewPool(2)}
	cur := cutpool.NewCursor(1)

	pools[0].Add(cut(0, 1))
	pools[1].Add(cut(1, 1)) // own cut, never pulled
	pools[2].Add(cut(2, 1))
	got := cur.Pull(pools)
	require.Len(t, got, 2)
	require.Equal(t, 0, got[0].Origin)
	require.Equal(t, 2, got[1].Origin)

	require.Empty(t, cur.Pull(pools))

	pools[2].Add(cut(2, 5))
	got = cur.Pull(pools)
	require.Len(t, got, 1)
	require.Equal(t, 5.0, got[0].Upper)
	require.Equal(t, 1, got[0].Seq)
}

func TestRemapAndViolation(t *testing.T) {
	c := cutpool.Cut{
		Terms: []problem.Term{{Var: 0, Coef: 2}, {Var: cutpool.EpigraphVar, Coef: -1}},
		Lower: math.Inf(-1), Upper: 1,
	}
	col := func(v int) (int, bool) {
		if v == cutpool.EpigraphVar {
			return 2, true
		}
		return v, v >= 0 && v < 2
	}
	row, ok := cutpool.Remap(c, col)
	require.True(t, ok)
	require.Equal(t, 2, row.Terms[1].Col)

	require.InDelta(t, 2.0, c.Violation([]float64{2, 0, 1}, col), 1e-12) // 4-1-1
	require.LessOrEqual(t, c.Violation([]float64{0, 0, 0}, col), 0.0)

	_, ok = cutpool.Remap(cut(7, 1), col)
	require.False(t, ok)
}

// TestConcurrentAddAndPull exercises concurrent producers with one consumer.
func TestConcurrentAddAndPull(t *testing.T) {
	const workers, perWorker = 4, 250
	pools := make([]*cutpool.Pool, workers)
	for i := range pools {
		pools[i] = cutpool.NewPool(i)
	}
	var wg sync.WaitGroup
	for w := 1; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				pools[id].Add(cut(id, float64(i)))
			}
		}(w)
	}

	cur := cutpool.NewCursor(0)
	seen := 0
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	for finished := false; !finished; {
		select {
		case <-done:
			finished = true
		default:
		}
		seen += len(cur.Pull(pools))
	}
	seen += len(cur.Pull(pools))
	require.Equal(t, (workers-1)*perWorker, seen)
}

func TestCursorSkip(t *testing.T) {
	pools := []*cutpool.Pool{cutpool.NewPool(0), cutpool.NewPool(1)}
	pools[0].Add(cut(0, 1)) // root cuts already in every relaxation
	pools[0].Add(cut(1, 1))

	cur := cutpool.NewCursor(1)
	cur.Skip(pools)
	require.Empty(t, cur.Pull(pools))

	pools[0].Add(cut(2, 1))
	got := cur.Pull(pools)
	require.Len(t, got, 1)
	require.Equal(t, 2, got[0].Seq)
}
