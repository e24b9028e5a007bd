// SPDX-License-Identifier: MIT

// Package cutpool stores the linear cuts each worker generates and lets peers
// pull them.
//
// Every worker owns one Pool: an append-only sequence guarded by an RWMutex.
// Peers never write to it; they keep a Cursor with the last consumed index per
// source pool and copy only the suffix added since their previous pull, so a
// slow worker never blocks a fast one and every cut is delivered at most once.
//
// Cut terms are keyed by problem variable id (EpigraphVar for the objective
// epigraph column); consumers remap them to their own relaxation columns.
package cutpool

import (
	"fmt"
	"math"
	"sync"

	"github.com/katalvlaran/parqg/lp"
	"github.com/katalvlaran/parqg/problem"
)

// EpigraphVar identifies the epigraph column of a nonlinear objective.
const EpigraphVar = -1

// Kind records why a cut was generated.
type Kind int

const (
	// KindConstraint linearizes a nonlinear constraint at an NLP point.
	KindConstraint Kind = iota
	// KindObjective linearizes a nonlinear objective into the epigraph column.
	KindObjective
	// KindEngineLimit linearizes at the relaxation point after an engine limit.
	KindEngineLimit
	// KindRoot is an initial linearization of the root relaxation.
	KindRoot
	// KindPreprocess comes from preprocessing.
	KindPreprocess
)

var kindNames = [...]string{"constraint", "objective", "engine-limit", "root", "preprocess"}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}

	return kindNames[k]
}

// Cut is Lower <= Σ Coef*x[Var] <= Upper.
type Cut struct {
	Terms  []problem.Term
	Lower  float64
	Upper  float64
	Origin int // worker that generated the cut
	Seq    int // position in the origin pool
	Kind   Kind
}

// Violation returns how far x breaks the cut (<= 0 when satisfied).
// col maps a term variable to an index of x.
func (c Cut) Violation(x []float64, col func(v int) (int, bool)) float64 {
	var act float64
	for _, t := range c.Terms {
		j, ok := col(t.Var)
		if !ok {
			return math.NaN()
		}
		act += t.Coef * x[j]
	}

	return math.Max(act-c.Upper, c.Lower-act)
}

// Pool is one worker's append-only cut store.
type Pool struct {
	mu    sync.RWMutex
	owner int
	cuts  []Cut
}

// NewPool returns an empty pool owned by worker owner.
func NewPool(owner int) *Pool {
	return &Pool{owner: owner}
}

// Owner returns the owning worker id.
func (p *Pool) Owner() int { return p.owner }

// Add appends c, stamping Origin and Seq, and returns the stored copy.
func (p *Pool) Add(c Cut) Cut {
	c.Terms = append([]problem.Term(nil), c.Terms...)
	p.mu.Lock()
	c.Origin = p.owner
	c.Seq = len(p.cuts)
	p.cuts = append(p.cuts, c)
	p.mu.Unlock()

	return c
}

// Len returns the number of cuts stored.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.cuts)
}

// Since returns the cuts with Seq >= from. Stored cuts are never mutated, so
// the returned slice shares their term slices.
func (p *Pool) Since(from int) []Cut {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if from >= len(p.cuts) {
		return nil
	}
	if from < 0 {
		from = 0
	}

	return append([]Cut(nil), p.cuts[from:]...)
}

// Cursor remembers, per source pool, how many cuts a worker has consumed.
type Cursor struct {
	self int
	next map[int]int
}

// NewCursor returns a cursor for worker self.
func NewCursor(self int) *Cursor {
	return &Cursor{self: self, next: make(map[int]int)}
}

// Pull returns the cuts peers added since the previous pull, in pool order.
// The worker's own pool is skipped.
func (c *Cursor) Pull(pools []*Pool) []Cut {
	var out []Cut
	for _, p := range pools {
		if p == nil || p.owner == c.self {
			continue
		}
		got := p.Since(c.next[p.owner])
		c.next[p.owner] += len(got)
		out = append(out, got...)
	}

	return out
}

// Skip marks every cut currently in pools as consumed.
func (c *Cursor) Skip(pools []*Pool) {
	for _, p := range pools {
		if p != nil && p.owner != c.self {
			c.next[p.owner] = p.Len()
		}
	}
}

// Remap re-expresses c in a consumer's column space. It reports false when a
// term variable has no column there.
func Remap(c Cut, col func(v int) (int, bool)) (lp.Row, bool) {
	row := lp.Row{Lower: c.Lower, Upper: c.Upper, Terms: make([]lp.Term, 0, len(c.Terms))}
	for _, t := range c.Terms {
		j, ok := col(t.Var)
		if !ok {
			return lp.Row{}, false
		}
		row.Terms = append(row.Terms, lp.Term{Col: j, Coef: t.Coef})
	}

	return row, true
}
