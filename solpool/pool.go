// SPDX-License-Identifier: MIT

// Package solpool keeps the best feasible solutions found during search.
//
// The pool is shared by every worker. Improve is the only mutation and is
// atomic: a solution is accepted only when strictly better than the current
// incumbent, so the incumbent value never increases.
package solpool

import (
	"math"
	"sync"
	"time"
)

// Solution is one accepted incumbent.
type Solution struct {
	X      []float64
	Value  float64
	Worker int
	At     time.Time
}

// Pool is a mutex-guarded incumbent store with a bounded history.
type Pool struct {
	mu       sync.Mutex
	best     Solution
	has      bool
	count    int
	history  []Solution
	capacity int
}

// New returns a pool retaining at most capacity past incumbents (>= 1).
func New(capacity int) *Pool {
	if capacity < 1 {
		capacity = 1
	}

	return &Pool{capacity: capacity, best: Solution{Value: math.Inf(1)}}
}

// Improve records x when value is strictly below the incumbent.
func (p *Pool) Improve(x []float64, value float64, worker int) bool {
	if math.IsNaN(value) {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.has && value >= p.best.Value {
		return false
	}
	s := Solution{X: append([]float64(nil), x...), Value: value, Worker: worker, At: time.Now()}
	p.best, p.has = s, true
	p.count++
	if len(p.history) == p.capacity {
		copy(p.history, p.history[1:])
		p.history = p.history[:len(p.history)-1]
	}
	p.history = append(p.history, s)

	return true
}

// BestValue returns the incumbent value, +Inf when none.
func (p *Pool) BestValue() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.best.Value
}

// Best returns a copy of the incumbent.
func (p *Pool) Best() (Solution, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.best
	s.X = append([]float64(nil), s.X...)

	return s, p.has
}

// Count returns how many incumbents were accepted.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.count
}

// Solutions returns the retained incumbents, oldest first.
func (p *Pool) Solutions() []Solution {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]Solution(nil), p.history...)
}
