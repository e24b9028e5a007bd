// SPDX-License-Identifier: MIT

package branch

import (
	"math"
	"sync"
)

// Stats holds per-variable pseudo-cost sums and observation counts.
type Stats struct {
	DownSum []float64
	DownCnt []int
	UpSum   []float64
	UpCnt   []int
}

func (s *Stats) grow(n int) {
	for len(s.DownSum) < n {
		s.DownSum = append(s.DownSum, 0)
		s.DownCnt = append(s.DownCnt, 0)
		s.UpSum = append(s.UpSum, 0)
		s.UpCnt = append(s.UpCnt, 0)
	}
}

func (s Stats) clone() Stats {
	return Stats{
		DownSum: append([]float64(nil), s.DownSum...),
		DownCnt: append([]int(nil), s.DownCnt...),
		UpSum:   append([]float64(nil), s.UpSum...),
		UpCnt:   append([]int(nil), s.UpCnt...),
	}
}

// Observations returns the total number of recorded observations.
func (s Stats) Observations() int {
	var n int
	for j := range s.DownCnt {
		n += s.DownCnt[j] + s.UpCnt[j]
	}

	return n
}

// PseudoCost scores fractional variables by the objective degradation per
// unit change observed on earlier branchings of the same variable.
//
// Observe and Branch are called by the owning worker. Snapshot is called by
// peers and returns a copy under the read lock; Merge replaces the peer view
// used for scoring. Uninitialized variables use the average over initialized
// ones (1 when nothing has been observed).
type PseudoCost struct {
	mu    sync.RWMutex
	own   Stats
	peers Stats
}

// NewPseudoCost returns an empty pseudo-cost brancher.
func NewPseudoCost() *PseudoCost { return &PseudoCost{} }

// Name implements Brancher.
func (pc *PseudoCost) Name() string { return "pseudo-cost" }

// Observe records the bound change from parentLb to childLb caused by b.
// Non-finite changes (e.g. infeasible children) are ignored.
func (pc *PseudoCost) Observe(b Branch, parentLb, childLb float64) {
	delta := childLb - parentLb
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return
	}
	frac := b.Frac()
	if frac <= 1e-9 {
		return
	}
	per := math.Max(delta, 0) / frac

	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.own.grow(b.Var + 1)
	if b.Dir == Down {
		pc.own.DownSum[b.Var] += per
		pc.own.DownCnt[b.Var]++
	} else {
		pc.own.UpSum[b.Var] += per
		pc.own.UpCnt[b.Var]++
	}
}

// Snapshot returns a copy of the locally observed statistics.
func (pc *PseudoCost) Snapshot() Stats {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	return pc.own.clone()
}

// Merge replaces the peer view with the sum of peers.
func (pc *PseudoCost) Merge(peers []Stats) {
	var sum Stats
	for _, p := range peers {
		sum.grow(len(p.DownSum))
		for j := range p.DownSum {
			sum.DownSum[j] += p.DownSum[j]
			sum.DownCnt[j] += p.DownCnt[j]
			sum.UpSum[j] += p.UpSum[j]
			sum.UpCnt[j] += p.UpCnt[j]
		}
	}
	pc.mu.Lock()
	pc.peers = sum
	pc.mu.Unlock()
}

// averages returns combined per-variable averages for n variables and the
// fallback averages for uninitialized ones.
func (pc *PseudoCost) averages(n int) (down, up []float64) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	var (
		own, peer    = pc.own.clone(), pc.peers.clone()
		dSum, uSum   float64
		dCnt, uCnt   int
		dInit, uInit = make([]bool, n), make([]bool, n)
		ds, us       float64
		dc, uc       int
		dMean, uMean = 1.0, 1.0
		j            int
	)
	own.grow(n)
	peer.grow(n)
	down, up = make([]float64, n), make([]float64, n)
	for j = 0; j < n; j++ {
		ds, dc = own.DownSum[j]+peer.DownSum[j], own.DownCnt[j]+peer.DownCnt[j]
		us, uc = own.UpSum[j]+peer.UpSum[j], own.UpCnt[j]+peer.UpCnt[j]
		if dc > 0 {
			down[j], dInit[j] = ds/float64(dc), true
			dSum += down[j]
			dCnt++
		}
		if uc > 0 {
			up[j], uInit[j] = us/float64(uc), true
			uSum += up[j]
			uCnt++
		}
	}
	if dCnt > 0 {
		dMean = dSum / float64(dCnt)
	}
	if uCnt > 0 {
		uMean = uSum / float64(uCnt)
	}
	for j = 0; j < n; j++ {
		if !dInit[j] {
			down[j] = dMean
		}
		if !uInit[j] {
			up[j] = uMean
		}
	}

	return down, up
}

// Branch implements Brancher with the product score
// max(down*f, eps) * max(up*(1-f), eps); ties go to the lowest index.
func (pc *PseudoCost) Branch(c Candidate) []Branch {
	const eps = 1e-6
	fr := c.fractional()
	if len(fr) == 0 {
		return nil
	}
	var (
		down, up  = pc.averages(len(c.X))
		best      = -1
		bestScore float64
	)
	for _, j := range fr {
		f := c.X[j] - math.Floor(c.X[j])
		s := math.Max(down[j]*f, eps) * math.Max(up[j]*(1-f), eps)
		if best < 0 || s > bestScore {
			best, bestScore = j, s
		}
	}

	return Split(c, best)
}
