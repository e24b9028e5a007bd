// SPDX-License-Identifier: MIT

package bnb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/katalvlaran/parqg/branch"
	"github.com/katalvlaran/parqg/cutpool"
	"github.com/katalvlaran/parqg/engine"
	"github.com/katalvlaran/parqg/internal/metrics"
	"github.com/katalvlaran/parqg/lp"
	"github.com/katalvlaran/parqg/oa"
	"github.com/katalvlaran/parqg/relax"
	"github.com/katalvlaran/parqg/tree"
)

// worker is the private state of one search goroutine.
type worker struct {
	id       int
	relaxer  *relax.Relaxer
	handler  *oa.Handler
	cursor   *cutpool.Cursor
	brancher branch.Brancher
	lp       *lp.Solver
	grad     []float64
	log      *slog.Logger
}

// outcome is the result of bounding one node.
type outcome struct {
	sol    engine.Solution
	relObj float64 // relaxation objective at sol, valid when sol is Optimal
	rounds int
	nlp    bool // the handler solved an NLP at this node
}

// run is the loop of one worker: take the carried child or pop a node,
// process it, then refresh the bound and the stop state.
func (s *Solver) run(ctx context.Context, w *worker) error {
	var carry *tree.Node
	for {
		n, dived := carry, carry != nil
		if n != nil && s.tm.Stopped() {
			w.relaxer.Reset(n, false)
			s.tm.Release(w.id)
			return nil
		}
		if n == nil {
			var err error
			n, err = s.tm.Next(ctx, w.id)
			switch {
			case errors.Is(err, tree.ErrHolding):
				return fmt.Errorf("%w: %w", ErrContractViolation, err)
			case err != nil:
				return nil
			}
		}

		var err error
		if carry, err = s.process(ctx, w, n, dived); err != nil {
			return err
		}
		s.afterNode(w.log)
	}
}

// process bounds n, then prunes or branches it. It returns the child the
// worker dives into, if any.
func (s *Solver) process(ctx context.Context, w *worker, n *tree.Node, dived bool) (*tree.Node, error) {
	start := time.Now()
	ctx, span := s.tr.startNode(ctx, w.id, n)
	var out outcome
	defer func() { s.tr.endNode(span, n, out.rounds) }()

	rel, err := w.relaxer.CreateNodeRelaxation(n, dived)
	if err != nil {
		return nil, fmt.Errorf("%w: node %d: %w", ErrContractViolation, n.ID, err)
	}
	s.importCuts(w, rel)
	if pc, ok := w.brancher.(*branch.PseudoCost); ok {
		pc.Merge(s.peerCosts(w.id))
	}

	out = s.bound(ctx, w, n, rel)
	if n.Status == tree.Stopped {
		w.relaxer.Reset(n, false)
		s.tm.Release(w.id)
		return nil, nil
	}
	if pc, ok := w.brancher.(*branch.PseudoCost); ok && n.Branch != nil && n.Parent != nil {
		pc.Observe(*n.Branch, n.Parent.Lb(), n.Lb())
	}

	var branches []branch.Branch
	if n.Status == tree.Continue {
		if branches = s.branches(w, n, rel, out.sol); len(branches) == 0 {
			s.closeFixed(ctx, w, n, rel, &out)
		}
	}
	if n.Status == tree.Stopped {
		w.relaxer.Reset(n, false)
		s.tm.Release(w.id)
		return nil, nil
	}

	var carry *tree.Node
	switch {
	case n.Status.Prunable():
		if err := s.tm.Prune(w.id, n); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrContractViolation, err)
		}
		w.relaxer.Reset(n, false)
	case n.Status == tree.Continue:
		if carry, err = s.tm.Branch(w.id, n, branches, engine.FromSolution(out.sol)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrContractViolation, err)
		}
		w.relaxer.Reset(n, carry != nil)
		if s.opts.Metrics {
			metrics.NodesCreated.Add(float64(len(branches)))
		}
	default:
		return nil, fmt.Errorf("%w: node %d finished with status %s", ErrContractViolation, n.ID, n.Status)
	}

	s.processed.Add(1)
	if s.opts.Metrics {
		metrics.NodesProcessed.WithLabelValues(n.Status.String()).Inc()
		metrics.NodeDuration.Observe(time.Since(start).Seconds())
	}
	w.log.Debug("node processed",
		"node", n.ID,
		"depth", n.Depth,
		"status", n.Status,
		"lb", n.Lb(),
		"rounds", out.rounds,
		"children", len(branches),
	)

	return carry, nil
}

// bound solves the node relaxation and runs the separation loop until the
// node is settled, branching is required, or the round cap is hit.
func (s *Solver) bound(ctx context.Context, w *worker, n *tree.Node, rel *relax.Relaxation) (out outcome) {
	var (
		ws     = n.WarmStart
		solved = w.handler.Stats().NLPSolved
	)
	defer func() { out.nlp = w.handler.Stats().NLPSolved > solved }()

	for out.rounds = 1; ; out.rounds++ {
		sol := w.lp.Solve(ctx, rel.Model(), ws)
		if ws != nil && !settled(sol.Status) && ctx.Err() == nil {
			sol = w.lp.Solve(ctx, rel.Model(), nil)
		}
		out.sol = sol
		if ctx.Err() != nil {
			n.Status = tree.Stopped
			return out
		}

		switch sol.Status {
		case engine.Optimal:
		case engine.Infeasible:
			s.tm.UpdateNodeLb(n, math.Inf(1))
			n.Status = tree.Infeasible
			return out
		case engine.Unbounded:
			w.log.Warn("relaxation is unbounded", "node", n.ID)
			s.tm.SetUb(math.Inf(-1))
			s.stop(SolvedUnbounded)
			n.Status = tree.HitUb
			return out
		default:
			w.log.Warn("relaxation solve failed, branching without bound", "node", n.ID, "status", sol.Status)
			n.ErrorStreak++
			n.Status = tree.Continue
			return out
		}

		ws = engine.FromSolution(sol)
		relObj := rel.Objective(sol)
		out.relObj = relObj
		if lb := s.tm.UpdateNodeLb(n, relObj); s.tm.Reached(lb) {
			n.Status = tree.HitUb
			return out
		}

		sep, found := w.handler.Separate(ctx, sol.X, relObj, rel)
		if found {
			s.syncIncumbent(w.log)
		}
		switch sep {
		case oa.Continue:
			n.Status = tree.Continue
			return out
		case oa.Prune:
			n.ErrorStreak = 0
			n.Status = tree.Optimal
			return out
		case oa.Resolve:
			n.ErrorStreak = 0
		case oa.Error:
			if ok, found := w.handler.Accept(sol.X, relObj); ok {
				if found {
					s.syncIncumbent(w.log)
				}
				n.ErrorStreak = 0
				n.Status = tree.Optimal
				return out
			}
			n.ErrorStreak++
			if n.ErrorStreak > s.opts.MaxErrorStreak || w.handler.LinearizeAt(sol.X, relObj, rel) == 0 {
				n.Status = tree.Continue
				return out
			}
		}
		if s.opts.MaxCutRounds > 0 && out.rounds >= s.opts.MaxCutRounds {
			w.log.Debug("cut round cap reached", "node", n.ID, "rounds", out.rounds)
			n.Status = tree.Continue
			return out
		}
	}
}

func settled(st engine.Status) bool {
	return st == engine.Optimal || st == engine.Infeasible || st == engine.Unbounded
}

// branches asks the brancher for children. An integral point, or a node
// without an LP point, falls back to splitting an unfixed discrete variable.
func (s *Solver) branches(w *worker, n *tree.Node, rel *relax.Relaxation, sol engine.Solution) []branch.Branch {
	lo, hi := rel.Bounds()
	c := branch.Candidate{
		Lower:  lo,
		Upper:  hi,
		Types:  s.types,
		IntTol: s.opts.OA.IntTol,
		NodeLb: n.Lb(),
	}
	if sol.Status == engine.Optimal && len(sol.X) >= len(lo) {
		c.X = rel.Point(sol.X)
	} else {
		c.X = append([]float64(nil), lo...)
	}
	if f := s.p.Objective().F; f != nil && f.Gradient(c.X, w.grad) == nil {
		c.Obj = w.grad
	}
	if b := w.brancher.Branch(c); len(b) > 0 {
		return b
	}

	return branch.FixingBranches(c)
}

// closeFixed settles a node whose discrete variables are all fixed and which
// could not be pruned by cuts. The fixed NLP of this node decides; without
// one the node falls back to settleFixed.
func (s *Solver) closeFixed(ctx context.Context, w *worker, n *tree.Node, rel *relax.Relaxation, out *outcome) {
	last := w.handler.LastNLP()
	switch {
	case out.nlp && (last == engine.Optimal || last == engine.LocalOptimal):
		n.Status = tree.Optimal
	case out.nlp && last == engine.ObjectiveCutoff:
		n.Status = tree.HitUb
	case out.nlp && (last == engine.Infeasible || last == engine.LocalInfeasible):
		n.Status = tree.Infeasible
	default:
		s.settleFixed(ctx, w, n, rel, out)
	}
}

// settleFixed runs cut rounds at the LP point itself until the point is
// feasible, the LP is infeasible or reaches the incumbent, or no cut
// separates it. With the discrete variables fixed this is a cutting-plane
// solve of the continuous subproblem. A node left unsettled is abandoned: it
// leaves the tree, and its bound is kept in the global lower bound.
func (s *Solver) settleFixed(ctx context.Context, w *worker, n *tree.Node, rel *relax.Relaxation, out *outcome) {
	for r := 0; out.sol.Status == engine.Optimal; r++ {
		if ok, found := w.handler.Accept(out.sol.X, out.relObj); ok {
			if found {
				s.syncIncumbent(w.log)
			}
			n.Status = tree.Optimal
			return
		}
		if s.opts.MaxCutRounds > 0 && r >= s.opts.MaxCutRounds {
			break
		}
		if w.handler.LinearizeAt(out.sol.X, out.relObj, rel) == 0 {
			break
		}
		out.rounds++
		out.sol = w.lp.Solve(ctx, rel.Model(), engine.FromSolution(out.sol))
		if !settled(out.sol.Status) && ctx.Err() == nil {
			out.sol = w.lp.Solve(ctx, rel.Model(), nil)
		}
		if ctx.Err() != nil {
			n.Status = tree.Stopped
			return
		}
		switch out.sol.Status {
		case engine.Optimal:
			out.relObj = rel.Objective(out.sol)
			if lb := s.tm.UpdateNodeLb(n, out.relObj); s.tm.Reached(lb) {
				n.Status = tree.HitUb
				return
			}
		case engine.Infeasible:
			s.tm.UpdateNodeLb(n, math.Inf(1))
			n.Status = tree.Infeasible
			return
		}
	}

	s.abandon(n)
	w.log.Warn("abandoning fixed node without a usable NLP solve",
		"node", n.ID,
		"lb", n.Lb(),
		"nlp", w.handler.LastNLP(),
	)
	n.Status = tree.Abandoned
}

// importCuts adds the cuts peers generated since the last pull.
func (s *Solver) importCuts(w *worker, rel *relax.Relaxation) {
	var added int
	for _, c := range w.cursor.Pull(s.pools) {
		if rel.AddCut(c) {
			added++
		}
	}
	if added == 0 {
		return
	}
	s.imported.Add(int64(added))
	if s.opts.Metrics {
		metrics.CutsImported.Add(float64(added))
	}
}

// peerCosts snapshots the pseudo-costs of every other worker.
func (s *Solver) peerCosts(self int) []branch.Stats {
	var out []branch.Stats
	for _, w := range s.workers {
		if w.id == self {
			continue
		}
		if pc, ok := w.brancher.(*branch.PseudoCost); ok {
			out = append(out, pc.Snapshot())
		}
	}

	return out
}
