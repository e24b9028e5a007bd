// SPDX-License-Identifier: MIT

package oa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/katalvlaran/parqg/cutpool"
	"github.com/katalvlaran/parqg/engine"
	"github.com/katalvlaran/parqg/internal/logging"
	"github.com/katalvlaran/parqg/internal/metrics"
	"github.com/katalvlaran/parqg/problem"
	"github.com/katalvlaran/parqg/relax"
	"github.com/katalvlaran/parqg/solpool"
)

// ErrRootInfeasible reports that the continuous relaxation of the problem is
// infeasible, which proves the whole problem infeasible.
var ErrRootInfeasible = errors.New("oa: continuous relaxation infeasible")

// SeparationStatus is the verdict of one separation round.
type SeparationStatus int

const (
	// Continue means the point is fractional; branch without solving an NLP.
	Continue SeparationStatus = iota
	// Prune means the node is solved.
	Prune
	// Resolve means cuts were added; solve the relaxation again.
	Resolve
	// Error means the NLP engine failed and no cut was added.
	Error
)

var sepNames = [...]string{"continue", "prune", "resolve", "error"}

// String implements fmt.Stringer.
func (s SeparationStatus) String() string {
	if s < 0 || int(s) >= len(sepNames) {
		return fmt.Sprintf("SeparationStatus(%d)", int(s))
	}

	return sepNames[s]
}

// Engine solves the continuous problem given by the current bounds of p.
// A finite cutoff lets it stop with ObjectiveCutoff once its lower bound
// reaches the cutoff.
type Engine interface {
	Solve(ctx context.Context, p *problem.Problem, cutoff float64) engine.Solution
}

// Options configures a Handler.
type Options struct {
	// IntTol is the integrality tolerance of discrete variables.
	IntTol float64 `yaml:"int_tol" json:"int_tol" toml:"int_tol"`
	// Sol decides constraint violation and cut acceptance.
	Sol problem.Tolerances `yaml:"sol_tol" json:"sol_tol" toml:"sol_tol"`
	// Obj decides when the relaxation objective meets the NLP objective.
	Obj problem.Tolerances `yaml:"obj_tol" json:"obj_tol" toml:"obj_tol"`
	// CoefThreshold drops gradient entries of smaller magnitude.
	CoefThreshold float64 `yaml:"coef_threshold" json:"coef_threshold" toml:"coef_threshold"`
	// UseCutoff passes the incumbent to the engine as objective cutoff.
	UseCutoff bool `yaml:"use_cutoff" json:"use_cutoff" toml:"use_cutoff"`

	Metrics bool         `yaml:"-" json:"-" toml:"-"`
	Logger  *slog.Logger `yaml:"-" json:"-" toml:"-"`
}

// DefaultOptions returns the handler defaults.
func DefaultOptions() Options {
	return Options{
		IntTol:        1e-6,
		Sol:           problem.Tolerances{Abs: 1e-5, Rel: 1e-5},
		Obj:           problem.Tolerances{Abs: 1e-6, Rel: 1e-6},
		CoefThreshold: 1e-6,
		UseCutoff:     true,
	}
}

// Stats counts NLP outcomes and generated cuts.
type Stats struct {
	NLPSolved     int
	NLPFeasible   int
	NLPInfeasible int
	NLPIterLimit  int
	NLPError      int
	Cuts          int
}

// Add returns the field-wise sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		NLPSolved:     s.NLPSolved + o.NLPSolved,
		NLPFeasible:   s.NLPFeasible + o.NLPFeasible,
		NLPInfeasible: s.NLPInfeasible + o.NLPInfeasible,
		NLPIterLimit:  s.NLPIterLimit + o.NLPIterLimit,
		NLPError:      s.NLPError + o.NLPError,
		Cuts:          s.Cuts + o.Cuts,
	}
}

type counters struct {
	solved, feasible, infeasible, iterLimit, failed, cuts atomic.Int64
}

// Handler separates relaxation points of one worker by outer approximation.
//
// It owns a private clone of the problem, so fixing discrete variables for
// the NLP never races with peers. Cuts go to the worker's cut pool and its
// relaxation; improving NLP points go to the shared solution pool.
type Handler struct {
	p        *problem.Problem
	eng      Engine
	opts     Options
	worker   int
	pool     *cutpool.Pool
	sols     *solpool.Pool
	nl       []problem.Constraint
	discrete []int
	objNl    bool
	grad     []float64
	log      *slog.Logger
	stats    counters
	last     engine.Status
}

// NewHandler returns the handler of the worker owning pool.
func NewHandler(p *problem.Problem, eng Engine, pool *cutpool.Pool, sols *solpool.Pool, opts Options) *Handler {
	d := DefaultOptions()
	if opts.IntTol <= 0 {
		opts.IntTol = d.IntTol
	}
	if opts.CoefThreshold <= 0 {
		opts.CoefThreshold = d.CoefThreshold
	}
	if opts.Sol == (problem.Tolerances{}) {
		opts.Sol = d.Sol
	}
	if opts.Obj == (problem.Tolerances{}) {
		opts.Obj = d.Obj
	}
	if opts.Logger == nil {
		opts.Logger = logging.New("oa")
	}
	clone := p.Clone()

	return &Handler{
		p:        clone,
		eng:      eng,
		opts:     opts,
		worker:   pool.Owner(),
		pool:     pool,
		sols:     sols,
		nl:       clone.NonlinearConstraints(),
		discrete: clone.Discrete(),
		objNl:    !clone.Objective().Linear(),
		grad:     make([]float64, clone.NumVars()),
		log:      opts.Logger.With("worker", pool.Owner()),
		last:     engine.Unknown,
	}
}

// Stats returns a snapshot of the counters. Safe for concurrent use.
func (h *Handler) Stats() Stats {
	return Stats{
		NLPSolved:     int(h.stats.solved.Load()),
		NLPFeasible:   int(h.stats.feasible.Load()),
		NLPInfeasible: int(h.stats.infeasible.Load()),
		NLPIterLimit:  int(h.stats.iterLimit.Load()),
		NLPError:      int(h.stats.failed.Load()),
		Cuts:          int(h.stats.cuts.Load()),
	}
}

// LastNLP returns the status of the most recent NLP solve.
func (h *Handler) LastNLP() engine.Status { return h.last }

// InitRelaxation linearizes every nonlinear constraint and a nonlinear
// objective at the optimum of the continuous relaxation and adds the cuts to
// rel. An infeasible continuous relaxation returns ErrRootInfeasible. When the
// engine fails the linearization point is the bound midpoint.
func (h *Handler) InitRelaxation(ctx context.Context, rel *relax.Relaxation) error {
	sol := h.solve(ctx, h.p, math.Inf(1))
	var at []float64
	switch sol.Status {
	case engine.Optimal, engine.LocalOptimal:
		h.stats.feasible.Add(1)
		at = sol.X
	case engine.IterationLimit:
		h.stats.iterLimit.Add(1)
		at = sol.X
	case engine.Infeasible, engine.LocalInfeasible, engine.ObjectiveCutoff:
		h.stats.infeasible.Add(1)
		return ErrRootInfeasible
	case engine.Unbounded, engine.Error, engine.Unknown:
		h.stats.failed.Add(1)
		h.log.Warn("root NLP failed, linearizing at bound midpoint", "status", sol.Status)
	}
	if len(at) < h.p.NumVars() {
		lo, hi := h.p.Bounds()
		at = midpoint(lo, hi)
	}

	added := 0
	for _, c := range h.nl {
		fx, err := c.F.Eval(at)
		if err != nil {
			h.log.Warn("constraint undefined at root point", "constraint", c.Name, "err", err)
			continue
		}
		terms, k, err := h.LinearAt(c.F, fx, at)
		if err != nil {
			h.log.Warn("gradient undefined at root point", "constraint", c.Name, "err", err)
			continue
		}
		h.add(cutpool.Cut{Terms: terms, Lower: math.Inf(-1), Upper: c.Upper - k, Kind: cutpool.KindRoot}, rel)
		added++
	}
	if h.objNl {
		f := h.p.Objective().F
		if fx, err := f.Eval(at); err == nil {
			if terms, k, err := h.LinearAt(f, fx, at); err == nil {
				terms = append(terms, problem.Term{Var: cutpool.EpigraphVar, Coef: -1})
				h.add(cutpool.Cut{Terms: terms, Lower: math.Inf(-1), Upper: -k, Kind: cutpool.KindRoot}, rel)
				added++
			}
		}
	}
	h.log.Debug("root relaxation linearized", "cuts", added, "nlp", sol.Status)

	return nil
}

// Separate examines the relaxation point x (problem variables first) with
// relaxation objective relObj. It reports whether an improving solution was
// stored in the solution pool.
// MAIN DESCRIPTION:
//   - Decides what the driver does with a node after its LP solve.
//
// Implementation:
//   - Stage 1: a fractional discrete value returns Continue without an NLP.
//   - Stage 2: solve the NLP with the discrete variables fixed at round(x).
//   - Stage 3: by NLP outcome, store the solution, prune on a closed node
//     gap, or linearize at the NLP point (at x when there is none).
//   - Stage 4: with no cut added, Accept x or report Error.
//
// Behavior highlights:
//   - Only cuts violated at x are added, so Resolve always moves the LP.
//   - Engine failures (Unbounded, Error, Unknown) return Error; the driver
//     then decides between Accept, LinearizeAt and branching.
//   - Fixed bounds are restored on every path.
//
// Complexity:
//   - One NLP solve plus O(m·n) for m nonlinear constraints over n variables.
func (h *Handler) Separate(ctx context.Context, x []float64, relObj float64, rel *relax.Relaxation) (SeparationStatus, bool) {
	xs := x[:h.p.NumVars()]
	for _, j := range h.discrete {
		if problem.Fractional(xs[j], h.opts.IntTol) {
			return Continue, false
		}
	}

	sol, err := h.solveFixed(ctx, xs)
	if err != nil {
		h.log.Error("fixing discrete variables failed", "err", err)
		return Error, false
	}

	var (
		found bool
		added int
	)
	switch sol.Status {
	case engine.Optimal, engine.LocalOptimal:
		h.stats.feasible.Add(1)
		found = h.sols.Improve(sol.X, sol.Objective, h.worker)
		if h.opts.Obj.Close(relObj, sol.Objective) {
			return Prune, found
		}
		added = h.cutsAt(sol.X, xs, relObj, rel, true, cutpool.KindConstraint)
	case engine.Infeasible, engine.LocalInfeasible, engine.ObjectiveCutoff:
		h.stats.infeasible.Add(1)
		if sol.HasPoint() {
			added = h.cutsAt(sol.X, xs, relObj, rel, false, cutpool.KindConstraint)
		}
		if added == 0 {
			added = h.cutsAt(xs, xs, relObj, rel, false, cutpool.KindEngineLimit)
		}
	case engine.IterationLimit:
		h.stats.iterLimit.Add(1)
		added = h.cutsAt(xs, xs, relObj, rel, true, cutpool.KindEngineLimit)
	case engine.Unbounded, engine.Error, engine.Unknown:
		h.stats.failed.Add(1)
		h.log.Error("NLP engine failed, no cut generated", "status", sol.Status)
		return Error, found
	}
	if added > 0 {
		return Resolve, found
	}

	// nothing separates x: it is either feasible or beyond the tolerances
	if ok, improved := h.Accept(xs, relObj); ok {
		return Prune, found || improved
	}
	h.log.Warn("no cut separates relaxation point", "nlp", sol.Status)

	return Error, found
}

// LinearizeAt adds cuts at x itself for every nonlinear constraint (and a
// nonlinear objective) x violates, returning the number added.
func (h *Handler) LinearizeAt(x []float64, relObj float64, rel *relax.Relaxation) int {
	xs := x[:h.p.NumVars()]

	return h.cutsAt(xs, xs, relObj, rel, true, cutpool.KindEngineLimit)
}

// Accept offers the relaxation point x to the solution pool when IsFeasible
// holds. It reports feasibility and whether the pool improved. A feasible
// point settles its node: relObj bounds the node and x attains it.
func (h *Handler) Accept(x []float64, relObj float64) (feasible, found bool) {
	if len(x) < h.p.NumVars() || !h.IsFeasible(x, relObj) {
		return false, false
	}
	xs := x[:h.p.NumVars()]
	if v, err := h.p.EvalObjective(xs); err == nil {
		found = h.sols.Improve(append([]float64(nil), xs...), v, h.worker)
	}

	return true, found
}

// IsFeasible reports whether x satisfies every nonlinear constraint and, for
// a nonlinear objective, whether f(x) does not exceed relObj beyond tolerance.
// Discrete variables must be integral.
func (h *Handler) IsFeasible(x []float64, relObj float64) bool {
	xs := x[:h.p.NumVars()]
	for _, j := range h.discrete {
		if problem.Fractional(xs[j], h.opts.IntTol) {
			return false
		}
	}
	for _, c := range h.nl {
		if h.violated(c, xs) {
			return false
		}
	}
	if h.objNl {
		fx, err := h.p.Objective().F.Eval(xs)
		if err != nil || h.opts.Sol.Exceeds(fx-relObj, relObj) {
			return false
		}
	}

	return true
}

// LinearAt returns the linearization of f at x as terms and constant k with
// f(y) ≈ Σ terms·y + k.
// Implementation:
//   - Stage 1: evaluate the gradient into the handler's scratch buffer.
//   - Stage 2: keep entries with |g| >= CoefThreshold; k = fx - Σ g·x over
//     the kept terms, so the plane passes through (x, fx).
//
// Behavior highlights:
//   - Dropped entries make the cut inexact away from x but never at x.
//
// Errors:
//   - Gradient errors as returned; a NaN or infinite entry wraps problem.ErrEval.
//
// Complexity:
//   - O(n) beyond the gradient. Not safe for concurrent use.
func (h *Handler) LinearAt(f problem.Function, fx float64, x []float64) ([]problem.Term, float64, error) {
	if err := f.Gradient(x, h.grad); err != nil {
		return nil, 0, err
	}
	var (
		terms []problem.Term
		k     = fx
	)
	for j, g := range h.grad {
		if math.Abs(g) < h.opts.CoefThreshold {
			continue
		}
		if math.IsNaN(g) || math.IsInf(g, 0) {
			return nil, 0, fmt.Errorf("LinearAt: x%d: %w", j, problem.ErrEval)
		}
		terms = append(terms, problem.Term{Var: j, Coef: g})
		k -= g * x[j]
	}

	return terms, k, nil
}

// ---------------------------
// Internals
// ---------------------------

// solveFixed fixes the discrete variables at round(xs), solves, and restores
// the bounds on every path.
func (h *Handler) solveFixed(ctx context.Context, xs []float64) (engine.Solution, error) {
	fix, err := problem.FixDiscrete(h.p, xs)
	if err != nil {
		return engine.Solution{}, err
	}
	defer fix.Release()

	cutoff := math.Inf(1)
	if h.opts.UseCutoff {
		cutoff = h.sols.BestValue()
	}

	return h.solve(ctx, h.p, cutoff), nil
}

func (h *Handler) solve(ctx context.Context, p *problem.Problem, cutoff float64) engine.Solution {
	sol := h.eng.Solve(ctx, p, cutoff)
	h.stats.solved.Add(1)
	h.last = sol.Status
	if h.opts.Metrics {
		metrics.NLPSolves.WithLabelValues(sol.Status.String()).Inc()
	}

	return sol
}

// cutsAt linearizes at point at every nonlinear constraint violated at xs
// and, when withObj is set, a nonlinear objective whose value at xs exceeds
// relObj. Only cuts violated at xs are added.
func (h *Handler) cutsAt(at, xs []float64, relObj float64, rel *relax.Relaxation, withObj bool, kind cutpool.Kind) int {
	added := 0
	for _, c := range h.nl {
		if !h.violated(c, xs) {
			continue
		}
		fx, err := c.F.Eval(at)
		if err != nil {
			h.log.Warn("constraint undefined at linearization point", "constraint", c.Name, "err", err)
			continue
		}
		terms, k, err := h.LinearAt(c.F, fx, at)
		if err != nil {
			h.log.Warn("gradient undefined at linearization point", "constraint", c.Name, "err", err)
			continue
		}
		viol := math.Max(dot(terms, xs)+k-c.Upper, 0)
		if h.opts.Sol.Exceeds(viol, c.Upper-k) {
			h.add(cutpool.Cut{Terms: terms, Lower: math.Inf(-1), Upper: c.Upper - k, Kind: kind}, rel)
			added++
		}
	}
	if withObj && h.objNl {
		f := h.p.Objective().F
		fxs, err := f.Eval(xs)
		if err != nil || !h.opts.Sol.Exceeds(fxs-relObj, relObj) {
			return added
		}
		fx, err := f.Eval(at)
		if err != nil {
			return added
		}
		terms, k, err := h.LinearAt(f, fx, at)
		if err != nil {
			return added
		}
		viol := math.Max(dot(terms, xs)+k-relObj, 0)
		if h.opts.Sol.Exceeds(viol, relObj-k) {
			kindObj := cutpool.KindObjective
			if kind == cutpool.KindEngineLimit {
				kindObj = kind
			}
			terms = append(terms, problem.Term{Var: cutpool.EpigraphVar, Coef: -1})
			h.add(cutpool.Cut{Terms: terms, Lower: math.Inf(-1), Upper: -k, Kind: kindObj}, rel)
			added++
		}
	}

	return added
}

// violated reports whether c is violated at x beyond the solution
// tolerances. An evaluation error counts as violated.
func (h *Handler) violated(c problem.Constraint, x []float64) bool {
	gx, err := c.F.Eval(x)
	if err != nil {
		return true
	}

	return h.opts.Sol.Exceeds(gx-c.Upper, c.Upper)
}

func (h *Handler) add(c cutpool.Cut, rel *relax.Relaxation) {
	stored := h.pool.Add(c)
	if !rel.AddCut(stored) {
		h.log.Warn("cut references a missing column", "kind", c.Kind)
		return
	}
	h.stats.cuts.Add(1)
	if h.opts.Metrics {
		metrics.CutsAdded.WithLabelValues(c.Kind.String()).Inc()
	}
}

func dot(terms []problem.Term, x []float64) float64 {
	var s float64
	for _, t := range terms {
		s += t.Coef * x[t.Var]
	}

	return s
}

func midpoint(lo, hi []float64) []float64 {
	x := make([]float64, len(lo))
	for j := range lo {
		switch {
		case !math.IsInf(lo[j], 0) && !math.IsInf(hi[j], 0):
			x[j] = (lo[j] + hi[j]) / 2
		case !math.IsInf(lo[j], 0):
			x[j] = lo[j]
		case !math.IsInf(hi[j], 0):
			x[j] = hi[j]
		}
	}

	return x
}
