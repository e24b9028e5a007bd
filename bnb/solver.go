// SPDX-License-Identifier: MIT

package bnb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/katalvlaran/parqg/branch"
	"github.com/katalvlaran/parqg/cutpool"
	"github.com/katalvlaran/parqg/internal/logging"
	"github.com/katalvlaran/parqg/internal/metrics"
	"github.com/katalvlaran/parqg/lp"
	"github.com/katalvlaran/parqg/nlp"
	"github.com/katalvlaran/parqg/oa"
	"github.com/katalvlaran/parqg/problem"
	"github.com/katalvlaran/parqg/relax"
	"github.com/katalvlaran/parqg/solpool"
	"github.com/katalvlaran/parqg/tree"
)

// Sentinel errors.
var (
	// ErrContractViolation aborts a run whose tree or node state breaks the
	// processing protocol.
	ErrContractViolation = errors.New("bnb: contract violation")
	// ErrAlreadyStarted is returned when a Solver is started twice.
	ErrAlreadyStarted = errors.New("bnb: solve already started")
	// ErrNoWorkers is returned for a worker count below one.
	ErrNoWorkers = errors.New("bnb: at least one worker required")
)

// solHistory bounds the solution pool history.
const solHistory = 32

// Solver runs a parallel branch-and-bound search with outer approximation.
// Live queries (BestObjective, Bound, Gap, Stats, Status) are safe to call
// from any goroutine while Solve runs.
type Solver struct {
	p     *problem.Problem
	opts  Options
	types []problem.VarType
	tr    *tracer
	tm    *tree.Manager
	sols  *solpool.Pool

	processed atomic.Int64
	imported  atomic.Int64
	abandoned atomic.Int64
	abandonLb atomic.Uint64 // smallest bound of an abandoned node, as float64 bits
	progress  rate.Sometimes

	mu       sync.Mutex
	log      *slog.Logger
	workers  []*worker
	pools    []*cutpool.Pool
	started  bool
	done     bool
	begin    time.Time
	elapsed  time.Duration
	status   Status
	stopWith Status
	runID    string
	bounds   []BoundPoint
}

// New returns a Solver for p.
func New(p *problem.Problem, opts ...Option) *Solver {
	o := DefaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if o.Logger == nil {
		o.Logger = logging.New("bnb")
	}
	topts := tree.DefaultOptions()
	topts.Policy = o.Policy
	if o.DiveSlack > 0 {
		topts.DiveSlack = o.DiveSlack
	}
	if o.OA.Obj != (problem.Tolerances{}) {
		topts.Tol = o.OA.Obj
	}

	s := &Solver{
		p:        p,
		opts:     o,
		tr:       newTracer(o.Tracing),
		tm:       tree.NewManager(topts),
		sols:     solpool.New(solHistory),
		progress: rate.Sometimes{Interval: o.LogInterval},
		log:      o.Logger,
	}
	for _, v := range p.Vars() {
		s.types = append(s.types, v.Type)
	}
	s.abandonLb.Store(math.Float64bits(math.Inf(1)))

	return s
}

// Solve runs the search with the configured number of workers.
func (s *Solver) Solve(ctx context.Context) (Result, error) {
	return s.Start(ctx, s.opts.Workers)
}

// Start runs the search with the given number of workers and blocks until it
// ends. Cancelling ctx interrupts the search and yields TimeLimitReached.
// A Solver runs once.
func (s *Solver) Start(ctx context.Context, workers int) (Result, error) {
	if workers < 1 {
		return Result{}, ErrNoWorkers
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return Result{}, ErrAlreadyStarted
	}
	s.started = true
	s.begin = time.Now()
	s.runID = uuid.NewString()
	s.log = s.log.With("run_id", s.runID)
	log := s.log
	s.mu.Unlock()

	ctx, span := s.tr.startRun(ctx, s.runID, s.p.Name, workers)
	res, err := s.solve(ctx, log, workers)
	s.tr.endRun(span, res, err)

	return res, err
}

func (s *Solver) solve(ctx context.Context, log *slog.Logger, workers int) (Result, error) {
	if err := s.p.Validate(); err != nil {
		return s.finish(log, NotStarted), fmt.Errorf("bnb: %w", err)
	}
	if err := s.setup(log, workers); err != nil {
		return s.finish(log, NotStarted), err
	}

	root, err := relax.Build(s.p, s.opts.Preprocessor)
	switch {
	case errors.Is(err, relax.ErrInfeasible):
		log.Info("preprocessing proved the problem infeasible")
		return s.finish(log, SolvedInfeasible), nil
	case err != nil:
		return s.finish(log, NotStarted), fmt.Errorf("bnb: root relaxation: %w", err)
	}
	err = s.workers[0].handler.InitRelaxation(ctx, root)
	switch {
	case errors.Is(err, oa.ErrRootInfeasible):
		log.Info("continuous relaxation is infeasible")
		return s.finish(log, SolvedInfeasible), nil
	case err != nil:
		return s.finish(log, NotStarted), fmt.Errorf("bnb: root linearization: %w", err)
	}
	s.syncIncumbent(log)
	for _, w := range s.workers {
		w.relaxer = relax.NewRelaxer(root)
		w.cursor.Skip(s.pools)
	}
	if _, err := s.tm.InsertRoot(); err != nil {
		return s.finish(log, NotStarted), fmt.Errorf("%w: %w", ErrContractViolation, err)
	}
	log.Info("search started",
		"problem", s.p.Name,
		"vars", s.p.NumVars(),
		"constraints", s.p.NumConstraints(),
		"workers", workers,
		"policy", s.opts.Policy,
		"brancher", s.opts.Brancher,
		"root_cuts", root.NumCuts(),
	)

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, s.tm.Stop)
	defer stop()
	for _, w := range s.workers {
		w := w
		g.Go(func() error { return s.run(gctx, w) })
	}
	if err := g.Wait(); err != nil {
		log.Error("search aborted", "err", err)
		return s.finish(log, NotStarted), err
	}

	st := s.stopStatus()
	if st == NotStarted {
		st = s.exhausted(ctx)
	}

	return s.finish(log, st), nil
}

// exhausted decides the status of a search that ran out of nodes or was
// cancelled. Abandoned nodes keep their bound, so the search proves
// optimality only when that bound closes the gap and proves infeasibility
// never.
func (s *Solver) exhausted(ctx context.Context) Status {
	s.tm.UpdateLb()
	lb, ub := s.lowerBound(), s.tm.Ub()
	switch {
	case ctx.Err() != nil && s.tm.Size() > 0:
		return TimeLimitReached
	case math.IsInf(ub, -1):
		return SolvedUnbounded
	case s.abandoned.Load() > 0:
		switch gap := tree.Gap(lb, ub); {
		case gap <= 0:
			return SolvedOptimal
		case gap <= s.opts.GapLimit:
			return SolvedGapLimit
		default:
			return SearchIncomplete
		}
	case math.IsInf(ub, 1):
		return SolvedInfeasible
	default:
		return SolvedOptimal
	}
}

// setup creates one worker per goroutine; relaxers are attached once the
// root relaxation is linearized.
func (s *Solver) setup(log *slog.Logger, n int) error {
	var (
		pools   = make([]*cutpool.Pool, n)
		workers = make([]*worker, n)
	)
	for i := range pools {
		pools[i] = cutpool.NewPool(i)
	}
	for i := range workers {
		br, err := s.brancher()
		if err != nil {
			return fmt.Errorf("bnb: %w", err)
		}
		wlog := log.With("worker", i)
		oo := s.opts.OA
		oo.Metrics = s.opts.Metrics
		oo.Logger = wlog
		workers[i] = &worker{
			id:       i,
			handler:  oa.NewHandler(s.p, s.engine(), pools[i], s.sols, oo),
			cursor:   cutpool.NewCursor(i),
			brancher: br,
			lp:       lp.NewSolver(s.opts.LP),
			grad:     make([]float64, s.p.NumVars()),
			log:      wlog,
		}
	}

	s.mu.Lock()
	s.workers, s.pools = workers, pools
	s.mu.Unlock()

	return nil
}

func (s *Solver) brancher() (branch.Brancher, error) {
	if s.opts.NewBrancher != nil {
		return s.opts.NewBrancher(), nil
	}

	return branch.New(s.opts.Brancher)
}

func (s *Solver) engine() oa.Engine {
	if s.opts.Engine != nil {
		return s.opts.Engine()
	}

	return nlp.NewSolver(s.opts.NLP)
}

// afterNode refreshes the global bound and evaluates the stop predicate.
func (s *Solver) afterNode(log *slog.Logger) {
	s.tm.UpdateLb()
	lb, ub := s.lowerBound(), s.tm.Ub()
	s.recordBound()
	if s.opts.Metrics {
		metrics.LowerBound.Set(lb)
	}
	if s.opts.LogInterval > 0 {
		s.progress.Do(func() {
			log.Info("progress",
				"elapsed", s.Elapsed().Round(time.Millisecond),
				"lb", lb,
				"ub", ub,
				"gap", tree.Gap(lb, ub),
				"processed", s.processed.Load(),
				"left", s.tm.Size(),
			)
		})
	}
	if s.tm.Size() == 0 {
		return
	}
	if st, ok := s.limitReached(lb, ub); ok {
		log.Info("stop condition met", "status", st, "lb", lb, "ub", ub)
		s.stop(st)
	}
}

// limitReached checks, in order, optimality, the gap limit, the time limit,
// the node limit and the solution limit.
func (s *Solver) limitReached(lb, ub float64) (Status, bool) {
	gap := tree.Gap(lb, ub)
	switch {
	case gap <= 0:
		return SolvedOptimal, true
	case gap <= s.opts.GapLimit:
		return SolvedGapLimit, true
	case s.opts.TimeLimit > 0 && s.Elapsed() > s.opts.TimeLimit:
		return TimeLimitReached, true
	case s.opts.NodeLimit > 0 && s.processed.Load() >= int64(s.opts.NodeLimit):
		return IterationLimitReached, true
	case s.opts.SolLimit > 0 && s.sols.Count() >= s.opts.SolLimit:
		return SolLimitReached, true
	}

	return NotStarted, false
}

// stop records the first stop status and closes the tree to new pops.
func (s *Solver) stop(st Status) {
	s.mu.Lock()
	if s.stopWith == NotStarted {
		s.stopWith = st
	}
	s.mu.Unlock()
	s.tm.Stop()
}

func (s *Solver) stopStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stopWith
}

// abandon records that n leaves the tree unsettled.
func (s *Solver) abandon(n *tree.Node) {
	s.abandoned.Add(1)
	v := n.Lb()
	for {
		old := s.abandonLb.Load()
		if !(v < math.Float64frombits(old)) || s.abandonLb.CompareAndSwap(old, math.Float64bits(v)) {
			return
		}
	}
}

// lowerBound is the tree bound lowered to the bound of any abandoned node.
// An abandoned node was in the tree when the tree bound was last computed,
// so the result never decreases.
func (s *Solver) lowerBound() float64 {
	return math.Min(s.tm.Lb(), math.Float64frombits(s.abandonLb.Load()))
}

// syncIncumbent pushes the solution pool's best value into the tree.
func (s *Solver) syncIncumbent(log *slog.Logger) {
	v := s.sols.BestValue()
	if !s.tm.SetUb(v) {
		return
	}
	log.Info("new incumbent", "objective", v, "processed", s.processed.Load())
	if s.opts.Metrics {
		metrics.Incumbent.Set(v)
	}
}

// recordBound appends the current bound and incumbent. Both are read under
// s.mu so the trace keeps their monotone order across workers.
func (s *Solver) recordBound() {
	s.mu.Lock()
	defer s.mu.Unlock()
	lb, ub := s.lowerBound(), s.tm.Ub()
	if k := len(s.bounds); k > 0 && s.bounds[k-1].Lb == lb && s.bounds[k-1].Ub == ub {
		return
	}
	s.bounds = append(s.bounds, BoundPoint{At: time.Since(s.begin), Lb: lb, Ub: ub})
}

func (s *Solver) finish(log *slog.Logger, st Status) Result {
	s.tm.UpdateLb()
	s.recordBound()

	s.mu.Lock()
	s.status = st
	s.done = true
	s.elapsed = time.Since(s.begin)
	s.mu.Unlock()

	res := s.result()
	log.Info("search finished",
		"status", res.Status,
		"objective", res.Objective,
		"bound", res.Bound,
		"gap", res.Gap,
		"processed", res.Stats.NodesProcessed,
		"created", res.Stats.NodesCreated,
		"cuts", res.Stats.CutsAdded,
		"elapsed", res.Stats.Elapsed,
	)

	return res
}

func (s *Solver) result() Result {
	res := Result{
		Status:    s.Status(),
		Objective: s.sols.BestValue(),
		Bound:     s.Bound(),
		Gap:       s.Gap(),
		Stats:     s.Stats(),
		RunID:     s.RunID(),
	}
	if best, ok := s.sols.Best(); ok {
		res.X = best.X
	}

	return res
}

// BestObjective returns the incumbent value, +Inf without one.
func (s *Solver) BestObjective() float64 { return s.sols.BestValue() }

// Bound returns the global lower bound.
func (s *Solver) Bound() float64 { return s.lowerBound() }

// Gap returns the relative gap in percent.
func (s *Solver) Gap() float64 { return tree.Gap(s.lowerBound(), s.tm.Ub()) }

// Solution returns a copy of the incumbent point.
func (s *Solver) Solution() ([]float64, bool) {
	best, ok := s.sols.Best()
	if !ok {
		return nil, false
	}

	return append([]float64(nil), best.X...), true
}

// Status returns the final status, NotStarted while the search runs.
func (s *Solver) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

// RunID returns the id of the run, empty before Start.
func (s *Solver) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.runID
}

// Elapsed returns the wall-clock time of the run so far.
func (s *Solver) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case !s.started:
		return 0
	case s.done:
		return s.elapsed
	default:
		return time.Since(s.begin)
	}
}

// BoundTrace returns the recorded (lower bound, incumbent) history.
func (s *Solver) BoundTrace() []BoundPoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]BoundPoint(nil), s.bounds...)
}

// Stats returns the current statistics.
func (s *Solver) Stats() Stats {
	s.mu.Lock()
	workers := s.workers
	s.mu.Unlock()

	pruned, _ := s.tm.Pruned()
	st := Stats{
		NodesProcessed: int(s.processed.Load()),
		NodesCreated:   s.tm.Created(),
		NodesPruned:    pruned,
		NodesAbandoned: int(s.abandoned.Load()),
		CutsImported:   int(s.imported.Load()),
		Elapsed:        s.Elapsed(),
	}
	for _, w := range workers {
		st.addHandler(w.handler.Stats())
	}

	return st
}
