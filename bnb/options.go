// SPDX-License-Identifier: MIT

package bnb

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/katalvlaran/parqg/branch"
	"github.com/katalvlaran/parqg/lp"
	"github.com/katalvlaran/parqg/nlp"
	"github.com/katalvlaran/parqg/oa"
	"github.com/katalvlaran/parqg/relax"
	"github.com/katalvlaran/parqg/tree"
)

// Options configures a Solver. Limits set to zero are disabled, except
// GapLimit, which is always checked.
type Options struct {
	Workers   int
	NodeLimit int
	TimeLimit time.Duration
	// GapLimit is the relative gap, in percent, at which the search stops.
	GapLimit float64
	SolLimit int

	// MaxCutRounds caps LP re-solves of one node; the node is branched
	// without further cuts once the cap is hit.
	MaxCutRounds int
	// MaxErrorStreak bounds consecutive engine failures along a tree path
	// before nodes are branched without cuts.
	MaxErrorStreak int

	Policy    tree.Policy
	DiveSlack float64
	Brancher  string
	// NewBrancher builds the brancher of one worker. Nil uses
	// branch.New(Brancher).
	NewBrancher func() branch.Brancher

	LogInterval time.Duration
	Tracing     bool
	Metrics     bool

	OA  oa.Options
	NLP nlp.Options
	LP  lp.Options

	Preprocessor relax.Preprocessor
	// Engine builds the NLP engine of one worker. Nil uses nlp.NewSolver(NLP).
	Engine func() oa.Engine
	Logger *slog.Logger
}

// DefaultOptions returns the defaults: one worker per CPU, a 1e-4 percent
// gap limit and pseudo-cost branching with best-then-dive selection.
func DefaultOptions() Options {
	return Options{
		Workers:        runtime.GOMAXPROCS(0),
		GapLimit:       1e-4,
		MaxCutRounds:   200,
		MaxErrorStreak: 3,
		Policy:         tree.BestThenDive,
		DiveSlack:      0.1,
		Brancher:       "pseudo-cost",
		LogInterval:    5 * time.Second,
		OA:             oa.DefaultOptions(),
		NLP:            nlp.DefaultOptions(),
		LP:             lp.DefaultOptions(),
	}
}

// Option mutates Options.
type Option func(*Options)

// WithOptions replaces all options at once.
func WithOptions(o Options) Option { return func(dst *Options) { *dst = o } }

// WithWorkers sets the number of parallel workers.
func WithWorkers(n int) Option { return func(o *Options) { o.Workers = n } }

// WithNodeLimit stops the search after n processed nodes.
func WithNodeLimit(n int) Option { return func(o *Options) { o.NodeLimit = n } }

// WithTimeLimit stops the search after d of wall-clock time.
func WithTimeLimit(d time.Duration) Option { return func(o *Options) { o.TimeLimit = d } }

// WithGapLimit sets the relative gap limit in percent.
func WithGapLimit(pct float64) Option { return func(o *Options) { o.GapLimit = pct } }

// WithSolLimit stops the search once n improving solutions were found.
func WithSolLimit(n int) Option { return func(o *Options) { o.SolLimit = n } }

// WithMaxCutRounds caps the LP re-solves of one node.
func WithMaxCutRounds(n int) Option { return func(o *Options) { o.MaxCutRounds = n } }

// WithMaxErrorStreak bounds consecutive engine failures on a tree path.
func WithMaxErrorStreak(n int) Option { return func(o *Options) { o.MaxErrorStreak = n } }

// WithPolicy sets the node selection policy.
func WithPolicy(p tree.Policy) Option { return func(o *Options) { o.Policy = p } }

// WithBrancher selects a branching policy by name (see branch.New).
func WithBrancher(name string) Option { return func(o *Options) { o.Brancher = name } }

// WithLogInterval sets the progress log interval; zero disables it.
func WithLogInterval(d time.Duration) Option { return func(o *Options) { o.LogInterval = d } }

// WithTracing enables OpenTelemetry spans.
func WithTracing(on bool) Option { return func(o *Options) { o.Tracing = on } }

// WithMetrics enables Prometheus collectors.
func WithMetrics(on bool) Option { return func(o *Options) { o.Metrics = on } }

// WithOA sets the outer-approximation handler options.
func WithOA(oo oa.Options) Option { return func(o *Options) { o.OA = oo } }

// WithPreprocessor runs pre before the root relaxation is built.
func WithPreprocessor(pre relax.Preprocessor) Option {
	return func(o *Options) { o.Preprocessor = pre }
}

// WithBrancherFunc replaces the named branching policy with a factory called
// once per worker.
func WithBrancherFunc(f func() branch.Brancher) Option {
	return func(o *Options) { o.NewBrancher = f }
}

// WithEngine replaces the NLP engine factory.
func WithEngine(f func() oa.Engine) Option { return func(o *Options) { o.Engine = f } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *Options) { o.Logger = l } }
