// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/katalvlaran/parqg/bnb"
	"github.com/katalvlaran/parqg/config"
	"github.com/katalvlaran/parqg/internal/logging"
	"github.com/katalvlaran/parqg/modelfile"
)

type solveFlags struct {
	config      string
	workers     int
	nodeLimit   int
	timeLimit   time.Duration
	gap         float64
	metricsAddr string
}

func newSolveCmd(root *rootFlags) *cobra.Command {
	flags := &solveFlags{}
	cmd := &cobra.Command{
		Use:   "solve <model>",
		Short: "Solve a model file (.yaml, .json or .toml)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(cmd, root, flags, args[0])
		},
	}
	f := cmd.Flags()
	f.StringVarP(&flags.config, "config", "c", "", "Solver configuration file")
	f.IntVarP(&flags.workers, "workers", "j", 0, "Parallel workers (0 = all CPUs)")
	f.IntVar(&flags.nodeLimit, "node-limit", 0, "Stop after this many nodes (0 = no limit)")
	f.DurationVar(&flags.timeLimit, "time-limit", 0, "Stop after this much wall-clock time (0 = no limit)")
	f.Float64Var(&flags.gap, "gap", 0, "Relative gap limit in percent")
	f.StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while solving")

	return cmd
}

func runSolve(cmd *cobra.Command, root *rootFlags, flags *solveFlags, path string) error {
	cfg, err := config.Load(flags.config)
	if err != nil {
		return err
	}
	fs := cmd.Flags()
	if fs.Changed("workers") {
		cfg.Search.Workers = flags.workers
	}
	if fs.Changed("node-limit") {
		cfg.Limits.NodeLimit = flags.nodeLimit
	}
	if fs.Changed("time-limit") {
		cfg.Limits.TimeLimit = config.Duration(flags.timeLimit)
	}
	if fs.Changed("gap") {
		cfg.Limits.GapLimit = flags.gap
	}
	if root.verbose {
		cfg.Observability.LogLevel = "debug"
	}
	if cmd.Flag("log-format").Changed {
		cfg.Observability.LogFormat = root.logFormat
	}
	if flags.metricsAddr != "" {
		cfg.Observability.MetricsEnabled = true
	}
	if err = cfg.Validate(); err != nil {
		return err
	}

	level, _ := logging.ParseLevel(cfg.Observability.LogLevel)
	logging.Init(level, cfg.Observability.LogFormat, cmd.ErrOrStderr())
	log := logging.New("cli")

	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	p, err := modelfile.Open(path)
	if err != nil {
		return err
	}
	log.Info("model loaded", slog.String("name", p.Name),
		slog.Int("vars", p.NumVars()), slog.Int("discrete", len(p.Discrete())),
		slog.Int("constraints", p.NumConstraints()))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flags.metricsAddr != "" {
		shutdown := serveMetrics(flags.metricsAddr, log)
		defer shutdown()
	}

	s := bnb.New(p, bnb.WithOptions(opts), bnb.WithLogger(logging.New("bnb")))
	res, err := s.Solve(ctx)
	if err != nil {
		return err
	}
	writeReport(cmd.OutOrStdout(), p, res)

	return nil
}

// serveMetrics exposes the default registry until the returned function runs.
func serveMetrics(addr string, log *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", slog.String("addr", addr), slog.Any("err", err))
		}
	}()
	log.Info("serving metrics", slog.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
