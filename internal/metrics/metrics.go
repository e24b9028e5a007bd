// SPDX-License-Identifier: MIT

// Package metrics holds the Prometheus collectors of the solver. They are
// registered on the default registry at init and updated only when a solve
// enables metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Search tree metrics.
var (
	NodesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parqg_nodes_processed_total",
		Help: "Nodes processed, by final node status",
	}, []string{"status"})

	NodesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parqg_nodes_created_total",
		Help: "Child nodes created by branching",
	})

	NodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "parqg_node_duration_seconds",
		Help:    "Time to process one node",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 10},
	})
)

// Outer-approximation metrics.
var (
	CutsAdded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parqg_cuts_added_total",
		Help: "Cuts added to a relaxation, by kind",
	}, []string{"kind"})

	CutsImported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parqg_cuts_imported_total",
		Help: "Cuts pulled from peer cut pools",
	})

	NLPSolves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parqg_nlp_solves_total",
		Help: "NLP solves, by engine status",
	}, []string{"status"})
)

// Bound metrics.
var (
	Incumbent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parqg_incumbent",
		Help: "Objective value of the best known solution",
	})

	LowerBound = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parqg_lower_bound",
		Help: "Global lower bound",
	})
)
