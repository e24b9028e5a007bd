// SPDX-License-Identifier: MIT

package bnb

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/katalvlaran/parqg/tree"
)

const tracerName = "parqg.bnb"

// tracer wraps an OpenTelemetry tracer; disabled, it hands out noop spans.
type tracer struct {
	tracer  trace.Tracer
	enabled bool
}

func newTracer(enabled bool) *tracer {
	return &tracer{tracer: otel.Tracer(tracerName), enabled: enabled}
}

func (t *tracer) startRun(ctx context.Context, runID, name string, workers int) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}

	return t.tracer.Start(ctx, "bnb.solve",
		trace.WithAttributes(
			attribute.String("bnb.run_id", runID),
			attribute.String("bnb.problem", name),
			attribute.Int("bnb.workers", workers),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t *tracer) endRun(span trace.Span, res Result, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(
		attribute.String("bnb.result.status", res.Status.String()),
		attribute.Float64("bnb.result.objective", res.Objective),
		attribute.Float64("bnb.result.bound", res.Bound),
		attribute.Int("bnb.result.nodes", res.Stats.NodesProcessed),
		attribute.Int("bnb.result.cuts", res.Stats.CutsAdded),
	)
	span.End()
}

func (t *tracer) startNode(ctx context.Context, worker int, n *tree.Node) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}

	return t.tracer.Start(ctx, "bnb.node",
		trace.WithAttributes(
			attribute.Int("bnb.worker", worker),
			attribute.Int("bnb.node.id", n.ID),
			attribute.Int("bnb.node.depth", n.Depth),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t *tracer) endNode(span trace.Span, n *tree.Node, rounds int) {
	span.SetAttributes(
		attribute.String("bnb.node.status", n.Status.String()),
		attribute.Float64("bnb.node.lb", n.Lb()),
		attribute.Int("bnb.node.rounds", rounds),
	)
	span.End()
}
