// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("securegraph.graph")
	meter  = otel.Meter("securegraph.graph")
)

var (
	opLatency     metric.Float64Histogram
	opTotal       metric.Int64Counter
	elementsRead  metric.Int64Counter
	pathsReturned metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		opLatency, err = meter.Float64Histogram(
			"securegraph_operation_duration_seconds",
			metric.WithDescription("Duration of graph operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		opTotal, err = meter.Int64Counter(
			"securegraph_operations_total",
			metric.WithDescription("Total graph operations by name and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		elementsRead, err = meter.Int64Counter(
			"securegraph_elements_read_total",
			metric.WithDescription("Elements reconstructed from storage"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		pathsReturned, err = meter.Int64Histogram(
			"securegraph_paths_returned",
			metric.WithDescription("Paths returned per path search"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startOp opens a span for op. The returned func ends the span and records
// the operation metrics; pass it the operation's error.
func startOp(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "Graph."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		recordOp(ctx, op, time.Since(start), err == nil)
	}
}

func recordOp(ctx context.Context, op string, d time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.Bool("success", success),
	)
	opLatency.Record(ctx, d.Seconds(), attrs)
	opTotal.Add(ctx, 1, attrs)
}

func recordElementRead(ctx context.Context, kind ElementKind) {
	if err := initMetrics(); err != nil {
		return
	}
	elementsRead.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
}

func recordPaths(ctx context.Context, n int) {
	if err := initMetrics(); err != nil {
		return
	}
	pathsReturned.Record(ctx, int64(n))
}
