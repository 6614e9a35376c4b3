// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package telemetry provides OpenTelemetry instruments for the repair
// loop. Instruments are no-ops unless the host process installs meter
// and tracer providers.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for repair operations.
var (
	tracer = otel.Tracer("mendci.repair")
	meter  = otel.Meter("mendci.repair")
)

var (
	commandDuration metric.Float64Histogram
	commandTotal    metric.Int64Counter
	iterationTotal  metric.Int64Counter
	attemptTotal    metric.Int64Counter
	appliedTotal    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		commandDuration, err = meter.Float64Histogram(
			"repair_command_duration_seconds",
			metric.WithDescription("Duration of external command execution"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		commandTotal, err = meter.Int64Counter(
			"repair_command_total",
			metric.WithDescription("Total external commands executed"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		iterationTotal, err = meter.Int64Counter(
			"repair_iteration_total",
			metric.WithDescription("Total repair loop iterations started"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		attemptTotal, err = meter.Int64Counter(
			"repair_patch_attempt_total",
			metric.WithDescription("Total patch attempts, by disposition"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		appliedTotal, err = meter.Int64Counter(
			"repair_patch_applied_total",
			metric.WithDescription("Total patches applied to the working tree"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// RecordCommand records one external command invocation.
func RecordCommand(name string, exitCode int, elapsed time.Duration) {
	if initMetrics() != nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("command", name),
		attribute.Bool("ok", exitCode == 0),
	)
	commandDuration.Record(ctx, elapsed.Seconds(), attrs)
	commandTotal.Add(ctx, 1, attrs)
}

// RecordIteration records the start of a repair loop iteration.
func RecordIteration(iteration int) {
	if initMetrics() != nil {
		return
	}
	iterationTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.Int("iteration", iteration)))
}

// RecordAttempt records the disposition of one patch attempt
// ("applied", "rejected", "declined", "apply_failed", ...).
func RecordAttempt(disposition string) {
	if initMetrics() != nil {
		return
	}
	attemptTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("disposition", disposition)))
}

// RecordApplied records a successful patch application.
func RecordApplied() {
	if initMetrics() != nil {
		return
	}
	appliedTotal.Add(context.Background(), 1)
}

// StartIterationSpan starts a span covering one loop iteration.
func StartIterationSpan(ctx context.Context, iteration int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "RepairLoop.Iteration",
		trace.WithAttributes(attribute.Int("repair.iteration", iteration)),
	)
}
