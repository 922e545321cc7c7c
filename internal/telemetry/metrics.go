// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EngineMetrics holds the engine's instruments. A nil *EngineMetrics records
// nothing, so callers need no guard when metrics are not wired.
type EngineMetrics struct {
	runsStarted   metric.Int64Counter
	runsCompleted metric.Int64Counter
	stepsTotal    metric.Int64Counter
	stepDuration  metric.Float64Histogram
}

// NewEngineMetrics registers the engine instruments on the given meter provider.
func NewEngineMetrics(meterProvider metric.MeterProvider) (*EngineMetrics, error) {
	meter := meterProvider.Meter("baton")

	em := &EngineMetrics{}

	var err error

	em.runsStarted, err = meter.Int64Counter(
		"baton_runs_started_total",
		metric.WithDescription("Total number of workflow runs started"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	em.runsCompleted, err = meter.Int64Counter(
		"baton_runs_completed_total",
		metric.WithDescription("Total number of workflow runs reaching a terminal status"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	em.stepsTotal, err = meter.Int64Counter(
		"baton_steps_total",
		metric.WithDescription("Total number of workflow steps executed"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, err
	}

	em.stepDuration, err = meter.Float64Histogram(
		"baton_step_duration_seconds",
		metric.WithDescription("Step execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return em, nil
}

// RecordRunStarted counts a run entering the engine.
func (em *EngineMetrics) RecordRunStarted(ctx context.Context, workflowID string) {
	if em == nil {
		return
	}
	em.runsStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", workflowID),
	))
}

// RecordRunCompleted counts a run reaching a terminal status.
func (em *EngineMetrics) RecordRunCompleted(ctx context.Context, workflowID, status string) {
	if em == nil {
		return
	}
	em.runsCompleted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", workflowID),
		attribute.String("status", status),
	))
}

// RecordStep counts a step execution and records its duration.
func (em *EngineMetrics) RecordStep(ctx context.Context, workflowID, stepID, stepType, status string, duration time.Duration) {
	if em == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("workflow", workflowID),
		attribute.String("step", stepID),
		attribute.String("type", stepType),
		attribute.String("status", status),
	}
	em.stepsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	em.stepDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
