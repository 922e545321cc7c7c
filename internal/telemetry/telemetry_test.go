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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func TestNewProviderExportsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()

	p, err := New(context.Background(),
		Config{Enabled: true, ServiceName: "baton-test", ServiceVersion: "1.2.3"},
		sdktrace.WithSyncer(exporter),
	)
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	tracer := p.Tracer("engine")
	_, span := tracer.Start(context.Background(), "engine.step")
	span.SetAttributes(attribute.String("step_id", "collect"))
	span.End()

	require.NoError(t, p.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "engine.step", spans[0].Name)

	var foundStep bool
	for _, attr := range spans[0].Attributes {
		if attr.Key == "step_id" {
			assert.Equal(t, "collect", attr.Value.AsString())
			foundStep = true
		}
	}
	assert.True(t, foundStep, "step_id attribute not found")

	// Service identity flows from config into the span resource.
	var service string
	for _, attr := range spans[0].Resource.Attributes() {
		if attr.Key == semconv.ServiceNameKey {
			service = attr.Value.AsString()
		}
	}
	assert.Equal(t, "baton-test", service)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	require.NotNil(t, p.Metrics())
	require.NotNil(t, p.MetricsHandler())

	// Spans from a disabled provider record nothing but never panic.
	_, span := p.Tracer("engine").Start(context.Background(), "engine.start_run")
	span.End()

	require.NoError(t, p.ForceFlush(context.Background()))
}

func TestNewProviderWithConfiguredExporters(t *testing.T) {
	// Exporter construction is lazy, so no collector needs to be listening.
	p, err := New(context.Background(), Config{
		Enabled:      true,
		ServiceName:  "baton-test",
		OTLPEndpoint: "http://localhost:4318",
		StdoutTrace:  false,
	})
	require.NoError(t, err)

	require.NotNil(t, p.Tracer("engine"))
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestEngineMetricsRecord(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	em, err := NewEngineMetrics(mp)
	require.NoError(t, err)

	ctx := context.Background()
	em.RecordRunStarted(ctx, "wf-1")
	em.RecordRunCompleted(ctx, "wf-1", "completed")
	em.RecordStep(ctx, "wf-1", "collect", "form", "completed", 120*time.Millisecond)
	em.RecordStep(ctx, "wf-1", "collect", "form", "completed", 80*time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byName := map[string]metricdata.Metrics{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		byName[m.Name] = m
	}

	started, ok := byName["baton_runs_started_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok, "runs started counter missing")
	require.Len(t, started.DataPoints, 1)
	assert.Equal(t, int64(1), started.DataPoints[0].Value)

	completed, ok := byName["baton_runs_completed_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok, "runs completed counter missing")
	require.Len(t, completed.DataPoints, 1)
	status, _ := completed.DataPoints[0].Attributes.Value(attribute.Key("status"))
	assert.Equal(t, "completed", status.AsString())

	steps, ok := byName["baton_steps_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok, "steps counter missing")
	require.Len(t, steps.DataPoints, 1)
	assert.Equal(t, int64(2), steps.DataPoints[0].Value)

	duration, ok := byName["baton_step_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok, "step duration histogram missing")
	require.Len(t, duration.DataPoints, 1)
	assert.Equal(t, uint64(2), duration.DataPoints[0].Count)
	assert.InDelta(t, 0.2, duration.DataPoints[0].Sum, 1e-9)
}

func TestEngineMetricsNilReceiver(t *testing.T) {
	var em *EngineMetrics

	ctx := context.Background()
	em.RecordRunStarted(ctx, "wf-1")
	em.RecordRunCompleted(ctx, "wf-1", "failed")
	em.RecordStep(ctx, "wf-1", "gate", "conditional", "completed", time.Millisecond)
}
