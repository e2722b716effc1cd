package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/JakeFAU/liquidity-monitor/internal/config"
)

// These tests mutate the global tracer provider and must not run in parallel.

func TestInitTracingDisabled(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := InitTracing(context.Background(), config.TelemetryConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	require.Equal(t, before, otel.GetTracerProvider())
}

func TestInitTracingExportsSpans(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	exporter := tracetest.NewInMemoryExporter()
	orig := newExporter
	newExporter = func(projectID string) (sdktrace.SpanExporter, error) {
		require.Equal(t, "demo-project", projectID)
		return exporter, nil
	}
	t.Cleanup(func() { newExporter = orig })

	shutdown, err := InitTracing(context.Background(), config.TelemetryConfig{
		TracingEnabled: true,
		ServiceName:    "liquidity-monitor-test",
		ProjectID:      "demo-project",
	}, nil)
	require.NoError(t, err)

	_, span := otel.Tracer(TracerName).Start(context.Background(), "cycle")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "cycle", spans[0].Name)
}

func TestInitTracingExporterError(t *testing.T) {
	orig := newExporter
	newExporter = func(string) (sdktrace.SpanExporter, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() { newExporter = orig })

	_, err := InitTracing(context.Background(), config.TelemetryConfig{TracingEnabled: true, ProjectID: "p"}, nil)
	require.ErrorContains(t, err, "no credentials")
}
