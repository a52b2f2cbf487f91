package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yelena0000/fish-store/core"
	"go.opentelemetry.io/otel"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	tp, mp, prop := otel.GetTracerProvider(), otel.GetMeterProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestInitialize_Disabled(t *testing.T) {
	p, err := Initialize(context.Background(), core.TelemetryConfig{Enabled: false}, "bot")
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInitialize_StdoutExporter(t *testing.T) {
	restoreGlobals(t)
	var buf bytes.Buffer

	p, err := Initialize(context.Background(), core.TelemetryConfig{
		Enabled:    true,
		Exporter:   ExporterStdout,
		SampleRate: 1.0,
	}, "fish-store-test", WithStdoutWriter(&buf))
	require.NoError(t, err)
	require.True(t, p.Enabled())

	_, span := otel.Tracer("test").Start(context.Background(), "catalog.page")
	span.End()

	counter, err := otel.Meter("test").Int64Counter("test.counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "catalog.page")
	assert.Contains(t, buf.String(), "fish-store-test")
}

func TestInitialize_ServiceNameOverride(t *testing.T) {
	restoreGlobals(t)
	var buf bytes.Buffer

	p, err := Initialize(context.Background(), core.TelemetryConfig{
		Enabled:     true,
		Exporter:    ExporterStdout,
		ServiceName: "custom-name",
		SampleRate:  1.0,
	}, "fallback-name", WithStdoutWriter(&buf))
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), "custom-name")
	assert.NotContains(t, buf.String(), "fallback-name")
}

func TestInitialize_UnknownExporter(t *testing.T) {
	restoreGlobals(t)
	_, err := Initialize(context.Background(), core.TelemetryConfig{Enabled: true, Exporter: "zipkin"}, "bot")
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}

func TestInitialize_ZeroSampleRateDropsSpans(t *testing.T) {
	restoreGlobals(t)
	var buf bytes.Buffer

	p, err := Initialize(context.Background(), core.TelemetryConfig{
		Enabled:    true,
		Exporter:   ExporterStdout,
		SampleRate: 0,
	}, "bot", WithStdoutWriter(&buf))
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "unsampled")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	assert.NotContains(t, buf.String(), "unsampled")
}
