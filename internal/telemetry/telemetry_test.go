package telemetry

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestInit_None(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{Metrics: "none", Traces: "none"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{Metrics: "otlp"})
	assert.ErrorIs(t, err, ErrUnknownExporter)

	_, err = Init(context.Background(), Config{Traces: "jaeger"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInit_PrometheusTextfile(t *testing.T) {
	textfile := filepath.Join(t.TempDir(), "argstates.prom")
	ctx := context.Background()

	shutdown, err := Init(ctx, Config{Metrics: "prometheus", Traces: "none", Textfile: textfile})
	require.NoError(t, err)

	inst, err := NewInstruments(otel.Meter("test"))
	require.NoError(t, err)
	inst.Invocations.Add(ctx, 3, metric.WithAttributes(attribute.String("outcome", "produced")))
	inst.EmptyIncludes.Add(ctx, 1)

	require.NoError(t, shutdown(ctx))

	data, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "argstates_invocations")
	assert.Contains(t, string(data), `outcome="produced"`)
	assert.Contains(t, string(data), "argstates_include_resolution_empty")
}

func TestInit_StdoutTraces(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()

	shutdown, err := Init(ctx, Config{Metrics: "none", Traces: "stdout", Writer: &buf})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(ctx, "invoke")
	span.End()
	require.NoError(t, shutdown(ctx))

	assert.Contains(t, buf.String(), `"Name": "invoke"`)
}

func TestNewInstruments_Noop(t *testing.T) {
	inst, err := NewInstruments(noop.NewMeterProvider().Meter("x"))
	require.NoError(t, err)
	inst.Duration.Record(context.Background(), 0.5)
}
