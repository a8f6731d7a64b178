package tracing

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInit_DisabledInstallsPropagatorOnly(t *testing.T) {
	prev := otel.GetTracerProvider()

	shutdown, err := Init(context.Background(), Config{ServiceName: "grocery", Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, prev, otel.GetTracerProvider())
	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
}

func TestInit_EnabledSetsGlobalProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	shutdown, err := Init(context.Background(), Config{
		ServiceName:  "grocery",
		OTLPEndpoint: "localhost:4318",
		SampleRate:   1,
		Enabled:      true,
	})
	require.NoError(t, err)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}

func TestNewProvider_RecordsSpansWithResource(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp, err := NewProvider(context.Background(), Config{
		ServiceName:    "grocery",
		ServiceVersion: "1.2.3",
		Environment:    "test",
		SampleRate:     1,
	}, sdktrace.WithSyncer(exporter))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "ledger.add_to_cart")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "ledger.add_to_cart", spans[0].Name)

	var attrs []string
	for _, kv := range spans[0].Resource.Attributes() {
		attrs = append(attrs, string(kv.Key)+"="+kv.Value.Emit())
	}
	joined := strings.Join(attrs, ",")
	assert.Contains(t, joined, "service.name=grocery")
	assert.Contains(t, joined, "service.version=1.2.3")
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{rate: 1, want: "AlwaysOnSampler"},
		{rate: 2, want: "AlwaysOnSampler"},
		{rate: 0, want: "AlwaysOffSampler"},
		{rate: -1, want: "AlwaysOffSampler"},
		{rate: 0.5, want: "TraceIDRatioBased{0.5}"},
	}

	for _, tt := range tests {
		desc := Sampler(tt.rate).Description()
		assert.True(t, strings.HasPrefix(desc, "ParentBased{root:"+tt.want), desc)
	}
}

func TestTracer(t *testing.T) {
	assert.NotNil(t, Tracer("grocery"))
}
