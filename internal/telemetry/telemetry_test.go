package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/agendaclin/agendaclin/internal/telemetry"
)

func TestInit_Disabled(t *testing.T) {
	ctx := context.Background()

	provider, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "agendaclin-push",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		OTLPEndpoint:   "localhost:4317",
		Enabled:        false,
	})

	require.NoError(t, err)
	require.NotNil(t, provider)
	assert.Nil(t, provider.TracerProvider)
	assert.Nil(t, provider.MeterProvider)
	assert.NoError(t, provider.Shutdown(ctx))
}

func TestProvider_Shutdown_NilProviders(t *testing.T) {
	provider := &telemetry.Provider{}
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "AlwaysOnSampler"},
		{1, "AlwaysOnSampler"},
		{1.5, "AlwaysOnSampler"},
		{0.25, "ParentBased{root:TraceIDRatioBased{0.25}"},
	}

	for _, tt := range tests {
		desc := telemetry.Sampler(tt.ratio).Description()
		assert.Contains(t, desc, tt.want, "ratio %v", tt.ratio)
	}
}

func TestSampler_ChildFollowsParent(t *testing.T) {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(telemetry.Sampler(0.000001)))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	// A sampled parent is honoured even at a tiny ratio.
	ctx, parent := sdktrace.NewTracerProvider().Tracer("parent").Start(context.Background(), "parent")
	defer parent.End()

	_, child := tp.Tracer("child").Start(ctx, "child")
	defer child.End()
	assert.True(t, child.SpanContext().IsSampled())
}

func TestResourceAttributes(t *testing.T) {
	attrs := telemetry.ResourceAttributes(telemetry.Config{
		ServiceName:    "agendaclin-worker",
		ServiceVersion: "2.0.0",
		Environment:    "staging",
	})

	values := make(map[string]string, len(attrs))
	for _, kv := range attrs {
		values[string(kv.Key)] = kv.Value.AsString()
	}
	assert.Equal(t, "agendaclin-worker", values["service.name"])
	assert.Equal(t, "2.0.0", values["service.version"])
	assert.Equal(t, telemetry.Namespace, values["service.namespace"])
	assert.Equal(t, "staging", values["deployment.environment"])
}
