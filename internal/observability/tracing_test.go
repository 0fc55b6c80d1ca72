package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	otelcodes "go.opentelemetry.io/otel/codes"
)

func TestInitTracing_NoEndpointIsNoop(t *testing.T) {
	tp, err := InitTracing(context.Background(), TracingConfig{ServiceName: "test"})
	require.NoError(t, err)
	assert.False(t, tp.Enabled())
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestSpans_RecordAttributesAndErrors(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	_, span := StartIngestSpan(context.Background(), "t1")
	EndSpan(span, nil)

	_, span = StartQuerySpan(context.Background(), "memory", 3)
	EndSpan(span, errors.New("embedding failed"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "corpus.ingest", spans[0].Name())
	assert.Equal(t, otelcodes.Unset, spans[0].Status().Code)

	assert.Equal(t, "similarity.query", spans[1].Name())
	assert.Equal(t, otelcodes.Error, spans[1].Status().Code)
	assert.Equal(t, "embedding failed", spans[1].Status().Description)
}
