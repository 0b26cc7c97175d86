package tracing

import (
	"context"
	"testing"

	"github.com/smallbiznis/partnerpay/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (string, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value.AsString(), true
		}
	}
	return "", false
}

func TestCorrelationSpanProcessorTagsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(&correlationSpanProcessor{}),
		sdktrace.WithSpanProcessor(recorder),
	)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	tracer := provider.Tracer("test")

	ctx := correlation.WithID(context.Background(), "run_abc")
	_, span := tracer.Start(ctx, "with-id")
	span.End()
	_, span = tracer.Start(context.Background(), "without-id")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 2)

	cid, ok := spanAttr(ended[0], "correlation_id")
	require.True(t, ok)
	assert.Equal(t, "run_abc", cid)

	cid, ok = spanAttr(ended[1], "correlation_id")
	require.True(t, ok)
	assert.NotEmpty(t, cid)
}
