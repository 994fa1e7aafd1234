package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerProviderRecordsSpans(t *testing.T) {
	ctx := context.Background()
	tp, err := InitTracerProvider(ctx, "lead-enricher-test")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, Shutdown(ctx, tp)) })

	recorder := tracetest.NewSpanRecorder()
	tp.RegisterSpanProcessor(recorder)

	_, span := otel.Tracer("test").Start(ctx, "unit")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, "unit", ended[0].Name())

	var found bool
	for _, kv := range ended[0].Resource().Attributes() {
		if string(kv.Key) == "service.name" && kv.Value.AsString() == "lead-enricher-test" {
			found = true
		}
	}
	require.True(t, found)
}

func TestShutdownNil(t *testing.T) {
	t.Parallel()
	require.NoError(t, Shutdown(context.Background(), nil))
}
