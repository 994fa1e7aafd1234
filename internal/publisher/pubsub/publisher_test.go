package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newFakeClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	return client, srv
}

func TestNewRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "topic")
	require.Error(t, err)
}

// Mutates the global propagator, so it must not run in parallel.
func TestPublishSendsJSONWithTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	client, srv := newFakeClient(t)
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "worker.publish")
	defer span.End()

	_, err := client.CreateTopic(ctx, "searches-done")
	require.NoError(t, err)

	pub, err := New(client, "searches-done")
	require.NoError(t, err)
	defer pub.Close()

	id, err := pub.Publish(ctx, "", map[string]any{"job_id": "job-1", "places": 3})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.JSONEq(t, `{"job_id":"job-1","places":3}`, string(msgs[0].Data))
	require.Contains(t, msgs[0].Attributes["traceparent"], span.SpanContext().TraceID().String())
}

func TestPublishUnknownTopicFails(t *testing.T) {
	t.Parallel()

	client, _ := newFakeClient(t)
	pub, err := New(client, "")
	require.NoError(t, err)
	defer pub.Close()

	_, err = pub.Publish(context.Background(), "", "payload")
	require.Error(t, err)

	_, err = pub.Publish(context.Background(), "missing-topic", "payload")
	require.Error(t, err)
}

func TestCarrier(t *testing.T) {
	t.Parallel()

	c := carrier{}
	propagation.TraceContext{}.Inject(context.Background(), c)
	require.Empty(t, c.Keys())

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()
	propagation.TraceContext{}.Inject(ctx, c)
	require.Equal(t, []string{"traceparent"}, c.Keys())
	require.Contains(t, c.Get("traceparent"), span.SpanContext().TraceID().String())
}
