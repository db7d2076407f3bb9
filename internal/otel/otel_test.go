package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/andreassavva/relay/internal/envelope"
	eventbus "github.com/andreassavva/relay/internal/eventbus"
	events "github.com/andreassavva/relay/internal/events"
	"github.com/andreassavva/relay/internal/network"
	"github.com/andreassavva/relay/internal/normalize"
	"github.com/andreassavva/relay/internal/operation"
)

func setupRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	sub, err := newSubscriber(tp.Tracer("test"), noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	bus := eventbus.New()
	eventbus.Use(bus)
	unregister := sub.register(bus)
	t.Cleanup(func() {
		unregister()
		eventbus.Use(nil)
	})
	return sr
}

// fetchWithHTTPEvents answers with a fixed payload and publishes the events
// an HTTP transport would.
func fetchWithHTTPEvents(ctx context.Context, _ operation.Context, _ network.Uploadables) envelope.Response[normalize.Payload] {
	eventbus.Publish(ctx, events.HTTPClientStart{Method: "POST", URL: "http://example.test/graphql"})
	eventbus.Publish(ctx, events.HTTPClientFinish{Method: "POST", URL: "http://example.test/graphql", Status: 200})
	return envelope.Data(normalize.Payload{Data: map[string]any{"viewer": map[string]any{"id": "v1"}}})
}

func spansByName(sr *tracetest.SpanRecorder) map[string]sdktrace.ReadOnlySpan {
	out := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range sr.Ended() {
		out[s.Name()] = s
	}
	return out
}

func TestSubscriber_StreamRequestHTTPSpansNest(t *testing.T) {
	sr := setupRecorder(t)
	l := network.New(fetchWithHTTPEvents)
	op := operation.New(operation.MustParse(`query Viewer { viewer { id } }`, ""), nil, operation.CacheConfig{})

	_, err := l.RequestStream(context.Background(), op, network.Observer[*normalize.Result]{})
	require.NoError(t, err)

	spans := spansByName(sr)
	require.Len(t, spans, 3)
	stream, request, http := spans["relay.stream"], spans["relay.request"], spans["http.client"]
	require.NotNil(t, stream)
	require.NotNil(t, request)
	require.NotNil(t, http)

	require.Equal(t, stream.SpanContext().SpanID(), request.Parent().SpanID())
	require.Equal(t, request.SpanContext().SpanID(), http.Parent().SpanID())
	require.Equal(t, stream.SpanContext().TraceID(), http.SpanContext().TraceID())
}

func TestSubscriber_RequestErrorStatus(t *testing.T) {
	sr := setupRecorder(t)
	boom := errors.New("boom")
	l := network.New(func(context.Context, operation.Context, network.Uploadables) envelope.Response[normalize.Payload] {
		return envelope.Error[normalize.Payload](boom)
	})
	op := operation.New(operation.MustParse(`query Viewer { viewer { id } }`, ""), nil, operation.CacheConfig{})

	resp := l.Request(context.Background(), op, nil)
	require.ErrorIs(t, resp.Err(), boom)

	spans := spansByName(sr)
	request := spans["relay.request"]
	require.NotNil(t, request)
	require.Equal(t, "boom", request.Status().Description)
	require.Len(t, request.Events(), 1)
}

func TestSubscriber_Unregister(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	sub, err := newSubscriber(tp.Tracer("test"), noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	bus := eventbus.New()
	unregister := sub.register(bus)
	unregister()

	eventbus.PublishTo(context.Background(), bus, events.StreamStart{OperationName: "X"})
	eventbus.PublishTo(context.Background(), bus, events.StreamFinish{OperationName: "X"})
	require.Empty(t, sr.Ended())
}

func TestSetup_NoEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), "", "relaynet")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSubscriber_RequestMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	sub, err := newSubscriber(tp.Tracer("test"), mp.Meter("test"))
	require.NoError(t, err)
	bus := eventbus.New()
	eventbus.Use(bus)
	unregister := sub.register(bus)
	t.Cleanup(func() {
		unregister()
		eventbus.Use(nil)
	})

	l := network.New(fetchWithHTTPEvents)
	op := operation.New(operation.MustParse(`query Viewer { viewer { id } }`, ""), nil, operation.CacheConfig{})
	l.Request(context.Background(), op, nil)
	l.Request(context.Background(), op, nil)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	requests := findMetric(t, rm, "relay.requests")
	sum, ok := requests.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	require.Equal(t, int64(2), sum.DataPoints[0].Value)
	kind, ok := sum.DataPoints[0].Attributes.Value(attribute.Key("relay.response.kind"))
	require.True(t, ok)
	require.Equal(t, "data", kind.AsString())

	duration := findMetric(t, rm, "relay.request.duration")
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	require.Equal(t, uint64(2), hist.DataPoints[0].Count)
}

func findMetric(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m
			}
		}
	}
	t.Fatalf("metric %q not recorded", name)
	return metricdata.Metrics{}
}
