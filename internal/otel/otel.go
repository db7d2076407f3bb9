// Package otel turns the events published on the event bus into
// OpenTelemetry spans and metrics.
package otel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	eventbus "github.com/andreassavva/relay/internal/eventbus"
	events "github.com/andreassavva/relay/internal/events"
	reqid "github.com/andreassavva/relay/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/andreassavva/relay"

// metricInterval is how often metrics are pushed to the collector.
const metricInterval = 15 * time.Second

// Setup configures OpenTelemetry and attaches event bus subscribers to the
// global bus. If endpoint is empty, no telemetry is configured.
func Setup(ctx context.Context, endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
	)

	traceExp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("otel: trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)

	metricExp, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure())
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("otel: metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(metricInterval))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	sub, err := newSubscriber(tp.Tracer(instrumentationName), mp.Meter(instrumentationName))
	if err != nil {
		_ = errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
		return nil, err
	}
	unregister := sub.register(eventbus.Default())

	return func(ctx context.Context) error {
		unregister()
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

type subscriber struct {
	tracer trace.Tracer

	requests  metric.Int64Counter
	ticks     metric.Int64Counter
	unhandled metric.Int64Counter
	duration  metric.Float64Histogram

	streamSpans  sync.Map // rid -> trace.Span
	requestSpans sync.Map // rid -> trace.Span
	httpSpans    sync.Map // rid -> trace.Span
	grpcSpans    sync.Map // rid -> trace.Span
}

func newSubscriber(tracer trace.Tracer, meter metric.Meter) (*subscriber, error) {
	s := &subscriber{tracer: tracer}
	var err error
	if s.requests, err = meter.Int64Counter("relay.requests",
		metric.WithDescription("Requests issued through the network layer.")); err != nil {
		return nil, err
	}
	if s.ticks, err = meter.Int64Counter("relay.poll.ticks",
		metric.WithDescription("Poll ticks started.")); err != nil {
		return nil, err
	}
	if s.unhandled, err = meter.Int64Counter("relay.unhandled_errors",
		metric.WithDescription("Errors that could not be delivered to an observer.")); err != nil {
		return nil, err
	}
	if s.duration, err = meter.Float64Histogram("relay.request.duration",
		metric.WithDescription("Time from fetch to normalized outcome."),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	return s, nil
}

// parentOf returns ctx carrying the innermost open span among the given
// maps, looked up by the execution id in ctx and then by its parent id.
func parentOf(ctx context.Context, maps ...*sync.Map) context.Context {
	ids := make([]string, 0, 2)
	if rid, ok := reqid.FromContext(ctx); ok {
		ids = append(ids, rid)
	}
	if pid, ok := reqid.ParentFromContext(ctx); ok {
		ids = append(ids, pid)
	}
	for _, id := range ids {
		for _, m := range maps {
			if v, ok := m.Load(id); ok {
				return trace.ContextWithSpan(ctx, v.(trace.Span))
			}
		}
	}
	return ctx
}

func endSpan(ctx context.Context, m *sync.Map, err error, attrs ...attribute.KeyValue) {
	rid, _ := reqid.FromContext(ctx)
	v, ok := m.LoadAndDelete(rid)
	if !ok {
		return
	}
	span := v.(trace.Span)
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *subscriber) register(bus *eventbus.Bus) (unregister func()) {
	var unsubs []func()
	add := func(u func()) { unsubs = append(unsubs, u) }

	add(eventbus.SubscribeTo(bus, func(ctx context.Context, e events.StreamStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(ctx, "relay.stream")
		span.SetAttributes(
			attribute.String("graphql.operation.name", e.OperationName),
			attribute.String("relay.operation.id", e.OperationID),
			attribute.String("relay.stream.mode", e.Mode),
		)
		s.streamSpans.Store(rid, span)
	}))

	add(eventbus.SubscribeTo(bus, func(ctx context.Context, e events.StreamFinish) {
		endSpan(ctx, &s.streamSpans, e.Err, attribute.Bool("relay.stream.disposed", e.Disposed))
	}))

	add(eventbus.SubscribeTo(bus, func(ctx context.Context, e events.PollTick) {
		attrs := attribute.NewSet(attribute.String("graphql.operation.name", e.OperationName))
		s.ticks.Add(ctx, 1, metric.WithAttributeSet(attrs))
		rid, _ := reqid.FromContext(ctx)
		if v, ok := s.streamSpans.Load(rid); ok {
			v.(trace.Span).AddEvent("poll.tick", trace.WithAttributes(attribute.Int("relay.poll.tick", e.Tick)))
		}
	}))

	add(eventbus.SubscribeTo(bus, func(ctx context.Context, e events.RequestStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(parentOf(ctx, &s.streamSpans), "relay.request")
		span.SetAttributes(
			attribute.String("graphql.operation.name", e.OperationName),
			attribute.String("graphql.operation.type", e.OperationKind),
			attribute.Bool("relay.force", e.Force),
		)
		s.requestSpans.Store(rid, span)
	}))

	add(eventbus.SubscribeTo(bus, func(ctx context.Context, e events.RequestFinish) {
		attrs := attribute.NewSet(
			attribute.String("graphql.operation.name", e.OperationName),
			attribute.String("relay.response.kind", e.ResponseKind),
			attribute.Bool("error", e.Err != nil),
		)
		s.requests.Add(ctx, 1, metric.WithAttributeSet(attrs))
		s.duration.Record(ctx, float64(e.Duration.Microseconds())/1000, metric.WithAttributeSet(attrs))
		endSpan(ctx, &s.requestSpans, e.Err, attribute.String("relay.response.kind", e.ResponseKind))
	}))

	add(eventbus.SubscribeTo(bus, func(ctx context.Context, _ events.UnhandledError) {
		s.unhandled.Add(ctx, 1)
	}))

	add(eventbus.SubscribeTo(bus, func(ctx context.Context, e events.HTTPClientStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(parentOf(ctx, &s.requestSpans, &s.streamSpans), "http.client")
		span.SetAttributes(
			semconv.HTTPMethodKey.String(e.Method),
			attribute.String("http.url", e.URL),
		)
		s.httpSpans.Store(rid, span)
	}))

	add(eventbus.SubscribeTo(bus, func(ctx context.Context, e events.HTTPClientFinish) {
		endSpan(ctx, &s.httpSpans, e.Err, semconv.HTTPStatusCodeKey.Int(e.Status))
	}))

	add(eventbus.SubscribeTo(bus, func(ctx context.Context, e events.GRPCClientStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(parentOf(ctx, &s.requestSpans, &s.streamSpans), "grpc.client")
		span.SetAttributes(
			semconv.RPCMethodKey.String(e.Method),
			attribute.String("net.peer.name", e.Target),
		)
		s.grpcSpans.Store(rid, span)
	}))

	add(eventbus.SubscribeTo(bus, func(ctx context.Context, e events.GRPCClientFinish) {
		endSpan(ctx, &s.grpcSpans, e.Err, attribute.String("grpc.code", e.Code.String()))
	}))

	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
