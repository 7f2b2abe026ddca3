package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/servicehub/bookingengine"

// Metrics holds all application metrics
type Metrics struct {
	RequestCount       metric.Int64Counter
	RequestDuration    metric.Float64Histogram
	DBQueryDuration    metric.Float64Histogram
	CacheHitCount      metric.Int64Counter
	CacheMissCount     metric.Int64Counter
	BookingTransitions metric.Int64Counter
	SlotConflicts      metric.Int64Counter
	SideEffectFailures metric.Int64Counter
	SlotGeneration     metric.Float64Histogram
}

// Setup initializes OpenTelemetry tracing, metrics and runtime instrumentation
func Setup(ctx context.Context, serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx)
		return nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
		GetLogger().Warn().Err(err).Msg("Runtime instrumentation unavailable")
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			meterProvider.Shutdown(ctx),
			tracerProvider.Shutdown(ctx),
		)
	}

	return shutdown, nil
}

// InitMetrics initializes application metrics against the global meter provider
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}
	var err error

	if m.RequestCount, err = meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Number of HTTP requests"),
	); err != nil {
		return nil, err
	}

	if m.RequestDuration, err = meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.DBQueryDuration, err = meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Persistence gateway call duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.CacheHitCount, err = meter.Int64Counter(
		"cache.hit.count",
		metric.WithDescription("Number of slot cache hits"),
	); err != nil {
		return nil, err
	}

	if m.CacheMissCount, err = meter.Int64Counter(
		"cache.miss.count",
		metric.WithDescription("Number of slot cache misses"),
	); err != nil {
		return nil, err
	}

	if m.BookingTransitions, err = meter.Int64Counter(
		"booking.transition.count",
		metric.WithDescription("Booking lifecycle operations by action and outcome"),
	); err != nil {
		return nil, err
	}

	if m.SlotConflicts, err = meter.Int64Counter(
		"booking.slot_conflict.count",
		metric.WithDescription("Claims rejected because the interval was taken"),
	); err != nil {
		return nil, err
	}

	if m.SideEffectFailures, err = meter.Int64Counter(
		"booking.side_effect.failure.count",
		metric.WithDescription("Post-commit cache invalidations and notifications that failed"),
	); err != nil {
		return nil, err
	}

	if m.SlotGeneration, err = meter.Float64Histogram(
		"booking.slot_generation.duration",
		metric.WithDescription("Slot generation duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, spanName)
}

// RecordError records an error in the current span and marks it failed
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanAttributes sets attributes on a span
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
}

// RecordRequestMetric records an HTTP request
func RecordRequestMetric(ctx context.Context, metrics *Metrics, method, path string, statusCode int, duration time.Duration) {
	if metrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.route", path),
		attribute.Int("http.status_code", statusCode),
	}

	metrics.RequestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	metrics.RequestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordDBMetric records a persistence operation
func RecordDBMetric(ctx context.Context, metrics *Metrics, operation string, duration time.Duration) {
	if metrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("db.operation", operation),
	}
	metrics.DBQueryDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordCacheHit records a cache hit
func RecordCacheHit(ctx context.Context, metrics *Metrics, cache string) {
	if metrics == nil {
		return
	}
	metrics.CacheHitCount.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.name", cache)))
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss(ctx context.Context, metrics *Metrics, cache string) {
	if metrics == nil {
		return
	}
	metrics.CacheMissCount.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.name", cache)))
}

// RecordBookingTransition records a lifecycle operation and its outcome
func RecordBookingTransition(ctx context.Context, metrics *Metrics, action, outcome string) {
	if metrics == nil {
		return
	}
	metrics.BookingTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("booking.action", action),
		attribute.String("booking.outcome", outcome),
	))
}

// RecordSlotConflict records a rejected claim
func RecordSlotConflict(ctx context.Context, metrics *Metrics, providerID string) {
	if metrics == nil {
		return
	}
	metrics.SlotConflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("provider.id", providerID)))
}

// RecordSideEffectFailure records a failed post-commit side effect
func RecordSideEffectFailure(ctx context.Context, metrics *Metrics, effect string) {
	if metrics == nil {
		return
	}
	metrics.SideEffectFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("side_effect", effect)))
}

// RecordSlotGeneration records how long a slot computation took
func RecordSlotGeneration(ctx context.Context, metrics *Metrics, cached bool, duration time.Duration) {
	if metrics == nil {
		return
	}
	metrics.SlotGeneration.Record(ctx, float64(duration.Microseconds())/1000, metric.WithAttributes(attribute.Bool("cache.hit", cached)))
}
