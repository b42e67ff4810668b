package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GraphQLMetrics records per-operation request metrics.
type GraphQLMetrics struct {
	duration   metric.Float64Histogram
	requests   metric.Int64Counter
	errors     metric.Int64Counter
	inFlight   metric.Int64UpDownCounter
	rootFields metric.Int64Histogram
}

// InitGraphQLMetrics registers the GraphQL request instruments on the global
// meter provider.
func InitGraphQLMetrics() (*GraphQLMetrics, error) {
	meter := otel.Meter("pg-graphql")
	m := &GraphQLMetrics{}
	var err error

	if m.duration, err = meter.Float64Histogram("graphql.request.duration",
		metric.WithDescription("Duration of GraphQL requests in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("graphql.request.duration: %w", err)
	}
	if m.requests, err = meter.Int64Counter("graphql.requests.total",
		metric.WithDescription("GraphQL requests by operation type and outcome"),
	); err != nil {
		return nil, fmt.Errorf("graphql.requests.total: %w", err)
	}
	if m.errors, err = meter.Int64Counter("graphql.errors.total",
		metric.WithDescription("GraphQL requests whose response carried errors"),
	); err != nil {
		return nil, fmt.Errorf("graphql.errors.total: %w", err)
	}
	if m.inFlight, err = meter.Int64UpDownCounter("graphql.requests.active",
		metric.WithDescription("GraphQL requests currently executing"),
	); err != nil {
		return nil, fmt.Errorf("graphql.requests.active: %w", err)
	}
	if m.rootFields, err = meter.Int64Histogram("graphql.operation.root_fields",
		metric.WithDescription("Root fields per operation; each compiles to one SQL statement"),
	); err != nil {
		return nil, fmt.Errorf("graphql.operation.root_fields: %w", err)
	}
	return m, nil
}

// RecordRequest records one finished operation.
func (m *GraphQLMetrics) RecordRequest(ctx context.Context, duration time.Duration, hasErrors bool, operationType string) {
	opAttr := attribute.String("operation_type", operationType)
	attrs := metric.WithAttributes(opAttr, attribute.Bool("has_errors", hasErrors))

	m.duration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	m.requests.Add(ctx, 1, attrs)
	if hasErrors {
		m.errors.Add(ctx, 1, metric.WithAttributes(opAttr))
	}
}

// RecordRootFields records how many root fields an operation selects.
func (m *GraphQLMetrics) RecordRootFields(ctx context.Context, count int64, operationType string) {
	m.rootFields.Record(ctx, count, metric.WithAttributes(attribute.String("operation_type", operationType)))
}

// Begin marks an operation as in flight and returns the func that ends it.
func (m *GraphQLMetrics) Begin(ctx context.Context) (end func()) {
	m.inFlight.Add(ctx, 1)
	return func() { m.inFlight.Add(ctx, -1) }
}

// InitMetrics registers the GraphQL instruments and logs that they exist.
func InitMetrics(logger *slog.Logger) (*GraphQLMetrics, error) {
	metrics, err := InitGraphQLMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GraphQL metrics: %w", err)
	}
	logger.Debug("GraphQL metrics registered")
	return metrics, nil
}
