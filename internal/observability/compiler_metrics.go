package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CompilerMetrics counts compiled statements and how they fared. Its methods
// match dbexec.StatementObserver and resolver.CompileErrorObserver so they
// can be passed directly.
type CompilerMetrics struct {
	statements        metric.Int64Counter
	statementDuration metric.Float64Histogram
	statementErrors   metric.Int64Counter
	compileErrors     metric.Int64Counter
}

// InitCompilerMetrics registers the compiler and statement instruments.
func InitCompilerMetrics() (*CompilerMetrics, error) {
	meter := otel.Meter("pg-graphql/compiler")

	statements, err := meter.Int64Counter(
		"sql.statements.total",
		metric.WithDescription("Number of compiled statements executed, by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create statements counter: %w", err)
	}

	statementDuration, err := meter.Float64Histogram(
		"sql.statement.duration",
		metric.WithDescription("Duration of compiled statements in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create statement duration histogram: %w", err)
	}

	statementErrors, err := meter.Int64Counter(
		"sql.statement.errors.total",
		metric.WithDescription("Number of compiled statements that failed in the database"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create statement errors counter: %w", err)
	}

	compileErrors, err := meter.Int64Counter(
		"graphql.compile.errors.total",
		metric.WithDescription("Number of selections that could not be compiled to SQL"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create compile errors counter: %w", err)
	}

	return &CompilerMetrics{
		statements:        statements,
		statementDuration: statementDuration,
		statementErrors:   statementErrors,
		compileErrors:     compileErrors,
	}, nil
}

// ObserveStatement records one executed statement.
func (m *CompilerMetrics) ObserveStatement(ctx context.Context, kind string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("has_errors", err != nil),
	)
	m.statements.Add(ctx, 1, attrs)
	m.statementDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.statementErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

// ObserveCompileError records a selection rejected before reaching the database.
func (m *CompilerMetrics) ObserveCompileError(ctx context.Context, kind string, _ error) {
	m.compileErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
