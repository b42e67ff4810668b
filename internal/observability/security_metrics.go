package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Authentication outcomes recorded by SecurityMetrics.
const (
	AuthAnonymous     = "anonymous"
	AuthAuthenticated = "authenticated"
	AuthRejected      = "rejected"
)

// SecurityMetrics counts how bearer tokens on incoming requests were judged.
type SecurityMetrics struct {
	requests        metric.Int64Counter
	tokenRejections metric.Int64Counter
}

// InitSecurityMetrics registers the authentication instruments.
func InitSecurityMetrics() (*SecurityMetrics, error) {
	meter := otel.Meter("pg-graphql/security")

	requests, err := meter.Int64Counter(
		"security.auth.requests.total",
		metric.WithDescription("Requests seen by the authentication layer, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth requests counter: %w", err)
	}

	tokenRejections, err := meter.Int64Counter(
		"security.token.rejections.total",
		metric.WithDescription("Bearer tokens that were missing or failed verification, by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token rejections counter: %w", err)
	}

	return &SecurityMetrics{requests: requests, tokenRejections: tokenRejections}, nil
}

// RecordOutcome counts one request. reason is only attached to rejections.
func (m *SecurityMetrics) RecordOutcome(ctx context.Context, endpoint, outcome, reason string) {
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("outcome", outcome),
	))
	if outcome == AuthRejected {
		m.tokenRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}
