package resolver

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pg-graphql/internal/selection"
)

func startResolverSpan(ctx context.Context, name string, node *selection.Node) (context.Context, trace.Span) {
	tracer := otel.Tracer("pg-graphql/resolver")
	ctx, span := tracer.Start(ctx, name)
	if node != nil {
		span.SetAttributes(
			attribute.String("graphql.field", node.Name),
			attribute.String("graphql.response_key", node.Alias),
			attribute.String("graphql.selection.tag", node.Tag.String()),
			attribute.String("graphql.type", node.TypeName),
		)
	}
	return ctx, span
}

func finishResolverSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("graphql.resolver.outcome", outcome))
	span.End()
}
