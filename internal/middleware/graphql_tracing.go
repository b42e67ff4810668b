package middleware

import (
	"log/slog"
	"net/http"

	"pg-graphql/internal/dbexec"
	"pg-graphql/internal/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// GraphQLTracingMiddleware wraps GraphQL execution in a graphql.execute span
// and adds the trace ids to the request logger. Resolver and statement spans
// nest under it.
func GraphQLTracingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query, operationName := extractGraphQLRequest(r)
			op, ok := selectOperation(query, operationName)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			tracer := otel.Tracer("pg-graphql/graphql")
			ctx, span := tracer.Start(r.Context(), "graphql.execute")
			defer span.End()
			if spanCtx := span.SpanContext(); spanCtx.IsValid() {
				reqLogger := logging.FromContext(ctx).WithFields(
					slog.String("trace_id", spanCtx.TraceID().String()),
					slog.String("span_id", spanCtx.SpanID().String()),
				)
				ctx = logging.WithLogger(ctx, reqLogger)
			}

			if span.IsRecording() {
				span.SetAttributes(
					attribute.String("graphql.operation.type", op.Operation),
					attribute.Int("graphql.operation.root_fields", rootFieldCount(op.SelectionSet)),
				)
				if op.Name != nil {
					span.SetAttributes(attribute.String("graphql.operation.name", op.Name.Value))
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))

			// SessionMiddleware runs outside this one; a failed session will
			// roll back once the chain unwinds.
			if session := dbexec.SessionFromContext(r.Context()); session != nil && session.Failed() {
				span.SetStatus(codes.Error, "request transaction rolled back")
			}
		})
	}
}
