package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"pg-graphql/internal/observability"

	"github.com/graphql-go/graphql/language/ast"
)

// GraphQLMetricsMiddleware records request counts, durations and the number
// of root fields, each of which compiles to one SQL statement.
func GraphQLMetricsMiddleware(metrics *observability.GraphQLMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// GraphiQL page loads are GETs without a query.
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			defer metrics.Begin(ctx)()

			start := time.Now()

			operationType := "unknown"
			query, operationName := extractGraphQLRequest(r)
			if op, ok := selectOperation(query, operationName); ok {
				operationType = op.Operation
				metrics.RecordRootFields(ctx, int64(rootFieldCount(op.SelectionSet)), operationType)
			}

			wrapped := &metricsResponseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			next.ServeHTTP(wrapped, r)

			hasErrors := wrapped.statusCode >= 400 || responseHasGraphQLErrors(wrapped.body.Bytes())
			metrics.RecordRequest(ctx, time.Since(start), hasErrors, operationType)
		})
	}
}

// rootFieldCount counts fields at the top of the operation, looking through
// inline fragments. Named fragment spreads at the root count as one.
func rootFieldCount(set *ast.SelectionSet) int {
	if set == nil {
		return 0
	}
	n := 0
	for _, sel := range set.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			n++
		case *ast.InlineFragment:
			n += rootFieldCount(s.SelectionSet)
		case *ast.FragmentSpread:
			n++
		}
	}
	return n
}

// metricsResponseWriter captures the status code and body so GraphQL errors
// returned with HTTP 200 still count as failures.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
	body       bytes.Buffer
}

func (w *metricsResponseWriter) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
		w.ResponseWriter.WriteHeader(statusCode)
	}
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	if len(b) > 0 {
		_, _ = w.body.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

func responseHasGraphQLErrors(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return false
	}

	var payload struct {
		Errors []json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return false
	}
	return len(payload.Errors) > 0
}
