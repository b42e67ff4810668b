package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pg-graphql/internal/dbexec"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		otel.SetTracerProvider(previous)
	})
	return recorder
}

func TestGraphQLTracingMiddleware_RecordsOperation(t *testing.T) {
	recorder := withSpanRecorder(t)

	handler := GraphQLTracingMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	body := `{"query":"mutation Rename { updateAccount(input: {}) { clientMutationId } }"}`
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "graphql.execute", span.Name())

	attrs := map[string]interface{}{}
	for _, kv := range span.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "mutation", attrs["graphql.operation.type"])
	assert.Equal(t, "Rename", attrs["graphql.operation.name"])
	assert.Equal(t, int64(1), attrs["graphql.operation.root_fields"])
	assert.Equal(t, codes.Unset, span.Status().Code)
}

func TestGraphQLTracingMiddleware_FailedSessionMarksSpan(t *testing.T) {
	recorder := withSpanRecorder(t)

	session := dbexec.NewSession(nil)
	handler := GraphQLTracingMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dbexec.SessionFromContext(r.Context()).MarkError()
	}))
	req := httptest.NewRequest(http.MethodGet, "/graphql?query=%7B+a+%7D", nil)
	req = req.WithContext(dbexec.WithSession(req.Context(), session))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestGraphQLTracingMiddleware_SkipsNonGraphQLRequests(t *testing.T) {
	recorder := withSpanRecorder(t)

	called := false
	handler := GraphQLTracingMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/graphql", nil))

	assert.True(t, called)
	assert.Empty(t, recorder.Ended())
}
