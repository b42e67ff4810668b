package serverapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"pg-graphql/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestWrapHTTPHandler_NamesSpansByRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()), sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(previous)
	})

	cfg := &config.Config{Observability: config.ObservabilityConfig{TracingEnabled: true}}
	handler := wrapHTTPHandler(cfg, testLogger(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, path := range []string{"/graphql", "/accounts/42"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.ElementsMatch(t, []string{"POST /graphql", "POST /*"}, names)
}

func TestWrapHTTPHandler_DisabledIsPassthrough(t *testing.T) {
	inner := http.NotFoundHandler()
	got := wrapHTTPHandler(&config.Config{}, testLogger(), inner)
	rec := httptest.NewRecorder()
	got.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPSpanName(t *testing.T) {
	tests := map[string]string{
		"/":         "GET /",
		"/graphql":  "GET /graphql",
		"/health":   "GET /health",
		"/metrics":  "GET /metrics",
		"/users/1":  "GET /*",
		"/graphql/": "GET /*",
	}
	for path, want := range tests {
		assert.Equal(t, want, httpSpanName(httptest.NewRequest(http.MethodGet, path, nil)), path)
	}
}
