package observability

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitMeterProviderAndMetrics(t *testing.T) {
	mp, err := InitMeterProvider(Config{ServiceName: "pg-graphql", ServiceVersion: "test", Environment: "test"})
	require.NoError(t, err)
	require.NotNil(t, mp.exporter)

	metrics, err := InitMetrics(discardLogger())
	require.NoError(t, err)
	assert.NotNil(t, metrics.requests)
	assert.NotNil(t, metrics.errors)
	assert.NotNil(t, metrics.inFlight)
	metrics.Begin(context.Background())()

	assert.NoError(t, mp.Shutdown(context.Background(), discardLogger()))
}

func TestBuildTLSConfig(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not-a-cert"), 0o600))

	tests := []struct {
		name    string
		cfg     OTLPExporterConfig
		wantErr string
	}{
		{name: "no files", cfg: OTLPExporterConfig{}},
		{name: "missing CA", cfg: OTLPExporterConfig{TLSCertFile: filepath.Join(dir, "absent.pem")}, wantErr: "read CA file"},
		{name: "CA without PEM", cfg: OTLPExporterConfig{TLSCertFile: garbage}, wantErr: "holds no PEM certificates"},
		{name: "cert without key", cfg: OTLPExporterConfig{TLSClientCertFile: garbage}, wantErr: "must be set together"},
		{name: "unreadable key pair", cfg: OTLPExporterConfig{TLSClientCertFile: garbage, TLSClientKeyFile: garbage}, wantErr: "load client key pair"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tlsConfig, err := buildTLSConfig(tt.cfg)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint16(tls.VersionTLS12), tlsConfig.MinVersion)
		})
	}
}

type failingShutdown struct{}

func (failingShutdown) Shutdown(context.Context) error { return errors.New("exporter unreachable") }

func TestShutdownProviderWrapsFailure(t *testing.T) {
	err := shutdownProvider(context.Background(), discardLogger(), "tracer", failingShutdown{})
	require.EqualError(t, err, "shutdown tracer provider: exporter unreachable")
}

func TestTraceSamplerForRatio(t *testing.T) {
	sampledParent := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{3},
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))
	unsampledParent := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{5},
		SpanID:  trace.SpanID{2},
		Remote:  true,
	}))

	tests := []struct {
		name   string
		ratio  float64
		parent context.Context
		want   sdktrace.SamplingDecision
	}{
		{"zero drops", 0, context.Background(), sdktrace.Drop},
		{"negative drops", -1, sampledParent, sdktrace.Drop},
		{"one keeps", 1, context.Background(), sdktrace.RecordAndSample},
		{"above one keeps", 2, unsampledParent, sdktrace.RecordAndSample},
		{"mid range follows sampled parent", 0.5, sampledParent, sdktrace.RecordAndSample},
		{"mid range follows unsampled parent", 0.5, unsampledParent, sdktrace.Drop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := traceSamplerForRatio(tt.ratio).ShouldSample(sdktrace.SamplingParameters{
				ParentContext: tt.parent,
				TraceID:       trace.TraceID{9},
				Name:          "graphql.query.connection",
			})
			assert.Equal(t, tt.want, got.Decision)
		})
	}
}
