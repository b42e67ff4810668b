package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pg-graphql/internal/config"
	"pg-graphql/internal/dbexec"
	"pg-graphql/internal/introspection"
	"pg-graphql/internal/logging"
	"pg-graphql/internal/middleware"
	"pg-graphql/internal/naming"
	"pg-graphql/internal/observability"
	"pg-graphql/internal/planner"
	"pg-graphql/internal/resolver"

	"github.com/XSAM/otelsql"
	"github.com/graphql-go/handler"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InitLogger builds the process logger. When log export is enabled the
// logger also fans out to an OTLP logger provider, which the caller must shut
// down.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	otlp := cfg.Observability.OTLP
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", otlp.Endpoint),
		slog.String("otlp_protocol", otlp.Protocol),
		slog.Bool("insecure", otlp.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(otelConfig(cfg))
	if err != nil {
		return nil, nil, err
	}

	logger.Info("OpenTelemetry logging initialized successfully")

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func otelConfig(cfg *config.Config) observability.Config {
	otlp := cfg.Observability.OTLP
	return observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig: observability.OTLPExporterConfig{
			Endpoint:          otlp.Endpoint,
			Protocol:          otlp.Protocol,
			Insecure:          otlp.Insecure,
			TLSCertFile:       otlp.TLSCertFile,
			TLSClientCertFile: otlp.TLSClientCertFile,
			TLSClientKeyFile:  otlp.TLSClientKeyFile,
			Headers:           otlp.Headers,
			Timeout:           otlp.Timeout,
			Gzip:              strings.EqualFold(otlp.Compression, "gzip"),
		},
	}
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, telemetry, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, telemetry{}, nil
	}

	logger.Info("initializing OpenTelemetry metrics",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
	)

	meterProvider, err := observability.InitMeterProvider(otelConfig(cfg))
	if err != nil {
		return nil, telemetry{}, err
	}

	graphqlMetrics, err := observability.InitMetrics(logger.Logger)
	if err != nil {
		return nil, telemetry{}, err
	}
	securityMetrics, err := observability.InitSecurityMetrics()
	if err != nil {
		return nil, telemetry{}, err
	}
	compilerMetrics, err := observability.InitCompilerMetrics()
	if err != nil {
		return nil, telemetry{}, err
	}

	logger.Info("OpenTelemetry metrics initialized successfully")
	return meterProvider, telemetry{
		graphql:  graphqlMetrics,
		security: securityMetrics,
		compiler: compilerMetrics,
	}, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	otlp := cfg.Observability.OTLP
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", otlp.Endpoint),
		slog.String("otlp_protocol", otlp.Protocol),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)

	tracerProvider, err := observability.InitTracerProvider(otelConfig(cfg))
	if err != nil {
		return nil, err
	}

	logger.Info("OpenTelemetry tracing initialized successfully")
	return tracerProvider, nil
}

func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	dsn := cfg.Database.ConnectionString()

	if !cfg.Observability.MetricsEnabled && !cfg.Observability.TracingEnabled {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, nil, nil
	}

	opts := []otelsql.Option{
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	}
	if cfg.Observability.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{
			DisableErrSkip: true,
		}))
	}

	db, err := otelsql.Open("pgx", dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	var dbStatsReg interface{ Unregister() error }
	if cfg.Observability.MetricsEnabled {
		dbStatsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemPostgreSQL))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
	}

	logger.Info("database instrumentation enabled",
		slog.Bool("metrics", cfg.Observability.MetricsEnabled),
		slog.Bool("tracing", cfg.Observability.TracingEnabled),
	)
	return db, dbStatsReg, nil
}

func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	db.SetMaxOpenConns(cfg.Database.Pool.MaxOpen)
	db.SetMaxIdleConns(cfg.Database.Pool.MaxIdle)
	db.SetConnMaxLifetime(cfg.Database.Pool.MaxLifetime)

	if err := waitForDatabase(ctx, cfg, logger, db); err != nil {
		return err
	}

	logger.Info("connected to database",
		slog.Int("pool_max_open", cfg.Database.Pool.MaxOpen),
		slog.Int("pool_max_idle", cfg.Database.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", cfg.Database.Pool.MaxLifetime),
	)
	return nil
}

func waitForDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	timeout := cfg.Database.ConnectionTimeout
	interval := cfg.Database.ConnectionRetryInterval
	if interval <= 0 {
		interval = time.Second
	}

	// A zero timeout tries once.
	if timeout == 0 {
		return db.PingContext(ctx)
	}

	deadline := time.Now().Add(timeout)
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempt++
		err := db.PingContext(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("database not available after %v: %w", timeout, err)
		}

		logger.Warn("database not ready, retrying...",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		// Exponential backoff, capped at 30s
		interval = min(interval*2, 30*time.Second)
	}
}

// loadSchema reflects the configured schema once at startup.
func loadSchema(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) (*introspection.Schema, error) {
	start := time.Now()
	namer := naming.New(cfg.Naming, logger.Logger)
	dbSchema, err := introspection.Reflect(ctx, db, cfg.Database.Schema, namer)
	if err != nil {
		return nil, err
	}
	logger.Info("schema reflected",
		slog.String("schema", cfg.Database.Schema),
		slog.Int("tables", len(dbSchema.Tables)),
		slog.Int("functions", len(dbSchema.Functions)),
		slog.Duration("duration", time.Since(start)),
	)
	return dbSchema, nil
}

func claimsConfig(cfg *config.Config) dbexec.ClaimsConfig {
	return dbexec.ClaimsConfig{
		Prefix:    cfg.Auth.ClaimsPrefix,
		RoleClaim: cfg.Auth.RoleClaim,
	}
}

// buildGraphQLHandler compiles the executable schema and wraps it in the
// request middleware. The chain is:
//
//	request -> logging -> JWT auth -> role -> session -> tracing -> metrics -> graphql
//
// The session sits outside tracing so the tracing span can report a rolled
// back transaction once the handler returns.
func buildGraphQLHandler(cfg *config.Config, logger *logging.Logger, dbSchema *introspection.Schema, executor dbexec.QueryExecutor, tel telemetry) (http.Handler, error) {
	opts := []resolver.Option{
		resolver.WithCompiler(planner.New(dbSchema,
			planner.WithPageSizes(cfg.Pagination.DefaultPageSize, cfg.Pagination.MaxPageSize),
		)),
		resolver.WithClaimsConfig(claimsConfig(cfg)),
	}
	sessionCfg := middleware.SessionConfig{Claims: claimsConfig(cfg)}
	if tel.compiler != nil {
		opts = append(opts,
			resolver.WithStatementObserver(tel.compiler.ObserveStatement),
			resolver.WithCompileErrorObserver(tel.compiler.ObserveCompileError),
		)
		sessionCfg.Observer = tel.compiler.ObserveStatement
	}

	graphqlSchema, err := resolver.NewResolver(executor, dbSchema, opts...).BuildGraphQLSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to build GraphQL schema: %w", err)
	}

	var h http.Handler = handler.New(&handler.Config{
		Schema:   &graphqlSchema,
		Pretty:   true,
		GraphiQL: cfg.Server.GraphiQLEnabled,
	})

	if tel.graphql != nil {
		h = middleware.GraphQLMetricsMiddleware(tel.graphql)(h)
		logger.Info("GraphQL metrics middleware enabled")
	}
	h = middleware.GraphQLTracingMiddleware()(h)
	h = middleware.SessionMiddleware(executor, sessionCfg)(h)

	if cfg.Auth.JWTEnabled {
		if len(cfg.Auth.AllowedRoles) > 0 && cfg.Auth.RoleClaim != "" {
			h = middleware.RoleMiddleware(cfg.Auth.RoleClaim, cfg.Auth.AllowedRoles)(h)
			logger.Info("role allow list enabled", slog.Any("roles", cfg.Auth.AllowedRoles))
		}
		authMiddleware, err := middleware.JWTAuthMiddleware(middleware.JWTAuthConfig{
			Enabled:   true,
			Secret:    cfg.Auth.JWTSecret,
			Audience:  cfg.Auth.JWTAudience,
			Issuer:    cfg.Auth.JWTIssuer,
			ClockSkew: cfg.Auth.JWTClockSkew,
			Required:  cfg.Auth.JWTRequired,
		}, logger, tel.security)
		if err != nil {
			return nil, err
		}
		h = authMiddleware(h)
		logger.Info("JWT auth middleware enabled", slog.Bool("required", cfg.Auth.JWTRequired))
	} else {
		logger.Warn("JWT auth is disabled - every request runs with the connection's own role")
	}

	return middleware.LoggingMiddleware(logger)(h), nil
}

// Routes served by buildRouter. Span names use these verbatim so the
// trace backend sees a fixed set of operations.
const (
	rootPath    = "/"
	graphqlPath = "/graphql"
	healthPath  = "/health"
	metricsPath = "/metrics"
)

func buildRouter(cfg *config.Config, logger *logging.Logger, db *sql.DB, graphqlHandler http.Handler, meterProvider *observability.MeterProvider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(graphqlPath, graphqlHandler)
	mux.HandleFunc(healthPath, healthHandler(db, cfg.Server.HealthCheckTimeout))
	mux.HandleFunc(rootPath, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != rootPath {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, graphqlPath, http.StatusFound)
	})

	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		mux.Handle(metricsPath, promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", metricsPath))
	}
	return mux
}

// wrapHTTPHandler adds the otelhttp server span and metrics when either
// signal is enabled.
func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler) http.Handler {
	if !cfg.Observability.MetricsEnabled && !cfg.Observability.TracingEnabled {
		return handler
	}
	logger.Info("HTTP instrumentation enabled")
	return otelhttp.NewHandler(handler, "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return httpSpanName(r)
		}),
	)
}

// httpSpanName is "<METHOD> <route>", with every path outside the router
// folded into "/*".
func httpSpanName(r *http.Request) string {
	route := "/*"
	switch r.URL.Path {
	case rootPath, graphqlPath, healthPath, metricsPath:
		route = r.URL.Path
	}
	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = http.MethodGet
	}
	return method + " " + route
}

func buildServer(cfg *config.Config, handler http.Handler, serverAddr string) *http.Server {
	return &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, serverAddr string) chan error {
	serverErrors := make(chan error, 1)
	go func() {
		logAttrs := []any{
			slog.String("address", serverAddr),
			slog.String("graphql_endpoint", graphqlPath),
			slog.String("health_endpoint", healthPath),
			slog.String("schema", cfg.Database.Schema),
			slog.Bool("graphiql", cfg.Server.GraphiQLEnabled),
			slog.Bool("jwt_enabled", cfg.Auth.JWTEnabled),
			slog.String("log_level", cfg.Observability.Logging.Level),
		}
		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", metricsPath))
		}
		logger.Info("server starting", logAttrs...)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}

// healthHandler returns an HTTP handler for health checks
func healthHandler(db *sql.DB, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			reqLogger.Error("health check failed",
				slog.String("error", err.Error()),
				slog.String("check", "database"),
			)
			w.WriteHeader(http.StatusServiceUnavailable)
			// Generic body so connection details do not leak.
			_, _ = fmt.Fprint(w, `{"status":"unhealthy","database":"failed"}`)
			return
		}

		reqLogger.Debug("health check passed")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `{"status":"healthy","database":"ok"}`)
	}
}
