package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"pg-graphql/internal/dbexec"
	"pg-graphql/internal/introspection"
)

// Init acquires everything the server needs: telemetry providers, the
// database pool, the reflected schema and the HTTP stack. Resources already
// acquired are released again when a later step fails. Calling Init on an
// initialized App does nothing.
func (a *App) Init(ctx context.Context) (err error) {
	a.stateMu.Lock()
	done := a.initialized
	a.stateMu.Unlock()
	if done {
		return nil
	}

	var stack cleanupStack
	defer func() {
		if err != nil {
			_ = stack.run(context.Background(), a.logger)
		}
	}()

	if err := a.initTelemetry(&stack); err != nil {
		return err
	}
	db, dbSchema, err := a.initDatabase(ctx, &stack)
	if err != nil {
		return err
	}

	executor := dbexec.NewStandardExecutor(db)
	graphqlHandler, err := buildGraphQLHandler(a.cfg, a.logger, dbSchema, executor, a.telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize GraphQL handler: %w", err)
	}
	mux := buildRouter(a.cfg, a.logger, db, graphqlHandler, a.meterProvider)
	handler := wrapHTTPHandler(a.cfg, a.logger, mux)

	serverAddr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := buildServer(a.cfg, handler, serverAddr)
	stack.push("HTTP server", srv.Shutdown)

	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.db = db
	a.dbSchema = dbSchema
	a.queryExecutor = executor
	a.graphqlHandler = graphqlHandler
	a.mux = mux
	a.handler = handler
	a.serverAddr = serverAddr
	a.srv = srv
	a.cleanup = stack
	a.initialized = true
	return nil
}

// initTelemetry starts the meter and tracer providers and registers their
// shutdown, after the logger provider's so logs outlive both.
func (a *App) initTelemetry(stack *cleanupStack) error {
	if a.loggerProvider != nil {
		stack.push("logger provider", func(ctx context.Context) error {
			return a.loggerProvider.Shutdown(ctx, a.logger.Logger)
		})
	}

	meterProvider, tel, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		stack.push("meter provider", func(ctx context.Context) error {
			return meterProvider.Shutdown(ctx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		stack.push("tracer provider", func(ctx context.Context) error {
			return tracerProvider.Shutdown(ctx, a.logger.Logger)
		})
	}

	a.meterProvider = meterProvider
	a.telemetry = tel
	a.tracerProvider = tracerProvider
	return nil
}

// initDatabase opens and verifies the pool, then reflects the exposed schema.
func (a *App) initDatabase(ctx context.Context, stack *cleanupStack) (*sql.DB, *introspection.Schema, error) {
	a.logger.Info("connecting to PostgreSQL",
		slog.String("dsn", a.cfg.Database.RedactedConnectionString()),
		slog.String("schema", a.cfg.Database.Schema),
	)

	db, dbStatsReg, err := connectDB(a.cfg, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.dbStatsReg = dbStatsReg
	stack.push("database", func(context.Context) error {
		if dbStatsReg != nil {
			if err := dbStatsReg.Unregister(); err != nil {
				a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
			}
		}
		return db.Close()
	})

	if err := configureDatabase(ctx, a.cfg, a.logger, db); err != nil {
		return nil, nil, fmt.Errorf("failed to verify database connection: %w", err)
	}
	dbSchema, err := loadSchema(ctx, a.cfg, a.logger, db)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reflect database schema: %w", err)
	}
	return db, dbSchema, nil
}
