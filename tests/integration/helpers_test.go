//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pg-graphql/internal/config"
	"pg-graphql/internal/introspection"
	"pg-graphql/internal/logging"
	"pg-graphql/internal/naming"
	"pg-graphql/internal/serverapp"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const testSecret = "integration-secret-0123456789abcdef"

const fixtureDDL = `
CREATE SCHEMA app;
CREATE TYPE app.mood AS ENUM ('happy', 'sad');
CREATE TABLE app.account (
	id serial PRIMARY KEY,
	name text NOT NULL,
	mood app.mood
);
CREATE TABLE app.post (
	id serial PRIMARY KEY,
	account_id integer REFERENCES app.account (id),
	title text NOT NULL
);
CREATE FUNCTION app.whoami() RETURNS text LANGUAGE sql STABLE
	AS $$ SELECT current_setting('jwt.claims.sub', true) $$;
INSERT INTO app.account (name, mood) VALUES ('ada', 'happy'), ('grace', 'sad'), ('linus', NULL);
INSERT INTO app.post (account_id, title) VALUES (1, 'first'), (1, 'second'), (2, 'third');
`

// startPostgres runs a disposable PostgreSQL container loaded with the
// fixture schema and returns its connection string.
func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("app"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db := openDB(t, dsn)
	_, err = db.ExecContext(ctx, fixtureDDL)
	require.NoError(t, err)
	return dsn
}

func openDB(t *testing.T, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, db.PingContext(ctx))
	return db
}

// startApp initializes the full server stack against dsn and returns its
// HTTP handler.
func startApp(t *testing.T, dsn string, extraArgs ...string) http.Handler {
	t.Helper()
	args := append([]string{
		"--env_file", "",
		"--database.dsn", dsn,
		"--database.schema", "app",
		"--observability.metrics_enabled=false",
		"--observability.logging.level", "error",
		"--auth.jwt_enabled",
		"--auth.jwt_secret", testSecret,
	}, extraArgs...)
	cfg, err := config.LoadArgs(args)
	require.NoError(t, err)
	require.False(t, cfg.Validate().HasErrors(), cfg.Validate().Error())

	logger := logging.NewLogger(logging.Config{Level: "error", Format: "json", Output: io.Discard})
	app, err := serverapp.New(cfg, logger)
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Shutdown(ctx)
	})
	return app.Handler()
}

func reflectSchema(t *testing.T, dsn string) *introspection.Schema {
	t.Helper()
	schema, err := introspection.Reflect(context.Background(), openDB(t, dsn), "app", naming.New(naming.Config{}, slog.Default()))
	require.NoError(t, err)
	return schema
}

type graphQLResponse struct {
	Data   map[string]interface{} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func postGraphQL(t *testing.T, h http.Handler, token, query string, variables map[string]interface{}) (int, graphQLResponse) {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{"query": query, "variables": variables})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp graphQLResponse
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec.Code, resp
}

func countRows(t *testing.T, db *sql.DB, query string, args ...interface{}) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n))
	return n
}
