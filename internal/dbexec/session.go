package dbexec

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"pg-graphql/internal/logging"
)

// ErrSessionFinalized is returned for statements issued after Finalize.
var ErrSessionFinalized = errors.New("session already finalized")

// StatementObserver receives the outcome of every statement a session runs.
type StatementObserver func(ctx context.Context, kind string, duration time.Duration, err error)

// Session holds the single transaction of one request. The transaction is
// begun lazily by the first statement, with claims applied before it, and is
// committed or rolled back by Finalize.
type Session struct {
	executor  QueryExecutor
	claims    Claims
	claimsCfg ClaimsConfig
	observer  StatementObserver

	mu        sync.Mutex
	tx        TxExecutor
	hasError  bool
	finalized bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionClaims sets the claims applied when the transaction begins.
func WithSessionClaims(claims Claims, cfg ClaimsConfig) SessionOption {
	return func(s *Session) {
		s.claims = claims
		s.claimsCfg = cfg
	}
}

// WithStatementObserver reports statement outcomes, typically to metrics.
func WithStatementObserver(observer StatementObserver) SessionOption {
	return func(s *Session) {
		s.observer = observer
	}
}

func NewSession(executor QueryExecutor, opts ...SessionOption) *Session {
	s := &Session{executor: executor}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryJSON runs a statement returning one JSON column and decodes it.
// No row and SQL NULL both decode to nil.
func (s *Session) QueryJSON(ctx context.Context, kind, query string, args ...any) (interface{}, error) {
	var raw []byte
	found, err := s.queryOne(ctx, kind, query, args, &raw)
	if err != nil || !found || raw == nil {
		return nil, err
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.MarkError()
		return nil, fmt.Errorf("failed to decode %s result: %w", kind, err)
	}
	return doc, nil
}

// QueryString runs a statement returning one text column. It reports false
// when no row matched.
func (s *Session) QueryString(ctx context.Context, kind, query string, args ...any) (string, bool, error) {
	var value sql.NullString
	found, err := s.queryOne(ctx, kind, query, args, &value)
	if err != nil || !found {
		return "", false, err
	}
	return value.String, value.Valid, nil
}

func (s *Session) queryOne(ctx context.Context, kind, query string, args []any, dest any) (found bool, err error) {
	ctx, span := otel.Tracer("pg-graphql/dbexec").Start(ctx, "dbexec."+kind)
	start := time.Now()
	defer func() {
		duration := time.Since(start)
		if err != nil {
			s.MarkError()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logging.FromContext(ctx).Warn("statement failed",
				"kind", kind, "duration", duration, "error", err)
		} else {
			logging.FromContext(ctx).Debug("statement executed",
				"kind", kind, "duration", duration, "found", found)
		}
		span.SetAttributes(attribute.String("db.statement.kind", kind), attribute.Bool("db.row_found", found))
		span.End()
		if s.observer != nil {
			s.observer(ctx, kind, duration, err)
		}
	}()

	tx, err := s.transaction(ctx)
	if err != nil {
		return false, err
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = rows.Close()
	}()
	if !rows.Next() {
		return false, rows.Err()
	}
	if err := rows.Scan(dest); err != nil {
		return false, err
	}
	return true, rows.Err()
}

// transaction begins the request transaction on first use.
func (s *Session) transaction(ctx context.Context) (TxExecutor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return nil, ErrSessionFinalized
	}
	if s.tx != nil {
		return s.tx, nil
	}
	if s.executor == nil {
		return nil, sql.ErrConnDone
	}
	tx, err := s.executor.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	if len(s.claims) > 0 {
		if err := ApplyClaims(ctx, tx, s.claims, s.claimsCfg); err != nil {
			_ = tx.Rollback()
			return nil, err
		}
	}
	s.tx = tx
	return tx, nil
}

// MarkError makes Finalize roll back.
func (s *Session) MarkError() {
	s.mu.Lock()
	s.hasError = true
	s.mu.Unlock()
}

// Failed reports whether any statement or resolver marked the session.
func (s *Session) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasError
}

// Finalize commits or rolls back the transaction based on the error state.
// It holds the lock through the entire operation so MarkError cannot slip in
// between the check and the commit. Sessions that never ran a statement are
// a no-op.
func (s *Session) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized {
		return nil
	}
	s.finalized = true
	if s.tx == nil {
		return nil
	}
	if s.hasError {
		return s.tx.Rollback()
	}
	return s.tx.Commit()
}

type sessionKey struct{}

// WithSession attaches a session to a context.
func WithSession(ctx context.Context, s *Session) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the request session, or nil.
func SessionFromContext(ctx context.Context) *Session {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}
