package middleware

import (
	"bytes"
	"log/slog"
	"net/http"

	"pg-graphql/internal/dbexec"
	"pg-graphql/internal/logging"
	"pg-graphql/internal/resolver"
)

// SessionConfig controls the per-request database session.
type SessionConfig struct {
	Claims   dbexec.ClaimsConfig
	Observer dbexec.StatementObserver
}

// SessionMiddleware gives every GraphQL request one database session and one
// result cache. All root fields of the request run in the session's
// transaction, which commits when the handler returns cleanly and rolls back
// when any resolver failed or the handler panicked. A commit failure replaces
// the handler's response with a GraphQL error.
func SessionMiddleware(executor dbexec.QueryExecutor, cfg SessionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if executor == nil {
				next.ServeHTTP(w, r)
				return
			}

			var opts []dbexec.SessionOption
			if claims, ok := dbexec.ClaimsFromContext(r.Context()); ok {
				opts = append(opts, dbexec.WithSessionClaims(claims, cfg.Claims))
			}
			if cfg.Observer != nil {
				opts = append(opts, dbexec.WithStatementObserver(cfg.Observer))
			}
			session := dbexec.NewSession(executor, opts...)

			ctx := dbexec.WithSession(r.Context(), session)
			ctx = resolver.WithResultCache(ctx, resolver.NewResultCache())

			defer func() {
				if rec := recover(); rec != nil {
					session.MarkError()
					_ = session.Finalize()
					panic(rec)
				}
			}()

			// The response is held back until the transaction is finalized so a
			// failed commit is not reported as a successful request.
			buffered := &bufferedResponseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(buffered, r.WithContext(ctx))

			if err := session.Finalize(); err != nil {
				rolledBack := session.Failed()
				logging.FromContext(ctx).Error("failed to finalize request transaction",
					slog.String("error", err.Error()),
					slog.Bool("rolled_back", rolledBack),
				)
				if !rolledBack {
					writeCommitFailure(w)
					return
				}
			}
			buffered.flush()
		})
	}
}

const commitFailureBody = `{"data":null,"errors":[{"message":"failed to commit request transaction"}]}`

func writeCommitFailure(w http.ResponseWriter) {
	h := w.Header()
	h.Del("Content-Length")
	h.Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(commitFailureBody))
}

// bufferedResponseWriter holds the status and body until flush. Headers go
// straight to the underlying writer's map since nothing is sent before flush.
type bufferedResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (w *bufferedResponseWriter) WriteHeader(statusCode int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = statusCode
}

func (w *bufferedResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.Write(b)
}

func (w *bufferedResponseWriter) flush() {
	w.ResponseWriter.WriteHeader(w.status)
	_, _ = w.ResponseWriter.Write(w.body.Bytes())
}
