package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pg-graphql/internal/dbexec"
	"pg-graphql/internal/logging"
	"pg-graphql/internal/observability"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// JWTAuthConfig controls HS256 bearer token validation.
type JWTAuthConfig struct {
	Enabled bool
	Secret  string
	// Audience and Issuer are checked only when set.
	Audience  string
	Issuer    string
	ClockSkew time.Duration
	// Required rejects requests without a bearer token. Otherwise they
	// continue anonymously with no claims applied.
	Required bool
}

type authContextKey struct{}

// AuthContext carries validated JWT claims.
type AuthContext struct {
	Subject string
	Issuer  string
	Claims  map[string]interface{}
}

// AuthFromContext returns the auth context from a request context.
func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return AuthContext{}, false
	}
	auth, ok := value.(AuthContext)
	return auth, ok
}

// JWTAuthMiddleware validates Bearer tokens when enabled and exposes their
// claims to the database session. metrics may be nil.
func JWTAuthMiddleware(cfg JWTAuthConfig, logger *logging.Logger, metrics *observability.SecurityMetrics) (func(http.Handler) http.Handler, error) {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }, nil
	}
	if cfg.Secret == "" {
		return nil, errors.New("jwt auth enabled but no secret configured")
	}
	if cfg.ClockSkew == 0 {
		cfg.ClockSkew = 2 * time.Minute
	}

	secret := []byte(cfg.Secret)
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.ClockSkew),
	}
	if cfg.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(parserOpts...)
	keyFunc := func(*jwt.Token) (interface{}, error) { return secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			endpoint := r.URL.Path
			record := func(outcome, reason string) {
				if metrics != nil {
					metrics.RecordOutcome(r.Context(), endpoint, outcome, reason)
				}
			}

			tokenString := bearerToken(r.Header.Get("Authorization"))
			if tokenString == "" {
				if !cfg.Required {
					record(observability.AuthAnonymous, "")
					next.ServeHTTP(w, r)
					return
				}
				record(observability.AuthRejected, "missing_token")
				if logger != nil {
					logging.FromContext(r.Context()).Warn("authentication failed: missing bearer token",
						slog.String("endpoint", endpoint),
						slog.String("remote_addr", r.RemoteAddr),
					)
				}
				writeUnauthorized(w, "missing bearer token")
				return
			}

			claims := jwt.MapClaims{}
			if _, err := parser.ParseWithClaims(tokenString, claims, keyFunc); err != nil {
				reason := tokenErrorReason(err)
				record(observability.AuthRejected, reason)
				if logger != nil {
					logging.FromContext(r.Context()).Warn("jwt validation failed",
						slog.String("error", err.Error()),
						slog.String("reason", reason),
						slog.String("endpoint", endpoint),
						slog.String("remote_addr", r.RemoteAddr),
					)
				}
				writeUnauthorized(w, "invalid token")
				return
			}

			subject, _ := claims.GetSubject()
			issuer, _ := claims.GetIssuer()
			record(observability.AuthAuthenticated, "")
			if logger != nil {
				logging.FromContext(r.Context()).Debug("authentication successful",
					slog.String("subject", subject),
					slog.String("endpoint", endpoint),
				)
			}
			if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
				span.SetAttributes(
					attribute.String("auth.subject", subject),
					attribute.Bool("auth.authenticated", true),
				)
			}

			ctx := context.WithValue(r.Context(), authContextKey{}, AuthContext{
				Subject: subject,
				Issuer:  issuer,
				Claims:  claims,
			})
			ctx = dbexec.WithClaims(ctx, sessionClaims(claims))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}

// sessionClaims flattens token claims into session settings. Non-string
// values keep their JSON text so policies can cast them.
func sessionClaims(claims map[string]interface{}) dbexec.Claims {
	out := make(dbexec.Claims, len(claims))
	for key, value := range claims {
		switch v := value.(type) {
		case nil:
			continue
		case string:
			out[key] = v
		case float64:
			out[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			out[key] = strconv.FormatBool(v)
		case json.Number:
			out[key] = v.String()
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				out[key] = fmt.Sprint(v)
				continue
			}
			out[key] = string(encoded)
		}
	}
	return out
}

func tokenErrorReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "not_valid_yet"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "invalid_audience"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "invalid_issuer"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "invalid_signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	default:
		return "verification_failed"
	}
}

func bearerToken(value string) string {
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeGraphQLError(w, http.StatusUnauthorized, message, "UNAUTHENTICATED")
}
