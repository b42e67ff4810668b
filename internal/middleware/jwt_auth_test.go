package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pg-graphql/internal/dbexec"
	"pg-graphql/internal/logging"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "correct horse battery staple"

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub":  "user-7",
		"aud":  "pg-graphql",
		"role": "app_user",
		"org":  float64(12),
		"exp":  now.Add(time.Hour).Unix(),
		"iat":  now.Unix(),
	}
}

type capturedRequest struct {
	called bool
	auth   AuthContext
	authOK bool
	claims dbexec.Claims
}

func runJWT(t *testing.T, cfg JWTAuthConfig, header string) (*httptest.ResponseRecorder, *capturedRequest) {
	t.Helper()
	mw, err := JWTAuthMiddleware(cfg, logging.NewLogger(logging.Config{Level: "error", Output: io.Discard}), nil)
	require.NoError(t, err)

	captured := &capturedRequest{}
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.called = true
		captured.auth, captured.authOK = AuthFromContext(r.Context())
		captured.claims, _ = dbexec.ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, captured
}

func TestJWTAuthMiddleware_ValidTokenExposesClaims(t *testing.T) {
	cfg := JWTAuthConfig{Enabled: true, Secret: testSecret, Audience: "pg-graphql"}
	rec, got := runJWT(t, cfg, "Bearer "+signHS256(t, testSecret, validClaims()))

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, got.authOK)
	assert.Equal(t, "user-7", got.auth.Subject)
	assert.Equal(t, "app_user", got.claims["role"])
	assert.Equal(t, "user-7", got.claims["sub"])
	assert.Equal(t, "12", got.claims["org"])
	assert.Equal(t, "pg-graphql", got.claims["aud"])
}

func TestJWTAuthMiddleware_Rejections(t *testing.T) {
	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	otherAudience := validClaims()
	otherAudience["aud"] = "someone-else"

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims()).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "wrong secret", header: "Bearer " + signHS256(t, "not the secret", validClaims())},
		{name: "expired", header: "Bearer " + signHS256(t, testSecret, expired)},
		{name: "audience mismatch", header: "Bearer " + signHS256(t, testSecret, otherAudience)},
		{name: "unsigned", header: "Bearer " + none},
		{name: "garbage", header: "Bearer abc.def"},
	}

	cfg := JWTAuthConfig{Enabled: true, Secret: testSecret, Audience: "pg-graphql", ClockSkew: time.Second}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, got := runJWT(t, cfg, tt.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			assert.False(t, got.called)
		})
	}
}

func TestJWTAuthMiddleware_MissingToken(t *testing.T) {
	t.Run("optional", func(t *testing.T) {
		rec, got := runJWT(t, JWTAuthConfig{Enabled: true, Secret: testSecret}, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, got.called)
		assert.False(t, got.authOK)
		assert.Empty(t, got.claims)
	})

	t.Run("required", func(t *testing.T) {
		rec, got := runJWT(t, JWTAuthConfig{Enabled: true, Secret: testSecret, Required: true}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, got.called)
	})
}

func TestJWTAuthMiddleware_Disabled(t *testing.T) {
	rec, got := runJWT(t, JWTAuthConfig{}, "Bearer whatever")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, got.authOK)
}

func TestJWTAuthMiddleware_RequiresSecret(t *testing.T) {
	_, err := JWTAuthMiddleware(JWTAuthConfig{Enabled: true}, nil, nil)
	require.Error(t, err)
}

func TestSessionClaims(t *testing.T) {
	claims := sessionClaims(map[string]interface{}{
		"sub":    "abc",
		"admin":  true,
		"tenant": float64(3),
		"ratio":  1.5,
		"groups": []interface{}{"a", "b"},
		"gone":   nil,
	})
	assert.Equal(t, dbexec.Claims{
		"sub":    "abc",
		"admin":  "true",
		"tenant": "3",
		"ratio":  "1.5",
		"groups": `["a","b"]`,
	}, claims)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "tok", bearerToken("Bearer tok"))
	assert.Equal(t, "tok", bearerToken("bearer  tok "))
	assert.Empty(t, bearerToken("Basic tok"))
	assert.Empty(t, bearerToken("tok"))
}
