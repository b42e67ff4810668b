// Command jwt-mint signs HS256 tokens for local development against a server
// started with auth.jwt_enabled.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// claimFlags collects repeated -claim key=value pairs.
type claimFlags map[string]string

func (c claimFlags) String() string {
	parts := make([]string, 0, len(c))
	for k, v := range c {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (c claimFlags) Set(value string) error {
	key, val, ok := strings.Cut(value, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("claim %q must be key=value", value)
	}
	c[key] = val
	return nil
}

func main() {
	currentUser, err := user.Current()
	if err != nil {
		currentUser = &user.User{Username: "user-1"}
	}

	extra := claimFlags{}
	secret := flag.String("secret", os.Getenv("PGQL_AUTH_JWT_SECRET"), "HMAC secret (defaults to $PGQL_AUTH_JWT_SECRET)")
	secretFile := flag.String("secret-file", "", "Path to a file holding the HMAC secret")
	issuer := flag.String("issuer", "", "JWT issuer (optional)")
	audience := flag.String("audience", "pg-graphql", "JWT audience (comma-separated, empty omits)")
	subject := flag.String("subject", currentUser.Username, "JWT subject")
	role := flag.String("role", "", "Database role claim (optional)")
	expires := flag.Duration("expires", time.Hour, "Token lifetime (e.g. 1h)")
	flag.Var(extra, "claim", "Extra claim as key=value (repeatable)")
	flag.Parse()

	key, err := loadSecret(*secret, *secretFile)
	if err != nil {
		exitErr(err)
	}

	claims := buildClaims(time.Now(), *subject, *issuer, *audience, *role, *expires, extra)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		exitErr(err)
	}

	fmt.Println(signed)
}

func buildClaims(now time.Time, subject, issuer, audience, role string, expires time.Duration, extra claimFlags) jwt.MapClaims {
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(expires).Unix(),
		"nbf": now.Add(-1 * time.Minute).Unix(),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	if aud := splitList(audience); len(aud) > 0 {
		claims["aud"] = aud
	}
	if role != "" {
		claims["role"] = role
	}
	for k, v := range extra {
		claims[k] = v
	}
	return claims
}

func loadSecret(secret, path string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read secret file: %w", err)
		}
		secret = strings.TrimSpace(string(data))
	}
	if secret == "" {
		return nil, fmt.Errorf("a secret is required: pass -secret, -secret-file or set PGQL_AUTH_JWT_SECRET")
	}
	return []byte(secret), nil
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

func splitList(value string) []string {
	raw := strings.Split(value, ",")
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
