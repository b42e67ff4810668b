package dbexec

import (
	"context"
	"fmt"
	"sort"
)

// Claims are request-scoped identity attributes applied to the database
// session for row-level security.
type Claims map[string]string

// ClaimsConfig controls how claims become session settings.
type ClaimsConfig struct {
	// Prefix is prepended to each claim name ("jwt.claims." gives jwt.claims.sub).
	Prefix string
	// RoleClaim names the claim that additionally sets the session role. Empty disables it.
	RoleClaim string
}

// DefaultClaimsConfig matches the settings PostgreSQL policies usually read.
func DefaultClaimsConfig() ClaimsConfig {
	return ClaimsConfig{Prefix: "jwt.claims.", RoleClaim: "role"}
}

const setConfigSQL = "SELECT set_config($1, $2, true)"

type claimsKey struct{}

// WithClaims attaches claims to a context.
func WithClaims(ctx context.Context, claims Claims) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims attached to ctx, if any.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	if ctx == nil {
		return nil, false
	}
	claims, ok := ctx.Value(claimsKey{}).(Claims)
	return claims, ok && len(claims) > 0
}

// ApplyClaims issues transaction-local set_config calls for every claim in
// sorted key order. The settings vanish when the transaction ends.
func ApplyClaims(ctx context.Context, q Querier, claims Claims, cfg ClaimsConfig) error {
	keys := make([]string, 0, len(claims))
	for k := range claims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := q.ExecContext(ctx, setConfigSQL, cfg.Prefix+k, claims[k]); err != nil {
			return fmt.Errorf("failed to apply claim %s: %w", k, err)
		}
	}
	if cfg.RoleClaim == "" {
		return nil
	}
	if role, ok := claims[cfg.RoleClaim]; ok && role != "" {
		if _, err := q.ExecContext(ctx, setConfigSQL, "role", role); err != nil {
			return fmt.Errorf("failed to set role %s: %w", role, err)
		}
	}
	return nil
}
