package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// RoleMiddleware restricts the role claim of authenticated requests to
// allowedRoles before the session switches to it. Anonymous requests and an
// empty allow list pass through untouched.
func RoleMiddleware(claimName string, allowedRoles []string) func(http.Handler) http.Handler {
	if claimName == "" {
		claimName = "role"
	}

	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, role := range allowedRoles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		if len(allowed) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, authenticated := AuthFromContext(r.Context())
			if !authenticated {
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := authCtx.Claims[claimName]
			if !ok {
				writeGraphQLError(w, http.StatusForbidden, fmt.Sprintf("missing %s claim", claimName), "FORBIDDEN")
				return
			}

			role, ok := raw.(string)
			if !ok {
				writeGraphQLError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s claim type", claimName), "BAD_REQUEST")
				return
			}

			if _, allowedRole := allowed[role]; !allowedRole {
				writeGraphQLError(w, http.StatusForbidden, fmt.Sprintf("invalid database role: %s", role), "FORBIDDEN")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeGraphQLError(w http.ResponseWriter, status int, message string, code string) {
	payload := map[string]any{
		"errors": []map[string]any{
			{
				"message": message,
				"extensions": map[string]any{
					"code": code,
				},
			},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
