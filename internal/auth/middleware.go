package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"clickrewards-api/internal/models"
)

type contextKey string

const (
	ctxAccountID contextKey = "account_id"
	ctxRole      contextKey = "role"
)

// AccountID returns the authenticated account id from the request context.
func AccountID(ctx context.Context) string {
	id, _ := ctx.Value(ctxAccountID).(string)
	return id
}

// Role returns the authenticated role from the request context.
func Role(ctx context.Context) string {
	role, _ := ctx.Value(ctxRole).(string)
	return role
}

// Middleware authenticates the bearer token and stores identity in the
// request context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		claims, err := m.VerifyToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			respondError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxAccountID, claims.AccountID)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects requests whose token does not carry the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if Role(r.Context()) != models.RoleAdmin {
			respondError(w, http.StatusForbidden, "forbidden", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func respondError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{Kind: kind, Error: message})
}
