package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"hrpayroll/internal/transport/http/api"
)

type PermissionStore interface {
	HasPermission(ctx context.Context, role, permission string) (bool, error)
}

type denial struct {
	status  int
	code    string
	message string
}

// RequirePermission lets the request through only when the caller's role
// grants permission.
func RequirePermission(permission string, store PermissionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if d := authorize(r.Context(), store, permission); d != nil {
				api.Fail(w, d.status, d.code, d.message, GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authorize(ctx context.Context, store PermissionStore, permission string) *denial {
	user, ok := GetUser(ctx)
	if !ok {
		return &denial{http.StatusUnauthorized, "unauthorized", "authentication required"}
	}
	allowed, err := store.HasPermission(ctx, user.Role, permission)
	if err != nil {
		slog.ErrorContext(ctx, "permission check failed", "permission", permission, "role", user.Role, "err", err)
		return &denial{http.StatusInternalServerError, "permission_error", "permission check failed"}
	}
	if !allowed {
		return &denial{http.StatusForbidden, "forbidden", "insufficient permissions"}
	}
	return nil
}
