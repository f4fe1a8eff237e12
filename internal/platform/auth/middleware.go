package auth

import (
	"net/http"
	"strings"

	"github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/platform/httpx"
)

// Header names populated by the trusted gateway in front of this service.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"
)

// Middleware extracts the gateway-injected identity headers and stores the
// identity on the request context. Requests without a valid identity are
// rejected before reaching any handler.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
			if userID == "" {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "missing identity headers", http.StatusUnauthorized))
				return
			}

			role, ok := ParseRole(r.Header.Get(HeaderUserRole))
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "unknown caller role", http.StatusUnauthorized))
				return
			}

			ctx = WithIdentity(ctx, Identity{UserID: userID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRoles rejects requests whose identity does not match one of the
// allowed roles.
func RequireRoles(roles ...domain.Role) func(http.Handler) http.Handler {
	allowed := make(map[domain.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			identity, ok := IdentityFromContext(ctx)
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "identity required", http.StatusUnauthorized))
				return
			}
			if _, ok := allowed[identity.Role]; !ok {
				httpx.WriteError(ctx, w, httpx.NewError("forbidden", "caller role not permitted", http.StatusForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
