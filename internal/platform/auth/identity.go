package auth

import (
	"context"
	"strings"

	"github.com/feastline/api/internal/domain"
)

// Identity captures the pre-verified principal forwarded by the API gateway.
// The gateway authenticates the caller and injects identity headers; this
// service trusts them and performs no token verification of its own.
type Identity struct {
	UserID string
	Role   domain.Role
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool { return i.Role == domain.RoleAdmin }

// IsVendor reports whether the identity carries the vendor role.
func (i Identity) IsVendor() bool { return i.Role == domain.RoleVendor }

// IsCustomer reports whether the identity carries the customer role.
func (i Identity) IsCustomer() bool { return i.Role == domain.RoleCustomer }

type contextKey string

const identityContextKey contextKey = "github.com/feastline/api/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(Identity)
	if !ok || identity.UserID == "" {
		return Identity{}, false
	}
	return identity, true
}

// ParseRole maps a header value onto a known role. The system role is internal
// and never accepted from a request.
func ParseRole(value string) (domain.Role, bool) {
	switch domain.Role(strings.ToLower(strings.TrimSpace(value))) {
	case domain.RoleCustomer:
		return domain.RoleCustomer, true
	case domain.RoleVendor:
		return domain.RoleVendor, true
	case domain.RoleAdmin:
		return domain.RoleAdmin, true
	default:
		return "", false
	}
}
