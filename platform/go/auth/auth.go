// Package auth consumes the identity produced by the upstream token
// verifier. Verification itself is a black box to this codebase: the gateway
// validates the session token and injects the caller's user and role ids as
// trusted headers before the request reaches us.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	// UserHeader carries the verified user id, set by the auth gateway.
	UserHeader = "X-Auth-User"
	// RoleHeader carries the verified role id, set by the auth gateway.
	RoleHeader = "X-Auth-Role"
	// AdminTokenHeader carries the shared secret for administrative routes.
	AdminTokenHeader = "X-Admin-Token"
)

// Principal is the authenticated caller identity for one request.
type Principal struct {
	UserID uuid.UUID
	RoleID uuid.UUID
}

type ctxKey struct{}

// WithPrincipal returns a derived context carrying the caller identity.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext extracts the Principal and a boolean indicating presence.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

// RequirePrincipal parses the gateway identity headers and attaches the
// Principal to the request context. Requests without a valid user id are
// rejected; the role header is optional (not every user has a role).
func RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(strings.TrimSpace(r.Header.Get(UserHeader)))
		if err != nil {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}

		p := Principal{UserID: userID}
		if raw := strings.TrimSpace(r.Header.Get(RoleHeader)); raw != "" {
			roleID, err := uuid.Parse(raw)
			if err != nil {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}
			p.RoleID = roleID
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireAdminToken guards administrative endpoints with a shared secret from
// configuration.
func RequireAdminToken(token string) func(http.Handler) http.Handler {
	if token == "" {
		panic("admin token is required")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(AdminTokenHeader) != token {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
