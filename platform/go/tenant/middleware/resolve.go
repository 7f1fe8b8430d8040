package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftline/craftline-platform/platform/go/persistence"
	"github.com/craftline/craftline-platform/platform/go/tenant"
)

// Resolver is the minimal lookup capability required to route a request.
// Implemented by the tenants service.
type Resolver interface {
	Resolve(ctx context.Context, slug string) (tenant.Context, error)
}

// PoolSource hands out the live pool for a tenant database URL.
// Implemented by the connection registry.
type PoolSource interface {
	Get(ctx context.Context, databaseURL string) (*pgxpool.Pool, error)
}

// WithTenant extracts the tenant signal from the request, resolves it against
// the control plane, acquires the tenant's database pool from the registry,
// and attaches both to the request context.
//
// Missing signal, unknown slug, and inactive tenant all collapse to the same
// generic 404: which of the three it was is deliberately not revealed, and
// there is never a fallback tenant. Infrastructure failures (control-plane
// outage, pool creation failure) are a different condition and return 503 so
// callers can tell "you don't exist here" from "retry later". The resolved
// context lives only as long as the request; a rotation committed mid-request
// does not redirect it.
func WithTenant(resolver Resolver, pools PoolSource) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("tenant middleware: resolver is required")
	}
	if pools == nil {
		panic("tenant middleware: pool source is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slug, err := tenant.SignalFromRequest(r)
			if err != nil {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}

			tc, err := resolver.Resolve(r.Context(), slug)
			if errors.Is(err, tenant.ErrNotFound) {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			if err != nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			pool, err := pools.Get(r.Context(), tc.DatabaseURL)
			if err != nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			ctx := tenant.WithContext(r.Context(), tc)
			ctx = persistence.WithTenantPool(ctx, pool)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
