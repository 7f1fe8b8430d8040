package persistence

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type tenantPoolCtxKey struct{}

// WithTenantPool stores the request's tenant database pool on the context.
// The pool is owned by the registry; holders must not close it.
func WithTenantPool(ctx context.Context, pool *pgxpool.Pool) context.Context {
	return context.WithValue(ctx, tenantPoolCtxKey{}, pool)
}

// TenantPoolFromContext extracts the tenant database pool attached by the
// tenant middleware, with a boolean indicating presence.
func TenantPoolFromContext(ctx context.Context) (*pgxpool.Pool, bool) {
	pool, ok := ctx.Value(tenantPoolCtxKey{}).(*pgxpool.Pool)
	return pool, ok
}
