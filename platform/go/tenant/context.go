package tenant

import (
	"context"

	"github.com/google/uuid"
)

// Context captures the resolved routing metadata for one request. It is a
// read-only snapshot: DatabaseURL points at the database the tenant was
// serving when the request arrived, and the request keeps using it even if a
// rotation repoints the tenant mid-flight. Never cache a Context beyond the
// request that created it.
type Context struct {
	ID           uuid.UUID
	Slug         string
	DatabaseName string
	DatabaseURL  string
}

type ctxKey struct{}

// WithContext returns a derived context carrying the tenant Context.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext extracts the tenant Context and a boolean indicating presence.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}
