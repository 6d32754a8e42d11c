// Package userctx carries the authenticated user through request contexts
package userctx

import (
	"context"

	"github.com/avasiliev/pharmadesk/internal/models"
)

type ctxKey struct{}

// New returns a context carrying the authenticated user
func New(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, user)
}

// FromContext returns the user set by the auth middleware, if any
func FromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(ctxKey{}).(models.User)
	return user, ok
}
