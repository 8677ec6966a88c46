package user

import (
	"context"

	"github.com/ovaphlow/pitchfork/service-pulse/internal/user/entity"
)

type currentUserKey struct{}

// WithCurrentUser stores the authenticated user on the request context.
func WithCurrentUser(ctx context.Context, u *entity.User) context.Context {
	return context.WithValue(ctx, currentUserKey{}, u)
}

func CurrentUser(ctx context.Context) (*entity.User, bool) {
	u, ok := ctx.Value(currentUserKey{}).(*entity.User)
	return u, ok && u != nil
}
