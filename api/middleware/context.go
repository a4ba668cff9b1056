package middleware

import (
	"context"

	"github.com/angelmondragon/catalogsync-backend/pkg/enums"
)

type actorKey struct{}

// actor is the operator behind an authenticated admin request.
type actor struct {
	subject string
	role    enums.AdminRole
}

func actorFrom(ctx context.Context) actor {
	if ctx == nil {
		return actor{}
	}
	a, _ := ctx.Value(actorKey{}).(actor)
	return a
}

// SubjectFromContext returns the operator identity of an authenticated request.
func SubjectFromContext(ctx context.Context) string {
	return actorFrom(ctx).subject
}

func RoleFromContext(ctx context.Context) enums.AdminRole {
	return actorFrom(ctx).role
}

// WithActor injects the operator identity. Auth calls it; tests use it
// to skip token minting.
func WithActor(ctx context.Context, subject string, role enums.AdminRole) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey{}, actor{subject: subject, role: role})
}
