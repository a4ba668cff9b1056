package middleware

import (
	"net/http"
	"slices"

	"github.com/angelmondragon/catalogsync-backend/api/responses"
	"github.com/angelmondragon/catalogsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/catalogsync-backend/pkg/errors"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
)

// RequireRole admits only the listed roles.
func RequireRole(logg *logger.Logger, allowed ...enums.AdminRole) func(http.Handler) http.Handler {
	return gate(logg, "role not permitted here", func(role enums.AdminRole) bool {
		return slices.Contains(allowed, role)
	})
}

// RequireWrite admits roles that may trigger runs or edit products.
func RequireWrite(logg *logger.Logger) func(http.Handler) http.Handler {
	return gate(logg, "write access required", enums.AdminRole.CanWrite)
}

func gate(logg *logger.Logger, denial string, admit func(enums.AdminRole) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if role := RoleFromContext(ctx); !admit(role) {
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{"role": string(role), "path": r.URL.Path}), "admin.access.denied")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeForbidden, denial))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
