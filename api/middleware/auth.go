package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/catalogsync-backend/api/responses"
	"github.com/angelmondragon/catalogsync-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/catalogsync-backend/pkg/errors"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
)

// TokenVerifier is satisfied by *auth.Signer.
type TokenVerifier interface {
	Verify(raw string) (*auth.Claims, error)
}

// Auth admits requests carrying a valid bearer token and records the
// operator on the context for later middleware and the handlers.
func Auth(tokens TokenVerifier, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw, ok := bearer(r.Header.Get("Authorization"))
			if !ok {
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "bearer token required"))
				return
			}

			claims, err := tokens.Verify(raw)
			if err != nil {
				msg := "invalid token"
				if auth.Expired(err) {
					msg = "token expired"
				}
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "reason", err.Error()), "admin.auth.rejected")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg))
				return
			}

			grant := claims.Grant()
			ctx = WithActor(ctx, grant.Subject, grant.Role)
			if logg != nil {
				ctx = logg.WithActorRole(logg.WithField(ctx, "subject", grant.Subject), string(grant.Role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearer accepts "Bearer <token>" in any case.
func bearer(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
