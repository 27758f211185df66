package mw

import (
	"context"
	"net/http"

	"github.com/MrSnakeDoc/unilend/internal/auth"
	"github.com/MrSnakeDoc/unilend/internal/domain"
	apperrors "github.com/MrSnakeDoc/unilend/internal/errors"
	"github.com/MrSnakeDoc/unilend/internal/logger"
)

// Authenticator resolves a session token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Identity, error)
}

// RequireAuth rejects requests without a live session and stores the
// caller's identity in the request context.
func RequireAuth(a Authenticator, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.BearerToken(r)
			ident, err := a.Authenticate(r.Context(), token)
			if err != nil {
				code := apperrors.CodeOf(err)
				if code != apperrors.CodeUnauthorized {
					log.Error("session lookup failed", logger.Error(err))
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="unilend"`)
				w.WriteHeader(code.HTTPStatus())
				_, _ = w.Write([]byte(`{"error":{"code":"` + string(code) + `","message":"authentication required"}}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), ident, token)))
		})
	}
}
