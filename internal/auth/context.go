// Package auth hashes passwords, stores session tokens and carries the
// authenticated identity through request contexts.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/unilend/internal/domain"
)

type contextKey string

const (
	identityKey contextKey = "identity"
	tokenKey    contextKey = "session_token"
)

// WithIdentity attaches the caller and its session token to ctx.
func WithIdentity(ctx context.Context, ident domain.Identity, token string) context.Context {
	ctx = context.WithValue(ctx, identityKey, ident)
	return context.WithValue(ctx, tokenKey, token)
}

// IdentityFrom returns the authenticated caller, if any.
func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	ident, ok := ctx.Value(identityKey).(domain.Identity)
	return ident, ok && ident.Email != ""
}

// TokenFrom returns the session token the request authenticated with.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}

// BearerToken extracts the token of an "Authorization: Bearer <token>"
// header. SSE clients that cannot set headers may pass ?access_token=.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}
