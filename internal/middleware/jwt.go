package myMiddleware

import (
	"context"
	"net/http"
	"strings"

	"admin-chat/internal/user"
)

type contextKey string

const ActorKey contextKey = "actor_id"

// TokenValidator resolves a bearer token to the acting user id.
type TokenValidator interface {
	ValidateToken(tokenString string) (string, error)
}

// IdentityMiddleware attaches the acting identity to each request. Requests
// without a token act as user.AdminID; a token that is present but invalid
// is rejected.
type IdentityMiddleware struct {
	validator TokenValidator
}

// NewIdentityMiddleware accepts a nil validator, in which case every request
// acts as the admin sentinel.
func NewIdentityMiddleware(v TokenValidator) *IdentityMiddleware {
	return &IdentityMiddleware{validator: v}
}

func (im *IdentityMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := user.AdminID

		tokenString := bearerToken(r)
		if tokenString != "" && im.validator != nil {
			uid, err := im.validator.ValidateToken(tokenString)
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			actor = uid
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	// browsers can't set headers on websocket upgrades
	return r.URL.Query().Get("token")
}

func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ActorKey, actor)
}

// ActorFromContext returns the acting identity, or user.AdminID when none
// was attached.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(ActorKey).(string); ok && actor != "" {
		return actor
	}
	return user.AdminID
}
