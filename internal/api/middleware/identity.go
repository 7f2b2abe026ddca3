package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/servicehub/bookingengine/internal/domain/entities"
)

// Headers set by the upstream gateway after authenticating the caller
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

type actorKey struct{}

// IdentityMiddleware attaches the caller identity forwarded by the gateway.
// Requests without a recognised role pass through with no actor.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		role := entities.ActorRole(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole))))

		if id != "" && (role == entities.ActorRoleCustomer || role == entities.ActorRoleProvider) {
			r = r.WithContext(WithActor(r.Context(), entities.Actor{ID: id, Role: role}))
		}
		next.ServeHTTP(w, r)
	})
}

// WithActor returns a copy of ctx carrying actor
func WithActor(ctx context.Context, actor entities.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the caller attached by IdentityMiddleware
func ActorFromContext(ctx context.Context) (entities.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(entities.Actor)
	return actor, ok
}
