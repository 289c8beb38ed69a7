package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/lumen/storefront-core/persist"
)

type actorKey struct{}

// ActorMiddleware reads the authenticated actor id from the X-Actor-Id
// header into the request context. Anonymous and malformed values leave the
// context without an actor; guest operations are legitimate.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get("X-Actor-Id"); raw != "" {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), actorKey{}, id))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// ActorFromContext returns the actor id carried by the context, or nil.
func ActorFromContext(ctx context.Context) *int64 {
	if id, ok := ctx.Value(actorKey{}).(int64); ok {
		return &id
	}
	return nil
}

// HTTPAuditContext supplies the current actor to the persistence core from
// the request context. It satisfies persist.AuditContext without the core
// ever importing transport types.
type HTTPAuditContext struct{}

var _ persist.AuditContext = HTTPAuditContext{}

func (HTTPAuditContext) CurrentActorID(ctx context.Context) *int64 {
	return ActorFromContext(ctx)
}
