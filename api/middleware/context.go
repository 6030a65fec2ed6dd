package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/retailops-backend/pkg/outbox"
)

type contextKey string

const (
	ctxActor contextKey = "actor"

	actorIDHeader   = "X-Actor-Id"
	actorTypeHeader = "X-Actor-Type"
	defaultActor    = "api"
)

// ActorFromContext returns the caller recorded by Actor, or nil.
func ActorFromContext(ctx context.Context) *outbox.ActorRef {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxActor).(*outbox.ActorRef); ok {
		return v
	}
	return nil
}

// WithActor injects the caller attribution into the context.
func WithActor(ctx context.Context, actor *outbox.ActorRef) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}

// Actor attributes requests to the X-Actor-* headers. It is attribution for
// event envelopes and logs, not access control.
func Actor() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorType := strings.TrimSpace(r.Header.Get(actorTypeHeader))
			if actorType == "" {
				actorType = defaultActor
			}
			actor := &outbox.ActorRef{
				Type: actorType,
				ID:   strings.TrimSpace(r.Header.Get(actorIDHeader)),
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}
