package auth

import "context"

type contextKey string

const actorKey contextKey = "actor"

// Actor is the authenticated operator extracted from the bearer token.
type Actor struct {
	ID    string
	Role  string
	Shops []string
}

const RoleAdmin = "admin"

// WithActor stores the actor on the request context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// Authorizer answers the canOperateOn predicate consulted before any
// orchestrator or refund call proceeds.
type Authorizer struct{}

func (Authorizer) CanOperateOn(actor Actor, shopID string) bool {
	if actor.Role == RoleAdmin {
		return true
	}
	for _, shop := range actor.Shops {
		if shop == shopID {
			return true
		}
	}
	return false
}
