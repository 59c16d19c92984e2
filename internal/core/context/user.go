// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// Actor identifies who performed a mutation. Authentication is handled
// upstream, the service only records the identity it was given.
type Actor struct {
	ID   string
	Name string
}

type actorContextKey struct{}

// SystemActorID is recorded when no actor was supplied (workers, seeding).
const SystemActorID = "system"

// WithActor adds Actor to context.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// GetActor returns Actor from context.
func GetActor(ctx context.Context) *Actor {
	if v, ok := ctx.Value(actorContextKey{}).(*Actor); ok {
		return v
	}
	return nil
}

// GetActorID returns actor ID from context or SystemActorID.
func GetActorID(ctx context.Context) string {
	if a := GetActor(ctx); a != nil && a.ID != "" {
		return a.ID
	}
	return SystemActorID
}
