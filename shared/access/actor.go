package access

import (
	"context"
	"errors"
)

// Role is the capability a caller acts with.
type Role string

const (
	RoleGuest Role = "guest"
	RoleOwner Role = "owner"
)

// Actor is passed explicitly into every booking operation.
type Actor struct {
	Role Role
}

var (
	Guest = Actor{Role: RoleGuest}
	Owner = Actor{Role: RoleOwner}
)

func (a Actor) IsOwner() bool {
	return a.Role == RoleOwner
}

func (a Actor) String() string {
	if a.Role == "" {
		return string(RoleGuest)
	}
	return string(a.Role)
}

// RequireOwner returns an *AccessDeniedError unless a is the owner.
func RequireOwner(a Actor, action string) error {
	if a.IsOwner() {
		return nil
	}
	return &AccessDeniedError{Reason: "only the owner can " + action}
}

// AccessDeniedError is returned when the actor lacks the capability for an
// operation.
type AccessDeniedError struct {
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return e.Reason
}

// IsAccessDenied checks if error is access denied.
func IsAccessDenied(err error) bool {
	var ade *AccessDeniedError
	return errors.As(err, &ade)
}

type actorKey struct{}

// WithActor stores a in ctx for transport middleware.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor stored by WithActor, or Guest.
func ActorFrom(ctx context.Context) Actor {
	if a, ok := ctx.Value(actorKey{}).(Actor); ok {
		return a
	}
	return Guest
}
