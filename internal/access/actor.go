package access

import (
	"context"

	"github.com/google/uuid"

	"github.com/jasskhinda/facility-billing/pkg/enums"
	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
	"github.com/jasskhinda/facility-billing/pkg/outbox"
)

type contextKey struct{}

// Actor is the caller scope forwarded by the upstream gateway.
type Actor struct {
	ID          string
	Role        enums.ActorRole
	FacilityIDs []uuid.UUID
}

// System is the actor used by background jobs and consumers.
func System(name string) Actor {
	return Actor{ID: name, Role: enums.ActorRoleSystem}
}

// WithActor stores the actor on the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextKey{}, actor)
}

// ActorFrom returns the actor stored on the context.
func ActorFrom(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(contextKey{}).(Actor)
	return actor, ok
}

// IsStaff reports whether the actor may act on any facility.
func (a Actor) IsStaff() bool {
	return a.Role == enums.ActorRoleAdmin || a.Role == enums.ActorRoleSystem
}

// CanAccess reports whether the actor may read or pay for the facility.
func (a Actor) CanAccess(facilityID uuid.UUID) bool {
	if a.IsStaff() {
		return true
	}
	if a.Role != enums.ActorRoleFacility {
		return false
	}
	for _, id := range a.FacilityIDs {
		if id == facilityID {
			return true
		}
	}
	return false
}

// Ref converts the actor for outbox envelopes.
func (a Actor) Ref() *outbox.ActorRef {
	if a.ID == "" {
		return nil
	}
	return &outbox.ActorRef{ActorID: a.ID, Role: string(a.Role)}
}

// AuthorizeFacility rejects callers without rights to the facility.
func AuthorizeFacility(ctx context.Context, facilityID uuid.UUID) error {
	actor, ok := ActorFrom(ctx)
	if !ok || actor.ID == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor scope missing")
	}
	if !actor.CanAccess(facilityID) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "actor cannot access facility")
	}
	return nil
}

// RequireStaff rejects callers that are not back-office or system actors.
func RequireStaff(ctx context.Context) error {
	actor, ok := ActorFrom(ctx)
	if !ok || actor.ID == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor scope missing")
	}
	if !actor.IsStaff() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "back-office role required")
	}
	return nil
}
