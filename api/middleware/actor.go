package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jasskhinda/facility-billing/api/responses"
	"github.com/jasskhinda/facility-billing/internal/access"
	"github.com/jasskhinda/facility-billing/pkg/enums"
	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
	"github.com/jasskhinda/facility-billing/pkg/logger"
)

const (
	HeaderActorID         = "X-Actor-Id"
	HeaderActorRole       = "X-Actor-Role"
	HeaderActorFacilities = "X-Actor-Facilities"
)

// Actor reads the caller scope set by the trusted gateway and stores it on
// the request context. Requests without an actor are rejected.
func Actor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := actorFromHeaders(r.Header)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := access.WithActor(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithActorID(ctx, actor.ID)
				ctx = logg.WithActorRole(ctx, actor.Role.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireStaff limits a route group to back-office and system actors.
func RequireStaff(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := access.RequireStaff(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func actorFromHeaders(h http.Header) (access.Actor, error) {
	id := strings.TrimSpace(h.Get(HeaderActorID))
	if id == "" {
		return access.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor scope missing")
	}
	role, err := enums.ParseActorRole(strings.ToLower(strings.TrimSpace(h.Get(HeaderActorRole))))
	if err != nil {
		return access.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "actor role invalid")
	}

	actor := access.Actor{ID: id, Role: role}
	for _, raw := range strings.Split(h.Get(HeaderActorFacilities), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		facilityID, err := uuid.Parse(raw)
		if err != nil {
			return access.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "actor facilities invalid")
		}
		actor.FacilityIDs = append(actor.FacilityIDs, facilityID)
	}
	return actor, nil
}
