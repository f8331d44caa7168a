package access

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasskhinda/facility-billing/pkg/enums"
	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
)

func TestAuthorizeFacility(t *testing.T) {
	facilityID := uuid.New()
	other := uuid.New()

	tests := []struct {
		name  string
		ctx   context.Context
		code  pkgerrors.Code
		allow bool
	}{
		{name: "no actor", ctx: context.Background(), code: pkgerrors.CodeUnauthorized},
		{name: "facility member", ctx: WithActor(context.Background(), Actor{ID: "u1", Role: enums.ActorRoleFacility, FacilityIDs: []uuid.UUID{facilityID}}), allow: true},
		{name: "other facility", ctx: WithActor(context.Background(), Actor{ID: "u2", Role: enums.ActorRoleFacility, FacilityIDs: []uuid.UUID{other}}), code: pkgerrors.CodeForbidden},
		{name: "admin", ctx: WithActor(context.Background(), Actor{ID: "a1", Role: enums.ActorRoleAdmin}), allow: true},
		{name: "system", ctx: WithActor(context.Background(), System("cron")), allow: true},
		{name: "unknown role", ctx: WithActor(context.Background(), Actor{ID: "x", Role: "driver", FacilityIDs: []uuid.UUID{facilityID}}), code: pkgerrors.CodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AuthorizeFacility(tt.ctx, facilityID)
			if tt.allow {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, tt.code))
		})
	}
}

func TestRequireStaff(t *testing.T) {
	require.NoError(t, RequireStaff(WithActor(context.Background(), Actor{ID: "a1", Role: enums.ActorRoleAdmin})))

	err := RequireStaff(WithActor(context.Background(), Actor{ID: "u1", Role: enums.ActorRoleFacility}))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	err = RequireStaff(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestActorRef(t *testing.T) {
	assert.Nil(t, Actor{}.Ref())
	ref := Actor{ID: "a1", Role: enums.ActorRoleAdmin}.Ref()
	require.NotNil(t, ref)
	assert.Equal(t, "a1", ref.ActorID)
	assert.Equal(t, "admin", ref.Role)
}
