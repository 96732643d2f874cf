package stats

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stampcard-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stampcard-backend/pkg/db/models"
	"github.com/angelmondragon/stampcard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stampcard-backend/pkg/errors"
)

func TestStartOfDayUsesLocation(t *testing.T) {
	moscow, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)

	// 22:30 UTC on the 14th is already the 15th in Moscow.
	now := time.Date(2026, 3, 14, 22, 30, 0, 0, time.UTC)
	start := StartOfDay(now, moscow)
	require.Equal(t, time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC), start.UTC())
}

func TestParseScope(t *testing.T) {
	scope, err := ParseScope("")
	require.NoError(t, err)
	require.Equal(t, ScopeMe, scope)
	scope, err = ParseScope(" ALL ")
	require.NoError(t, err)
	require.Equal(t, ScopeAll, scope)
	_, err = ParseScope("team")
	require.Error(t, err)
}

func TestSummaryCountsByScope(t *testing.T) {
	client := dbtest.Open(t)
	conn := client.DB()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	mkUser := func(name string, role enums.Role) uuid.UUID {
		u := models.User{ID: uuid.New(), Username: name, PasswordHash: "x", Role: role, CreatedAt: now, UpdatedAt: now}
		require.NoError(t, conn.Create(&u).Error)
		return u.ID
	}
	me := mkUser("barista", enums.RoleStaff)
	colleague := mkUser("barista2", enums.RoleStaff)
	customer := mkUser("anna", enums.RoleCustomer)

	stamp := func(by uuid.UUID, at time.Time) {
		row := models.LoyaltyStamp{ID: uuid.New(), UserID: customer, Source: enums.StampSourceManual, CreatedAt: at, CreatedBy: &by}
		require.NoError(t, conn.Create(&row).Error)
	}
	stamp(me, now.Add(-time.Hour))
	stamp(me, now.Add(-3*24*time.Hour))
	stamp(me, now.Add(-10*24*time.Hour))
	stamp(colleague, now.Add(-2*time.Hour))

	code := func(by uuid.UUID, redeemed bool) {
		row := models.LoyaltyCode{ID: uuid.New(), UserID: customer, Code: "1", CreatedAt: now, ExpiresAt: now.Add(time.Minute), Redeemed: redeemed}
		if redeemed {
			row.RedeemedBy = &by
			row.RedeemedAt = &now
		}
		require.NoError(t, conn.Create(&row).Error)
	}
	code(me, true)
	code(me, true)
	code(colleague, true)
	code(me, false)

	svc, err := NewService(NewRepository(conn), time.UTC, func() time.Time { return now })
	require.NoError(t, err)

	mine, err := svc.Summary(context.Background(), Query{ActorID: me, ActorRole: enums.RoleStaff, Scope: ScopeMe})
	require.NoError(t, err)
	require.Equal(t, &Summary{CodesActivated: 2, StampsToday: 1, StampsWeek: 2, Scope: ScopeMe}, mine)

	all, err := svc.Summary(context.Background(), Query{ActorID: me, ActorRole: enums.RoleStaff, Scope: ScopeAll})
	require.NoError(t, err)
	require.Equal(t, &Summary{CodesActivated: 3, StampsToday: 2, StampsWeek: 3, Scope: ScopeAll}, all)

	_, err = svc.Summary(context.Background(), Query{ActorID: customer, ActorRole: enums.RoleCustomer})
	require.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))
}
