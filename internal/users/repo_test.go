package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stampcard-backend/pkg/db"
	"github.com/angelmondragon/stampcard-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stampcard-backend/pkg/enums"
)

func TestRepositoryCreateAndFind(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()

	user, err := repo.Create(ctx, CreateUserDTO{Username: "Anna", PasswordHash: "hash"})
	require.NoError(t, err)
	require.Equal(t, enums.RoleCustomer, user.Role)

	found, err := repo.FindByUsername(ctx, "  anna ")
	require.NoError(t, err)
	require.Equal(t, user.ID, found.ID)

	_, err = repo.Create(ctx, CreateUserDTO{Username: "ANNA", PasswordHash: "hash"})
	require.True(t, db.IsUniqueViolation(err, ""))

	_, err = repo.FindByID(ctx, uuid.New())
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestRepositoryUpdates(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()

	user, err := repo.Create(ctx, CreateUserDTO{Username: "boris", PasswordHash: "old"})
	require.NoError(t, err)

	require.NoError(t, repo.UpdatePassword(ctx, user.ID, "new"))
	require.NoError(t, repo.UpdateRole(ctx, user.ID, enums.RoleStaff))
	now := time.Now().UTC()
	require.NoError(t, repo.UpdateLastLogin(ctx, user.ID, now))
	name, phone := "Boris", "+7 (900) 123-45-67"
	require.NoError(t, repo.UpdateProfile(ctx, user.ID, UpdateProfileInput{Name: &name, Phone: &phone}))

	reloaded, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "new", reloaded.PasswordHash)
	require.True(t, reloaded.IsStaff())
	require.NotNil(t, reloaded.LastLoginAt)
	require.Equal(t, "Boris", reloaded.Name)
	require.Equal(t, phone, *reloaded.Phone)

	empty := ""
	require.NoError(t, repo.UpdateProfile(ctx, user.ID, UpdateProfileInput{Phone: &empty}))
	reloaded, err = repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.Nil(t, reloaded.Phone)
	require.Equal(t, "Boris", reloaded.Name)

	require.ErrorIs(t, repo.UpdateRole(ctx, uuid.New(), enums.RoleStaff), gorm.ErrRecordNotFound)
}
