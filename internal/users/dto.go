package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stampcard-backend/pkg/db/models"
	"github.com/angelmondragon/stampcard-backend/pkg/enums"
)

// UserDTO is the transport shape that omits sensitive credentials.
type UserDTO struct {
	ID          uuid.UUID  `json:"id"`
	Username    string     `json:"username"`
	Role        enums.Role `json:"role"`
	IsStaff     bool       `json:"is_staff"`
	Name        string     `json:"name"`
	Phone       *string    `json:"phone,omitempty"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Username     string
	PasswordHash string
	Role         enums.Role
	Name         string
	Phone        *string
}

// MeDTO is the authenticated summary returned by GET /me.
type MeDTO struct {
	ID        uuid.UUID  `json:"id"`
	Username  string     `json:"username"`
	Role      enums.Role `json:"role"`
	IsStaff   bool       `json:"is_staff"`
	Stamps    int        `json:"stamps"`
	MaxStamps int        `json:"max_stamps"`
}

// ProfileDTO is the editable profile view.
type ProfileDTO struct {
	Username  string  `json:"username"`
	Name      string  `json:"name"`
	Phone     *string `json:"phone"`
	Stamps    int     `json:"stamps"`
	MaxStamps int     `json:"max_stamps"`
}

// UpdateProfileInput is a partial update; nil fields are left untouched.
type UpdateProfileInput struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,max=255"`
	Phone *string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:          u.ID,
		Username:    u.Username,
		Role:        u.Role,
		IsStaff:     u.IsStaff(),
		Name:        u.Name,
		Phone:       u.Phone,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	role := c.Role
	if role == "" {
		role = enums.RoleCustomer
	}
	now := time.Now().UTC()
	return &models.User{
		ID:           uuid.New(),
		Username:     c.Username,
		PasswordHash: c.PasswordHash,
		Role:         role,
		Name:         c.Name,
		Phone:        c.Phone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
