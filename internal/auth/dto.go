package auth

import (
	"github.com/angelmondragon/stampcard-backend/internal/users"
)

// LoginRequest captures the credentials sent to the login endpoints.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest creates a customer account.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,username"`
	Password string `json:"password" validate:"required,min=4,max=128"`
}

// StaffCodeRequest carries credentials plus the employee master code.
type StaffCodeRequest struct {
	Username     string `json:"username" validate:"required"`
	Password     string `json:"password" validate:"required"`
	EmployeeCode string `json:"employee_code" validate:"required"`
}

// VerifyCodeRequest checks an employee master code.
type VerifyCodeRequest struct {
	Code string `json:"employee_code" validate:"required"`
}

// VerifyCodeResponse reports whether the master code matched.
type VerifyCodeResponse struct {
	Valid bool   `json:"valid"`
	Type  string `json:"type,omitempty"`
}

// RefreshRequest exchanges a refresh token for a new pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// ChangePasswordRequest changes the caller's password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// TokenResponse is returned by every flow that authenticates a user.
type TokenResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	User         *users.UserDTO `json:"user"`
}
