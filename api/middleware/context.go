package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/stampcard-backend/pkg/enums"
)

type contextKey string

const (
	ctxUserID   contextKey = "user_id"
	ctxUsername contextKey = "username"
	ctxRole     contextKey = "actor_role"
	ctxAccessID contextKey = "access_id"
)

// Principal is the authenticated caller as seen by handlers.
type Principal struct {
	UserID   uuid.UUID
	Username string
	Role     enums.Role
}

func UserIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxUserID)
}

func UsernameFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxUsername)
}

func RoleFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxRole)
}

// AccessIDFromContext returns the jti of the presented access token.
func AccessIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxAccessID)
}

// PrincipalFromContext assembles the caller from the values seeded by Auth.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	id, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil || id == uuid.Nil {
		return Principal{}, false
	}
	role, err := enums.ParseRole(RoleFromContext(ctx))
	if err != nil {
		return Principal{}, false
	}
	return Principal{UserID: id, Username: UsernameFromContext(ctx), Role: role}, true
}

// WithPrincipal injects the caller into the context. Tests use it to skip Auth.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, p.UserID.String())
	ctx = context.WithValue(ctx, ctxUsername, p.Username)
	return context.WithValue(ctx, ctxRole, p.Role.String())
}

func withAccessID(ctx context.Context, accessID string) context.Context {
	return context.WithValue(ctx, ctxAccessID, accessID)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
