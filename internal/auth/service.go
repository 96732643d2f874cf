package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stampcard-backend/internal/loyalty"
	"github.com/angelmondragon/stampcard-backend/internal/users"
	pkgAuth "github.com/angelmondragon/stampcard-backend/pkg/auth"
	"github.com/angelmondragon/stampcard-backend/pkg/auth/session"
	"github.com/angelmondragon/stampcard-backend/pkg/config"
	"github.com/angelmondragon/stampcard-backend/pkg/db"
	"github.com/angelmondragon/stampcard-backend/pkg/db/models"
	"github.com/angelmondragon/stampcard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stampcard-backend/pkg/errors"
	"github.com/angelmondragon/stampcard-backend/pkg/logger"
	"github.com/angelmondragon/stampcard-backend/pkg/security"
)

const (
	invalidCredentialsMessage = "invalid credentials"
	minUsernameLength         = 3
	maxUsernameLength         = 150
	minCustomerPassword       = 4
	minStaffPassword          = 6
	masterCodeType            = "master"
)

// Service defines the behavior needed by the auth controllers.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error)
	Login(ctx context.Context, req LoginRequest) (*TokenResponse, error)
	StaffLogin(ctx context.Context, req LoginRequest) (*TokenResponse, error)
	StaffLoginWithCode(ctx context.Context, req StaffCodeRequest) (*TokenResponse, error)
	RegisterStaff(ctx context.Context, req StaffCodeRequest) (*TokenResponse, error)
	VerifyMasterCode(ctx context.Context, code string) (*VerifyCodeResponse, error)
	Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenResponse, error)
	Logout(ctx context.Context, accessID string) error
	ChangePassword(ctx context.Context, userID uuid.UUID, req ChangePasswordRequest) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type sessionManager interface {
	Generate(ctx context.Context, accessID string, userID uuid.UUID) (string, error)
	Rotate(ctx context.Context, oldAccessID, provided string) (*session.Rotation, error)
	Revoke(ctx context.Context, accessID string) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	DB             txRunner
	Users          users.Repository
	Profiles       loyalty.Repository
	SessionManager sessionManager
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	MasterCodes    []string
	Logger         *logger.Logger
}

type service struct {
	db          txRunner
	users       users.Repository
	profiles    loyalty.Repository
	session     sessionManager
	jwtCfg      config.JWTConfig
	passwordCfg config.PasswordConfig
	masterCodes []string
	logg        *logger.Logger
}

// NewService constructs the auth service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("loyalty repository is required")
	}
	if params.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	return &service{
		db:          params.DB,
		users:       params.Users,
		profiles:    params.Profiles,
		session:     params.SessionManager,
		jwtCfg:      params.JWTConfig,
		passwordCfg: params.PasswordConfig,
		masterCodes: params.MasterCodes,
		logg:        params.Logger,
	}, nil
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error) {
	username := strings.TrimSpace(req.Username)
	if n := len([]rune(username)); n < minUsernameLength || n > maxUsernameLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "username must be 3 to 150 characters")
	}
	if len(req.Password) < minCustomerPassword {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "password must be at least 4 characters")
	}
	user, err := s.createUser(ctx, username, req.Password, enums.RoleCustomer)
	if err != nil {
		return nil, err
	}
	return s.issueTokens(ctx, user)
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	user, err := s.authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}
	return s.issueTokens(ctx, user)
}

func (s *service) StaffLogin(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	user, err := s.authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}
	if !user.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "account is not registered as staff")
	}
	return s.issueTokens(ctx, user)
}

// StaffLoginWithCode authenticates and promotes the account to staff when the
// employee master code matches.
func (s *service) StaffLoginWithCode(ctx context.Context, req StaffCodeRequest) (*TokenResponse, error) {
	if !security.MatchesAny(req.EmployeeCode, s.masterCodes) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid employee code")
	}
	user, err := s.users.FindByUsername(ctx, req.Username)
	if err != nil {
		return nil, db.MapError(err, "user not found")
	}
	if err := s.verifyPassword(req.Password, user); err != nil {
		return nil, err
	}
	if !user.IsStaff() {
		if err := s.users.UpdateRole(ctx, user.ID, enums.RoleStaff); err != nil {
			return nil, db.MapError(err, "promote user")
		}
		user.Role = enums.RoleStaff
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{"user_id": user.ID.String(), "username": user.Username})
			s.logg.Info(logCtx, "auth.staff_promoted")
		}
	}
	return s.issueTokens(ctx, user)
}

func (s *service) RegisterStaff(ctx context.Context, req StaffCodeRequest) (*TokenResponse, error) {
	username := strings.TrimSpace(req.Username)
	if len([]rune(username)) < minUsernameLength || len(req.Password) < minStaffPassword {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "username must be at least 3 characters and password at least 6")
	}
	if !security.MatchesAny(req.EmployeeCode, s.masterCodes) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid employee code")
	}
	user, err := s.createUser(ctx, username, req.Password, enums.RoleStaff)
	if err != nil {
		return nil, err
	}
	return s.issueTokens(ctx, user)
}

func (s *service) VerifyMasterCode(_ context.Context, code string) (*VerifyCodeResponse, error) {
	if strings.TrimSpace(code) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code is required")
	}
	if security.MatchesAny(code, s.masterCodes) {
		return &VerifyCodeResponse{Valid: true, Type: masterCodeType}, nil
	}
	return &VerifyCodeResponse{Valid: false}, nil
}

// Refresh rotates the session bound to the (possibly expired) access token and
// mints a token carrying the user's current role.
func (s *service) Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenResponse, error) {
	claims, err := pkgAuth.ParseAccessTokenAllowExpired(s.jwtCfg, accessToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid access token")
	}
	rotation, err := s.session.Rotate(ctx, claims.ID, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate session")
	}
	if rotation.UserID != claims.UserID {
		_ = s.session.Revoke(ctx, rotation.AccessID)
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
	}
	user, err := s.users.FindByID(ctx, rotation.UserID)
	if err != nil {
		_ = s.session.Revoke(ctx, rotation.AccessID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, db.MapError(err, "load user")
	}
	accessTokenOut, err := s.mint(user, rotation.AccessID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return &TokenResponse{
		AccessToken:  accessTokenOut,
		RefreshToken: rotation.RefreshToken,
		User:         users.FromModel(user),
	}, nil
}

func (s *service) Logout(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session")
	}
	if err := s.session.Revoke(ctx, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

func (s *service) ChangePassword(ctx context.Context, userID uuid.UUID, req ChangePasswordRequest) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return db.MapError(err, "user not found")
	}
	valid, err := security.VerifyPassword(req.OldPassword, user.PasswordHash)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return pkgerrors.New(pkgerrors.CodeValidation, "old password is incorrect").
			WithDetails(map[string]any{"field": "old_password"})
	}
	if len(req.NewPassword) < minCustomerPassword {
		return pkgerrors.New(pkgerrors.CodeValidation, "new password must be at least 4 characters")
	}
	if req.NewPassword == req.OldPassword {
		return pkgerrors.New(pkgerrors.CodeValidation, "new password must differ from the old one")
	}
	hash, err := security.HashPassword(req.NewPassword, s.passwordCfg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return db.MapError(err, "update password")
	}
	return nil
}

func (s *service) createUser(ctx context.Context, username, password string, role enums.Role) (*models.User, error) {
	hash, err := security.HashPassword(password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	var created *models.User
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.users.WithTx(tx)
		if _, err := repo.FindByUsername(ctx, username); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "username already taken")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return db.MapError(err, "lookup username")
		}

		user, err := repo.Create(ctx, users.CreateUserDTO{Username: username, PasswordHash: hash, Role: role})
		if err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "username already taken")
			}
			return db.MapError(err, "create user")
		}
		if _, err := s.profiles.WithTx(tx).EnsureProfile(ctx, user.ID); err != nil {
			return db.MapError(err, "create loyalty profile")
		}
		created = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"user_id": created.ID.String(), "role": created.Role.String()})
		s.logg.Info(logCtx, "auth.user_registered")
	}
	return created, nil
}

func (s *service) authenticate(ctx context.Context, username, password string) (*models.User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}
	if err := s.verifyPassword(password, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *service) verifyPassword(password string, user *models.User) error {
	valid, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return nil
}

func (s *service) issueTokens(ctx context.Context, user *models.User) (*TokenResponse, error) {
	now := time.Now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update last login")
	}
	user.LastLoginAt = &now

	accessID := session.NewAccessID()
	accessToken, err := s.mint(user, accessID, now)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.session.Generate(ctx, accessID, user.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store refresh token")
	}
	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         users.FromModel(user),
	}, nil
}

func (s *service) mint(user *models.User, accessID string, now time.Time) (string, error) {
	token, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		JTI:      accessID,
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return token, nil
}
