package users

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/stampcard-backend/pkg/db"
	"github.com/angelmondragon/stampcard-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stampcard-backend/pkg/errors"
)

var phonePattern = regexp.MustCompile(`^[0-9+()\-\s]{6,32}$`)

const maxNameLength = 255

type profileReader interface {
	GetOrCreateProfile(ctx context.Context, userID uuid.UUID) (*models.LoyaltyProfile, error)
}

// Service serves the self-service profile endpoints.
type Service interface {
	Me(ctx context.Context, userID uuid.UUID) (*MeDTO, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*ProfileDTO, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (*ProfileDTO, error)
	ResolveUsername(ctx context.Context, username string) (*models.User, error)
}

// ServiceParams wires the profile service.
type ServiceParams struct {
	Repo      Repository
	Profiles  profileReader
	MaxStamps int
}

type service struct {
	repo      Repository
	profiles  profileReader
	maxStamps int
}

// NewService validates dependencies and returns the profile service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("user repository required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("loyalty profile reader required")
	}
	if params.MaxStamps <= 0 {
		return nil, fmt.Errorf("max stamps must be positive")
	}
	return &service{repo: params.Repo, profiles: params.Profiles, maxStamps: params.MaxStamps}, nil
}

func (s *service) Me(ctx context.Context, userID uuid.UUID) (*MeDTO, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := s.profiles.GetOrCreateProfile(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &MeDTO{
		ID:        user.ID,
		Username:  user.Username,
		Role:      user.Role,
		IsStaff:   user.IsStaff(),
		Stamps:    profile.Stamps,
		MaxStamps: s.maxStamps,
	}, nil
}

func (s *service) GetProfile(ctx context.Context, userID uuid.UUID) (*ProfileDTO, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.profileOf(ctx, user)
}

func (s *service) UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (*ProfileDTO, error) {
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if len([]rune(name)) > maxNameLength {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name must be at most 255 characters")
		}
		input.Name = &name
	}
	if input.Phone != nil {
		phone := strings.TrimSpace(*input.Phone)
		if phone != "" && !phonePattern.MatchString(phone) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid phone number format").
				WithDetails(map[string]any{"field": "phone"})
		}
		input.Phone = &phone
	}

	if err := s.repo.UpdateProfile(ctx, userID, input); err != nil {
		return nil, db.MapError(err, "update profile")
	}
	return s.GetProfile(ctx, userID)
}

// ResolveUsername maps a username to its user, used when staff act on a customer.
func (s *service) ResolveUsername(ctx context.Context, username string) (*models.User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "username is required")
	}
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, db.MapError(err, "user not found")
	}
	return user, nil
}

func (s *service) load(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, db.MapError(err, "user not found")
	}
	return user, nil
}

func (s *service) profileOf(ctx context.Context, user *models.User) (*ProfileDTO, error) {
	profile, err := s.profiles.GetOrCreateProfile(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &ProfileDTO{
		Username:  user.Username,
		Name:      user.Name,
		Phone:     user.Phone,
		Stamps:    profile.Stamps,
		MaxStamps: s.maxStamps,
	}, nil
}
