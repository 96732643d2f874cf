// Package stats derives usage counters from the code and stamp audit tables.
package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stampcard-backend/pkg/db"
	"github.com/angelmondragon/stampcard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stampcard-backend/pkg/errors"
)

// Scope selects whose activity is counted.
type Scope string

const (
	ScopeMe  Scope = "me"
	ScopeAll Scope = "all"
)

// ParseScope defaults to ScopeMe for an empty value.
func ParseScope(value string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(value))) {
	case "", ScopeMe:
		return ScopeMe, nil
	case ScopeAll:
		return ScopeAll, nil
	default:
		return "", fmt.Errorf("invalid scope %q", value)
	}
}

// Summary is the barista stats payload. Activation counts include codes
// activated without credit, so codes_activated can exceed stamps granted.
type Summary struct {
	CodesActivated int64 `json:"codes_activated"`
	StampsToday    int64 `json:"stamps_today"`
	StampsWeek     int64 `json:"stamps_week"`
	Scope          Scope `json:"scope"`
}

// Query identifies the caller and requested scope.
type Query struct {
	ActorID   uuid.UUID
	ActorRole enums.Role
	Scope     Scope
}

// Service computes Summary values.
type Service interface {
	Summary(ctx context.Context, q Query) (*Summary, error)
}

type service struct {
	repo     Repository
	location *time.Location
	now      func() time.Time
}

// NewService builds the stats service. "Today" is the calendar day in loc.
func NewService(repo Repository, loc *time.Location, clock func() time.Time) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("stats repository required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = time.Now
	}
	return &service{repo: repo, location: loc, now: clock}, nil
}

func (s *service) Summary(ctx context.Context, q Query) (*Summary, error) {
	if !q.ActorRole.Can(enums.CapViewStats) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "stats require staff role")
	}
	scope := q.Scope
	if scope == "" {
		scope = ScopeMe
	}

	var principal *uuid.UUID
	if scope == ScopeMe {
		if q.ActorID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor is required for scope me")
		}
		id := q.ActorID
		principal = &id
	}

	now := s.now()
	today := StartOfDay(now, s.location)
	weekAgo := now.Add(-7 * 24 * time.Hour)

	activated, err := s.repo.CountActivatedCodes(ctx, principal)
	if err != nil {
		return nil, db.MapError(err, "count activated codes")
	}
	stampsToday, err := s.repo.CountStampsSince(ctx, today, principal)
	if err != nil {
		return nil, db.MapError(err, "count stamps today")
	}
	stampsWeek, err := s.repo.CountStampsSince(ctx, weekAgo, principal)
	if err != nil {
		return nil, db.MapError(err, "count stamps this week")
	}

	return &Summary{
		CodesActivated: activated,
		StampsToday:    stampsToday,
		StampsWeek:     stampsWeek,
		Scope:          scope,
	}, nil
}

// StartOfDay returns midnight of t's calendar date in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
