package loyalty

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stampcard-backend/pkg/db"
	"github.com/angelmondragon/stampcard-backend/pkg/db/models"
	"github.com/angelmondragon/stampcard-backend/pkg/enums"
	"github.com/angelmondragon/stampcard-backend/pkg/logger"
	"github.com/angelmondragon/stampcard-backend/pkg/metrics"
	"github.com/angelmondragon/stampcard-backend/pkg/outbox"
	"github.com/angelmondragon/stampcard-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/stampcard-backend/pkg/pagination"
)

// Ledger owns every mutation of a profile's stamp counter.
type Ledger interface {
	AddStamps(ctx context.Context, input AddStampsInput) (*CreditResult, error)
	Reset(ctx context.Context, actor Actor, userID uuid.UUID) (*ResetResult, error)
	GetOrCreateProfile(ctx context.Context, userID uuid.UUID) (*models.LoyaltyProfile, error)
	Status(ctx context.Context, actor Actor, userID uuid.UUID) (*Status, error)
	History(ctx context.Context, actor Actor, userID uuid.UUID, params pagination.Params) (*HistoryPage, error)
}

// AddStampsInput describes a manual credit.
type AddStampsInput struct {
	Actor  Actor
	UserID uuid.UUID
	Count  int
}

// CreditResult reports how many stamps were actually applied after clamping.
type CreditResult struct {
	UserID      uuid.UUID `json:"user_id"`
	Requested   int       `json:"requested"`
	Applied     int       `json:"applied"`
	StampsTotal int       `json:"stamps_total"`
	MaxStamps   int       `json:"max_stamps"`
}

// ResetResult carries the counter before and after a reset.
type ResetResult struct {
	UserID    uuid.UUID `json:"user_id"`
	Previous  int       `json:"previous"`
	Stamps    int       `json:"stamps"`
	MaxStamps int       `json:"max_stamps"`
}

// Status is a read-only snapshot of a profile.
type Status struct {
	UserID    uuid.UUID `json:"user_id"`
	Stamps    int       `json:"stamps"`
	MaxStamps int       `json:"max_stamps"`
}

// StampEntry is one audit row as exposed to clients.
type StampEntry struct {
	ID        uuid.UUID         `json:"id"`
	Source    enums.StampSource `json:"source"`
	CreatedAt time.Time         `json:"created_at"`
	CreatedBy *uuid.UUID        `json:"created_by,omitempty"`
}

// HistoryPage is a keyset page of stamp audit rows.
type HistoryPage struct {
	Items      []StampEntry `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// LedgerParams wires a Ledger.
type LedgerParams struct {
	DB       txRunner
	Repo     Repository
	Outbox   Emitter
	Metrics  *metrics.LoyaltyMetrics
	Logger   *logger.Logger
	Settings Settings
	Clock    func() time.Time
}

type ledger struct {
	db       txRunner
	repo     Repository
	outbox   Emitter
	metrics  *metrics.LoyaltyMetrics
	logg     *logger.Logger
	settings Settings
	now      func() time.Time
}

// NewLedger validates the settings and returns a Ledger.
func NewLedger(params LedgerParams) (Ledger, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("loyalty repository required")
	}
	if err := params.Settings.validate(); err != nil {
		return nil, err
	}
	return &ledger{
		db:       params.DB,
		repo:     params.Repo,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     params.Logger,
		settings: params.Settings,
		now:      clockOrDefault(params.Clock),
	}, nil
}

func (l *ledger) AddStamps(ctx context.Context, input AddStampsInput) (*CreditResult, error) {
	if !input.Actor.can(enums.CapCreditStamps) {
		return nil, permissionError("crediting stamps requires staff role")
	}
	if input.UserID == uuid.Nil {
		return nil, validationError("user id is required")
	}
	if input.Count <= 0 {
		return nil, validationError("amount must be a positive integer")
	}

	var result *CreditResult
	err := l.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := l.repo.WithTx(tx)
		if _, err := repo.FindUser(ctx, input.UserID); err != nil {
			if isNotFound(err) {
				return notFoundError("user not found")
			}
			return db.MapError(err, "load user")
		}
		credit, err := applyCredit(ctx, repo, creditRequest{
			UserID:    input.UserID,
			Count:     input.Count,
			Source:    enums.StampSourceManual,
			GrantedBy: input.Actor.idPtr(),
			At:        l.now(),
			MaxStamps: l.settings.MaxStamps,
		})
		if err != nil {
			return err
		}
		if err := emit(ctx, l.outbox, tx, creditedEvent(input.Actor, credit, enums.StampSourceManual, input.Actor.idPtr())); err != nil {
			return err
		}
		result = credit
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.metrics.AddStampsCredited(enums.StampSourceManual.String(), result.Applied)
	if l.logg != nil {
		logCtx := l.logg.WithFields(ctx, map[string]any{
			"user_id":      result.UserID.String(),
			"granted_by":   input.Actor.UserID.String(),
			"requested":    result.Requested,
			"applied":      result.Applied,
			"stamps_total": result.StampsTotal,
		})
		l.logg.Info(logCtx, "loyalty.stamps_credited")
	}
	return result, nil
}

func (l *ledger) Reset(ctx context.Context, actor Actor, userID uuid.UUID) (*ResetResult, error) {
	if userID == uuid.Nil {
		return nil, validationError("user id is required")
	}
	if userID != actor.UserID && !actor.can(enums.CapResetAnyProfile) {
		return nil, permissionError("resetting another profile requires staff role")
	}

	var result *ResetResult
	err := l.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := l.repo.WithTx(tx)
		if _, err := repo.FindUser(ctx, userID); err != nil {
			if isNotFound(err) {
				return notFoundError("user not found")
			}
			return db.MapError(err, "load user")
		}
		profile, err := repo.LockProfile(ctx, userID)
		if err != nil {
			return db.MapError(err, "lock loyalty profile")
		}
		previous := profile.Stamps
		if err := repo.UpdateStamps(ctx, userID, 0, l.now()); err != nil {
			return db.MapError(err, "reset loyalty profile")
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventLoyaltyStampsReset,
			AggregateType: enums.AggregateLoyaltyProfile,
			AggregateID:   userID,
			Actor:         actor.ref(),
			Data: payloads.StampsResetEvent{
				UserID:   userID,
				ResetBy:  actor.idPtr(),
				Previous: previous,
			},
		}
		if err := emit(ctx, l.outbox, tx, event); err != nil {
			return err
		}
		result = &ResetResult{UserID: userID, Previous: previous, Stamps: 0, MaxStamps: l.settings.MaxStamps}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if l.logg != nil {
		logCtx := l.logg.WithFields(ctx, map[string]any{
			"user_id":  userID.String(),
			"reset_by": actor.UserID.String(),
			"previous": result.Previous,
		})
		l.logg.Info(logCtx, "loyalty.profile_reset")
	}
	return result, nil
}

func (l *ledger) GetOrCreateProfile(ctx context.Context, userID uuid.UUID) (*models.LoyaltyProfile, error) {
	if userID == uuid.Nil {
		return nil, validationError("user id is required")
	}
	profile, err := l.repo.EnsureProfile(ctx, userID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return nil, notFoundError("user not found")
		}
		return nil, db.MapError(err, "load loyalty profile")
	}
	return profile, nil
}

func (l *ledger) Status(ctx context.Context, actor Actor, userID uuid.UUID) (*Status, error) {
	if userID != actor.UserID && !actor.can(enums.CapViewAnyStatus) {
		return nil, permissionError("viewing another profile requires staff role")
	}
	profile, err := l.GetOrCreateProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Status{UserID: userID, Stamps: profile.Stamps, MaxStamps: l.settings.MaxStamps}, nil
}

func (l *ledger) History(ctx context.Context, actor Actor, userID uuid.UUID, params pagination.Params) (*HistoryPage, error) {
	if userID != actor.UserID && !actor.can(enums.CapViewAnyStatus) {
		return nil, permissionError("viewing another profile requires staff role")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = l.settings.HistoryLimit
	}
	limit = pagination.NormalizeLimit(limit)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, validationError(err.Error())
	}

	rows, err := l.repo.ListStamps(ctx, userID, cursor, pagination.LimitWithBuffer(limit))
	if err != nil {
		return nil, db.MapError(err, "list stamp history")
	}

	page := &HistoryPage{Items: make([]StampEntry, 0, limit)}
	if len(rows) > limit {
		last := rows[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		rows = rows[:limit]
	}
	for _, row := range rows {
		page.Items = append(page.Items, StampEntry{
			ID:        row.ID,
			Source:    row.Source,
			CreatedAt: row.CreatedAt,
			CreatedBy: row.CreatedBy,
		})
	}
	return page, nil
}

type creditRequest struct {
	UserID    uuid.UUID
	Count     int
	Source    enums.StampSource
	GrantedBy *uuid.UUID
	At        time.Time
	MaxStamps int
}

// applyCredit locks the profile, clamps the credit to the remaining room and
// writes the counter plus one audit row per applied stamp. It must run on a
// transaction-bound repository.
func applyCredit(ctx context.Context, repo Repository, req creditRequest) (*CreditResult, error) {
	profile, err := repo.LockProfile(ctx, req.UserID)
	if err != nil {
		return nil, db.MapError(err, "lock loyalty profile")
	}
	if profile.Stamps >= req.MaxStamps {
		return nil, limitReachedError(req.MaxStamps)
	}

	applied := req.Count
	if room := req.MaxStamps - profile.Stamps; applied > room {
		applied = room
	}
	total := profile.Stamps + applied

	if err := repo.UpdateStamps(ctx, req.UserID, total, req.At); err != nil {
		return nil, db.MapError(err, "update loyalty profile")
	}
	rows := make([]models.LoyaltyStamp, 0, applied)
	for i := 0; i < applied; i++ {
		rows = append(rows, models.LoyaltyStamp{
			UserID:    req.UserID,
			Source:    req.Source,
			CreatedAt: req.At,
			CreatedBy: req.GrantedBy,
		})
	}
	if err := repo.InsertStamps(ctx, rows); err != nil {
		return nil, db.MapError(err, "insert stamp history")
	}

	return &CreditResult{
		UserID:      req.UserID,
		Requested:   req.Count,
		Applied:     applied,
		StampsTotal: total,
		MaxStamps:   req.MaxStamps,
	}, nil
}

func creditedEvent(actor Actor, credit *CreditResult, source enums.StampSource, grantedBy *uuid.UUID) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventLoyaltyStampsCredited,
		AggregateType: enums.AggregateLoyaltyProfile,
		AggregateID:   credit.UserID,
		Actor:         actor.ref(),
		Data: payloads.StampsCreditedEvent{
			UserID:      credit.UserID,
			GrantedBy:   grantedBy,
			Source:      source,
			Requested:   credit.Requested,
			Applied:     credit.Applied,
			StampsTotal: credit.StampsTotal,
		},
	}
}

func clockOrDefault(clock func() time.Time) func() time.Time {
	if clock == nil {
		return func() time.Time { return time.Now().UTC() }
	}
	return func() time.Time { return clock().UTC() }
}
