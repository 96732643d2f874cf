package loyalty

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stampcard-backend/pkg/config"
	"github.com/angelmondragon/stampcard-backend/pkg/db"
	"github.com/angelmondragon/stampcard-backend/pkg/db/models"
	"github.com/angelmondragon/stampcard-backend/pkg/enums"
	"github.com/angelmondragon/stampcard-backend/pkg/logger"
	"github.com/angelmondragon/stampcard-backend/pkg/metrics"
	"github.com/angelmondragon/stampcard-backend/pkg/outbox"
	"github.com/angelmondragon/stampcard-backend/pkg/outbox/payloads"
)

const (
	modeRedeem   = "redeem"
	modeActivate = "activate"
)

// Redemption is the only path that moves a code from pending to redeemed.
//
// Redeem consumes the code and credits one stamp to its owner in the same
// transaction. Activate only marks the code redeemed and credits nothing, so
// activation counts can exceed the stamps actually granted.
type Redemption interface {
	Redeem(ctx context.Context, actor Actor, code string) (*RedeemResult, error)
	Activate(ctx context.Context, actor Actor, code string) (*ActivateResult, error)
}

// RedeemResult is returned after a successful credit-bearing redemption.
type RedeemResult struct {
	CodeID        uuid.UUID `json:"code_id"`
	Code          string    `json:"code"`
	OwnerID       uuid.UUID `json:"owner_id"`
	OwnerUsername string    `json:"owner_username"`
	Stamps        int       `json:"stamps"`
	MaxStamps     int       `json:"max_stamps"`
	RedeemedAt    time.Time `json:"redeemed_at"`
}

// ActivateResult is returned after a credit-less activation.
type ActivateResult struct {
	CodeID      uuid.UUID `json:"code_id"`
	Code        string    `json:"code"`
	OwnerID     uuid.UUID `json:"owner_id"`
	ActivatedAt time.Time `json:"activated_at"`
}

// RedemptionParams wires a Redemption engine.
type RedemptionParams struct {
	DB       txRunner
	Repo     Repository
	Outbox   Emitter
	Metrics  *metrics.LoyaltyMetrics
	Logger   *logger.Logger
	Settings Settings
	Clock    func() time.Time
}

type redemption struct {
	db       txRunner
	repo     Repository
	outbox   Emitter
	metrics  *metrics.LoyaltyMetrics
	logg     *logger.Logger
	settings Settings
	now      func() time.Time
}

// NewRedemption returns the redemption engine.
func NewRedemption(params RedemptionParams) (Redemption, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("loyalty repository required")
	}
	if err := params.Settings.validate(); err != nil {
		return nil, err
	}
	return &redemption{
		db:       params.DB,
		repo:     params.Repo,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     params.Logger,
		settings: params.Settings,
		now:      clockOrDefault(params.Clock),
	}, nil
}

func (r *redemption) Redeem(ctx context.Context, actor Actor, value string) (*RedeemResult, error) {
	if !actor.can(enums.CapRedeemCodes) {
		return nil, permissionError("redeeming codes requires staff role")
	}
	value, err := normalizeCode(value)
	if err != nil {
		return nil, err
	}

	var result *RedeemResult
	err = r.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)
		now := r.now()
		code, err := lockPendingCode(ctx, repo, value, now)
		if err != nil {
			return err
		}

		// The credit runs before the code flips so a full profile leaves the
		// code pending when the transaction rolls back.
		credit, err := applyCredit(ctx, repo, creditRequest{
			UserID:    code.UserID,
			Count:     1,
			Source:    enums.StampSourceCodeRedeem,
			GrantedBy: actor.idPtr(),
			At:        now,
			MaxStamps: r.settings.MaxStamps,
		})
		if err != nil {
			return err
		}
		if err := markRedeemed(ctx, repo, code.ID, actor.idPtr(), now); err != nil {
			return err
		}

		owner, err := repo.FindUser(ctx, code.UserID)
		if err != nil {
			return db.MapError(err, "load code owner")
		}

		redeemed := outbox.DomainEvent{
			EventType:     enums.EventLoyaltyCodeRedeemed,
			AggregateType: enums.AggregateLoyaltyCode,
			AggregateID:   code.ID,
			Actor:         actor.ref(),
			OccurredAt:    now,
			Data: payloads.CodeRedeemedEvent{
				CodeID:      code.ID,
				UserID:      code.UserID,
				RedeemedBy:  actor.idPtr(),
				RedeemedAt:  now,
				StampsTotal: credit.StampsTotal,
			},
		}
		if err := emit(ctx, r.outbox, tx, redeemed); err != nil {
			return err
		}
		if err := emit(ctx, r.outbox, tx, creditedEvent(actor, credit, enums.StampSourceCodeRedeem, actor.idPtr())); err != nil {
			return err
		}

		result = &RedeemResult{
			CodeID:        code.ID,
			Code:          code.Code,
			OwnerID:       owner.ID,
			OwnerUsername: owner.Username,
			Stamps:        credit.StampsTotal,
			MaxStamps:     r.settings.MaxStamps,
			RedeemedAt:    now,
		}
		return nil
	})
	r.metrics.ObserveRedemption(modeRedeem, outcomeOf(err))
	if err != nil {
		r.logRejected(ctx, modeRedeem, value, actor, err)
		return nil, err
	}

	r.metrics.AddStampsCredited(enums.StampSourceCodeRedeem.String(), 1)
	if r.logg != nil {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"code_id":      result.CodeID.String(),
			"owner_id":     result.OwnerID.String(),
			"redeemed_by":  actor.UserID.String(),
			"stamps_total": result.Stamps,
		})
		r.logg.Info(logCtx, "loyalty.code_redeemed")
	}
	return result, nil
}

func (r *redemption) Activate(ctx context.Context, actor Actor, value string) (*ActivateResult, error) {
	if !actor.can(enums.CapRedeemCodes) {
		return nil, permissionError("activating codes requires staff role")
	}
	value, err := normalizeCode(value)
	if err != nil {
		return nil, err
	}

	var result *ActivateResult
	err = r.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)
		now := r.now()
		code, err := lockPendingCode(ctx, repo, value, now)
		if err != nil {
			return err
		}
		if err := markRedeemed(ctx, repo, code.ID, actor.idPtr(), now); err != nil {
			return err
		}
		activated := outbox.DomainEvent{
			EventType:     enums.EventLoyaltyCodeActivated,
			AggregateType: enums.AggregateLoyaltyCode,
			AggregateID:   code.ID,
			Actor:         actor.ref(),
			OccurredAt:    now,
			Data: payloads.CodeActivatedEvent{
				CodeID:      code.ID,
				UserID:      code.UserID,
				ActivatedBy: actor.idPtr(),
				ActivatedAt: now,
			},
		}
		if err := emit(ctx, r.outbox, tx, activated); err != nil {
			return err
		}
		result = &ActivateResult{CodeID: code.ID, Code: code.Code, OwnerID: code.UserID, ActivatedAt: now}
		return nil
	})
	r.metrics.ObserveRedemption(modeActivate, outcomeOf(err))
	if err != nil {
		r.logRejected(ctx, modeActivate, value, actor, err)
		return nil, err
	}

	if r.logg != nil {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"code_id":      result.CodeID.String(),
			"owner_id":     result.OwnerID.String(),
			"activated_by": actor.UserID.String(),
		})
		r.logg.Info(logCtx, "loyalty.code_activated")
	}
	return result, nil
}

// lockPendingCode takes the row lock first and only then inspects state, so a
// caller that waited on a concurrent redemption sees the committed flag.
func lockPendingCode(ctx context.Context, repo Repository, value string, now time.Time) (*models.LoyaltyCode, error) {
	code, err := repo.LockCode(ctx, value)
	if err != nil {
		if isNotFound(err) {
			return nil, notFoundError("code not found")
		}
		return nil, db.MapError(err, "lock loyalty code")
	}
	if code.Redeemed {
		return nil, alreadyRedeemedError()
	}
	if code.IsExpired(now) {
		return nil, expiredError()
	}
	return code, nil
}

func markRedeemed(ctx context.Context, repo Repository, codeID uuid.UUID, by *uuid.UUID, at time.Time) error {
	if err := repo.MarkCodeRedeemed(ctx, codeID, by, at); err != nil {
		if errors.Is(err, ErrAlreadyRedeemed) {
			return alreadyRedeemedError()
		}
		return db.MapError(err, "mark code redeemed")
	}
	return nil
}

func (r *redemption) logRejected(ctx context.Context, mode, value string, actor Actor, err error) {
	if r.logg == nil {
		return
	}
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"mode":   mode,
		"code":   value,
		"actor":  actor.UserID.String(),
		"reason": string(ReasonOf(err)),
	})
	if ReasonOf(err) == ReasonNone {
		r.logg.Error(logCtx, "loyalty.redemption_failed", err)
		return
	}
	r.logg.Warn(logCtx, "loyalty.redemption_rejected")
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	if reason := ReasonOf(err); reason != ReasonNone {
		return string(reason)
	}
	return "error"
}

func normalizeCode(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", validationError("code is required")
	}
	if len([]rune(value)) > config.MaxCodeLength {
		return "", validationError(fmt.Sprintf("code must be at most %d characters", config.MaxCodeLength))
	}
	return value, nil
}
