package loyalty

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stampcard-backend/internal/codes"
	"github.com/angelmondragon/stampcard-backend/pkg/db"
	"github.com/angelmondragon/stampcard-backend/pkg/db/models"
	"github.com/angelmondragon/stampcard-backend/pkg/enums"
	"github.com/angelmondragon/stampcard-backend/pkg/logger"
	"github.com/angelmondragon/stampcard-backend/pkg/metrics"
	"github.com/angelmondragon/stampcard-backend/pkg/outbox"
	"github.com/angelmondragon/stampcard-backend/pkg/outbox/payloads"
)

// Issuer hands out one-time codes to customers.
type Issuer interface {
	Issue(ctx context.Context, actor Actor) (*IssuedCode, error)
	CountActive(ctx context.Context) (int64, error)
}

// IssuedCode is the client-facing view of a fresh code.
type IssuedCode struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssuerParams wires an Issuer.
type IssuerParams struct {
	DB       txRunner
	Repo     Repository
	Outbox   Emitter
	Metrics  *metrics.LoyaltyMetrics
	Logger   *logger.Logger
	Settings Settings
	Clock    func() time.Time
}

type issuer struct {
	db       txRunner
	repo     Repository
	outbox   Emitter
	metrics  *metrics.LoyaltyMetrics
	logg     *logger.Logger
	settings Settings
	now      func() time.Time
}

// NewIssuer returns an Issuer.
func NewIssuer(params IssuerParams) (Issuer, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("loyalty repository required")
	}
	if err := params.Settings.validate(); err != nil {
		return nil, err
	}
	return &issuer{
		db:       params.DB,
		repo:     params.Repo,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     params.Logger,
		settings: params.Settings,
		now:      clockOrDefault(params.Clock),
	}, nil
}

// Issue generates a value that collides with no active code and stores it with
// expires_at = now + TTL. The collision check and the insert share a transaction.
func (i *issuer) Issue(ctx context.Context, actor Actor) (*IssuedCode, error) {
	if actor.UserID == uuid.Nil {
		return nil, validationError("user id is required")
	}

	var issued *IssuedCode
	err := i.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := i.repo.WithTx(tx)
		now := i.now()
		if _, err := repo.FindUser(ctx, actor.UserID); err != nil {
			if isNotFound(err) {
				return notFoundError("user not found")
			}
			return db.MapError(err, "load user")
		}

		value, err := codes.Generate(ctx, i.settings.CodeLength, i.settings.CodeAlphabet, func(ctx context.Context, candidate string) (bool, error) {
			if err := repo.LockCodeValue(ctx, candidate); err != nil {
				return false, err
			}
			return repo.ActiveCodeExists(ctx, candidate, now)
		})
		if err != nil {
			return db.MapError(err, "generate code")
		}

		code := &models.LoyaltyCode{
			UserID:    actor.UserID,
			Code:      value,
			CreatedAt: now,
			ExpiresAt: now.Add(i.settings.CodeTTL),
		}
		if err := repo.InsertCode(ctx, code); err != nil {
			return db.MapError(err, "insert loyalty code")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventLoyaltyCodeIssued,
			AggregateType: enums.AggregateLoyaltyCode,
			AggregateID:   code.ID,
			Actor:         actor.ref(),
			OccurredAt:    now,
			Data: payloads.CodeIssuedEvent{
				CodeID:    code.ID,
				UserID:    code.UserID,
				ExpiresAt: code.ExpiresAt,
			},
		}
		if err := emit(ctx, i.outbox, tx, event); err != nil {
			return err
		}
		issued = &IssuedCode{ID: code.ID, Code: code.Code, ExpiresAt: code.ExpiresAt}
		return nil
	})
	if err != nil {
		return nil, err
	}

	i.metrics.IncCodesIssued()
	if i.logg != nil {
		logCtx := i.logg.WithFields(ctx, map[string]any{
			"code_id":    issued.ID.String(),
			"user_id":    actor.UserID.String(),
			"expires_at": issued.ExpiresAt,
		})
		i.logg.Info(logCtx, "loyalty.code_issued")
	}
	return issued, nil
}

// CountActive returns how many codes are pending and unexpired right now.
func (i *issuer) CountActive(ctx context.Context) (int64, error) {
	count, err := i.repo.CountActiveCodes(ctx, i.now())
	if err != nil {
		return 0, db.MapError(err, "count active codes")
	}
	return count, nil
}
