package loyalty

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/stampcard-backend/pkg/db"
	"github.com/angelmondragon/stampcard-backend/pkg/db/models"
	"github.com/angelmondragon/stampcard-backend/pkg/pagination"
)

// Repository is the loyalty slice of the entity store. Every locking read must
// run on a repository bound to a transaction via WithTx.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	EnsureProfile(ctx context.Context, userID uuid.UUID) (*models.LoyaltyProfile, error)
	LockProfile(ctx context.Context, userID uuid.UUID) (*models.LoyaltyProfile, error)
	UpdateStamps(ctx context.Context, userID uuid.UUID, stamps int, at time.Time) error
	InsertStamps(ctx context.Context, rows []models.LoyaltyStamp) error
	ListStamps(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.LoyaltyStamp, error)
	LockCode(ctx context.Context, value string) (*models.LoyaltyCode, error)
	MarkCodeRedeemed(ctx context.Context, codeID uuid.UUID, by *uuid.UUID, at time.Time) error
	InsertCode(ctx context.Context, code *models.LoyaltyCode) error
	ActiveCodeExists(ctx context.Context, value string, now time.Time) (bool, error)
	CountActiveCodes(ctx context.Context, now time.Time) (int64, error)
	LockCodeValue(ctx context.Context, value string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the loyalty repository to a GORM handle.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// EnsureProfile returns the user's profile, creating an empty one on first access.
func (r *repository) EnsureProfile(ctx context.Context, userID uuid.UUID) (*models.LoyaltyProfile, error) {
	if err := r.insertProfileIfMissing(ctx, userID); err != nil {
		return nil, err
	}
	var profile models.LoyaltyProfile
	if err := r.db.WithContext(ctx).First(&profile, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// LockProfile is EnsureProfile followed by SELECT ... FOR UPDATE on the row.
func (r *repository) LockProfile(ctx context.Context, userID uuid.UUID) (*models.LoyaltyProfile, error) {
	if err := r.insertProfileIfMissing(ctx, userID); err != nil {
		return nil, err
	}
	var profile models.LoyaltyProfile
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&profile, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repository) insertProfileIfMissing(ctx context.Context, userID uuid.UUID) error {
	now := time.Now().UTC()
	profile := models.LoyaltyProfile{UserID: userID, CreatedAt: now, UpdatedAt: now}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&profile).Error
}

func (r *repository) UpdateStamps(ctx context.Context, userID uuid.UUID, stamps int, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.LoyaltyProfile{}).
		Where("user_id = ?", userID).
		UpdateColumns(map[string]any{"stamps": stamps, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) InsertStamps(ctx context.Context, rows []models.LoyaltyStamp) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		if rows[i].ID == uuid.Nil {
			rows[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// ListStamps pages a user's audit rows newest first using a (created_at, id) keyset.
func (r *repository) ListStamps(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.LoyaltyStamp, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.LoyaltyStamp
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// LockCode locks the most recently issued row carrying value. Older rows with
// the same value are past their active window and never redeemable again.
func (r *repository) LockCode(ctx context.Context, value string) (*models.LoyaltyCode, error) {
	var code models.LoyaltyCode
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", value).
		Order("created_at DESC").
		First(&code).Error; err != nil {
		return nil, err
	}
	return &code, nil
}

// MarkCodeRedeemed flips the pending flag; it affects no row once redeemed.
func (r *repository) MarkCodeRedeemed(ctx context.Context, codeID uuid.UUID, by *uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.LoyaltyCode{}).
		Where("id = ? AND redeemed = ?", codeID, false).
		UpdateColumns(map[string]any{
			"redeemed":    true,
			"redeemed_at": at,
			"redeemed_by": by,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrAlreadyRedeemed
	}
	return nil
}

func (r *repository) InsertCode(ctx context.Context, code *models.LoyaltyCode) error {
	if code.ID == uuid.Nil {
		code.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(code).Error
}

func (r *repository) ActiveCodeExists(ctx context.Context, value string, now time.Time) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.LoyaltyCode{}).
		Where("code = ? AND redeemed = ? AND expires_at >= ?", value, false, now).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) CountActiveCodes(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.LoyaltyCode{}).
		Where("redeemed = ? AND expires_at >= ?", false, now).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// LockCodeValue serializes issuers racing on the same candidate value for the
// rest of the transaction. Only Postgres has advisory locks; elsewhere the
// transaction itself is the serialization point.
func (r *repository) LockCodeValue(ctx context.Context, value string) error {
	if !db.IsPostgres(r.db) {
		return nil
	}
	return r.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", value).Error
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
