package stats

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stampcard-backend/pkg/db/models"
)

// Repository runs the read-only counting queries.
type Repository interface {
	CountActivatedCodes(ctx context.Context, redeemedBy *uuid.UUID) (int64, error)
	CountStampsSince(ctx context.Context, since time.Time, createdBy *uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a stats repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CountActivatedCodes(ctx context.Context, redeemedBy *uuid.UUID) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.LoyaltyCode{}).
		Where("redeemed = ?", true)
	if redeemedBy != nil {
		query = query.Where("redeemed_by = ?", *redeemedBy)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) CountStampsSince(ctx context.Context, since time.Time, createdBy *uuid.UUID) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.LoyaltyStamp{}).
		Where("created_at >= ?", since.UTC())
	if createdBy != nil {
		query = query.Where("created_by = ?", *createdBy)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
