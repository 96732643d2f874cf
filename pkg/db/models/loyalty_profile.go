package models

import (
	"time"

	"github.com/google/uuid"
)

// LoyaltyProfile holds the running stamp balance for one user.
type LoyaltyProfile struct {
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	Stamps    int       `gorm:"column:stamps;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (LoyaltyProfile) TableName() string { return "loyalty_profiles" }
