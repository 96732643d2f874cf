package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stampcard-backend/pkg/enums"
)

// LoyaltyStamp is an immutable audit row, one per granted stamp.
type LoyaltyStamp struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID         `gorm:"column:user_id;type:uuid;not null"`
	Source    enums.StampSource `gorm:"column:source;type:text;not null"`
	CreatedAt time.Time         `gorm:"column:created_at"`
	CreatedBy *uuid.UUID        `gorm:"column:created_by;type:uuid"`
}

func (LoyaltyStamp) TableName() string { return "loyalty_stamps" }
