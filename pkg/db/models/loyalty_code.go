package models

import (
	"time"

	"github.com/google/uuid"
)

// LoyaltyCode is a one-time redemption token issued to a customer.
type LoyaltyCode struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     uuid.UUID  `gorm:"column:user_id;type:uuid;not null"`
	Code       string     `gorm:"column:code;type:varchar(10);not null"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
	ExpiresAt  time.Time  `gorm:"column:expires_at;not null"`
	Redeemed   bool       `gorm:"column:redeemed;not null;default:false"`
	RedeemedAt *time.Time `gorm:"column:redeemed_at"`
	RedeemedBy *uuid.UUID `gorm:"column:redeemed_by;type:uuid"`
}

func (LoyaltyCode) TableName() string { return "loyalty_codes" }

// IsExpired evaluates expiry against now; expiry is never stored. A code is
// still valid at the exact expires_at instant.
func (c LoyaltyCode) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// IsActive reports whether the code can still be redeemed.
func (c LoyaltyCode) IsActive(now time.Time) bool {
	return !c.Redeemed && !c.IsExpired(now)
}
