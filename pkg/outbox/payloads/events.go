package payloads

import (
	"time"

	"github.com/angelmondragon/stampcard-backend/pkg/enums"
	"github.com/google/uuid"
)

// CodeIssuedEvent records a freshly generated redemption code.
type CodeIssuedEvent struct {
	CodeID    uuid.UUID `json:"code_id"`
	UserID    uuid.UUID `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CodeRedeemedEvent is emitted when a code is consumed together with a stamp credit.
type CodeRedeemedEvent struct {
	CodeID      uuid.UUID  `json:"code_id"`
	UserID      uuid.UUID  `json:"user_id"`
	RedeemedBy  *uuid.UUID `json:"redeemed_by,omitempty"`
	RedeemedAt  time.Time  `json:"redeemed_at"`
	StampsTotal int        `json:"stamps_total"`
}

// CodeActivatedEvent is emitted when a code is marked redeemed without any credit.
type CodeActivatedEvent struct {
	CodeID      uuid.UUID  `json:"code_id"`
	UserID      uuid.UUID  `json:"user_id"`
	ActivatedBy *uuid.UUID `json:"activated_by,omitempty"`
	ActivatedAt time.Time  `json:"activated_at"`
}

// StampsCreditedEvent describes one ledger credit, whatever its source.
type StampsCreditedEvent struct {
	UserID      uuid.UUID         `json:"user_id"`
	GrantedBy   *uuid.UUID        `json:"granted_by,omitempty"`
	Source      enums.StampSource `json:"source"`
	Requested   int               `json:"requested"`
	Applied     int               `json:"applied"`
	StampsTotal int               `json:"stamps_total"`
}

// StampsResetEvent records a profile being zeroed.
type StampsResetEvent struct {
	UserID   uuid.UUID  `json:"user_id"`
	ResetBy  *uuid.UUID `json:"reset_by,omitempty"`
	Previous int        `json:"previous"`
}
