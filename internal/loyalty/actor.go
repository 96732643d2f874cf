package loyalty

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stampcard-backend/pkg/enums"
	"github.com/angelmondragon/stampcard-backend/pkg/outbox"
)

// Actor is the authenticated principal invoking a loyalty operation.
type Actor struct {
	UserID   uuid.UUID
	Username string
	Role     enums.Role
}

func (a Actor) can(c enums.Capability) bool {
	return a.Role.Can(c)
}

func (a Actor) ref() *outbox.ActorRef {
	if a.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: a.UserID, Username: a.Username, Role: a.Role.String()}
}

func (a Actor) idPtr() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Emitter queues domain events inside the caller's transaction.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

func emit(ctx context.Context, emitter Emitter, tx *gorm.DB, event outbox.DomainEvent) error {
	if emitter == nil {
		return nil
	}
	return emitter.Emit(ctx, tx, event)
}
