package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/stampcard-backend/internal/analytics/types"
	"github.com/angelmondragon/stampcard-backend/pkg/enums"
	"github.com/angelmondragon/stampcard-backend/pkg/logger"
	"github.com/angelmondragon/stampcard-backend/pkg/outbox/registry"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers BigQuery rows produced by analytics handlers.
type Writer interface {
	InsertLoyaltyEvent(ctx context.Context, row types.LoyaltyEventRow) error
}

// Handler receives an envelope plus a decoded event payload.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope, payload any) error
}

// Router dispatches analytics envelopes to the configured handler per event type.
// Payloads are decoded through the versioned loyalty decoders.
type Router struct {
	handlers map[enums.OutboxEventType]Handler
	decoders *registry.DecoderRegistry
	logg     *logger.Logger
}

// NewRouter wires the default row handlers and allows overrides for specific events.
func NewRouter(writer Writer, logg *logger.Logger, overrides map[enums.OutboxEventType]Handler) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	handlers := map[enums.OutboxEventType]Handler{
		enums.EventLoyaltyCodeIssued:     newRowHandler(writer, logg, codeIssuedRow),
		enums.EventLoyaltyCodeRedeemed:   newRowHandler(writer, logg, codeRedeemedRow),
		enums.EventLoyaltyCodeActivated:  newRowHandler(writer, logg, codeActivatedRow),
		enums.EventLoyaltyStampsCredited: newRowHandler(writer, logg, stampsCreditedRow),
		enums.EventLoyaltyStampsReset:    newRowHandler(writer, logg, stampsResetRow),
	}

	for event, custom := range overrides {
		if _, ok := handlers[event]; !ok || custom == nil {
			continue
		}
		handlers[event] = custom
	}

	return &Router{
		handlers: handlers,
		decoders: registry.NewLoyaltyDecoders(),
		logg:     logg,
	}, nil
}

// Handle dispatches the incoming envelope to the configured handler.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	handler, ok := r.handlers[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if !envelope.HasPayload() {
		return fmt.Errorf("empty payload for %s", envelope.EventType)
	}
	payload, err := r.decoders.Decode(envelope.EventType, envelope.Version, envelope.Payload)
	if err != nil {
		if errors.Is(err, registry.ErrDecoderNotRegistered) {
			return fmt.Errorf("%w: %v", ErrUnsupportedEventType, err)
		}
		return fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}

	return handler.Handle(ctx, envelope, payload)
}
