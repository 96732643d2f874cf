package router

import (
	"context"
	"fmt"

	"github.com/angelmondragon/stampcard-backend/internal/analytics/types"
	"github.com/angelmondragon/stampcard-backend/internal/analytics/writer"
	"github.com/angelmondragon/stampcard-backend/pkg/logger"
	"github.com/angelmondragon/stampcard-backend/pkg/outbox/payloads"
)

type rowBuilder func(envelope types.Envelope, payload any) (types.LoyaltyEventRow, error)

type rowHandler struct {
	writer Writer
	logg   *logger.Logger
	build  rowBuilder
}

func newRowHandler(w Writer, logg *logger.Logger, build rowBuilder) Handler {
	return &rowHandler{writer: w, logg: logg, build: build}
}

func (h *rowHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	row, err := h.build(envelope, payload)
	if err != nil {
		return err
	}
	encoded, err := writer.EncodeJSON(envelope.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	row.EventID = envelope.EventID
	row.EventType = string(envelope.EventType)
	row.OccurredAt = envelope.OccurredAt.UTC()
	row.Payload = encoded
	if row.ActorID == nil && envelope.Actor != nil {
		row.ActorID = uuidPtr(&envelope.Actor.UserID)
	}

	if err := h.writer.InsertLoyaltyEvent(ctx, row); err != nil {
		return err
	}
	h.logg.Debug(h.logg.WithField(ctx, "user_id", row.UserID), "loyalty event row written")
	return nil
}

func payloadTypeError(want string, got any) error {
	return fmt.Errorf("expected %s payload, got %T", want, got)
}

func codeIssuedRow(_ types.Envelope, payload any) (types.LoyaltyEventRow, error) {
	event, ok := payload.(*payloads.CodeIssuedEvent)
	if !ok {
		return types.LoyaltyEventRow{}, payloadTypeError("code issued", payload)
	}
	return types.LoyaltyEventRow{UserID: event.UserID.String()}, nil
}

func codeRedeemedRow(_ types.Envelope, payload any) (types.LoyaltyEventRow, error) {
	event, ok := payload.(*payloads.CodeRedeemedEvent)
	if !ok {
		return types.LoyaltyEventRow{}, payloadTypeError("code redeemed", payload)
	}
	return types.LoyaltyEventRow{
		UserID:      event.UserID.String(),
		ActorID:     uuidPtr(event.RedeemedBy),
		StampsTotal: int64Ptr(int64(event.StampsTotal)),
	}, nil
}

func codeActivatedRow(_ types.Envelope, payload any) (types.LoyaltyEventRow, error) {
	event, ok := payload.(*payloads.CodeActivatedEvent)
	if !ok {
		return types.LoyaltyEventRow{}, payloadTypeError("code activated", payload)
	}
	return types.LoyaltyEventRow{
		UserID:  event.UserID.String(),
		ActorID: uuidPtr(event.ActivatedBy),
	}, nil
}

// stampsCreditedRow records the clamped amount, not the requested one.
func stampsCreditedRow(_ types.Envelope, payload any) (types.LoyaltyEventRow, error) {
	event, ok := payload.(*payloads.StampsCreditedEvent)
	if !ok {
		return types.LoyaltyEventRow{}, payloadTypeError("stamps credited", payload)
	}
	return types.LoyaltyEventRow{
		UserID:      event.UserID.String(),
		ActorID:     uuidPtr(event.GrantedBy),
		Source:      stringPtr(event.Source.String()),
		StampsDelta: int64Ptr(int64(event.Applied)),
		StampsTotal: int64Ptr(int64(event.StampsTotal)),
	}, nil
}

func stampsResetRow(_ types.Envelope, payload any) (types.LoyaltyEventRow, error) {
	event, ok := payload.(*payloads.StampsResetEvent)
	if !ok {
		return types.LoyaltyEventRow{}, payloadTypeError("stamps reset", payload)
	}
	return types.LoyaltyEventRow{
		UserID:      event.UserID.String(),
		ActorID:     uuidPtr(event.ResetBy),
		StampsDelta: int64Ptr(-int64(event.Previous)),
		StampsTotal: int64Ptr(0),
	}, nil
}
