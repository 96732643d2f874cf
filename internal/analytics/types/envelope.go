package types

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/angelmondragon/stampcard-backend/pkg/enums"
	"github.com/angelmondragon/stampcard-backend/pkg/outbox"
)

// Envelope is a loyalty domain event as seen by analytics consumers.
type Envelope struct {
	EventID       string                    `json:"event_id"`
	Version       int                       `json:"version"`
	EventType     enums.OutboxEventType     `json:"event_type"`
	AggregateType enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID   string                    `json:"aggregate_id"`
	OccurredAt    time.Time                 `json:"occurred_at"`
	Actor         *outbox.ActorRef          `json:"actor,omitempty"`
	Payload       json.RawMessage           `json:"payload"`
}

// HasPayload reports whether the envelope carries a non-null data section.
func (e Envelope) HasPayload() bool {
	trimmed := bytes.TrimSpace(e.Payload)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
