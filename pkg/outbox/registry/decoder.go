package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/stampcard-backend/pkg/enums"
	"github.com/angelmondragon/stampcard-backend/pkg/outbox"
	"github.com/angelmondragon/stampcard-backend/pkg/outbox/payloads"
)

// ErrDecoderNotRegistered is returned for event type and version pairs with no decoder.
var ErrDecoderNotRegistered = errors.New("decoder not registered")

// Decoder turns the data section of an envelope into a typed payload.
type Decoder func(data json.RawMessage) (any, error)

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry resolves payload decoders by event type and envelope version.
// Consumers use it so an older envelope keeps decoding after a payload changes shape.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	decoders map[decoderKey]Decoder
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: make(map[decoderKey]Decoder)}
}

// NewLoyaltyDecoders registers the current-version decoder of every loyalty event.
func NewLoyaltyDecoders() *DecoderRegistry {
	reg := NewDecoderRegistry()
	v := outbox.CurrentEnvelopeVersion
	reg.Register(enums.EventLoyaltyCodeIssued, v, JSONDecoder[payloads.CodeIssuedEvent]())
	reg.Register(enums.EventLoyaltyCodeRedeemed, v, JSONDecoder[payloads.CodeRedeemedEvent]())
	reg.Register(enums.EventLoyaltyCodeActivated, v, JSONDecoder[payloads.CodeActivatedEvent]())
	reg.Register(enums.EventLoyaltyStampsCredited, v, JSONDecoder[payloads.StampsCreditedEvent]())
	reg.Register(enums.EventLoyaltyStampsReset, v, JSONDecoder[payloads.StampsResetEvent]())
	return reg
}

// JSONDecoder unmarshals into a fresh *T.
func JSONDecoder[T any]() Decoder {
	return func(data json.RawMessage) (any, error) {
		out := new(T)
		if err := json.Unmarshal(data, out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder Decoder) {
	if decoder == nil {
		return
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.decoders[decoderKey{eventType: eventType, version: normalizeVersion(version)}] = decoder
}

// Supports reports whether any version of eventType has a decoder.
func (r *DecoderRegistry) Supports(eventType enums.OutboxEventType) bool {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	for key := range r.decoders {
		if key.eventType == eventType {
			return true
		}
	}
	return false
}

// Decode runs the decoder for eventType at version. A missing version means
// the envelope predates versioning and is read as the current one.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	version = normalizeVersion(version)
	r.mtx.RLock()
	decoder, ok := r.decoders[decoderKey{eventType: eventType, version: version}]
	r.mtx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s@v%d", ErrDecoderNotRegistered, eventType, version)
	}
	return decoder(data)
}

func normalizeVersion(version int) int {
	if version <= 0 {
		return outbox.CurrentEnvelopeVersion
	}
	return version
}
