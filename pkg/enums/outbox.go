package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateLoyaltyProfile OutboxAggregateType = "loyalty_profile"
	AggregateLoyaltyCode    OutboxAggregateType = "loyalty_code"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateLoyaltyProfile,
	AggregateLoyaltyCode,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventLoyaltyCodeIssued     OutboxEventType = "loyalty_code_issued"
	EventLoyaltyCodeRedeemed   OutboxEventType = "loyalty_code_redeemed"
	EventLoyaltyCodeActivated  OutboxEventType = "loyalty_code_activated"
	EventLoyaltyStampsCredited OutboxEventType = "loyalty_stamps_credited"
	EventLoyaltyStampsReset    OutboxEventType = "loyalty_stamps_reset"
)

var validOutboxEventTypes = []OutboxEventType{
	EventLoyaltyCodeIssued,
	EventLoyaltyCodeRedeemed,
	EventLoyaltyCodeActivated,
	EventLoyaltyStampsCredited,
	EventLoyaltyStampsReset,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
