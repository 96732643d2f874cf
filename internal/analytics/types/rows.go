package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// LoyaltyEventRow mirrors the loyalty_events BigQuery schema.
type LoyaltyEventRow struct {
	EventID     string             `bigquery:"event_id"`
	EventType   string             `bigquery:"event_type"`
	OccurredAt  time.Time          `bigquery:"occurred_at"`
	UserID      string             `bigquery:"user_id"`
	ActorID     *string            `bigquery:"actor_id"`
	Source      *string            `bigquery:"source"`
	StampsDelta *int64             `bigquery:"stamps_delta"`
	StampsTotal *int64             `bigquery:"stamps_total"`
	Payload     cbigquery.NullJSON `bigquery:"payload"`
}

// Save implements bigquery.ValueSaver. The event id doubles as the insert id
// so streaming retries do not duplicate rows.
func (r *LoyaltyEventRow) Save() (map[string]cbigquery.Value, string, error) {
	values := map[string]cbigquery.Value{
		"event_id":     r.EventID,
		"event_type":   r.EventType,
		"occurred_at":  r.OccurredAt.UTC(),
		"user_id":      r.UserID,
		"actor_id":     nil,
		"source":       nil,
		"stamps_delta": nil,
		"stamps_total": nil,
		"payload":      nil,
	}
	if r.ActorID != nil {
		values["actor_id"] = *r.ActorID
	}
	if r.Source != nil {
		values["source"] = *r.Source
	}
	if r.StampsDelta != nil {
		values["stamps_delta"] = *r.StampsDelta
	}
	if r.StampsTotal != nil {
		values["stamps_total"] = *r.StampsTotal
	}
	if r.Payload.Valid {
		values["payload"] = r.Payload.JSONVal
	}
	return values, r.EventID, nil
}
