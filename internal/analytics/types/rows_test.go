package types

import (
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/require"
)

func TestLoyaltyEventRowSaveUsesEventIDAsInsertID(t *testing.T) {
	source := "code_redeem"
	delta := int64(1)
	row := &LoyaltyEventRow{
		EventID:     "evt-1",
		EventType:   "loyalty_stamps_credited",
		OccurredAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("MSK", 3*3600)),
		UserID:      "user-1",
		Source:      &source,
		StampsDelta: &delta,
		Payload:     cbigquery.NullJSON{Valid: true, JSONVal: `{"applied":1}`},
	}

	values, insertID, err := row.Save()
	require.NoError(t, err)
	require.Equal(t, "evt-1", insertID)
	require.Equal(t, "code_redeem", values["source"])
	require.Equal(t, int64(1), values["stamps_delta"])
	require.Nil(t, values["actor_id"])
	require.Nil(t, values["stamps_total"])
	require.Equal(t, `{"applied":1}`, values["payload"])
	require.Equal(t, time.UTC, values["occurred_at"].(time.Time).Location())
}
