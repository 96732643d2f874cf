package writer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/angelmondragon/stampcard-backend/internal/analytics/types"
	pkgbigquery "github.com/angelmondragon/stampcard-backend/pkg/bigquery"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestNewWriterValidation(t *testing.T) {
	_, err := New(nil, Config{LoyaltyTable: "loyalty_events"})
	require.Error(t, err)

	_, err = New(&pkgbigquery.Client{}, Config{LoyaltyTable: " "})
	require.Error(t, err)
}

func TestEncodeJSON(t *testing.T) {
	nj, err := EncodeJSON(map[string]any{"foo": "bar"})
	require.NoError(t, err)
	require.True(t, nj.Valid)

	nj, err = EncodeJSON(nil)
	require.NoError(t, err)
	require.False(t, nj.Valid)

	raw := json.RawMessage(`{"foo":"baz"}`)
	nj, err = EncodeJSON(raw)
	require.NoError(t, err)
	require.Equal(t, string(raw), nj.JSONVal)

	nj, err = EncodeJSON(json.RawMessage(nil))
	require.NoError(t, err)
	require.False(t, nj.Valid)
}

func TestWriterRetriesOnTransientError(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	fake.responses = []error{
		&googleapi.Error{Code: http.StatusServiceUnavailable},
		nil,
	}

	require.NoError(t, writer.InsertLoyaltyEvent(context.Background(), types.LoyaltyEventRow{EventID: "1"}))
	require.Len(t, fake.calls, 2)
	require.Equal(t, "loyalty_events", fake.calls[1].table)
	require.Empty(t, writer.buffer)
}

func TestWriterDoesNotRetryPermanentError(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	fake.responses = []error{&googleapi.Error{Code: http.StatusBadRequest}}

	err := writer.InsertLoyaltyEvent(context.Background(), types.LoyaltyEventRow{EventID: "1"})
	require.Error(t, err)
	require.Len(t, fake.calls, 1)
	require.Empty(t, writer.buffer)
}

func TestWriterGivesUpAfterMaxAttempts(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	unavailable := status.Error(codes.Unavailable, "try later")
	fake.responses = []error{unavailable, unavailable, unavailable, unavailable}

	err := writer.InsertLoyaltyEvent(context.Background(), types.LoyaltyEventRow{EventID: "1"})
	require.Error(t, err)
	require.Len(t, fake.calls, defaultMaxAttempts)
}

func TestWriterBatching(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	writer.batchSize = 2

	require.NoError(t, writer.InsertLoyaltyEvent(context.Background(), types.LoyaltyEventRow{EventID: "1"}))
	require.Empty(t, fake.calls)

	require.NoError(t, writer.InsertLoyaltyEvent(context.Background(), types.LoyaltyEventRow{EventID: "2"}))
	require.Len(t, fake.calls, 1)
	require.Equal(t, 2, fake.calls[0].rowCount)
}

func TestWriterFlush(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	writer.batchSize = 10
	require.NoError(t, writer.InsertLoyaltyEvent(context.Background(), types.LoyaltyEventRow{EventID: "1"}))
	require.NoError(t, writer.Flush(context.Background()))
	require.Len(t, fake.calls, 1)
	require.Empty(t, writer.buffer)

	require.NoError(t, writer.Flush(context.Background()))
	require.Len(t, fake.calls, 1)
}

func TestIsRetryableBigQueryError(t *testing.T) {
	require.True(t, isRetryableBigQueryError(&googleapi.Error{Code: http.StatusTooManyRequests}))
	require.False(t, isRetryableBigQueryError(&googleapi.Error{Code: http.StatusForbidden}))
	require.True(t, isRetryableBigQueryError(status.Error(codes.ResourceExhausted, "quota")))
	require.False(t, isRetryableBigQueryError(status.Error(codes.InvalidArgument, "bad row")))
	require.False(t, isRetryableBigQueryError(errors.New("plain")))
	require.False(t, isRetryableBigQueryError(nil))
}

type insertCall struct {
	table    string
	rowCount int
}

type fakeInserter struct {
	responses []error
	calls     []insertCall
	index     int
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	f.calls = append(f.calls, insertCall{table: table, rowCount: len(rows)})
	var err error
	if f.index < len(f.responses) {
		err = f.responses[f.index]
	}
	f.index++
	return err
}

func newWriterWithFakeInserter(t *testing.T) (*BigQueryWriter, *fakeInserter) {
	t.Helper()
	writer, err := New(&pkgbigquery.Client{}, Config{
		LoyaltyTable: "loyalty_events",
		RetryPolicy: RetryPolicy{
			InitialBackoff: time.Millisecond,
			MaximumBackoff: 2 * time.Millisecond,
		},
	})
	require.NoError(t, err)

	fake := &fakeInserter{}
	writer.client = fake
	return writer, fake
}
