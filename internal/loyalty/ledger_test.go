package loyalty

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stampcard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stampcard-backend/pkg/errors"
	"github.com/angelmondragon/stampcard-backend/pkg/pagination"
)

func TestAddStampsClampsToMax(t *testing.T) {
	f := newFixture(t, DefaultSettings())
	staff := f.user(t, "barista", enums.RoleStaff)
	customer := f.user(t, "anna", enums.RoleCustomer)

	res, err := f.ledger.AddStamps(context.Background(), AddStampsInput{Actor: staff, UserID: customer.UserID, Count: 10})
	require.NoError(t, err)
	require.Equal(t, 10, res.Requested)
	require.Equal(t, 6, res.Applied)
	require.Equal(t, 6, res.StampsTotal)
	require.EqualValues(t, 6, f.stampRows(t, customer.UserID))

	status, err := f.ledger.Status(context.Background(), customer, customer.UserID)
	require.NoError(t, err)
	require.Equal(t, 6, status.Stamps)
	require.Equal(t, 6, status.MaxStamps)
	require.Equal(t, []enums.OutboxEventType{enums.EventLoyaltyStampsCredited}, f.outboxTypes(t))
}

func TestAddStampsAtMaxFailsWithoutWrites(t *testing.T) {
	f := newFixture(t, DefaultSettings())
	staff := f.user(t, "barista", enums.RoleStaff)
	customer := f.user(t, "anna", enums.RoleCustomer)
	f.setStamps(t, customer.UserID, 6)

	_, err := f.ledger.AddStamps(context.Background(), AddStampsInput{Actor: staff, UserID: customer.UserID, Count: 1})
	require.ErrorIs(t, err, ErrLimitReached)
	require.Equal(t, ReasonLimitReached, ReasonOf(err))
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
	require.EqualValues(t, 0, f.stampRows(t, customer.UserID))
	require.Empty(t, f.outboxTypes(t))
}

func TestAddStampsBoundsHoldAcrossSequence(t *testing.T) {
	settings := DefaultSettings()
	settings.MaxStamps = 4
	f := newFixture(t, settings)
	staff := f.user(t, "barista", enums.RoleStaff)
	customer := f.user(t, "anna", enums.RoleCustomer)

	for _, count := range []int{1, 2, 3, 1, 5} {
		_, err := f.ledger.AddStamps(context.Background(), AddStampsInput{Actor: staff, UserID: customer.UserID, Count: count})
		if err != nil {
			require.ErrorIs(t, err, ErrLimitReached)
		}
		status, err := f.ledger.Status(context.Background(), staff, customer.UserID)
		require.NoError(t, err)
		require.GreaterOrEqual(t, status.Stamps, 0)
		require.LessOrEqual(t, status.Stamps, settings.MaxStamps)
	}
	require.EqualValues(t, 4, f.stampRows(t, customer.UserID))
}

func TestAddStampsRejectsBadInput(t *testing.T) {
	f := newFixture(t, DefaultSettings())
	staff := f.user(t, "barista", enums.RoleStaff)
	customer := f.user(t, "anna", enums.RoleCustomer)

	tests := []struct {
		name   string
		input  AddStampsInput
		reason Reason
	}{
		{name: "customer actor", input: AddStampsInput{Actor: customer, UserID: customer.UserID, Count: 1}, reason: ReasonPermissionDenied},
		{name: "zero amount", input: AddStampsInput{Actor: staff, UserID: customer.UserID, Count: 0}, reason: ReasonValidation},
		{name: "negative amount", input: AddStampsInput{Actor: staff, UserID: customer.UserID, Count: -2}, reason: ReasonValidation},
		{name: "missing user", input: AddStampsInput{Actor: staff, UserID: uuid.Nil, Count: 1}, reason: ReasonValidation},
		{name: "unknown user", input: AddStampsInput{Actor: staff, UserID: uuid.New(), Count: 1}, reason: ReasonNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.AddStamps(context.Background(), tt.input)
			require.Error(t, err)
			require.Equal(t, tt.reason, ReasonOf(err))
		})
	}
}

func TestResetKeepsHistory(t *testing.T) {
	f := newFixture(t, DefaultSettings())
	staff := f.user(t, "barista", enums.RoleStaff)
	customer := f.user(t, "anna", enums.RoleCustomer)
	_, err := f.ledger.AddStamps(context.Background(), AddStampsInput{Actor: staff, UserID: customer.UserID, Count: 3})
	require.NoError(t, err)

	res, err := f.ledger.Reset(context.Background(), customer, customer.UserID)
	require.NoError(t, err)
	require.Equal(t, 3, res.Previous)
	require.Equal(t, 0, res.Stamps)

	status, err := f.ledger.Status(context.Background(), customer, customer.UserID)
	require.NoError(t, err)
	require.Equal(t, 0, status.Stamps)
	require.EqualValues(t, 3, f.stampRows(t, customer.UserID))

	again, err := f.ledger.Reset(context.Background(), staff, customer.UserID)
	require.NoError(t, err)
	require.Equal(t, 0, again.Previous)
}

func TestResetOtherProfileRequiresCapability(t *testing.T) {
	f := newFixture(t, DefaultSettings())
	anna := f.user(t, "anna", enums.RoleCustomer)
	boris := f.user(t, "boris", enums.RoleCustomer)

	_, err := f.ledger.Reset(context.Background(), anna, boris.UserID)
	require.ErrorIs(t, err, ErrPermissionDenied)
	require.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	_, err = f.ledger.Status(context.Background(), anna, boris.UserID)
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestGetOrCreateProfileIsIdempotent(t *testing.T) {
	f := newFixture(t, DefaultSettings())
	customer := f.user(t, "anna", enums.RoleCustomer)

	first, err := f.ledger.GetOrCreateProfile(context.Background(), customer.UserID)
	require.NoError(t, err)
	require.Equal(t, 0, first.Stamps)
	second, err := f.ledger.GetOrCreateProfile(context.Background(), customer.UserID)
	require.NoError(t, err)
	require.Equal(t, first.UserID, second.UserID)

	_, err = f.ledger.GetOrCreateProfile(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHistoryPagesNewestFirst(t *testing.T) {
	f := newFixture(t, DefaultSettings())
	staff := f.user(t, "barista", enums.RoleStaff)
	customer := f.user(t, "anna", enums.RoleCustomer)
	for i := 0; i < 5; i++ {
		f.now = f.now.Add(time.Minute)
		_, err := f.ledger.AddStamps(context.Background(), AddStampsInput{Actor: staff, UserID: customer.UserID, Count: 1})
		require.NoError(t, err)
	}

	page, err := f.ledger.History(context.Background(), customer, customer.UserID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)
	require.True(t, page.Items[0].CreatedAt.After(page.Items[1].CreatedAt))
	require.Equal(t, enums.StampSourceManual, page.Items[0].Source)

	seen := len(page.Items)
	cursor := page.NextCursor
	for cursor != "" {
		next, err := f.ledger.History(context.Background(), customer, customer.UserID, pagination.Params{Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		seen += len(next.Items)
		cursor = next.NextCursor
	}
	require.Equal(t, 5, seen)

	_, err = f.ledger.History(context.Background(), customer, customer.UserID, pagination.Params{Cursor: "%%%"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestSettingsValidation(t *testing.T) {
	settings := DefaultSettings()
	settings.MaxStamps = 0
	_, err := NewLedger(LedgerParams{DB: nopTx{}, Repo: NewRepository(nil), Settings: settings})
	require.Error(t, err)

	settings = DefaultSettings()
	settings.CodeAlphabet = "7"
	_, err = NewIssuer(IssuerParams{DB: nopTx{}, Repo: NewRepository(nil), Settings: settings})
	require.Error(t, err)

	_, err = NewRedemption(RedemptionParams{Repo: NewRepository(nil), Settings: DefaultSettings()})
	require.Error(t, err)
}
