package loyalty

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stampcard-backend/pkg/db"
	"github.com/angelmondragon/stampcard-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stampcard-backend/pkg/db/models"
	"github.com/angelmondragon/stampcard-backend/pkg/enums"
	"github.com/angelmondragon/stampcard-backend/pkg/outbox"
)

type fixture struct {
	client     *db.Client
	repo       Repository
	ledger     Ledger
	redemption Redemption
	issuer     Issuer
	now        time.Time
}

func newFixture(t *testing.T, settings Settings) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	f := &fixture{client: client, repo: repo, now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	var err error
	f.ledger, err = NewLedger(LedgerParams{DB: client, Repo: repo, Outbox: emitter, Settings: settings, Clock: clock})
	require.NoError(t, err)
	f.redemption, err = NewRedemption(RedemptionParams{DB: client, Repo: repo, Outbox: emitter, Settings: settings, Clock: clock})
	require.NoError(t, err)
	f.issuer, err = NewIssuer(IssuerParams{DB: client, Repo: repo, Outbox: emitter, Settings: settings, Clock: clock})
	require.NoError(t, err)
	return f
}

func (f *fixture) user(t *testing.T, username string, role enums.Role) Actor {
	t.Helper()
	user := models.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: "x",
		Role:         role,
		CreatedAt:    f.now,
		UpdatedAt:    f.now,
	}
	require.NoError(t, f.client.DB().Create(&user).Error)
	return Actor{UserID: user.ID, Username: username, Role: role}
}

func (f *fixture) setStamps(t *testing.T, userID uuid.UUID, stamps int) {
	t.Helper()
	_, err := f.repo.EnsureProfile(context.Background(), userID)
	require.NoError(t, err)
	require.NoError(t, f.repo.UpdateStamps(context.Background(), userID, stamps, f.now))
}

func (f *fixture) insertCode(t *testing.T, owner uuid.UUID, value string, createdAt time.Time, ttl time.Duration) *models.LoyaltyCode {
	t.Helper()
	code := &models.LoyaltyCode{
		UserID:    owner,
		Code:      value,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(ttl),
	}
	require.NoError(t, f.repo.InsertCode(context.Background(), code))
	return code
}

func (f *fixture) reloadCode(t *testing.T, id uuid.UUID) models.LoyaltyCode {
	t.Helper()
	var code models.LoyaltyCode
	require.NoError(t, f.client.DB().First(&code, "id = ?", id).Error)
	return code
}

func (f *fixture) stampRows(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.client.DB().Model(&models.LoyaltyStamp{}).Where("user_id = ?", userID).Count(&count).Error)
	return count
}

func (f *fixture) outboxTypes(t *testing.T) []enums.OutboxEventType {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, f.client.DB().Order("created_at ASC").Find(&rows).Error)
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}
