package loyalty

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// openDryRunPostgres renders statements with the Postgres dialect without a server.
func openDryRunPostgres(t *testing.T) (*gorm.DB, *[]string) {
	t.Helper()
	conn, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=stampcard dbname=stampcard sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)

	statements := &[]string{}
	require.NoError(t, conn.Callback().Query().After("gorm:query").Register("test:capture_sql", func(tx *gorm.DB) {
		*statements = append(*statements, tx.Statement.SQL.String())
	}))
	return conn, statements
}

func TestLockCodeSelectsForUpdate(t *testing.T) {
	conn, statements := openDryRunPostgres(t)
	repo := NewRepository(conn)

	_, err := repo.LockCode(context.Background(), "123456")
	require.NoError(t, err)

	require.Len(t, *statements, 1)
	sql := (*statements)[0]
	require.Contains(t, sql, `FROM "loyalty_codes"`)
	require.Contains(t, sql, "ORDER BY created_at DESC")
	require.True(t, strings.HasSuffix(strings.TrimSpace(sql), "FOR UPDATE"), sql)
}

func TestLockProfileSelectsForUpdate(t *testing.T) {
	conn, statements := openDryRunPostgres(t)
	repo := NewRepository(conn)

	_, err := repo.LockProfile(context.Background(), uuid.New())
	require.NoError(t, err)

	require.Len(t, *statements, 1)
	sql := (*statements)[0]
	require.Contains(t, sql, `FROM "loyalty_profiles"`)
	require.True(t, strings.HasSuffix(strings.TrimSpace(sql), "FOR UPDATE"), sql)
}
