// Package dbtest opens in-memory sqlite databases carrying the stampcard schema.
package dbtest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/stampcard-backend/pkg/db"
)

var schema = []string{
	`PRAGMA foreign_keys = ON`,
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'customer',
		name TEXT NOT NULL DEFAULT '',
		phone TEXT,
		last_login_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX users_username_lower_key ON users (lower(username))`,
	`CREATE TABLE loyalty_profiles (
		user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		stamps INTEGER NOT NULL DEFAULT 0 CHECK (stamps >= 0),
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE loyalty_codes (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		code TEXT NOT NULL,
		created_at DATETIME,
		expires_at DATETIME NOT NULL,
		redeemed BOOLEAN NOT NULL DEFAULT 0,
		redeemed_at DATETIME,
		redeemed_by TEXT REFERENCES users(id) ON DELETE SET NULL
	)`,
	`CREATE INDEX loyalty_codes_code_idx ON loyalty_codes (code)`,
	`CREATE TABLE loyalty_stamps (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		source TEXT NOT NULL,
		created_at DATETIME,
		created_by TEXT REFERENCES users(id) ON DELETE SET NULL
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
}

// Open returns a client over a private in-memory database. A single pooled
// connection makes concurrent transactions run one at a time, which stands in
// for the row locks sqlite does not have.
func Open(t testing.TB) *db.Client {
	t.Helper()
	dsn := "file:" + sanitize(t.Name()) + "?mode=memory&cache=shared&_foreign_keys=1"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return db.Wrap(conn)
}

func sanitize(name string) string {
	out := []rune(name)
	for i, r := range out {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
