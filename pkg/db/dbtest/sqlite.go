// Package dbtest opens throwaway SQLite databases carrying the dispatch schema.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const schema = `
CREATE TABLE users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  first_name TEXT NOT NULL DEFAULT '',
  last_name TEXT NOT NULL DEFAULT '',
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE leads (
  id TEXT PRIMARY KEY,
  full_name TEXT NOT NULL,
  owner_user_id TEXT,
  created_at DATETIME
);
CREATE TABLE students (
  id TEXT PRIMARY KEY,
  full_name TEXT NOT NULL,
  lead_id TEXT,
  created_at DATETIME
);
CREATE TABLE notifications (
  id TEXT PRIMARY KEY,
  kind TEXT NOT NULL,
  lead_id TEXT,
  student_id TEXT,
  created_at DATETIME
);
CREATE TABLE outbound_messages (
  id TEXT PRIMARY KEY,
  channel TEXT NOT NULL,
  to_address TEXT,
  template_key TEXT NOT NULL,
  body TEXT NOT NULL,
  priority TEXT NOT NULL DEFAULT 'MEDIUM',
  status TEXT NOT NULL DEFAULT 'QUEUED',
  lead_id TEXT,
  student_id TEXT,
  notification_id TEXT,
  lease_id TEXT,
  lease_expires_at DATETIME,
  retry_count INTEGER NOT NULL DEFAULT 0,
  next_attempt_at DATETIME,
  dispatched_at DATETIME,
  sent_at DATETIME,
  error TEXT,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE dispatch_run_logs (
  id TEXT PRIMARY KEY,
  mode TEXT NOT NULL,
  requested_by TEXT NOT NULL,
  processed INTEGER NOT NULL,
  sent INTEGER NOT NULL,
  failed INTEGER NOT NULL,
  skipped INTEGER NOT NULL,
  rate_limited INTEGER NOT NULL,
  remaining_estimate INTEGER NOT NULL,
  breakdown_by_priority TEXT NOT NULL,
  breakdown_by_owner TEXT NOT NULL,
  warnings TEXT NOT NULL,
  channel_configured INTEGER NOT NULL,
  started_at DATETIME NOT NULL,
  finished_at DATETIME NOT NULL,
  created_at DATETIME
);`

// Open returns an isolated in-memory database with the dispatch tables created.
// A single connection is kept so every statement sees the same database.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.Exec(schema).Error)
	return conn
}
