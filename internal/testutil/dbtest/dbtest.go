// Package dbtest opens in-memory SQLite databases carrying the hireboard schema.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

// Schema mirrors the postgres migrations with SQLite column types.
var Schema = []string{
	`CREATE TABLE purchases (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		external_session_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		pack_id TEXT,
		add_on_id TEXT,
		status TEXT NOT NULL,
		job_post_credits INTEGER NOT NULL DEFAULT 0,
		feature_credits INTEGER NOT NULL DEFAULT 0,
		social_graphic_credits INTEGER NOT NULL DEFAULT 0,
		repost_credits INTEGER NOT NULL DEFAULT 0,
		validity_days INTEGER NOT NULL DEFAULT 0,
		total_amount BIGINT NOT NULL DEFAULT 0,
		currency TEXT NOT NULL,
		metadata TEXT,
		expires_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_purchases_external_session_id ON purchases(external_session_id)`,
	`CREATE TABLE credit_units (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		credit_type TEXT NOT NULL,
		purchase_id BIGINT NOT NULL,
		used BOOLEAN NOT NULL DEFAULT FALSE,
		used_against_job_id BIGINT,
		used_at DATETIME,
		issued_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	)`,
	`CREATE INDEX ix_credit_units_eligible ON credit_units(user_id, credit_type, used, expires_at)`,
	`CREATE TABLE user_add_on_grants (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		add_on_id TEXT NOT NULL,
		purchase_id BIGINT NOT NULL,
		effects TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_user_add_on_grants_purchase_id ON user_add_on_grants(purchase_id)`,
	`CREATE TABLE add_on_applications (
		id BIGINT PRIMARY KEY,
		grant_id BIGINT NOT NULL,
		job_id BIGINT NOT NULL,
		applied_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_add_on_applications_grant_job ON add_on_applications(grant_id, job_id)`,
	`CREATE TABLE upsell_purchases (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		job_id BIGINT NOT NULL,
		external_session_id TEXT NOT NULL,
		social_push BOOLEAN NOT NULL DEFAULT FALSE,
		placement_bump BOOLEAN NOT NULL DEFAULT FALSE,
		total_amount BIGINT NOT NULL DEFAULT 0,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		paid_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_upsell_purchases_external_session_id ON upsell_purchases(external_session_id)`,
	`CREATE TABLE jobs (
		id BIGINT PRIMARY KEY,
		owner_id BIGINT NOT NULL,
		title TEXT NOT NULL,
		status TEXT NOT NULL,
		source TEXT NOT NULL,
		expires_at DATETIME,
		boosted BOOLEAN NOT NULL DEFAULT FALSE,
		pinned BOOLEAN NOT NULL DEFAULT FALSE,
		social_push BOOLEAN NOT NULL DEFAULT FALSE,
		featured BOOLEAN NOT NULL DEFAULT FALSE,
		featured_at DATETIME,
		repost_count INTEGER NOT NULL DEFAULT 0,
		published_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE employer_subscriptions (
		user_id BIGINT PRIMARY KEY,
		plan TEXT NOT NULL,
		status TEXT NOT NULL,
		current_period_end DATETIME
	)`,
	`CREATE TABLE operator_roles (
		user_id BIGINT PRIMARY KEY,
		role TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE payment_events (
		id BIGINT PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		session_id TEXT,
		payload TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		processed_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_payment_events_provider_event_id ON payment_events(provider, provider_event_id)`,
	`CREATE TABLE audit_logs (
		id BIGINT PRIMARY KEY,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL
	)`,
}

// Open returns a fresh in-memory database with the schema applied. The pool
// is pinned to one connection so concurrent callers queue on SQLite's single
// writer instead of failing with SQLITE_LOCKED.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range Schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}
