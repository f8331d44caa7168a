package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors the goose migrations for local runs and tests on
// SQLite. Money columns are TEXT so decimals round-trip exactly.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS trips (
		id TEXT PRIMARY KEY,
		facility_id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		client_kind TEXT NOT NULL DEFAULT 'managed',
		client_name TEXT NOT NULL DEFAULT '',
		pickup_at DATETIME NOT NULL,
		pickup_address TEXT NOT NULL DEFAULT '',
		destination_address TEXT NOT NULL DEFAULT '',
		pickup_county TEXT NULL,
		destination_county TEXT NULL,
		pickup_lat REAL NULL,
		pickup_lng REAL NULL,
		destination_lat REAL NULL,
		destination_lng REAL NULL,
		distance_miles TEXT NOT NULL,
		wheelchair TEXT NOT NULL DEFAULT 'none',
		round_trip BOOLEAN NOT NULL DEFAULT 0,
		additional_passengers INTEGER NOT NULL DEFAULT 0,
		client_weight REAL NULL,
		client_category TEXT NOT NULL DEFAULT 'facility',
		status TEXT NOT NULL DEFAULT 'pending',
		price TEXT NULL,
		price_breakdown TEXT NULL,
		priced_at DATETIME NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trips_facility_pickup ON trips (facility_id, pickup_at)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		facility_id TEXT NOT NULL,
		month TEXT NOT NULL,
		amount TEXT NOT NULL,
		method TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_date DATETIME NOT NULL,
		verification_date DATETIME NULL,
		check_sub_type TEXT NULL,
		trip_ids TEXT NOT NULL DEFAULT '{}',
		processor_payment_id TEXT NULL,
		processor_status TEXT NULL,
		idempotency_key TEXT NOT NULL,
		metadata TEXT NULL,
		verification_notes TEXT NULL,
		failure_reason TEXT NULL,
		submitted_by TEXT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_facility_month ON payments (facility_id, month, created_at)`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		facility_id TEXT NOT NULL,
		month TEXT NOT NULL,
		total_amount TEXT NOT NULL DEFAULT '0',
		payment_status TEXT NOT NULL DEFAULT 'UNPAID',
		notes TEXT NULL,
		trip_ids TEXT NOT NULL DEFAULT '{}',
		last_payment_id TEXT NULL,
		last_verified_at DATETIME NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_invoices_facility_month ON invoices (facility_id, month)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		facility_id TEXT NULL,
		month TEXT NULL,
		payload BLOB NOT NULL,
		created_at DATETIME,
		published_at DATETIME NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		facility_id TEXT NULL,
		month TEXT NULL,
		payload_json BLOB NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
}

// ApplySQLiteSchema creates the billing tables on a SQLite connection.
func ApplySQLiteSchema(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	for _, stmt := range sqliteSchema {
		if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
