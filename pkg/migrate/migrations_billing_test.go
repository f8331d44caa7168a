package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jasskhinda/facility-billing/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestBillingEnumsMigration(t *testing.T) {
	assertContains(t, readMigration(t, "create_billing_enums"), []string{
		"CREATE TYPE invoice_status AS ENUM",
		"'PROCESSING_BANK_TRANSFER'",
		"CREATE TYPE payment_status AS ENUM ('pending_verification', 'completed', 'failed')",
		"CREATE TYPE check_sub_type AS ENUM ('will_mail', 'already_mailed', 'hand_delivered')",
	})
}

func TestTripsMigrationContainsSchema(t *testing.T) {
	assertContains(t, readMigration(t, "create_trips_table"), []string{
		"CREATE TABLE IF NOT EXISTS trips",
		"price numeric(12,2) NULL",
		"price_breakdown jsonb NULL",
		"CREATE INDEX IF NOT EXISTS idx_trips_facility_pickup",
	})
}

func TestPaymentsMigrationContainsSchema(t *testing.T) {
	assertContains(t, readMigration(t, "create_payments_table"), []string{
		"CREATE TABLE IF NOT EXISTS payments",
		"amount numeric(12,2) NOT NULL CHECK (amount > 0)",
		"verification_date timestamptz NULL",
		"idx_payments_latest_verified",
	})
}

func TestInvoicesMigrationHasUniqueFacilityMonth(t *testing.T) {
	assertContains(t, readMigration(t, "create_invoices_table"), []string{
		"CREATE TABLE IF NOT EXISTS invoices",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_invoices_facility_month ON invoices (facility_id, month)",
	})
}

func TestOutboxMigrationContainsSchema(t *testing.T) {
	assertContains(t, readMigration(t, "create_outbox_tables"), []string{
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"CREATE TABLE IF NOT EXISTS outbox_dlq",
		"'invoice_status_changed'",
	})
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
}
