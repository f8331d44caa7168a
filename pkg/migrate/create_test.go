package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()

	path, err := CreateSQLMigration(dir, "Add Invoice Notes!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(filepath.Base(path), "_add_invoice_notes.sql"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "-- +goose Up")
	assert.Contains(t, string(data), "-- +goose Down")

	require.NoError(t, ValidateDir(dir))
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))

	assert.Error(t, ValidateDir(dir))
}

func TestValidateDirRequiresGooseMarkers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20250101000000_missing_down.sql"), []byte("-- +goose Up\nSELECT 1;\n"), 0o644))

	assert.Error(t, ValidateDir(dir))
}

func TestCreateSQLMigrationSkipsTakenVersion(t *testing.T) {
	dir := t.TempDir()
	fixed := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	prev := clock
	clock = func() time.Time { return fixed }
	t.Cleanup(func() { clock = prev })

	first, err := CreateSQLMigration(dir, "add trip notes")
	require.NoError(t, err)
	second, err := CreateSQLMigration(dir, "add payment memo")
	require.NoError(t, err)

	assert.Equal(t, "20250701090000_add_trip_notes.sql", filepath.Base(first))
	assert.Equal(t, "20250701090001_add_payment_memo.sql", filepath.Base(second))
	require.NoError(t, ValidateDir(dir))
}

func TestValidateDirRejectsLedgerDeletes(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Up\nDELETE FROM payments WHERE status = 'failed';\n-- +goose Down\nSELECT 1;\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20250101000000_prune_payments.sql"), []byte(body), 0o644))

	err := ValidateDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payment ledger")
}

func TestValidateDirAllowsLedgerDropInDown(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Up\nCREATE TABLE payments (id uuid primary key);\n-- +goose Down\nDELETE FROM payments;\nDROP TABLE payments;\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20250101000000_create_payments.sql"), []byte(body), 0o644))

	require.NoError(t, ValidateDir(dir))
}

func TestValidateDirRepoMigrations(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
	require.NoError(t, ValidateDir(""), "embedded set")
}

func TestValidateFSReportsEveryProblem(t *testing.T) {
	ok := "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"
	fsys := fstest.MapFS{
		"20250101000000_first.sql":   {Data: []byte(ok)},
		"20250101000000_second.sql":  {Data: []byte(ok)},
		"20250102000000_flipped.sql": {Data: []byte("-- +goose Down\n-- +goose Up\n")},
		"notes.sql":                  {Data: []byte(ok)},
		"README.md":                  {Data: []byte("ignored")},
	}

	err := ValidateFS(fsys)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 3)
	assert.ErrorContains(t, err, "already used by 20250101000000_first.sql")
	assert.ErrorContains(t, err, "Down section precedes Up")
	assert.ErrorContains(t, err, "notes.sql: expected")
}

func TestCreateSQLMigrationRejectsEmptySlug(t *testing.T) {
	_, err := CreateSQLMigration(t.TempDir(), "!!!")
	assert.Error(t, err)
	_, err = CreateSQLMigration("", "add_column")
	assert.Error(t, err)
}
