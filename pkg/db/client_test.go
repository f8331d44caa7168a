package db

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jasskhinda/facility-billing/pkg/config"
	"github.com/jasskhinda/facility-billing/pkg/logger"
)

type ledgerRow struct {
	ID   int
	Note string `gorm:"uniqueIndex"`
}

func openMemory(t *testing.T, cfg *gorm.Config) *gorm.DB {
	t.Helper()
	if cfg == nil {
		cfg = &gorm.Config{SkipDefaultTransaction: true}
	}
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), cfg)
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&ledgerRow{}))
	return conn
}

func countRows(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&ledgerRow{}).Count(&n).Error)
	return n
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	conn := openMemory(t, nil)
	client := NewFromConn(conn)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(&ledgerRow{Note: "kept"}).Error
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, countRows(t, conn))
}

func TestWithTxRollsBackOnErrorAndPanic(t *testing.T) {
	conn := openMemory(t, nil)
	client := NewFromConn(conn)
	ctx := context.Background()

	boom := errors.New("boom")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&ledgerRow{Note: "discarded"}).Error)
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Panics(t, func() {
		_ = client.WithTx(ctx, func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(&ledgerRow{Note: "panicked"}).Error)
			panic("handler bug")
		})
	})
	assert.Zero(t, countRows(t, conn))
}

func TestNewFromConnDetectsSQLite(t *testing.T) {
	client := NewFromConn(openMemory(t, nil))
	assert.Equal(t, DriverSQLite, client.Driver())
	require.NoError(t, client.Ping(context.Background()))
}

func TestNewOpensSQLiteWithSingleConnection(t *testing.T) {
	cfg := config.DBConfig{
		Driver:       DriverSQLite,
		SQLitePath:   "file:new_client?mode=memory&cache=shared",
		MaxOpenConns: 20,
	}
	client, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	sqlDB, err := client.DB().DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	assert.Equal(t, DriverSQLite, client.Driver())
}

func TestDialectorForRequiresTarget(t *testing.T) {
	_, _, err := dialectorFor(config.DBConfig{Driver: DriverSQLite})
	assert.EqualError(t, err, "sqlite path is required")

	_, _, err = dialectorFor(config.DBConfig{Driver: DriverPostgres})
	assert.EqualError(t, err, "database DSN is required")

	driver, _, err := dialectorFor(config.DBConfig{DSN: "postgres://localhost/billing"})
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, driver)
}

func TestQueryLoggerReportsSlowAndFailedStatements(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "db-test", Level: zerolog.DebugLevel, Output: &buf})
	conn := openMemory(t, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 newQueryLogger(logg, time.Nanosecond),
	})

	require.NoError(t, conn.Create(&ledgerRow{Note: "dup"}).Error)
	err := conn.Create(&ledgerRow{Note: "dup"}).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err, ""))

	var sawSlow, sawFailure bool
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		switch entry["message"] {
		case "slow query":
			sawSlow = true
			assert.Contains(t, entry["sql"], "INSERT INTO")
		case "query failed":
			sawFailure = true
			assert.Contains(t, entry["error"], "UNIQUE constraint failed")
		}
	}
	assert.True(t, sawSlow, "expected a slow query entry")
	assert.True(t, sawFailure, "expected a failed query entry")
}

func TestQueryLoggerIgnoresMissingRows(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "db-test", Output: &buf})
	conn := openMemory(t, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 newQueryLogger(logg, time.Hour),
	})

	var row ledgerRow
	err := conn.First(&row, "note = ?", "absent").Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String())
}

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm translated", err: gorm.ErrDuplicatedKey, want: true},
		{name: "postgres text", err: errors.New(`duplicate key value violates unique constraint "ux_invoices_facility_month"`), want: true},
		{name: "postgres constraint", err: errors.New(`duplicate key value violates unique constraint "ux_invoices_facility_month"`), constraint: "ux_invoices_facility_month", want: true},
		{name: "other constraint", err: errors.New(`duplicate key value violates unique constraint "payments_pkey"`), constraint: "ux_invoices_facility_month", want: false},
		{name: "sqlite text", err: errors.New("UNIQUE constraint failed: invoices.facility_id, invoices.month"), want: true},
		{name: "unrelated", err: errors.New("connection refused"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsUniqueViolation(tc.err, tc.constraint))
		})
	}
}
