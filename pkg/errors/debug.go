package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// SQLSTATE codes that clear up on retry: serialization failure, deadlock,
// lock_not_available and query_canceled (statement timeout).
var transientSQLStates = map[string]struct{}{
	"40001": {},
	"40P01": {},
	"55P03": {},
	"57014": {},
}

// DriverError is the database driver detail behind an error, whichever of
// pgx, lib/pq or sqlite3 produced it.
type DriverError struct {
	Driver     string `json:"driver"`
	Code       string `json:"code,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
	Transient  bool   `json:"transient,omitempty"`
}

type ErrorDump struct {
	TopMessage string       `json:"top_message"`
	Code       Code         `json:"code,omitempty"`
	Chain      []string     `json:"chain,omitempty"`
	Driver     *DriverError `json:"driver,omitempty"`
}

// Fields flattens the dump for structured log lines.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	if d.Driver != nil {
		fields["db_driver"] = d.Driver.Driver
		fields["db_code"] = d.Driver.Code
		fields["db_constraint"] = d.Driver.Constraint
		fields["db_table"] = d.Driver.Table
		fields["db_column"] = d.Driver.Column
		fields["db_detail"] = d.Driver.Detail
		fields["db_message"] = d.Driver.Message
		fields["db_transient"] = d.Driver.Transient
	}
	return fields
}

// Dump flattens an error chain and any driver detail for structured logs.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.Driver = DriverDetail(err)
	return d
}

// DriverDetail extracts driver detail from err, or nil when no database
// driver error is in the chain.
func DriverDetail(err error) *DriverError {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &DriverError{
			Driver:     "pgx",
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
			Transient:  isTransientState(pgxErr.Code),
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &DriverError{
			Driver:     "pq",
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
			Transient:  isTransientState(string(pqErr.Code)),
		}
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return &DriverError{
			Driver:    "sqlite3",
			Code:      sqliteErr.ExtendedCode.Error(),
			Message:   sqliteErr.Error(),
			Transient: sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked,
		}
	}
	return nil
}

// IsTransientDB reports whether err is a database failure worth retrying.
func IsTransientDB(err error) bool {
	detail := DriverDetail(err)
	return detail != nil && detail.Transient
}

func isTransientState(code string) bool {
	_, ok := transientSQLStates[code]
	return ok
}
