package db

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique-constraint failure. A
// non-empty constraint narrows the match to that index. SQLite names the
// violated columns instead of the index, so its match is by substring.
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if constraint == "" && errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique &&
			(constraint == "" || strings.Contains(sqliteErr.Error(), constraint))
	}
	if detail := pkgerrors.DriverDetail(err); detail != nil {
		return detail.Code == pgUniqueViolation &&
			(constraint == "" || detail.Constraint == constraint)
	}

	msg := err.Error()
	if constraint != "" {
		return strings.Contains(msg, constraint)
	}
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}
