package sql

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/osputil/osputil"
)

// PostgreSQL SQLSTATE code for unique violations.
const pgUniqueViolation = "23505"

// MySQL error number for duplicate entries.
const mysqlDuplicateEntry = 1062

// classify maps a driver error to an osputil error kind.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return osputil.NewError(op, "", osputil.ErrNotFound, err)
	case IsUniqueConstraintError(err):
		return osputil.NewError(op, "", osputil.ErrAlreadyExists, err)
	default:
		return osputil.NewError(op, "", osputil.ErrSystem, err)
	}
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness
// constraint violation.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return true
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	// Fallback to string matching for drivers that don't expose codes.
	msg := err.Error()
	for _, s := range []string{
		"Error 1062",
		"violates unique constraint",
		"UNIQUE constraint failed",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
