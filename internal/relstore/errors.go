package relstore

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// ErrDuplicateKey is returned when a write violates a unique index.
var ErrDuplicateKey = errors.New("duplicate key")

// DuplicateKeyError reports a unique violation on a table.
type DuplicateKeyError struct {
	Table string
	Err   error
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key value violates unique constraint on %s: %v", e.Table, e.Err)
}

// Is matches ErrDuplicateKey.
func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey
}

func (e *DuplicateKeyError) Unwrap() error {
	return e.Err
}

// FaultKind is the kind recorded when a workload unit fails with this error.
func (e *DuplicateKeyError) FaultKind() string {
	return "RecordNotUnique"
}

func translateError(table string, err error) error {
	if isUniqueViolation(err) {
		return &DuplicateKeyError{Table: table, Err: err}
	}
	return fmt.Errorf("write %s: %w", table, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	if unique, ok := cgoSQLiteUniqueViolation(err); ok {
		return unique
	}

	var pureErr *msqlite.Error
	if errors.As(err, &pureErr) {
		switch pureErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return false
}
