//go:build cgo

package relstore

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

func cgoSQLiteUniqueViolation(err error) (unique, ok bool) {
	var cgoErr sqlite3.Error
	if errors.As(err, &cgoErr) {
		return cgoErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			cgoErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey, true
	}
	return false, false
}
