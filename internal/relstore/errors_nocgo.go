//go:build !cgo

package relstore

// Without cgo the mattn/go-sqlite3 driver is a stub that cannot open a
// connection, so its error type never occurs.
func cgoSQLiteUniqueViolation(err error) (unique, ok bool) {
	return false, false
}
