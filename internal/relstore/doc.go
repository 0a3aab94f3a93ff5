// Package relstore is the persistent store behind table fixtures.
//
// A DB wraps database/sql over one of three adapters:
//
//   - sqlite3: github.com/mattn/go-sqlite3, a file under the data dir
//   - sqlite: modernc.org/sqlite, same layout without cgo
//   - postgres: github.com/jackc/pgx/v5/stdlib against a server
//
// Reset drops and recreates the whole database so every run starts from
// nothing. Tables are described by TableDef and created with drop-first
// semantics. Rows are plain maps; values are normalized on read to int64,
// string or bool according to the column type, so the same fixture yields
// the same snapshot on every adapter.
//
// Exclusive per-key locking (Tx.LockKey) maps to a transaction-scoped
// advisory lock on postgres and to an in-process keyed mutex on sqlite.
package relstore
