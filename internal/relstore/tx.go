package relstore

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sync"
)

// Tx is a transaction opened by WithTx.
type Tx struct {
	tx       *sql.Tx
	db       *DB
	released []func()
}

// WithTx runs fn in a transaction. The transaction commits if fn returns
// nil and rolls back otherwise. Key locks taken with LockKey are released
// when the transaction ends.
func (d *DB) WithTx(ctx context.Context, fn func(*Tx) error) (err error) {
	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	tx := &Tx{tx: sqlTx, db: d}
	defer tx.release()

	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (tx *Tx) release() {
	for i := len(tx.released) - 1; i >= 0; i-- {
		tx.released[i]()
	}
	tx.released = nil
}

// LockKey takes an exclusive lock on key that is held until the
// transaction ends. Concurrent transactions locking the same key are
// serialized.
func (tx *Tx) LockKey(ctx context.Context, key int64) error {
	if tx.db.locks != nil {
		unlock := tx.db.locks.lock(key)
		tx.released = append(tx.released, unlock)
		return nil
	}

	// The two-int form of the advisory lock takes int4 arguments.
	if key < math.MinInt32 || key > math.MaxInt32 {
		return fmt.Errorf("lock key %d out of int4 range", key)
	}
	if _, err := tx.tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(1, $1::int)", int32(key)); err != nil {
		return fmt.Errorf("failed to lock key %d: %w", key, err)
	}
	return nil
}

func (tx *Tx) queries() queries {
	return queries{ex: tx.tx, dialect: tx.db.dialect}
}

// Insert adds a row inside the transaction.
func (tx *Tx) Insert(ctx context.Context, def TableDef, row Row) error {
	return tx.queries().insert(ctx, def, row)
}

// Find returns the first row matching where inside the transaction.
func (tx *Tx) Find(ctx context.Context, def TableDef, where Row) (Row, bool, error) {
	return tx.queries().find(ctx, def, where)
}

// Update sets columns on matching rows inside the transaction.
func (tx *Tx) Update(ctx context.Context, def TableDef, where, set Row) (int64, error) {
	return tx.queries().update(ctx, def, where, set)
}

// keyLocks is an in-process lock table keyed by int64. Entries are
// reference counted and removed when unused.
type keyLocks struct {
	mu    sync.Mutex
	locks map[int64]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[int64]*keyLock)}
}

func (k *keyLocks) lock(key int64) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
