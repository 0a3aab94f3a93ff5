package fixture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/roach88/repro/internal/relstore"
)

// table is the relational fixture kind: one table in a relstore database.
type table struct {
	spec   Spec
	def    relstore.TableDef
	cfg    relstore.Config
	logger *slog.Logger
	db     *relstore.DB

	// scratch is a per-run data dir removed on Close. Empty when the
	// data dir was configured.
	scratch string

	// afterRead runs between the read and the write of an unlocked
	// mutation. Tests use it to force an interleaving.
	afterRead func()
}

func newTable(spec Spec, cfg relstore.Config, logger *slog.Logger) *table {
	return &table{spec: spec, def: spec.tableDef(), cfg: cfg, logger: logger}
}

func (t *table) Kind() Kind           { return KindTable }
func (t *table) Name() string         { return t.spec.Name }
func (t *table) KeyField() string     { return t.spec.Key }
func (t *table) CounterField() string { return t.spec.Counter }

// Reset drops and recreates the database, creates the table and inserts
// the seed rows.
func (t *table) Reset(ctx context.Context) error {
	if err := t.Close(); err != nil {
		return err
	}

	db, err := relstore.Reset(ctx, t.cfg)
	if err != nil {
		return err
	}
	t.db = db
	t.logger.Debug("database reset", "adapter", t.cfg.Adapter, "database", t.cfg.Database)

	if err := db.CreateTable(ctx, t.def); err != nil {
		return err
	}
	for i, seed := range t.spec.Seed {
		if err := db.Insert(ctx, t.def, relstore.Row(seed)); err != nil {
			return fmt.Errorf("seed %d: %w", i, err)
		}
	}
	return nil
}

func (t *table) conn() (*relstore.DB, error) {
	if t.db == nil {
		return nil, errors.New("fixture is not reset")
	}
	return t.db, nil
}

func (t *table) where(key any) relstore.Row {
	return relstore.Row{t.spec.Key: key}
}

// rowWriter is the part of relstore shared by *DB and *Tx.
type rowWriter interface {
	Find(ctx context.Context, def relstore.TableDef, where relstore.Row) (relstore.Row, bool, error)
	Insert(ctx context.Context, def relstore.TableDef, row relstore.Row) error
	Update(ctx context.Context, def relstore.TableDef, where, set relstore.Row) (int64, error)
}

func (t *table) MutateLocked(ctx context.Context, key any, fn MutateFunc) (Record, error) {
	k, err := NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	db, err := t.conn()
	if err != nil {
		return nil, err
	}

	var out Record
	err = db.WithTx(ctx, func(tx *relstore.Tx) error {
		if err := tx.LockKey(ctx, lockID(k)); err != nil {
			return err
		}
		out, err = t.mutate(ctx, tx, k, fn, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *table) Mutate(ctx context.Context, key any, fn MutateFunc) (Record, error) {
	k, err := NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	db, err := t.conn()
	if err != nil {
		return nil, err
	}
	return t.mutate(ctx, db, k, fn, t.afterRead)
}

func (t *table) mutate(ctx context.Context, w rowWriter, key any, fn MutateFunc, afterRead func()) (Record, error) {
	row, found, err := w.Find(ctx, t.def, t.where(key))
	if err != nil {
		return nil, err
	}
	if afterRead != nil {
		afterRead()
	}

	cur := Record(row)
	next, err := fn(cur, found)
	if err != nil || next == nil {
		return cur, err
	}
	next = next.Clone()
	next[t.spec.Key] = key

	if !found {
		if err := w.Insert(ctx, t.def, relstore.Row(next)); err != nil {
			return nil, err
		}
		return next, nil
	}

	set := relstore.Row{}
	for f, v := range next {
		if f != t.spec.Key {
			set[f] = v
		}
	}
	if len(set) > 0 {
		if _, err := w.Update(ctx, t.def, t.where(key), set); err != nil {
			return nil, err
		}
	}

	merged := cur.Clone()
	for f, v := range next {
		merged[f] = v
	}
	return merged, nil
}

func (t *table) Find(ctx context.Context, key any) (Record, bool, error) {
	k, err := NormalizeKey(key)
	if err != nil {
		return nil, false, err
	}
	db, err := t.conn()
	if err != nil {
		return nil, false, err
	}
	row, ok, err := db.Find(ctx, t.def, t.where(k))
	return Record(row), ok, err
}

func (t *table) Count(ctx context.Context) (int64, error) {
	db, err := t.conn()
	if err != nil {
		return 0, err
	}
	return db.Count(ctx, t.def)
}

func (t *table) Snapshot(ctx context.Context) (State, error) {
	db, err := t.conn()
	if err != nil {
		return State{}, err
	}
	rows, err := db.Rows(ctx, t.def)
	if err != nil {
		return State{}, err
	}
	records := make([]Record, len(rows))
	for i, r := range rows {
		records[i] = Record(r)
	}
	sortRecords(records, t.spec.Key)
	return State{Kind: KindTable, Name: t.spec.Name, Key: t.spec.Key, Records: records}, nil
}

func (t *table) Close() error {
	if t.db == nil {
		return nil
	}
	err := t.db.Close()
	t.db = nil
	if t.scratch != "" {
		err = errors.Join(err, os.RemoveAll(t.scratch))
	}
	return err
}

var _ Fixture = (*table)(nil)
