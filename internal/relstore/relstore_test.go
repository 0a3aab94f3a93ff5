package relstore

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var requestLogs = TableDef{
	Name: "request_logs",
	Columns: []Column{
		{Name: "user_id", Type: TypeInteger},
		{Name: "requests_count", Type: TypeInteger},
		{Name: "note", Type: TypeText, Null: true},
		{Name: "active", Type: TypeBoolean, Null: true},
	},
	Indexes: []Index{{Columns: []string{"user_id"}, Unique: true}},
}

// adapters returns a config per adapter available to the test run.
// postgres is included only when REPRO_TEST_DATABASE_URL is set.
func adapters(t *testing.T) map[string]Config {
	t.Helper()
	cfgs := map[string]Config{
		"sqlite3": {Adapter: AdapterSQLite3, Database: "repro_test", DataDir: t.TempDir()},
		"sqlite":  {Adapter: AdapterSQLite, Database: "repro_test", DataDir: t.TempDir()},
	}
	if url := os.Getenv("REPRO_TEST_DATABASE_URL"); url != "" {
		cfgs["postgres"] = Config{Adapter: AdapterPostgres, Database: "repro_relstore_test", URL: url, Pool: 10}
	}
	return cfgs
}

func resetDB(t *testing.T, cfg Config) *DB {
	t.Helper()
	db, err := Reset(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.CreateTable(context.Background(), requestLogs))
	return db
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"sqlite ok", Config{Adapter: AdapterSQLite3, Database: "db", DataDir: "/tmp"}, ""},
		{"sqlite without dir", Config{Adapter: AdapterSQLite, Database: "db"}, "data dir"},
		{"postgres without url", Config{Adapter: AdapterPostgres, Database: "db"}, "URL"},
		{"unknown adapter", Config{Adapter: "mysql", Database: "db"}, "unknown adapter"},
		{"bad name", Config{Adapter: AdapterSQLite3, Database: "db; drop", DataDir: "/tmp"}, "invalid identifier"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTableDef_Validate(t *testing.T) {
	tests := []struct {
		name    string
		def     TableDef
		wantErr string
	}{
		{"valid", requestLogs, ""},
		{"bad table name", TableDef{Name: "1abc", Columns: []Column{{Name: "a", Type: TypeText}}}, "invalid identifier"},
		{"no columns", TableDef{Name: "t"}, "no columns"},
		{"reserved id", TableDef{Name: "t", Columns: []Column{{Name: "id", Type: TypeInteger}}}, "reserved"},
		{"duplicate column", TableDef{Name: "t", Columns: []Column{{Name: "a", Type: TypeText}, {Name: "a", Type: TypeText}}}, "duplicate"},
		{"unknown type", TableDef{Name: "t", Columns: []Column{{Name: "a", Type: "float"}}}, "unknown type"},
		{"index unknown column", TableDef{
			Name:    "t",
			Columns: []Column{{Name: "a", Type: TypeText}},
			Indexes: []Index{{Columns: []string{"b"}}},
		}, "unknown column"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCRUD(t *testing.T) {
	ctx := context.Background()
	for name, cfg := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			db := resetDB(t, cfg)

			require.NoError(t, db.Insert(ctx, requestLogs, Row{"user_id": 111, "requests_count": 25, "active": true}))
			require.NoError(t, db.Insert(ctx, requestLogs, Row{"user_id": 123, "requests_count": 1, "note": "x"}))

			n, err := db.Count(ctx, requestLogs)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			row, ok, err := db.Find(ctx, requestLogs, Row{"user_id": 111})
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, Row{"user_id": int64(111), "requests_count": int64(25), "note": nil, "active": true}, row)

			_, ok, err = db.Find(ctx, requestLogs, Row{"user_id": 999})
			require.NoError(t, err)
			assert.False(t, ok)

			changed, err := db.Update(ctx, requestLogs, Row{"user_id": 123}, Row{"requests_count": 2})
			require.NoError(t, err)
			assert.Equal(t, int64(1), changed)

			rows, err := db.Rows(ctx, requestLogs)
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, int64(111), rows[0]["user_id"])
			assert.Equal(t, int64(2), rows[1]["requests_count"])
			assert.Equal(t, "x", rows[1]["note"])
		})
	}
}

func TestInsert_UnknownColumn(t *testing.T) {
	db := resetDB(t, adapters(t)["sqlite3"])
	err := db.Insert(context.Background(), requestLogs, Row{"user_id": 1, "bogus": 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no column bogus")
}

func TestInsert_DuplicateKey(t *testing.T) {
	ctx := context.Background()
	for name, cfg := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			db := resetDB(t, cfg)
			require.NoError(t, db.Insert(ctx, requestLogs, Row{"user_id": 1, "requests_count": 1}))

			err := db.Insert(ctx, requestLogs, Row{"user_id": 1, "requests_count": 1})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDuplicateKey))

			var dup *DuplicateKeyError
			require.ErrorAs(t, err, &dup)
			assert.Equal(t, "request_logs", dup.Table)
			assert.Equal(t, "RecordNotUnique", dup.FaultKind())
		})
	}
}

func TestReset_DropsEverything(t *testing.T) {
	ctx := context.Background()
	for name, cfg := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			db := resetDB(t, cfg)
			require.NoError(t, db.Insert(ctx, requestLogs, Row{"user_id": 1, "requests_count": 1}))
			require.NoError(t, db.Close())

			db = resetDB(t, cfg)
			n, err := db.Count(ctx, requestLogs)
			require.NoError(t, err)
			assert.Equal(t, int64(0), n)
		})
	}
}

func TestCreateTable_Force(t *testing.T) {
	ctx := context.Background()
	db := resetDB(t, adapters(t)["sqlite"])
	require.NoError(t, db.Insert(ctx, requestLogs, Row{"user_id": 1, "requests_count": 1}))

	require.NoError(t, db.CreateTable(ctx, requestLogs))
	n, err := db.Count(ctx, requestLogs)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestWithTx_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	db := resetDB(t, adapters(t)["sqlite3"])

	boom := errors.New("boom")
	err := db.WithTx(ctx, func(tx *Tx) error {
		require.NoError(t, tx.Insert(ctx, requestLogs, Row{"user_id": 1, "requests_count": 1}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := db.Count(ctx, requestLogs)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

// Concurrent locked increments never lose an update.
func TestWithTx_LockKeySerializesIncrements(t *testing.T) {
	ctx := context.Background()
	for name, cfg := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			db := resetDB(t, cfg)
			const workers = 8

			var wg sync.WaitGroup
			errs := make([]error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					errs[i] = db.WithTx(ctx, func(tx *Tx) error {
						if err := tx.LockKey(ctx, 123); err != nil {
							return err
						}
						row, ok, err := tx.Find(ctx, requestLogs, Row{"user_id": 123})
						if err != nil {
							return err
						}
						if !ok {
							return tx.Insert(ctx, requestLogs, Row{"user_id": 123, "requests_count": 1})
						}
						_, err = tx.Update(ctx, requestLogs, Row{"user_id": 123},
							Row{"requests_count": row["requests_count"].(int64) + 1})
						return err
					})
				}(i)
			}
			wg.Wait()

			for _, err := range errs {
				require.NoError(t, err)
			}
			row, ok, err := db.Find(ctx, requestLogs, Row{"user_id": 123})
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, int64(workers), row["requests_count"])
		})
	}
}

func TestKeyLocks_ReleasesEntries(t *testing.T) {
	k := newKeyLocks()
	unlockA := k.lock(1)
	unlockB := k.lock(2)
	assert.Len(t, k.locks, 2)

	unlockA()
	unlockB()
	assert.Empty(t, k.locks)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		col  Column
		in   any
		want any
	}{
		{Column{Name: "n", Type: TypeInteger}, int64(5), int64(5)},
		{Column{Name: "n", Type: TypeInteger}, []byte("7"), int64(7)},
		{Column{Name: "s", Type: TypeText}, []byte("hi"), "hi"},
		{Column{Name: "b", Type: TypeBoolean}, int64(1), true},
		{Column{Name: "b", Type: TypeBoolean}, int64(0), false},
		{Column{Name: "b", Type: TypeBoolean}, nil, nil},
	}
	for _, tt := range tests {
		got, err := normalize(tt.col, tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := normalize(Column{Name: "s", Type: TypeText}, int64(1))
	assert.Error(t, err)
}
