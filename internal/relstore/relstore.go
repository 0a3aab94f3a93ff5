package relstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Adapter names a database driver.
type Adapter string

const (
	AdapterSQLite3  Adapter = "sqlite3"
	AdapterSQLite   Adapter = "sqlite"
	AdapterPostgres Adapter = "postgres"
)

const pingTimeout = 2 * time.Second

// Config selects and addresses the database.
type Config struct {
	Adapter  Adapter
	Database string

	// URL is the postgres admin connection (any database the role can
	// connect to). Ignored by sqlite adapters.
	URL string

	// DataDir holds sqlite files. Ignored by postgres.
	DataDir string

	// Pool is the postgres connection pool size. sqlite always uses a
	// single connection.
	Pool int
}

// Validate checks the configuration without connecting.
func (c Config) Validate() error {
	switch c.Adapter {
	case AdapterSQLite3, AdapterSQLite:
		if c.DataDir == "" {
			return errors.New("data dir is required for sqlite adapters")
		}
	case AdapterPostgres:
		if c.URL == "" {
			return errors.New("database URL is required for postgres")
		}
	default:
		return fmt.Errorf("unknown adapter %q", c.Adapter)
	}
	if err := validateIdent(c.Database); err != nil {
		return fmt.Errorf("database name: %w", err)
	}
	return nil
}

// Path returns the sqlite database file. Empty for postgres.
func (c Config) Path() string {
	if c.Adapter == AdapterPostgres {
		return ""
	}
	return filepath.Join(c.DataDir, c.Database+".db")
}

// DB is an open database.
//
// Thread-safety: safe for concurrent use. On sqlite every statement shares
// one connection, so a Tx blocks other writers until it ends.
type DB struct {
	cfg     Config
	db      *sql.DB
	dialect dialect
	locks   *keyLocks
}

// Reset drops the configured database, creates it empty and connects.
func Reset(ctx context.Context, cfg Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Adapter {
	case AdapterPostgres:
		if err := recreatePostgres(ctx, cfg); err != nil {
			return nil, err
		}
	default:
		if err := removeSQLiteFiles(cfg.Path()); err != nil {
			return nil, err
		}
	}
	return Open(ctx, cfg)
}

// Open connects to the configured database without resetting it. sqlite
// files are created on demand.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Adapter {
	case AdapterPostgres:
		return openPostgres(ctx, cfg)
	default:
		return openSQLite(ctx, cfg)
	}
}

func openSQLite(ctx context.Context, cfg Config) (*DB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	db, err := sql.Open(string(cfg.Adapter), cfg.Path())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: sqlite has a single writer, and pragmas are
	// per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := ping(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	return &DB{cfg: cfg, db: db, dialect: sqliteDialect{}, locks: newKeyLocks()}, nil
}

func openPostgres(ctx context.Context, cfg Config) (*DB, error) {
	cc, err := pgx.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	cc.Database = cfg.Database

	db := stdlib.OpenDB(*cc)
	pool := cfg.Pool
	if pool < 1 {
		pool = 1
	}
	db.SetMaxOpenConns(pool)
	db.SetMaxIdleConns(pool)

	if err := ping(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{cfg: cfg, db: db, dialect: postgresDialect{}}, nil
}

func recreatePostgres(ctx context.Context, cfg Config) error {
	admin, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to open admin connection: %w", err)
	}
	defer admin.Close()

	if err := ping(ctx, admin); err != nil {
		return err
	}

	name := quoteIdent(cfg.Database)
	if _, err := admin.ExecContext(ctx, "DROP DATABASE IF EXISTS "+name+" WITH (FORCE)"); err != nil {
		return fmt.Errorf("failed to drop database %s: %w", cfg.Database, err)
	}
	if _, err := admin.ExecContext(ctx, "CREATE DATABASE "+name); err != nil {
		return fmt.Errorf("failed to create database %s: %w", cfg.Database, err)
	}
	return nil
}

func removeSQLiteFiles(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}

func ping(ctx context.Context, db *sql.DB) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Adapter returns the adapter the database was opened with.
func (d *DB) Adapter() Adapter {
	return d.cfg.Adapter
}

// Close closes the connection pool.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}
