// Package config loads run parameters from environment variables.
//
// Every parameter has a documented default so a scenario runs with no
// environment at all; variables only override.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds run parameters.
type Config struct {
	// Adapter selects the persistent store for table fixtures:
	// sqlite3 (mattn/go-sqlite3), sqlite (modernc.org/sqlite) or postgres.
	Adapter string `env:"REPRO_DB_ADAPTER" envDefault:"sqlite3"`

	// Database is the database name table fixtures reset and use.
	Database string `env:"REPRO_DB_NAME" envDefault:"repro_bug_report"`

	// DatabaseURL is the postgres admin connection used to drop and
	// recreate Database.
	DatabaseURL string `env:"REPRO_DATABASE_URL"`

	// DataDir holds sqlite database files. Empty gives every run its own
	// directory under the OS temp dir (see RunDataDir).
	DataDir string `env:"REPRO_DATA_DIR"`

	// Pool is the connection pool size for postgres fixtures.
	Pool int `env:"REPRO_DB_POOL" envDefault:"10"`

	// Fanout is the default number of concurrent units in parallel mode.
	Fanout int `env:"REPRO_PARALLEL_QTY" envDefault:"3"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"REPRO_LOG_LEVEL" envDefault:"info"`

	// LockMode is one of off, write, verify, auto.
	LockMode string `env:"REPRO_LOCK_MODE" envDefault:"auto"`

	// Index is the default package index when a scenario names none.
	Index string `env:"REPRO_INDEX"`

	// Ledger is the path of the run ledger database. Empty disables it.
	Ledger string `env:"REPRO_LEDGER"`
}

// FromEnv loads configuration from the process environment.
func FromEnv() (Config, error) {
	return parse(env.Options{})
}

// FromMap loads configuration from the given variables only. Used by tests
// and by callers embedding the harness.
func FromMap(vars map[string]string) (Config, error) {
	if vars == nil {
		vars = map[string]string{}
	}
	return parse(env.Options{Environment: vars})
}

// Default returns the configuration with every default applied.
func Default() Config {
	cfg, err := FromMap(nil)
	if err != nil {
		// Defaults are compile-time constants; failure is a programming error.
		panic(err)
	}
	return cfg
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RunDataDir returns the directory holding the sqlite files of one run.
// An explicit DataDir is shared by every run; otherwise each run id gets
// its own directory so concurrent runs never reset each other's files.
func (c Config) RunDataDir(runID string) string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return filepath.Join(os.TempDir(), "repro", runID)
}

// Validate checks parameter ranges and enumerations.
func (c Config) Validate() error {
	switch c.Adapter {
	case "sqlite3", "sqlite", "postgres":
	default:
		return fmt.Errorf("REPRO_DB_ADAPTER %q must be one of sqlite3, sqlite, postgres", c.Adapter)
	}
	if c.Database == "" {
		return fmt.Errorf("REPRO_DB_NAME is required")
	}
	if c.Adapter == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("REPRO_DATABASE_URL is required for the postgres adapter")
	}
	if c.Pool < 1 {
		return fmt.Errorf("REPRO_DB_POOL must be >= 1")
	}
	if c.Fanout < 1 {
		return fmt.Errorf("REPRO_PARALLEL_QTY must be >= 1")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LockMode {
	case "off", "write", "verify", "auto":
	default:
		return fmt.Errorf("REPRO_LOCK_MODE %q must be one of off, write, verify, auto", c.LockMode)
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("REPRO_LOG_LEVEL %q must be one of debug, info, warn, error", s)
	}
}
