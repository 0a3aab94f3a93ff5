package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "sqlite3", cfg.Adapter)
	assert.Equal(t, "repro_bug_report", cfg.Database)
	assert.Equal(t, 10, cfg.Pool)
	assert.Equal(t, 3, cfg.Fanout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "auto", cfg.LockMode)
	assert.Empty(t, cfg.DataDir)
	assert.Empty(t, cfg.Ledger)
}

func TestRunDataDir(t *testing.T) {
	cfg := Default()
	a := cfg.RunDataDir("run-a")
	b := cfg.RunDataDir("run-b")
	assert.NotEqual(t, a, b)
	assert.Equal(t, filepath.Join(os.TempDir(), "repro", "run-a"), a)

	cfg.DataDir = "/tmp/somewhere"
	assert.Equal(t, "/tmp/somewhere", cfg.RunDataDir("run-a"))
	assert.Equal(t, "/tmp/somewhere", cfg.RunDataDir("run-b"))
}

func TestFromMap_Overrides(t *testing.T) {
	cfg, err := FromMap(map[string]string{
		"REPRO_PARALLEL_QTY": "8",
		"REPRO_DB_NAME":      "parallel_test_transactions_bug_report",
		"REPRO_DATA_DIR":     "/tmp/somewhere",
		"REPRO_LOG_LEVEL":    "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Fanout)
	assert.Equal(t, "parallel_test_transactions_bug_report", cfg.Database)
	assert.Equal(t, "/tmp/somewhere", cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestFromMap_Invalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"bad int", map[string]string{"REPRO_PARALLEL_QTY": "three"}, "parse env"},
		{"zero fanout", map[string]string{"REPRO_PARALLEL_QTY": "0"}, "REPRO_PARALLEL_QTY"},
		{"bad adapter", map[string]string{"REPRO_DB_ADAPTER": "mysql"}, "REPRO_DB_ADAPTER"},
		{"postgres without url", map[string]string{"REPRO_DB_ADAPTER": "postgres"}, "REPRO_DATABASE_URL"},
		{"bad level", map[string]string{"REPRO_LOG_LEVEL": "loud"}, "REPRO_LOG_LEVEL"},
		{"bad lock mode", map[string]string{"REPRO_LOCK_MODE": "maybe"}, "REPRO_LOCK_MODE"},
		{"zero pool", map[string]string{"REPRO_DB_POOL": "0"}, "REPRO_DB_POOL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.vars)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("REPRO_PARALLEL_QTY", "5")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Fanout)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
}
