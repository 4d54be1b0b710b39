package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/pinloom/pinloom/config"
)

func TestOpenSQLiteRunsMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pinloom.db")

	db, err := Open(context.Background(), config.DatabaseConfig{DSN: path, Type: TypeSQLite}, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"chat_history", "pins"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}

	// A second run finds nothing pending
	assert.NoError(t, Migrate(db))
}

func TestResolveDSN(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.DatabaseConfig
		wantDriver string
		wantDSN    string
		wantErr    bool
	}{
		{name: "libsql file", cfg: config.DatabaseConfig{DSN: "/tmp/a.db", Type: "libsql"}, wantDriver: TypeLibSQL, wantDSN: "file:/tmp/a.db"},
		{name: "libsql remote", cfg: config.DatabaseConfig{DSN: "libsql://db.turso.io?authToken=x", Type: "libsql"}, wantDriver: TypeLibSQL, wantDSN: "libsql://db.turso.io?authToken=x"},
		{name: "default type", cfg: config.DatabaseConfig{DSN: "file:/tmp/b.db"}, wantDriver: TypeLibSQL, wantDSN: "file:/tmp/b.db"},
		{name: "sqlite", cfg: config.DatabaseConfig{DSN: "/tmp/c.db", Type: "SQLite"}, wantDriver: TypeSQLite},
		{name: "unknown type", cfg: config.DatabaseConfig{DSN: "/tmp/d.db", Type: "postgres"}, wantErr: true},
		{name: "empty dsn", cfg: config.DatabaseConfig{Type: "sqlite"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, dsn, err := resolveDSN(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDriver, driver)
			if tt.wantDSN != "" {
				assert.Equal(t, tt.wantDSN, dsn)
			} else {
				assert.Contains(t, dsn, "_pragma=foreign_keys(1)")
			}
		})
	}
}

func TestLocalPath(t *testing.T) {
	assert.Equal(t, "/var/lib/p.db", localPath("file:/var/lib/p.db?mode=rwc"))
	assert.Equal(t, "p.db", localPath("p.db"))
	assert.Empty(t, localPath("libsql://remote"))
	assert.Empty(t, localPath(":memory:"))
}
