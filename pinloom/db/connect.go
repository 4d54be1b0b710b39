// Package db opens the service database and keeps its schema current.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/pinloom/pinloom/config"

	_ "github.com/tursodatabase/go-libsql"
	_ "modernc.org/sqlite"
)

const (
	TypeLibSQL = "libsql"
	TypeSQLite = "sqlite"
)

// Open connects to the configured database, creating the file for embedded
// databases, and runs pending migrations.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*sql.DB, error) {
	driver, dsn, err := resolveDSN(cfg)
	if err != nil {
		return nil, err
	}

	if path := localPath(cfg.DSN); path != "" {
		if err := ensureFile(path, logger); err != nil {
			return nil, err
		}
	}

	logger.Info().Str("driver", driver).Str("dsn", dsn).Msg("connecting to database")

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", driver, err)
	}

	if err := verify(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func resolveDSN(cfg config.DatabaseConfig) (driver, dsn string, err error) {
	if cfg.DSN == "" {
		return "", "", fmt.Errorf("database dsn is empty")
	}

	switch strings.ToLower(cfg.Type) {
	case TypeLibSQL, "":
		if isRemote(cfg.DSN) || strings.HasPrefix(cfg.DSN, "file:") {
			return TypeLibSQL, cfg.DSN, nil
		}
		return TypeLibSQL, "file:" + cfg.DSN, nil
	case TypeSQLite:
		return TypeSQLite, "file:" + strings.TrimPrefix(cfg.DSN, "file:") +
			"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", nil
	default:
		return "", "", fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}

func isRemote(dsn string) bool {
	return strings.HasPrefix(dsn, "libsql://") || strings.HasPrefix(dsn, "http://") || strings.HasPrefix(dsn, "https://")
}

// localPath returns the filesystem path behind an embedded dsn.
func localPath(dsn string) string {
	if isRemote(dsn) {
		return ""
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	return path
}

func ensureFile(path string, logger zerolog.Logger) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create database directory %s: %w", dir, err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info().Str("path", path).Msg("database not found, creating a new one")
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("could not create db at path %s: %w", path, err)
		}
		file.Close()
	}
	return nil
}

func verify(ctx context.Context, db *sql.DB) error {
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("basic connectivity test failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("basic connectivity test failed: unexpected result %d", result)
	}
	return nil
}
