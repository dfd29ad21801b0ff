// Package sundaesqlite opens the local SQLite database used when the slides
// service runs without DynamoDB, and applies its embedded migrations.
package sundaesqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	sundaecli "github.com/SundaeSwap-finance/sundae-slides/sundae-cli"
	"github.com/SundaeSwap-finance/sundae-slides/sundae-sqlite/migrations"
	"github.com/urfave/cli/v2"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var SQLiteOpts struct {
	Path string
}

var PathFlag = sundaecli.StringFlag("sqlite-path", "The SQLite database file used by the sqlite store", &SQLiteOpts.Path, "sundae-slides.db")

var SQLiteFlags = []cli.Flag{
	PathFlag,
}

// Open opens the database at path and applies the embedded migrations. The
// pool is capped at a single connection; SQLite allows one writer at a time.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := "file:" + filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db %v: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db %v: %w", path, err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate applies any embedded migration not yet recorded. Safe to call
// repeatedly.
func Migrate(ctx context.Context, db *sql.DB) error {
	if err := ApplyMigrations(ctx, db, migrations.FS, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err is a primary key or unique
// constraint failure.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
