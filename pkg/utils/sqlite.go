package utils

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens a file-backed SQLite database through the pure-Go driver.
//
// SQLite allows a single writer, so the pool is pinned to one connection: transactions are
// serialized by database/sql instead of failing with SQLITE_BUSY.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := HealthCheck(ctx, db, 5*time.Second); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
