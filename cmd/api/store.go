package main

import (
	"context"
	"database/sql"
	"fmt"

	"salon-leads/internal/config"
	"salon-leads/internal/leads"
	"salon-leads/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// openStore builds the lead store selected by STORE_DRIVER and applies migrations.
// The returned db is nil for the memory store.
func openStore(ctx context.Context, cfg config.Config) (leads.Store, *sql.DB, error) {
	var (
		db      *sql.DB
		dialect leads.Dialect
		err     error
	)
	switch cfg.Store.Driver {
	case "memory":
		return leads.NewMemoryStore(), nil, nil
	case "sqlite":
		db, err = utils.OpenSQLite(ctx, cfg.Store.SQLitePath)
		dialect = leads.DialectSQLite
	default:
		db, err = utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		dialect = leads.DialectPostgres
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", cfg.Store.Driver, err)
	}

	if err := leads.Migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	store, err := leads.NewSQLStore(db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, db, nil
}
