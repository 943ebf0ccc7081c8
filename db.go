package main

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"gitea.kood.tech/petrkubec/soulmate/backend/config"
	"gitea.kood.tech/petrkubec/soulmate/backend/store"
)

// openDB connects to Postgres and, unless migrate is false, brings the
// schema up to date.
func openDB(ctx context.Context, cfg config.Config, log *zap.Logger, migrate bool) (*sql.DB, error) {
	db, err := store.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, err
	}
	log.Info("database connection established")

	if migrate {
		if err := store.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("database schema up to date")
	}
	return db, nil
}
