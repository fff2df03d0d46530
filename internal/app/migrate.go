package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"dealscout/migrations"
)

// Migrate applies pending schema migrations.
func (a *App) Migrate(ctx context.Context) error {
	dsn := a.Config.Database.DSN
	if dsn == "" {
		return errors.New("database.dsn not configured; cannot migrate")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		return err
	}

	a.Logger.Info().Msg("migrations applied")
	return nil
}
