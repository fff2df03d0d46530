package app

import (
	"context"
	"errors"
)

// ScanOnce runs a single scan cycle over every enabled watch query and
// returns once all of them have been processed.
func (a *App) ScanOnce(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; cannot scan")
	}
	defer closeStore()

	scan := a.newScanner(store)
	if err := scan.RunCycle(ctx); err != nil {
		return err
	}

	stats, err := scan.Stats(ctx)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Int("watches", stats.ActiveWatches).
		Int("new_opportunities", stats.NewOpportunities).
		Int("total_opportunities", stats.TotalOpportunities).
		Msg("scan cycle finished")
	return nil
}
