package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"dealscout/internal/storage"
)

// AddWatch registers a new watch query for the background scanner.
func (a *App) AddWatch(ctx context.Context, opts WatchAddOptions) error {
	if strings.TrimSpace(opts.Query) == "" {
		return errors.New("query must not be empty")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; cannot add watch")
	}
	defer closeStore()

	wq := storage.WatchQuery{
		Query:        strings.TrimSpace(opts.Query),
		MinProfit:    decimal.NewFromFloat(opts.MinProfit),
		MinDealScore: opts.MinDealScore,
		Enabled:      true,
	}
	if opts.Category != "" {
		wq.Category = &opts.Category
	}
	if opts.MaxBuyPrice > 0 {
		maxBuy := decimal.NewFromFloat(opts.MaxBuyPrice)
		wq.MaxBuyPrice = &maxBuy
	}

	created, err := store.CreateWatchQuery(ctx, wq)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "watch %s created for %q\n", created.ID, created.Query)
	return nil
}

// ListWatches prints all watch queries and their scan history.
func (a *App) ListWatches(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; cannot list watches")
	}
	defer closeStore()

	watches, err := store.ListWatchQueries(ctx, false)
	if err != nil {
		return err
	}
	if len(watches) == 0 {
		fmt.Fprintln(os.Stdout, "no watch queries configured")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tQuery\tMax Buy\tMin Profit\tMin Score\tEnabled\tScans\tFound\tLast Scanned (UTC)")

	for _, wq := range watches {
		maxBuy := "-"
		if wq.MaxBuyPrice != nil {
			maxBuy = "$" + wq.MaxBuyPrice.StringFixed(2)
		}
		lastScanned := "never"
		if wq.LastScanned != nil {
			lastScanned = wq.LastScanned.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t$%s\t%d\t%t\t%d\t%d\t%s\n",
			wq.ID,
			sanitizeInline(wq.Query),
			maxBuy,
			wq.MinProfit.StringFixed(2),
			wq.MinDealScore,
			wq.Enabled,
			wq.ScanCount,
			wq.OpportunitiesFound,
			lastScanned,
		)
	}

	writer.Flush()
	return nil
}

// RemoveWatch deletes a watch query and its opportunities.
func (a *App) RemoveWatch(ctx context.Context, id string) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; cannot remove watch")
	}
	defer closeStore()

	if err := store.DeleteWatchQuery(ctx, id); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "watch %s removed\n", id)
	return nil
}
