package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"dealscout/internal/storage"
)

// Show prints recently discovered opportunities.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; cannot show opportunities")
	}
	defer closeStore()

	opps, err := store.ListOpportunities(ctx, storage.OpportunityFilter{
		Status:   opts.Status,
		MinScore: opts.MinScore,
		Limit:    opts.Limit,
	})
	if err != nil {
		return err
	}
	if len(opps) == 0 {
		fmt.Fprintln(os.Stdout, "no opportunities found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Found (UTC)\tScore\tVerdict\tPrice\tEst. Profit\tStatus\tTitle")

	for _, opp := range opps {
		fmt.Fprintf(
			writer,
			"%s\t%d\t%s\t$%s\t$%s\t%s\t%s\n",
			opp.FoundAt.UTC().Format(time.RFC3339),
			opp.DealScore,
			opp.DealVerdict,
			opp.CurrentPrice.StringFixed(2),
			opp.EstimatedProfit.StringFixed(2),
			opp.Status,
			sanitizeInline(opp.Title),
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
