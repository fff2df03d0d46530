package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"dealscout/internal/listing"
	"dealscout/internal/pricing"
)

// Analyze runs a one-off market lookup for a query and prints the
// pricing engine's verdict.
func (a *App) Analyze(ctx context.Context, opts AnalyzeOptions) error {
	if strings.TrimSpace(opts.Query) == "" {
		return errors.New("query must not be empty")
	}

	agg := a.newAggregator()
	result := agg.Search(ctx, opts.Query)
	summary := pricing.Analyze(result.Active, result.Sold, result.TotalActive, result.TotalSold, result.TotalCompleted)

	var platforms map[string][]listing.Listing
	if opts.Platforms {
		platforms = agg.SearchSecondary(ctx, opts.Query)
	}

	if opts.JSON {
		payload := map[string]any{
			"query":       opts.Query,
			"source_mode": result.SourceMode,
			"analysis":    summary,
		}
		if platforms != nil {
			payload["platforms"] = platforms
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	printSummary(opts.Query, result.SourceMode, summary)
	if platforms != nil {
		printPlatforms(platforms)
	}
	return nil
}

func printSummary(query, mode string, s pricing.Summary) {
	fmt.Fprintf(os.Stdout, "%q via %s\n\n", query, mode)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Verdict\t%s (%d/100)\n", s.DealScore.Verdict, s.DealScore.Score)
	fmt.Fprintf(writer, "Samples\t%d active / %d sold (%d on market)\n", s.ActiveCount, s.SoldCount, s.TotalActiveOnMarket)
	fmt.Fprintf(writer, "Asking median\t%s\n", money(s.AskingPrice.Median))
	fmt.Fprintf(writer, "Sold median\t%s\n", money(s.SoldPrice.Median))
	fmt.Fprintf(writer, "Max buy\t%s\n", money(s.Recommendation.MaxBuyPrice))
	fmt.Fprintf(writer, "Est. sell\t%s\n", money(s.Recommendation.EstimatedSellPrice))
	fmt.Fprintf(writer, "Est. profit\t%s\n", money(s.Recommendation.EstimatedProfit))
	if s.Recommendation.ROIPercent != nil {
		fmt.Fprintf(writer, "ROI\t%s%%\n", s.Recommendation.ROIPercent.StringFixed(1))
	}
	if s.SellThrough.Percent != nil {
		fmt.Fprintf(writer, "Sell-through\t%s%% (%s)\n", s.SellThrough.Percent.StringFixed(1), s.SellThrough.Liquidity)
	}
	fmt.Fprintf(writer, "Confidence\t%s\n", s.Recommendation.Confidence)
	writer.Flush()

	if s.DealScore.Summary != "" {
		fmt.Fprintf(os.Stdout, "\n%s\n", s.DealScore.Summary)
	}
	if s.Recommendation.SpreadWarning != "" {
		fmt.Fprintf(os.Stdout, "warning: %s\n", s.Recommendation.SpreadWarning)
	}
	if s.Recommendation.LiquidityWarning != "" {
		fmt.Fprintf(os.Stdout, "warning: %s\n", s.Recommendation.LiquidityWarning)
	}
}

func printPlatforms(platforms map[string][]listing.Listing) {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for platform, items := range platforms {
		fmt.Fprintf(writer, "\n%s\t%d listings\n", platform, len(items))
		for _, item := range items {
			price := "-"
			if item.Price != nil {
				price = "$" + item.Price.StringFixed(2)
			}
			fmt.Fprintf(writer, "  %s\t%s\n", price, sanitizeInline(item.Title))
		}
	}
	writer.Flush()
}

func money(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return "$" + d.StringFixed(2)
}
