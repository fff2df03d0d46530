package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"dealscout/internal/storage"
)

// Export renders discovered opportunities as CSV and/or a PNG chart of
// deal scores over time.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	defer closeStore()

	opps, err := store.ListOpportunities(ctx, storage.OpportunityFilter{
		Status: opts.Status,
		Limit:  opts.MaxPoints,
	})
	if err != nil {
		return err
	}
	if len(opps) == 0 {
		a.Logger.Info().Msg("no opportunities found for export")
		return nil
	}

	// Listings come back newest-first; charts want chronological order.
	reverseOpportunities(opps)
	downsampled := downsampleOpportunities(opps, opts.MaxPoints)
	a.Logger.Info().Int("total", len(opps)).Int("exported", len(downsampled)).Msg("exporting opportunities")

	if opts.CSVPath != "" {
		if err := writeOpportunitiesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if len(downsampled) < 2 {
			a.Logger.Warn().Msg("need at least two opportunities to chart; skipping png")
			return nil
		}
		if err := writeOpportunitiesPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func reverseOpportunities(opps []storage.Opportunity) {
	for i, j := 0, len(opps)-1; i < j; i, j = i+1, j-1 {
		opps[i], opps[j] = opps[j], opps[i]
	}
}

func downsampleOpportunities(opps []storage.Opportunity, max int) []storage.Opportunity {
	if max <= 0 || len(opps) <= max {
		return opps
	}

	result := make([]storage.Opportunity, 0, max)
	step := float64(len(opps)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(opps) {
			idx = len(opps) - 1
		}
		result = append(result, opps[idx])
	}
	return result
}

func writeOpportunitiesCSV(path string, opps []storage.Opportunity) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"found_at", "watch_query_id", "title", "current_price", "estimated_sell_price", "estimated_profit", "deal_score", "deal_verdict", "status", "condition", "item_url"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, opp := range opps {
		record := []string{
			opp.FoundAt.UTC().Format(time.RFC3339),
			opp.WatchQueryID,
			opp.Title,
			opp.CurrentPrice.String(),
			opp.EstimatedSellPrice.String(),
			opp.EstimatedProfit.String(),
			strconv.Itoa(opp.DealScore),
			opp.DealVerdict,
			opp.Status,
			opp.Condition,
			opp.ItemURL,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeOpportunitiesPNG(path string, opps []storage.Opportunity) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(opps))
	scores := make([]float64, len(opps))
	profits := make([]float64, len(opps))

	for i, opp := range opps {
		x[i] = opp.FoundAt
		scores[i] = float64(opp.DealScore)
		profits[i] = opp.EstimatedProfit.InexactFloat64()
	}

	moneyFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Deal score",
			ValueFormatter: moneyFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Est. profit ($)",
			ValueFormatter: moneyFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Deal score",
				XValues: x,
				YValues: scores,
			},
			chart.TimeSeries{
				Name:    "Est. profit",
				XValues: x,
				YValues: profits,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

