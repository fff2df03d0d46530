// Package scanner runs the background deal-discovery loop: on an
// interval it loads enabled watch queries, pulls market samples per
// query, scores them, and persists qualifying listings as
// opportunities.
package scanner

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dealscout/internal/aggregator"
	"dealscout/internal/metrics"
	"dealscout/internal/pricing"
	"dealscout/internal/storage"
)

// Per-item economics shared with the pricing engine's cost model.
var (
	netRate      = decimal.NewFromFloat(0.87) // 1 - 13% final-value fee
	shippingCost = decimal.NewFromFloat(7.0)
	hundred      = decimal.NewFromInt(100)
)

// SampleSearcher provides the scanner-sized market samples per query.
type SampleSearcher interface {
	SearchSamples(ctx context.Context, query string, limit int) aggregator.Samples
}

// Store is the persistence surface the scanner needs.
type Store interface {
	ListWatchQueries(ctx context.Context, enabledOnly bool) ([]storage.WatchQuery, error)
	MarkWatchScanned(ctx context.Context, id string, foundCount int) error
	InsertOpportunityIfAbsent(ctx context.Context, opp storage.Opportunity) (bool, error)
	ScannerStats(ctx context.Context) (storage.ScannerStats, error)
}

// Notifier is told about newly found hot deals. It may be nil.
type Notifier interface {
	NotifyOpportunity(ctx context.Context, opp storage.Opportunity) error
}

// Options tune scanner behaviour.
type Options struct {
	// Interval between scan cycles. Defaults to 10 minutes.
	Interval time.Duration
	// SampleLimit caps active and sold samples per query. Defaults to 50.
	SampleLimit int
	// QueryDelay is the politeness pause between queries. Defaults to 1s.
	QueryDelay time.Duration
}

// Scanner owns the scan loop's run state. Only one loop is active at a
// time; start while running and stop while stopped are reported no-ops.
type Scanner struct {
	opts     Options
	search   SampleSearcher
	store    Store
	notifier Notifier
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a stopped Scanner.
func New(opts Options, search SampleSearcher, store Store, notifier Notifier, logger zerolog.Logger) *Scanner {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Minute
	}
	if opts.SampleLimit <= 0 {
		opts.SampleLimit = 50
	}
	if opts.QueryDelay < 0 {
		opts.QueryDelay = 0
	} else if opts.QueryDelay == 0 {
		opts.QueryDelay = time.Second
	}
	return &Scanner{
		opts:     opts,
		search:   search,
		store:    store,
		notifier: notifier,
		logger:   logger.With().Str("component", "scanner").Logger(),
	}
}

// Start launches the scan loop. Returns false if already running.
func (s *Scanner) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	metrics.ScannerRunning.Set(1)

	go s.loop(ctx, s.done)
	s.logger.Info().Dur("interval", s.opts.Interval).Msg("scanner started")
	return true
}

// Stop requests the loop to exit. Returns false if not running. The
// loop observes the cancellation within about a second; an in-flight
// query scan is allowed to finish.
func (s *Scanner) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return false
	}

	s.cancel()
	s.running = false
	metrics.ScannerRunning.Set(0)
	s.logger.Info().Msg("scanner stop requested")
	return true
}

// IsRunning reports whether the loop is active.
func (s *Scanner) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunCycleNow fires one immediate scan cycle in the background,
// independent of the timer loop.
func (s *Scanner) RunCycleNow() {
	go func() {
		if err := s.RunCycle(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("manual scan cycle failed")
		}
	}()
}

// Stats reports the persisted scanner footprint.
func (s *Scanner) Stats(ctx context.Context) (storage.ScannerStats, error) {
	return s.store.ScannerStats(ctx)
}

func (s *Scanner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			s.logger.Info().Msg("scanner stopped")
			return
		}

		if err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("scan cycle error")
		}

		// Sleep the interval in one-second slices so a stop request is
		// honored promptly.
		deadline := time.Now().Add(s.opts.Interval)
		for time.Now().Before(deadline) {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("scanner stopped")
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// RunCycle scans every enabled watch query sequentially, pausing
// between queries to stay polite to the upstream sources. A failing
// query is logged and skipped; the cycle continues.
func (s *Scanner) RunCycle(ctx context.Context) error {
	started := time.Now()

	queries, err := s.store.ListWatchQueries(ctx, true)
	if err != nil {
		return err
	}
	if len(queries) == 0 {
		return nil
	}

	s.logger.Info().Int("watch_queries", len(queries)).Msg("starting scan cycle")

	totalNew := 0
	for i, wq := range queries {
		if ctx.Err() != nil {
			break
		}

		// The in-flight query finishes even if a stop lands mid-scan.
		scanCtx := context.WithoutCancel(ctx)
		newCount, scanErr := s.scanQuery(scanCtx, wq)
		if scanErr != nil {
			s.logger.Warn().Err(scanErr).Str("query", wq.Query).Msg("query scan failed")
			metrics.ScanErrorsTotal.Inc()
		} else {
			if err := s.store.MarkWatchScanned(scanCtx, wq.ID, newCount); err != nil {
				s.logger.Error().Err(err).Str("watch_id", wq.ID).Msg("mark watch scanned failed")
			}
			totalNew += newCount
		}

		if i < len(queries)-1 {
			time.Sleep(s.opts.QueryDelay)
		}
	}

	metrics.ScanCyclesTotal.Inc()
	metrics.ScanCycleDuration.Observe(time.Since(started).Seconds())
	s.logger.Info().Int("new_opportunities", totalNew).Dur("took", time.Since(started)).Msg("scan cycle complete")
	return nil
}

// scanQuery runs one watch query: sample, score, filter, persist.
// Returns the number of newly inserted opportunities.
func (s *Scanner) scanQuery(ctx context.Context, wq storage.WatchQuery) (int, error) {
	samples := s.search.SearchSamples(ctx, wq.Query, s.opts.SampleLimit)
	if samples.ActiveDegraded != nil {
		return 0, samples.ActiveDegraded
	}
	if len(samples.Active) == 0 {
		return 0, nil
	}

	// Sold count stands in for the completed count; the dedicated
	// completed fetch is skipped on the scan path to conserve quota,
	// understating sell-through when ended-unsold listings exist.
	summary := pricing.Analyze(samples.Active, samples.Sold,
		samples.TotalActive, samples.TotalSold, samples.TotalSold)

	estSell := summary.Recommendation.EstimatedSellPrice
	if estSell == nil || !estSell.IsPositive() {
		return 0, nil
	}

	newCount := 0
	for _, item := range samples.Active {
		if !item.HasPrice() {
			continue
		}
		price := *item.Price
		if wq.MaxBuyPrice != nil && price.GreaterThan(*wq.MaxBuyPrice) {
			continue
		}

		profit := estSell.Mul(netRate).Sub(shippingCost).Sub(price)
		if profit.LessThan(wq.MinProfit) {
			continue
		}

		roi := profit.Div(price).Mul(hundred)
		score := summary.DealScore.Score
		if roi.GreaterThan(hundred) {
			score = min(score+15, 100)
		} else if roi.GreaterThan(decimal.NewFromInt(60)) {
			score = min(score+5, 100)
		}
		if score < wq.MinDealScore {
			continue
		}

		verdict := summary.DealScore.Verdict
		if roi.GreaterThanOrEqual(decimal.NewFromInt(80)) {
			verdict = pricing.VerdictHot
		} else if roi.GreaterThanOrEqual(decimal.NewFromInt(50)) {
			verdict = pricing.VerdictGood
		}

		opp := storage.Opportunity{
			WatchQueryID:       wq.ID,
			SourceItemID:       extractItemID(item.ItemURL),
			Title:              item.Title,
			CurrentPrice:       price,
			EstimatedSellPrice: estSell.Round(2),
			EstimatedProfit:    profit.Round(2),
			DealScore:          score,
			DealVerdict:        string(verdict),
			ItemURL:            item.ItemURL,
			ImageURL:           item.ImageURL,
			Condition:          item.Condition,
			Seller:             item.Seller,
		}

		inserted, err := s.store.InsertOpportunityIfAbsent(ctx, opp)
		if err != nil {
			s.logger.Error().Err(err).Str("item_url", item.ItemURL).Msg("persist opportunity failed")
			continue
		}
		if !inserted {
			continue
		}

		newCount++
		metrics.OpportunitiesFound.Inc()
		if s.notifier != nil && verdict == pricing.VerdictHot {
			if err := s.notifier.NotifyOpportunity(ctx, opp); err != nil {
				s.logger.Warn().Err(err).Str("title", opp.Title).Msg("opportunity notification failed")
			}
		}
	}

	return newCount, nil
}

// extractItemID pulls the numeric item id from a primary-marketplace
// URL; any other URL is used whole as the deduplication key.
func extractItemID(itemURL string) string {
	if idx := strings.LastIndex(itemURL, "/itm/"); idx >= 0 {
		tail := itemURL[idx+len("/itm/"):]
		if q := strings.IndexByte(tail, '?'); q >= 0 {
			tail = tail[:q]
		}
		if slash := strings.LastIndexByte(tail, '/'); slash >= 0 {
			tail = tail[slash+1:]
		}
		if tail != "" && isDigits(tail) {
			return tail
		}
	}
	return itemURL
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
