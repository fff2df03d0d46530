// Package aggregator routes searches across the marketplace adapters:
// it picks the primary-marketplace retrieval strategy per the live
// configuration, fans sub-searches out concurrently, and reports which
// strategy actually produced the data.
package aggregator

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"dealscout/internal/listing"
	"dealscout/internal/metrics"
)

// Retrieval modes for the primary marketplace.
const (
	ModeAPI    = "api"
	ModeScrape = "scrape"
	ModeAuto   = "auto"

	// SourceNone labels an aggregation where every strategy came back
	// empty. Callers treat it as "no data", not as an error.
	SourceNone = "none"
)

// Default sample sizes for a full market search.
const (
	activeLimit    = 50
	soldLimit      = 50
	completedLimit = 100
)

// Settings is the live configuration view consulted on every call,
// never cached at construction.
type Settings interface {
	EbayMode() string
	FacebookEnabled() bool
}

// PrimarySearcher is the contract both primary-marketplace strategies
// satisfy. Implementations degrade instead of returning errors.
type PrimarySearcher interface {
	SearchActive(ctx context.Context, query string, limit int) listing.Result
	SearchSold(ctx context.Context, query string, limit int) listing.Result
	SearchCompleted(ctx context.Context, query string, limit int) listing.Result
}

// CredentialedSearcher additionally reports whether usable credentials
// are present, the routing signal for auto mode.
type CredentialedSearcher interface {
	PrimarySearcher
	Configured() bool
}

// PlatformSearcher is a secondary-marketplace adapter.
type PlatformSearcher interface {
	Platform() string
	Search(ctx context.Context, query string, limit int) ([]listing.Listing, error)
}

// SessionSearcher is a platform adapter that needs a saved login
// session before it can produce anything.
type SessionSearcher interface {
	PlatformSearcher
	Connected() bool
}

// Result is a full primary-marketplace aggregation.
type Result struct {
	Active         []listing.Listing `json:"active"`
	Sold           []listing.Listing `json:"sold"`
	TotalActive    int               `json:"total_active"`
	TotalSold      int               `json:"total_sold"`
	TotalCompleted int               `json:"total_completed"`
	SourceMode     string            `json:"source_mode"`
}

// Samples is the slimmer active+sold aggregation the scanner uses; the
// completed fetch is skipped to conserve upstream quota.
type Samples struct {
	Active      []listing.Listing
	Sold        []listing.Listing
	TotalActive int
	TotalSold   int
	SourceMode  string

	// ActiveDegraded is the active fetch's failure, when it had one.
	// The scanner aborts a query scan on it rather than scoring
	// against fabricated data.
	ActiveDegraded error
}

// Aggregator owns the adapter set and the routing policy.
type Aggregator struct {
	api       CredentialedSearcher
	scraper   PrimarySearcher
	platforms []PlatformSearcher
	facebook  SessionSearcher
	settings  Settings
	logger    zerolog.Logger
}

// Options wires the Aggregator's collaborators.
type Options struct {
	API       CredentialedSearcher
	Scraper   PrimarySearcher
	Platforms []PlatformSearcher
	Facebook  SessionSearcher
	Settings  Settings
}

// New constructs an Aggregator.
func New(opts Options, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		api:       opts.API,
		scraper:   opts.Scraper,
		platforms: opts.Platforms,
		facebook:  opts.Facebook,
		settings:  opts.Settings,
		logger:    logger.With().Str("component", "aggregator").Logger(),
	}
}

// Search runs a full primary-marketplace aggregation: active, sold and
// completed sub-searches concurrently through the adapter the current
// mode selects.
func (a *Aggregator) Search(ctx context.Context, query string) Result {
	return a.search(ctx, query, true, activeLimit, soldLimit).result
}

// SearchSamples runs the scanner-sized active+sold aggregation.
func (a *Aggregator) SearchSamples(ctx context.Context, query string, limit int) Samples {
	if limit <= 0 {
		limit = activeLimit
	}
	run := a.search(ctx, query, false, limit, limit)
	return Samples{
		Active:         run.result.Active,
		Sold:           run.result.Sold,
		TotalActive:    run.result.TotalActive,
		TotalSold:      run.result.TotalSold,
		SourceMode:     run.result.SourceMode,
		ActiveDegraded: run.activeErr,
	}
}

type primaryRun struct {
	result    Result
	activeErr error
	produced  bool
}

func (a *Aggregator) search(ctx context.Context, query string, withCompleted bool, activeN, soldN int) primaryRun {
	mode := a.settings.EbayMode()

	switch mode {
	case ModeAPI:
		run := a.runPrimary(ctx, a.api, "ebay_api", query, withCompleted, activeN, soldN)
		run.result.SourceMode = ModeAPI
		return run
	case ModeScrape:
		run := a.runPrimary(ctx, a.scraper, "ebay_scrape", query, withCompleted, activeN, soldN)
		run.result.SourceMode = ModeScrape
		return run
	}

	// Auto: prefer the authoritative adapter; an unconfigured client,
	// or one producing zero active and zero sold listings, routes to
	// the scraper.
	if a.api.Configured() {
		run := a.runPrimary(ctx, a.api, "ebay_api", query, withCompleted, activeN, soldN)
		if run.produced {
			run.result.SourceMode = ModeAPI
			return run
		}
		a.logger.Info().Str("query", query).Msg("api produced nothing, falling back to scrape")
	}

	run := a.runPrimary(ctx, a.scraper, "ebay_scrape", query, withCompleted, activeN, soldN)
	if run.produced {
		run.result.SourceMode = ModeScrape
	} else {
		run.result.SourceMode = SourceNone
	}
	return run
}

// runPrimary fans the sub-searches out concurrently; each slice
// degrades to empty on its own failure.
func (a *Aggregator) runPrimary(ctx context.Context, s PrimarySearcher, source, query string, withCompleted bool, activeN, soldN int) primaryRun {
	var (
		wg                      sync.WaitGroup
		active, sold, completed listing.Result
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		active = s.SearchActive(ctx, query, activeN)
	}()
	go func() {
		defer wg.Done()
		sold = s.SearchSold(ctx, query, soldN)
	}()
	if withCompleted {
		wg.Add(1)
		go func() {
			defer wg.Done()
			completed = s.SearchCompleted(ctx, query, completedLimit)
		}()
	}
	wg.Wait()

	counted := []listing.Result{active, sold}
	if withCompleted {
		counted = append(counted, completed)
	}
	for _, r := range counted {
		metrics.SearchesTotal.WithLabelValues(source, outcome(r)).Inc()
	}

	return primaryRun{
		result: Result{
			Active:         active.Listings,
			Sold:           sold.Listings,
			TotalActive:    active.Total,
			TotalSold:      sold.Total,
			TotalCompleted: completed.Total,
		},
		activeErr: active.Degraded,
		produced:  len(active.Listings) > 0 || len(sold.Listings) > 0,
	}
}

// SearchSecondary fans the secondary-platform adapters out
// concurrently. Each platform is isolated: a failed one contributes an
// empty list and a log line, never an error. The social marketplace is
// consulted only when the live configuration enables it and a saved
// session exists.
func (a *Aggregator) SearchSecondary(ctx context.Context, query string) map[string][]listing.Listing {
	const perPlatformLimit = 20

	searchers := make([]PlatformSearcher, 0, len(a.platforms)+1)
	searchers = append(searchers, a.platforms...)
	if a.facebook != nil {
		searchers = append(searchers, a.facebook)
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	results := make(map[string][]listing.Listing, len(searchers))

	for _, s := range searchers {
		results[s.Platform()] = []listing.Listing{}

		if session, ok := s.(SessionSearcher); ok {
			if !a.settings.FacebookEnabled() || !session.Connected() {
				continue
			}
		}

		wg.Add(1)
		go func(s PlatformSearcher) {
			defer wg.Done()
			items, err := s.Search(ctx, query, perPlatformLimit)
			if err != nil {
				a.logger.Warn().Err(err).Str("platform", s.Platform()).Str("query", query).Msg("platform search failed")
				metrics.SearchesTotal.WithLabelValues(s.Platform(), "degraded").Inc()
				return
			}
			metrics.SearchesTotal.WithLabelValues(s.Platform(), "ok").Inc()
			mu.Lock()
			results[s.Platform()] = items
			mu.Unlock()
		}(s)
	}
	wg.Wait()

	return results
}

func outcome(r listing.Result) string {
	if r.OK() {
		return "ok"
	}
	return "degraded"
}
