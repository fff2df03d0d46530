package aggregator

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dealscout/internal/listing"
)

type fakePrimary struct {
	configured bool
	active     listing.Result
	sold       listing.Result
	completed  listing.Result
	calls      int
}

func (f *fakePrimary) SearchActive(context.Context, string, int) listing.Result {
	f.calls++
	return f.active
}

func (f *fakePrimary) SearchSold(context.Context, string, int) listing.Result {
	return f.sold
}

func (f *fakePrimary) SearchCompleted(context.Context, string, int) listing.Result {
	return f.completed
}

func (f *fakePrimary) Configured() bool { return f.configured }

type fakePlatform struct {
	name  string
	items []listing.Listing
	err   error
	calls int
}

func (f *fakePlatform) Platform() string { return f.name }

func (f *fakePlatform) Search(context.Context, string, int) ([]listing.Listing, error) {
	f.calls++
	return f.items, f.err
}

type fakeSession struct {
	fakePlatform
	connected bool
}

func (f *fakeSession) Connected() bool { return f.connected }

type fakeSettings struct {
	mode      string
	fbEnabled bool
}

func (s fakeSettings) EbayMode() string      { return s.mode }
func (s fakeSettings) FacebookEnabled() bool { return s.fbEnabled }

func someListings(n int) listing.Result {
	price := decimal.NewFromInt(25)
	items := make([]listing.Listing, n)
	for i := range items {
		items[i] = listing.Listing{Title: "item", Price: &price}
	}
	return listing.Result{Listings: items, Total: n}
}

func newTestAggregator(api *fakePrimary, scraper *fakePrimary, settings Settings) *Aggregator {
	return New(Options{API: api, Scraper: scraper, Settings: settings}, zerolog.Nop())
}

func TestAutoPrefersConfiguredAPI(t *testing.T) {
	api := &fakePrimary{configured: true, active: someListings(3), sold: someListings(2)}
	scraper := &fakePrimary{active: someListings(9)}

	agg := newTestAggregator(api, scraper, fakeSettings{mode: ModeAuto})
	res := agg.Search(context.Background(), "camera")

	if res.SourceMode != ModeAPI {
		t.Fatalf("source mode = %q, want api", res.SourceMode)
	}
	if len(res.Active) != 3 || len(res.Sold) != 2 {
		t.Fatalf("wrong listings: %d active, %d sold", len(res.Active), len(res.Sold))
	}
	if scraper.calls != 0 {
		t.Fatal("scraper should not run when the api produced data")
	}
}

func TestAutoFallsBackOnEmptyAPI(t *testing.T) {
	// Configured but producing nothing: rate-limited or shape drift.
	api := &fakePrimary{configured: true}
	scraper := &fakePrimary{active: someListings(4), sold: someListings(1)}

	agg := newTestAggregator(api, scraper, fakeSettings{mode: ModeAuto})
	res := agg.Search(context.Background(), "camera")

	if res.SourceMode != ModeScrape {
		t.Fatalf("source mode = %q, want scrape", res.SourceMode)
	}
	if len(res.Active) != 4 {
		t.Fatalf("got %d active, want scraper's 4", len(res.Active))
	}
}

func TestAutoSkipsUnconfiguredAPI(t *testing.T) {
	api := &fakePrimary{configured: false, active: someListings(5)}
	scraper := &fakePrimary{active: someListings(2)}

	agg := newTestAggregator(api, scraper, fakeSettings{mode: ModeAuto})
	res := agg.Search(context.Background(), "camera")

	if res.SourceMode != ModeScrape {
		t.Fatalf("source mode = %q, want scrape", res.SourceMode)
	}
	if api.calls != 0 {
		t.Fatal("unconfigured api should never be called in auto mode")
	}
}

func TestAutoReportsNoneWhenEverythingFails(t *testing.T) {
	boom := errors.New("blocked")
	api := &fakePrimary{configured: true, active: listing.Degrade(boom), sold: listing.Degrade(boom)}
	scraper := &fakePrimary{active: listing.Degrade(boom), sold: listing.Degrade(boom)}

	agg := newTestAggregator(api, scraper, fakeSettings{mode: ModeAuto})
	res := agg.Search(context.Background(), "camera")

	if res.SourceMode != SourceNone {
		t.Fatalf("source mode = %q, want none", res.SourceMode)
	}
	if len(res.Active) != 0 || len(res.Sold) != 0 {
		t.Fatal("all-failed aggregation must be empty")
	}
}

func TestForcedModesKeepTheirLabel(t *testing.T) {
	api := &fakePrimary{configured: true}
	scraper := &fakePrimary{}

	for mode, wantCalls := range map[string]*fakePrimary{ModeAPI: api, ModeScrape: scraper} {
		agg := newTestAggregator(api, scraper, fakeSettings{mode: mode})
		res := agg.Search(context.Background(), "camera")
		if res.SourceMode != mode {
			t.Fatalf("forced %s mode reported %q", mode, res.SourceMode)
		}
		if wantCalls.calls == 0 {
			t.Fatalf("forced %s mode did not call its adapter", mode)
		}
	}
}

func TestSearchSamplesCarriesActiveDegradation(t *testing.T) {
	boom := errors.New("timeout")
	scraper := &fakePrimary{active: listing.Degrade(boom), sold: someListings(3)}

	agg := newTestAggregator(&fakePrimary{}, scraper, fakeSettings{mode: ModeScrape})
	samples := agg.SearchSamples(context.Background(), "camera", 50)

	if !errors.Is(samples.ActiveDegraded, boom) {
		t.Fatalf("active degradation not carried: %v", samples.ActiveDegraded)
	}
	if len(samples.Sold) != 3 {
		t.Fatal("sold slice should survive an active failure")
	}
}

func TestSecondaryPlatformIsolation(t *testing.T) {
	posh := &fakePlatform{name: "poshmark", items: someListings(2).Listings}
	merc := &fakePlatform{name: "mercari", err: errors.New("403")}

	agg := New(Options{
		API:       &fakePrimary{},
		Scraper:   &fakePrimary{},
		Platforms: []PlatformSearcher{posh, merc},
		Settings:  fakeSettings{mode: ModeScrape},
	}, zerolog.Nop())

	results := agg.SearchSecondary(context.Background(), "camera")

	if len(results["poshmark"]) != 2 {
		t.Fatalf("poshmark got %d items, want 2", len(results["poshmark"]))
	}
	if items, ok := results["mercari"]; !ok || len(items) != 0 {
		t.Fatal("failed platform must contribute an empty list, not be absent")
	}
}

func TestSecondarySkipsDisabledFacebook(t *testing.T) {
	fb := &fakeSession{fakePlatform: fakePlatform{name: "facebook", items: someListings(1).Listings}, connected: true}

	agg := New(Options{
		API:      &fakePrimary{},
		Scraper:  &fakePrimary{},
		Facebook: fb,
		Settings: fakeSettings{mode: ModeScrape, fbEnabled: false},
	}, zerolog.Nop())

	results := agg.SearchSecondary(context.Background(), "camera")
	if fb.calls != 0 {
		t.Fatal("disabled facebook must not be searched")
	}
	if items, ok := results["facebook"]; !ok || len(items) != 0 {
		t.Fatal("disabled facebook still gets an empty slot in the result")
	}
}

func TestSecondarySkipsDisconnectedFacebook(t *testing.T) {
	fb := &fakeSession{fakePlatform: fakePlatform{name: "facebook", items: someListings(1).Listings}, connected: false}

	agg := New(Options{
		API:      &fakePrimary{},
		Scraper:  &fakePrimary{},
		Facebook: fb,
		Settings: fakeSettings{mode: ModeScrape, fbEnabled: true},
	}, zerolog.Nop())

	agg.SearchSecondary(context.Background(), "camera")
	if fb.calls != 0 {
		t.Fatal("disconnected facebook must not be searched")
	}
}

func TestSecondarySearchesConnectedFacebook(t *testing.T) {
	fb := &fakeSession{fakePlatform: fakePlatform{name: "facebook", items: someListings(1).Listings}, connected: true}

	agg := New(Options{
		API:      &fakePrimary{},
		Scraper:  &fakePrimary{},
		Facebook: fb,
		Settings: fakeSettings{mode: ModeScrape, fbEnabled: true},
	}, zerolog.Nop())

	results := agg.SearchSecondary(context.Background(), "camera")
	if len(results["facebook"]) != 1 {
		t.Fatalf("facebook got %d items, want 1", len(results["facebook"]))
	}
}
