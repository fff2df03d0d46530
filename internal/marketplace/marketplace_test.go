package marketplace

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dealscout/internal/listing"
)

var decimalComparer = cmp.Comparer(func(a, b decimal.Decimal) bool {
	return a.Equal(b)
})

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestPoshmarkSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("type"); got != "listings" {
			t.Fatalf("type param = %q, want listings", got)
		}
		fmt.Fprint(w, `{"data": [
			{"id": "abc123", "title": "Nike Dunk Low", "price_amount": {"val": "85.00"},
			 "condition": "nwt", "picture_url": "https://img/dunk.jpg"},
			{"id": "def456", "title": "Worn Jordans", "price": "$42.50"},
			{"id": "ghi789", "title": "No Price Item"}
		]}`)
	}))
	defer srv.Close()

	c := NewPoshmarkClient(PoshmarkOptions{SearchURL: srv.URL, Timeout: time.Second}, noopLogger())
	items, err := c.Search(context.Background(), "nike dunk", 20)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}

	first := items[0]
	if first.Title != "Nike Dunk Low" || !first.Price.Equal(decimal.NewFromInt(85)) {
		t.Fatalf("first item mapped badly: %+v", first)
	}
	if first.ItemURL != "https://poshmark.com/listing/abc123" {
		t.Fatalf("item url = %q", first.ItemURL)
	}
	if first.Source != listing.SourcePoshmark || first.Type != listing.TypeActive {
		t.Fatalf("wrong source/type: %s/%s", first.Source, first.Type)
	}

	// price_amount.val missing falls back to the display price string.
	if !items[1].Price.Equal(decimal.NewFromFloat(42.5)) {
		t.Fatalf("fallback price = %v, want 42.5", items[1].Price)
	}
	if items[2].Price != nil {
		t.Fatal("unparseable price must stay nil")
	}
}

func TestPoshmarkSearchHTMLResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>search results</body></html>")
	}))
	defer srv.Close()

	c := NewPoshmarkClient(PoshmarkOptions{SearchURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := c.Search(context.Background(), "anything", 20); err == nil {
		t.Fatal("html response should be an error")
	}
}

func TestPoshmarkSearchTruncatesToLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": [
			{"id": "1", "title": "A"}, {"id": "2", "title": "B"}, {"id": "3", "title": "C"}
		]}`)
	}))
	defer srv.Close()

	c := NewPoshmarkClient(PoshmarkOptions{SearchURL: srv.URL, Timeout: time.Second}, noopLogger())
	items, err := c.Search(context.Background(), "anything", 2)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
}

func TestMercariSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("operationName"); got != "searchFacetQuery" {
			t.Fatalf("operationName = %q", got)
		}
		fmt.Fprint(w, `{"data": {"search": {"itemsList": [
			{"id": "m111", "name": "Switch OLED", "price": 24999,
			 "itemCondition": {"name": "Like new"},
			 "thumbnails": ["https://img/switch.jpg"]},
			{"id": "m222", "name": "Free Thing", "price": 0}
		]}}}`)
	}))
	defer srv.Close()

	c := NewMercariClient(MercariOptions{APIURL: srv.URL, Timeout: time.Second}, noopLogger())
	items, err := c.Search(context.Background(), "switch oled", 20)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}

	// Mercari prices arrive in cents.
	price := decimal.NewFromFloat(249.99)
	want := listing.Listing{
		Title:     "Switch OLED",
		Price:     &price,
		Currency:  "USD",
		Condition: "Like new",
		ImageURL:  "https://img/switch.jpg",
		ItemURL:   "https://www.mercari.com/us/item/m111",
		Source:    listing.SourceMercari,
		Type:      listing.TypeActive,
	}
	if diff := cmp.Diff(want, items[0], decimalComparer); diff != "" {
		t.Fatalf("item mapped badly (-want +got):\n%s", diff)
	}
	if items[1].Price != nil {
		t.Fatal("zero price must stay nil")
	}
}

func TestMercariSearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewMercariClient(MercariOptions{APIURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := c.Search(context.Background(), "anything", 20); err == nil {
		t.Fatal("403 should be an error")
	}
}

func TestFacebookConnectedWithoutState(t *testing.T) {
	s := NewFacebookScraper(FacebookOptions{StateDir: filepath.Join(t.TempDir(), "absent")}, noopLogger())
	if s.Connected() {
		t.Fatal("empty state dir must report disconnected")
	}
	if NewFacebookScraper(FacebookOptions{}, noopLogger()).Connected() {
		t.Fatal("unset state dir must report disconnected")
	}
}

func TestParseGraphQLCapture(t *testing.T) {
	body := []byte(`{"data": {"marketplace_search": {"feed_units": {"edges": [
		{"node": {"listing": {
			"id": "987654",
			"marketplace_listing_title": "Herman Miller Aeron",
			"listing_price": {"formatted_amount": "$350"},
			"primary_listing_photo": {"image": {"uri": "https://img/chair.jpg"}}
		}}},
		{"node": {"listing": {
			"id": "987654",
			"marketplace_listing_title": "Herman Miller Aeron",
			"listing_price": {"formatted_amount": "$350"},
			"primary_listing_photo": {"image": {"uri": "https://img/chair.jpg"}}
		}}},
		{"node": {"listing": {
			"id": "111",
			"marketplace_listing_title": "Untitled no price no photo"
		}}}
	]}}}}`)

	items := Dedupe(parseGraphQLCapture(body))
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1 after dedupe and filtering", len(items))
	}

	got := items[0]
	if got.Title != "Herman Miller Aeron" || !got.Price.Equal(decimal.NewFromInt(350)) {
		t.Fatalf("listing mapped badly: %+v", got)
	}
	if got.ItemURL != "https://www.facebook.com/marketplace/item/987654" {
		t.Fatalf("item url = %q", got.ItemURL)
	}
	if got.Source != listing.SourceFacebook {
		t.Fatalf("source = %s", got.Source)
	}
}

func TestParseGraphQLCaptureNDJSON(t *testing.T) {
	body := []byte(`{"data": {"node": {"marketplace_listing_title": "First Lot", "listing_price": {"amount": "20"}, "primary_listing_photo": {"image": {"uri": "u"}}}}}
{"data": {"node": {"marketplace_listing_title": "Second Lot", "listing_price": {"amount": "30"}, "primary_listing_photo": {"image": {"uri": "u"}}}}}`)

	items := parseGraphQLCapture(body)
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2 from two json lines", len(items))
	}
}

func TestParseGraphQLCaptureDepthBound(t *testing.T) {
	// Bury a listing below the walk depth cap; it must not surface.
	deep := `{"marketplace_listing_title": "Too Deep", "listing_price": {"amount": "5"}, "primary_listing_photo": {"image": {"uri": "u"}}}`
	for i := 0; i < 20; i++ {
		deep = `{"wrap": ` + deep + `}`
	}
	if items := parseGraphQLCapture([]byte(deep)); len(items) != 0 {
		t.Fatalf("got %d items from over-deep document, want 0", len(items))
	}
}

func TestDedupeKeepsDistinctPrices(t *testing.T) {
	p1 := decimal.NewFromInt(10)
	p2 := decimal.NewFromInt(20)
	in := []listing.Listing{
		{Title: "Same", Price: &p1},
		{Title: "Same", Price: &p2},
		{Title: "Same", Price: &p1},
		{Title: "Same"},
	}
	out := Dedupe(in)
	if len(out) != 3 {
		t.Fatalf("got %d items, want 3", len(out))
	}
}
