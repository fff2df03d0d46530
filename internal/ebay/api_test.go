package ebay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dealscout/internal/listing"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestConfigured(t *testing.T) {
	cases := []struct {
		appID, certID string
		want          bool
	}{
		{"", "", false},
		{"app", "", false},
		{placeholderAppID, "cert", false},
		{"app", "cert", true},
	}
	for _, tc := range cases {
		c := NewAPIClient(APIOptions{AppID: tc.appID, CertID: tc.certID}, noopLogger())
		if c.Configured() != tc.want {
			t.Fatalf("Configured(%q, %q) = %v, want %v", tc.appID, tc.certID, !tc.want, tc.want)
		}
	}
}

func TestTokenCachedUntilNearExpiry(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("Authorization") == "" {
			t.Fatal("token request missing basic auth")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1",
			"expires_in":   7200,
		})
	}))
	defer srv.Close()

	cache := newTokenCache("app", "cert", srv.URL, &http.Client{Timeout: time.Second})

	for i := 0; i < 3; i++ {
		tok, err := cache.Token(context.Background())
		if err != nil {
			t.Fatalf("token fetch failed: %v", err)
		}
		if tok != "tok-1" {
			t.Fatalf("unexpected token %q", tok)
		}
	}
	if requests != 1 {
		t.Fatalf("token endpoint hit %d times, want 1 (cached)", requests)
	}
}

func TestTokenRefreshedNearExpiry(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		// Expires within the 60s refresh margin, so every call refetches.
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 30})
	}))
	defer srv.Close()

	cache := newTokenCache("app", "cert", srv.URL, &http.Client{Timeout: time.Second})
	for i := 0; i < 2; i++ {
		if _, err := cache.Token(context.Background()); err != nil {
			t.Fatalf("token fetch failed: %v", err)
		}
	}
	if requests != 2 {
		t.Fatalf("near-expiry token should refresh each call, got %d requests", requests)
	}
}

func TestSearchActiveParsesBrowseResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 7200})
	})
	mux.HandleFunc("/browse", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Fatalf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"total": 321,
			"itemSummaries": []map[string]any{
				{
					"title":      "Vintage Camera",
					"price":      map[string]string{"value": "45.99", "currency": "USD"},
					"condition":  "Used",
					"itemWebUrl": "https://www.ebay.com/itm/123456",
					"image":      map[string]string{"imageUrl": "https://img/1.jpg"},
					"seller":     map[string]string{"username": "cam_seller"},
				},
				{
					"title":      "No Price Listing",
					"itemWebUrl": "https://www.ebay.com/itm/999",
				},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewAPIClient(APIOptions{
		AppID: "app", CertID: "cert",
		OAuthURL:  srv.URL + "/token",
		BrowseURL: srv.URL + "/browse",
		Timeout:   time.Second,
	}, noopLogger())

	res := c.SearchActive(context.Background(), "vintage camera", 50)
	if !res.OK() {
		t.Fatalf("search degraded: %v", res.Degraded)
	}
	if res.Total != 321 {
		t.Fatalf("total = %d, want 321", res.Total)
	}
	if len(res.Listings) != 2 {
		t.Fatalf("got %d listings, want 2", len(res.Listings))
	}

	got := res.Listings[0]
	if got.Title != "Vintage Camera" || !got.Price.Equal(decimal.NewFromFloat(45.99)) {
		t.Fatalf("first listing mapped badly: %+v", got)
	}
	if got.Source != listing.SourceEbay || got.Type != listing.TypeActive {
		t.Fatalf("wrong source/type: %s/%s", got.Source, got.Type)
	}
	if res.Listings[1].Price != nil {
		t.Fatal("missing price must normalize to nil")
	}
}

func TestSearchActiveDegradesOnServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 7200})
	})
	mux.HandleFunc("/browse", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewAPIClient(APIOptions{
		AppID: "app", CertID: "cert",
		OAuthURL:  srv.URL + "/token",
		BrowseURL: srv.URL + "/browse",
		Timeout:   time.Second,
	}, noopLogger())

	res := c.SearchActive(context.Background(), "anything", 50)
	if res.OK() {
		t.Fatal("rate-limited search should degrade")
	}
	if len(res.Listings) != 0 || res.Total != 0 {
		t.Fatalf("degraded result must be empty, got %d/%d", len(res.Listings), res.Total)
	}
}

func TestParseFindingResponse(t *testing.T) {
	payload := []byte(`{
		"findCompletedItemsResponse": [{
			"paginationOutput": [{"totalEntries": ["57"]}],
			"searchResult": [{"item": [{
				"title": ["Sold Camera"],
				"galleryURL": ["https://img/2.jpg"],
				"viewItemURL": ["https://www.ebay.com/itm/777"],
				"sellingStatus": [{"currentPrice": [{"__value__": "88.50", "@currencyId": "USD"}]}],
				"condition": [{"conditionDisplayName": ["Good"]}],
				"listingInfo": [{"endTime": ["2026-08-01T12:00:00.000Z"]}]
			}]}]
		}]
	}`)

	items, total, err := parseFindingResponse(payload)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if total != 57 {
		t.Fatalf("total = %d, want 57", total)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}

	got := items[0]
	if got.Title != "Sold Camera" || !got.Price.Equal(decimal.NewFromFloat(88.50)) {
		t.Fatalf("item mapped badly: %+v", got)
	}
	if got.Type != listing.TypeSold || got.SoldDate == "" || got.Condition != "Good" {
		t.Fatalf("sold metadata mapped badly: %+v", got)
	}
}

func TestParseFindingResponseWithoutResponseKey(t *testing.T) {
	if _, _, err := parseFindingResponse([]byte(`{"errorMessage": []}`)); err == nil {
		t.Fatal("missing response key should be an error")
	}
}
