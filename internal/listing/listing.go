// Package listing defines the normalized listing shape every marketplace
// adapter produces, plus the per-adapter search result type.
package listing

import (
	"github.com/shopspring/decimal"
)

// Source identifies which marketplace produced a listing.
type Source string

const (
	SourceEbay       Source = "ebay"
	SourceEbayScrape Source = "ebay_scrape"
	SourcePoshmark   Source = "poshmark"
	SourceMercari    Source = "mercari"
	SourceFacebook   Source = "facebook"
)

// Type distinguishes live listings from completed sales.
type Type string

const (
	TypeActive Type = "active"
	TypeSold   Type = "sold"
)

// Listing is one observed marketplace listing, normalized across sources.
// Price is nil when the source did not expose a parseable price; such
// listings are excluded from price statistics.
type Listing struct {
	Title     string           `json:"title"`
	Price     *decimal.Decimal `json:"price"`
	Currency  string           `json:"currency"`
	Condition string           `json:"condition"`
	ImageURL  string           `json:"image_url"`
	ItemURL   string           `json:"item_url"`
	Seller    string           `json:"seller,omitempty"`
	Source    Source           `json:"source"`
	Type      Type             `json:"listing_type"`
	// SoldDate holds the source's sold/ended timestamp text for sold
	// listings. It is parsed best-effort downstream; unparseable values
	// simply drop out of days-to-sell math.
	SoldDate string `json:"sold_date,omitempty"`
}

// HasPrice reports whether the listing carries a positive price.
func (l Listing) HasPrice() bool {
	return l.Price != nil && l.Price.IsPositive()
}

// Result is the outcome of one adapter search. Adapters never return
// plain errors for ordinary network or parse failures: they degrade to an
// empty Result carrying the reason, so one broken source cannot abort a
// multi-source search.
type Result struct {
	Listings []Listing
	Total    int
	Degraded error
}

// Degrade builds an empty Result recording why the fetch produced no data.
func Degrade(err error) Result {
	return Result{Degraded: err}
}

// OK reports whether the underlying fetch succeeded, regardless of how
// many listings it yielded.
func (r Result) OK() bool {
	return r.Degraded == nil
}

// Prices extracts the positive prices from a set of listings.
func Prices(listings []Listing) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(listings))
	for _, l := range listings {
		if l.HasPrice() {
			out = append(out, *l.Price)
		}
	}
	return out
}
