// Package marketplace holds the secondary-platform search adapters:
// Poshmark and Mercari through the JSON endpoints their own frontends
// call, and Facebook Marketplace through a logged-in browser session.
// All of them are best-effort; a broken platform returns an error and
// the caller decides how much to care.
package marketplace

import (
	"github.com/shopspring/decimal"

	"dealscout/internal/listing"
)

const browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/124.0.0.0 Safari/537.36"

type dedupeKey struct {
	title string
	price string
}

// Dedupe drops listings repeating an earlier (title, price) pair,
// preserving order. GraphQL captures in particular carry the same
// listing in several payloads.
func Dedupe(items []listing.Listing) []listing.Listing {
	seen := make(map[dedupeKey]struct{}, len(items))
	out := make([]listing.Listing, 0, len(items))
	for _, it := range items {
		key := dedupeKey{title: it.Title}
		if it.Price != nil {
			key.price = it.Price.String()
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
