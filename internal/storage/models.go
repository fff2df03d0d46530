package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Opportunity status lifecycle: new -> viewed -> purchased | dismissed.
const (
	StatusNew       = "new"
	StatusViewed    = "viewed"
	StatusPurchased = "purchased"
	StatusDismissed = "dismissed"
)

// WatchQuery is a persistent saved search with profitability thresholds.
type WatchQuery struct {
	ID                 string           `json:"id"`
	Query              string           `json:"query"`
	Category           *string          `json:"category,omitempty"`
	MaxBuyPrice        *decimal.Decimal `json:"max_buy_price,omitempty"`
	MinProfit          decimal.Decimal  `json:"min_profit"`
	MinDealScore       int              `json:"min_deal_score"`
	Enabled            bool             `json:"enabled"`
	LastScanned        *time.Time       `json:"last_scanned,omitempty"`
	ScanCount          int              `json:"scan_count"`
	OpportunitiesFound int              `json:"opportunities_found"`
	CreatedAt          time.Time        `json:"created_at"`
}

// WatchQueryUpdate carries the mutable WatchQuery fields; nil leaves a
// field untouched.
type WatchQueryUpdate struct {
	Query        *string
	Category     *string
	MaxBuyPrice  *decimal.Decimal
	MinProfit    *decimal.Decimal
	MinDealScore *int
	Enabled      *bool
}

// Opportunity is one scored candidate listing surfaced by a scan.
type Opportunity struct {
	ID                 string          `json:"id"`
	WatchQueryID       string          `json:"watch_query_id"`
	SourceItemID       string          `json:"source_item_id"`
	Title              string          `json:"title"`
	CurrentPrice       decimal.Decimal `json:"current_price"`
	EstimatedSellPrice decimal.Decimal `json:"estimated_sell_price"`
	EstimatedProfit    decimal.Decimal `json:"estimated_profit"`
	DealScore          int             `json:"deal_score"`
	DealVerdict        string          `json:"deal_verdict"`
	ItemURL            string          `json:"item_url"`
	ImageURL           string          `json:"image_url"`
	Condition          string          `json:"condition"`
	Seller             string          `json:"seller"`
	FoundAt            time.Time       `json:"found_at"`
	Status             string          `json:"status"`
	InventoryItemID    *string         `json:"inventory_item_id,omitempty"`
}

// OpportunityFilter narrows a listing query; zero values mean "any".
type OpportunityFilter struct {
	Status       string
	WatchQueryID string
	MinScore     int
	Limit        int
}

// ScannerStats summarises the scanner's persisted footprint.
type ScannerStats struct {
	ActiveWatches      int        `json:"active_watches"`
	NewOpportunities   int        `json:"new_opportunities"`
	Purchased          int        `json:"purchased"`
	TotalOpportunities int        `json:"total_opportunities_found"`
	LastScan           *time.Time `json:"last_scan,omitempty"`
}
