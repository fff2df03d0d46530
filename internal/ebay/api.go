// Package ebay provides the two retrieval strategies for the primary
// marketplace: the authoritative Browse/Finding API client and the
// search-page scraper used as its zero-credential fallback.
package ebay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dealscout/internal/listing"
)

const (
	defaultBrowseURL  = "https://api.ebay.com/buy/browse/v1/item_summary/search"
	defaultFindingURL = "https://svcs.ebay.com/services/search/FindingService/v1"

	// Credentials shipped in example configs; treated as absent.
	placeholderAppID = "your-ebay-app-id"
)

// APIOptions parameterise the authoritative API client.
type APIOptions struct {
	AppID      string
	CertID     string
	OAuthURL   string
	BrowseURL  string
	FindingURL string
	Timeout    time.Duration
}

// APIClient searches eBay through the Browse API (active listings) and
// the Finding API (sold/completed listings).
type APIClient struct {
	opts       APIOptions
	logger     zerolog.Logger
	client     *http.Client
	tokens     *tokenCache
	browseURL  string
	findingURL string
}

// NewAPIClient constructs the authoritative adapter.
func NewAPIClient(opts APIOptions, logger zerolog.Logger) *APIClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}

	browseURL := opts.BrowseURL
	if browseURL == "" {
		browseURL = defaultBrowseURL
	}
	findingURL := opts.FindingURL
	if findingURL == "" {
		findingURL = defaultFindingURL
	}

	return &APIClient{
		opts:       opts,
		logger:     logger.With().Str("component", "ebay_api").Logger(),
		client:     client,
		tokens:     newTokenCache(opts.AppID, opts.CertID, opts.OAuthURL, client),
		browseURL:  browseURL,
		findingURL: findingURL,
	}
}

// Configured reports whether non-placeholder credentials are present.
// This is a routing signal for auto mode, not an error condition.
func (c *APIClient) Configured() bool {
	return c.opts.AppID != "" && c.opts.CertID != "" && c.opts.AppID != placeholderAppID
}

// SearchActive queries the Browse API for live listings.
func (c *APIClient) SearchActive(ctx context.Context, query string, limit int) listing.Result {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Str("query", query).Msg("oauth token unavailable")
		return listing.Degrade(err)
	}

	params := url.Values{
		"q":     {query},
		"limit": {strconv.Itoa(min(limit, 50))},
		"sort":  {"price"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.browseURL+"?"+params.Encode(), nil)
	if err != nil {
		return listing.Degrade(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-EBAY-C-MARKETPLACE-ID", "EBAY_US")

	body, err := c.do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("query", query).Msg("browse search failed")
		return listing.Degrade(err)
	}

	var payload browseResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		c.logger.Warn().Err(err).Str("query", query).Msg("browse response unparseable")
		return listing.Degrade(err)
	}

	items := make([]listing.Listing, 0, len(payload.ItemSummaries))
	for _, it := range payload.ItemSummaries {
		items = append(items, it.normalize())
	}
	return listing.Result{Listings: items, Total: payload.Total}
}

// SearchSold queries the Finding API for completed listings that sold.
func (c *APIClient) SearchSold(ctx context.Context, query string, limit int) listing.Result {
	return c.findingSearch(ctx, query, limit, true)
}

// SearchCompleted queries the Finding API for all completed listings,
// sold and unsold; the total feeds sell-through math.
func (c *APIClient) SearchCompleted(ctx context.Context, query string, limit int) listing.Result {
	return c.findingSearch(ctx, query, limit, false)
}

func (c *APIClient) findingSearch(ctx context.Context, query string, limit int, soldOnly bool) listing.Result {
	params := url.Values{
		"OPERATION-NAME":                 {"findCompletedItems"},
		"SERVICE-VERSION":                {"1.13.0"},
		"SECURITY-APPNAME":               {c.opts.AppID},
		"RESPONSE-DATA-FORMAT":           {"JSON"},
		"REST-PAYLOAD":                   {""},
		"keywords":                       {query},
		"paginationInput.entriesPerPage": {strconv.Itoa(min(limit, 100))},
		"sortOrder":                      {"EndTimeSoonest"},
	}
	if soldOnly {
		params.Set("itemFilter(0).name", "SoldItemsOnly")
		params.Set("itemFilter(0).value", "true")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.findingURL+"?"+params.Encode(), nil)
	if err != nil {
		return listing.Degrade(err)
	}

	body, err := c.do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("query", query).Bool("sold_only", soldOnly).Msg("finding search failed")
		return listing.Degrade(err)
	}

	items, total, err := parseFindingResponse(body)
	if err != nil {
		c.logger.Warn().Err(err).Str("query", query).Msg("finding response unparseable")
		return listing.Degrade(err)
	}
	return listing.Result{Listings: items, Total: total}
}

func (c *APIClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ebay api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// browseResponse mirrors the Browse API item summary payload.
type browseResponse struct {
	Total         int          `json:"total"`
	ItemSummaries []browseItem `json:"itemSummaries"`
}

type browseItem struct {
	Title string `json:"title"`
	Price struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"price"`
	Condition       string `json:"condition"`
	ItemWebURL      string `json:"itemWebUrl"`
	ThumbnailImages []struct {
		ImageURL string `json:"imageUrl"`
	} `json:"thumbnailImages"`
	Image struct {
		ImageURL string `json:"imageUrl"`
	} `json:"image"`
	Seller struct {
		Username string `json:"username"`
	} `json:"seller"`
}

func (it browseItem) normalize() listing.Listing {
	l := listing.Listing{
		Title:     it.Title,
		Currency:  it.Price.Currency,
		Condition: it.Condition,
		ItemURL:   it.ItemWebURL,
		Seller:    it.Seller.Username,
		Source:    listing.SourceEbay,
		Type:      listing.TypeActive,
	}
	if l.Currency == "" {
		l.Currency = "USD"
	}
	if it.Price.Value != "" {
		if price, err := decimal.NewFromString(it.Price.Value); err == nil {
			l.Price = &price
		}
	}
	if len(it.ThumbnailImages) > 0 {
		l.ImageURL = it.ThumbnailImages[0].ImageURL
	} else {
		l.ImageURL = it.Image.ImageURL
	}
	return l
}

// The Finding API wraps every field in a single-element array and keys
// the body by operation name; the structs below pin that shape down so
// the mapping into listings stays in one place.
type findingBody struct {
	PaginationOutput []struct {
		TotalEntries []string `json:"totalEntries"`
	} `json:"paginationOutput"`
	SearchResult []struct {
		Item []findingItem `json:"item"`
	} `json:"searchResult"`
}

type findingItem struct {
	Title         []string `json:"title"`
	GalleryURL    []string `json:"galleryURL"`
	ViewItemURL   []string `json:"viewItemURL"`
	SellingStatus []struct {
		CurrentPrice []struct {
			Value      string `json:"__value__"`
			CurrencyID string `json:"@currencyId"`
		} `json:"currentPrice"`
	} `json:"sellingStatus"`
	Condition []struct {
		ConditionDisplayName []string `json:"conditionDisplayName"`
	} `json:"condition"`
	ListingInfo []struct {
		EndTime []string `json:"endTime"`
	} `json:"listingInfo"`
}

func parseFindingResponse(body []byte) ([]listing.Listing, int, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, 0, err
	}

	var raw json.RawMessage
	for key, value := range envelope {
		if strings.HasSuffix(key, "Response") {
			raw = value
			break
		}
	}
	if raw == nil {
		return nil, 0, fmt.Errorf("finding response has no *Response key")
	}

	var bodies []findingBody
	if err := json.Unmarshal(raw, &bodies); err != nil {
		return nil, 0, err
	}
	if len(bodies) == 0 {
		return nil, 0, nil
	}
	resp := bodies[0]

	total := 0
	if len(resp.PaginationOutput) > 0 && len(resp.PaginationOutput[0].TotalEntries) > 0 {
		total, _ = strconv.Atoi(resp.PaginationOutput[0].TotalEntries[0])
	}

	var rawItems []findingItem
	if len(resp.SearchResult) > 0 {
		rawItems = resp.SearchResult[0].Item
	}

	items := make([]listing.Listing, 0, len(rawItems))
	for _, it := range rawItems {
		items = append(items, it.normalize())
	}
	return items, total, nil
}

func (it findingItem) normalize() listing.Listing {
	l := listing.Listing{
		Title:    first(it.Title),
		Currency: "USD",
		ImageURL: first(it.GalleryURL),
		ItemURL:  first(it.ViewItemURL),
		Source:   listing.SourceEbay,
		Type:     listing.TypeSold,
	}
	if len(it.SellingStatus) > 0 && len(it.SellingStatus[0].CurrentPrice) > 0 {
		cp := it.SellingStatus[0].CurrentPrice[0]
		if cp.CurrencyID != "" {
			l.Currency = cp.CurrencyID
		}
		if cp.Value != "" {
			if price, err := decimal.NewFromString(cp.Value); err == nil {
				l.Price = &price
			}
		}
	}
	if len(it.Condition) > 0 {
		l.Condition = first(it.Condition[0].ConditionDisplayName)
	}
	if len(it.ListingInfo) > 0 {
		l.SoldDate = first(it.ListingInfo[0].EndTime)
	}
	return l
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
