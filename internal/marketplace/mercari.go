package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dealscout/internal/listing"
)

const defaultMercariURL = "https://www.mercari.com/v1/api"

// MercariOptions parameterise the Mercari search client.
type MercariOptions struct {
	APIURL    string
	Timeout   time.Duration
	UserAgent string
}

// MercariClient searches active Mercari listings through the GraphQL
// facade the Mercari web app calls.
type MercariClient struct {
	opts   MercariOptions
	logger zerolog.Logger
	client *http.Client
	apiURL string
}

// NewMercariClient constructs the Mercari adapter.
func NewMercariClient(opts MercariOptions, logger zerolog.Logger) *MercariClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = browserUserAgent
	}
	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = defaultMercariURL
	}
	return &MercariClient{
		opts:   opts,
		logger: logger.With().Str("component", "mercari").Logger(),
		client: &http.Client{Timeout: opts.Timeout},
		apiURL: apiURL,
	}
}

// Platform identifies this adapter in secondary-search results.
func (c *MercariClient) Platform() string { return "mercari" }

type mercariCriteria struct {
	Keyword       string `json:"keyword"`
	SoldItemsOnly bool   `json:"soldItemsOnly"`
}

type mercariVariables struct {
	Criteria     mercariCriteria `json:"criteria"`
	ItemsPerPage int             `json:"itemsPerPage"`
}

type mercariResponse struct {
	Data struct {
		Search struct {
			ItemsList []mercariItem `json:"itemsList"`
		} `json:"search"`
	} `json:"data"`
}

type mercariItem struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Price         int64  `json:"price"`
	ItemCondition struct {
		Name string `json:"name"`
	} `json:"itemCondition"`
	Thumbnails []string `json:"thumbnails"`
}

// Search returns up to limit active listings for the query.
func (c *MercariClient) Search(ctx context.Context, query string, limit int) ([]listing.Listing, error) {
	variables, err := json.Marshal(mercariVariables{
		Criteria:     mercariCriteria{Keyword: query},
		ItemsPerPage: limit,
	})
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"operationName": {"searchFacetQuery"},
		"variables":     {string(variables)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mercari search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mercari search returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var payload mercariResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("mercari response is not json: %w", err)
	}

	raw := payload.Data.Search.ItemsList
	if len(raw) > limit {
		raw = raw[:limit]
	}

	items := make([]listing.Listing, 0, len(raw))
	for _, it := range raw {
		items = append(items, it.normalize())
	}
	c.logger.Debug().Str("query", query).Int("items", len(items)).Msg("mercari search done")
	return items, nil
}

func (it mercariItem) normalize() listing.Listing {
	l := listing.Listing{
		Title:     it.Name,
		Currency:  "USD",
		Condition: it.ItemCondition.Name,
		ItemURL:   "https://www.mercari.com/us/item/" + it.ID,
		Source:    listing.SourceMercari,
		Type:      listing.TypeActive,
	}
	if len(it.Thumbnails) > 0 {
		l.ImageURL = it.Thumbnails[0]
	}
	// Prices come back in cents.
	if it.Price > 0 {
		l.Price = decimalPtr(decimal.New(it.Price, -2))
	}
	return l
}
