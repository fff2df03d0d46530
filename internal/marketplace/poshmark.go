package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dealscout/internal/listing"
)

const defaultPoshmarkURL = "https://poshmark.com/search"

// PoshmarkOptions parameterise the Poshmark search client.
type PoshmarkOptions struct {
	SearchURL string
	Timeout   time.Duration
	UserAgent string
}

// PoshmarkClient searches active Poshmark listings through the JSON
// search endpoint the Poshmark frontend uses.
type PoshmarkClient struct {
	opts      PoshmarkOptions
	logger    zerolog.Logger
	client    *http.Client
	searchURL string
}

// NewPoshmarkClient constructs the Poshmark adapter.
func NewPoshmarkClient(opts PoshmarkOptions, logger zerolog.Logger) *PoshmarkClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = browserUserAgent
	}
	searchURL := opts.SearchURL
	if searchURL == "" {
		searchURL = defaultPoshmarkURL
	}
	return &PoshmarkClient{
		opts:      opts,
		logger:    logger.With().Str("component", "poshmark").Logger(),
		client:    &http.Client{Timeout: opts.Timeout},
		searchURL: searchURL,
	}
}

// Platform identifies this adapter in secondary-search results.
func (c *PoshmarkClient) Platform() string { return "poshmark" }

type poshmarkResponse struct {
	Data []poshmarkListing `json:"data"`
}

type poshmarkListing struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Condition   string `json:"condition"`
	PictureURL  string `json:"picture_url"`
	Price       string `json:"price"`
	PriceAmount struct {
		Val string `json:"val"`
	} `json:"price_amount"`
}

// Search returns up to limit active listings for the query.
func (c *PoshmarkClient) Search(ctx context.Context, query string, limit int) ([]listing.Listing, error) {
	params := url.Values{
		"query": {query},
		"type":  {"listings"},
		"src":   {"dir"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poshmark search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poshmark search returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// Browser-shaped requests get an HTML page instead of JSON.
	var payload poshmarkResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("poshmark response is not json: %w", err)
	}

	raw := payload.Data
	if len(raw) > limit {
		raw = raw[:limit]
	}

	items := make([]listing.Listing, 0, len(raw))
	for _, pl := range raw {
		items = append(items, pl.normalize())
	}
	c.logger.Debug().Str("query", query).Int("items", len(items)).Msg("poshmark search done")
	return items, nil
}

func (pl poshmarkListing) normalize() listing.Listing {
	l := listing.Listing{
		Title:     pl.Title,
		Currency:  "USD",
		Condition: pl.Condition,
		ImageURL:  pl.PictureURL,
		ItemURL:   "https://poshmark.com/listing/" + pl.ID,
		Source:    listing.SourcePoshmark,
		Type:      listing.TypeActive,
	}
	text := pl.PriceAmount.Val
	if text == "" {
		text = pl.Price
	}
	text = strings.NewReplacer("$", "", ",", "").Replace(text)
	if text != "" {
		if price, err := decimal.NewFromString(text); err == nil {
			l.Price = decimalPtr(price)
		}
	}
	return l
}
