package marketplace

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dealscout/internal/listing"
)

const (
	facebookMarketplaceURL = "https://www.facebook.com/marketplace/"
	facebookSearchURL      = "https://www.facebook.com/marketplace/search/?query="

	// GraphQL responses nest listings at varying depths depending on the
	// surface; the walk gives up past this depth.
	maxWalkDepth = 15
)

var nonPriceRe = regexp.MustCompile(`[^\d.]`)

// FacebookOptions parameterise the Marketplace browser scraper.
type FacebookOptions struct {
	// StateDir holds the persistent browser profile carrying the
	// logged-in Facebook session.
	StateDir  string
	Timeout   time.Duration
	UserAgent string
}

// FacebookScraper searches Facebook Marketplace by driving a headless
// browser against a previously saved login session and intercepting
// the GraphQL responses the page loads its results from.
type FacebookScraper struct {
	opts   FacebookOptions
	logger zerolog.Logger
}

// NewFacebookScraper constructs the Marketplace adapter.
func NewFacebookScraper(opts FacebookOptions, logger zerolog.Logger) *FacebookScraper {
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = browserUserAgent
	}
	return &FacebookScraper{
		opts:   opts,
		logger: logger.With().Str("component", "facebook").Logger(),
	}
}

// Platform identifies this adapter in secondary-search results.
func (s *FacebookScraper) Platform() string { return "facebook" }

// Connected reports whether a saved browser session exists on disk.
func (s *FacebookScraper) Connected() bool {
	if s.opts.StateDir == "" {
		return false
	}
	if _, err := os.Stat(filepath.Join(s.opts.StateDir, "Default", "Cookies")); err == nil {
		return true
	}
	_, err := os.Stat(filepath.Join(s.opts.StateDir, "state.json"))
	return err == nil
}

// Connect opens a visible browser on the Marketplace login page and
// waits for the user to finish logging in or close the window. The
// profile is written to StateDir for later headless searches.
func (s *FacebookScraper) Connect(ctx context.Context) error {
	if err := os.MkdirAll(s.opts.StateDir, 0o755); err != nil {
		return err
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, s.allocatorOptions(false)...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...any) {}))
	defer cancelBrowser()

	err := chromedp.Run(browserCtx,
		chromedp.Navigate(facebookMarketplaceURL),
		chromedp.WaitVisible("body", chromedp.ByQuery),
	)
	if err != nil {
		return err
	}

	// Give the user up to five minutes to complete the login flow.
	loginCtx, cancelLogin := context.WithTimeout(browserCtx, 5*time.Minute)
	defer cancelLogin()
	<-loginCtx.Done()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// Disconnect removes the saved session.
func (s *FacebookScraper) Disconnect() error {
	if s.opts.StateDir == "" {
		return nil
	}
	return os.RemoveAll(s.opts.StateDir)
}

// Search returns up to limit active Marketplace listings for the query.
// It requires a saved session; call Connected first.
func (s *FacebookScraper) Search(ctx context.Context, query string, limit int) ([]listing.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, s.allocatorOptions(true)...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...any) {}))
	defer cancelBrowser()

	var (
		mu       sync.Mutex
		captured [][]byte
		wg       sync.WaitGroup
	)

	chromedp.ListenTarget(browserCtx, func(ev any) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || !strings.Contains(resp.Response.URL, "api/graphql") {
			return
		}
		requestID := resp.RequestID
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := chromedp.FromContext(browserCtx)
			body, err := network.GetResponseBody(requestID).Do(cdp.WithExecutor(browserCtx, c.Target))
			if err != nil {
				return
			}
			mu.Lock()
			captured = append(captured, body)
			mu.Unlock()
		}()
	})

	err := chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.Navigate(facebookSearchURL+url.QueryEscape(query)),
		chromedp.Sleep(3*time.Second),
		chromedp.Evaluate("window.scrollBy(0, 800)", nil),
		chromedp.Sleep(1500*time.Millisecond),
		chromedp.Evaluate("window.scrollBy(0, 800)", nil),
		chromedp.Sleep(1500*time.Millisecond),
	)
	if err != nil {
		return nil, err
	}
	wg.Wait()

	var results []listing.Listing
	mu.Lock()
	for _, body := range captured {
		results = append(results, parseGraphQLCapture(body)...)
	}
	mu.Unlock()

	results = Dedupe(results)
	if len(results) > limit {
		results = results[:limit]
	}
	s.logger.Info().Str("query", query).Int("items", len(results)).Msg("marketplace scrape done")
	return results, nil
}

func (s *FacebookScraper) allocatorOptions(headless bool) []chromedp.ExecAllocatorOption {
	return append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(s.opts.UserAgent),
		chromedp.UserDataDir(s.opts.StateDir),
		chromedp.WindowSize(1280, 900),
	)
}

// parseGraphQLCapture decodes a captured response body. Facebook
// sometimes streams several JSON documents separated by newlines, so
// each line is decoded independently.
func parseGraphQLCapture(body []byte) []listing.Listing {
	var results []listing.Listing

	var doc any
	if err := json.Unmarshal(body, &doc); err == nil {
		walkListings(doc, &results, 0)
		return results
	}

	for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var lineDoc any
		if err := json.Unmarshal([]byte(line), &lineDoc); err == nil {
			walkListings(lineDoc, &results, 0)
		}
	}
	return results
}

// walkListings recursively scans decoded GraphQL JSON for marketplace
// listing nodes.
func walkListings(node any, results *[]listing.Listing, depth int) {
	if depth > maxWalkDepth {
		return
	}
	switch v := node.(type) {
	case []any:
		for _, el := range v {
			walkListings(el, results, depth+1)
		}
	case map[string]any:
		inner, hasListing := v["listing"].(map[string]any)
		if _, hasTitle := v["marketplace_listing_title"]; hasTitle || hasListing {
			target := v
			if hasListing {
				target = inner
			}
			if l, ok := listingFromNode(target); ok {
				*results = append(*results, l)
			}
			return
		}
		for _, val := range v {
			walkListings(val, results, depth+1)
		}
	}
}

func listingFromNode(node map[string]any) (listing.Listing, bool) {
	title := str(node["marketplace_listing_title"])
	if title == "" {
		title = str(node["name"])
	}

	var price *decimal.Decimal
	if priceObj, ok := node["listing_price"].(map[string]any); ok {
		text := str(priceObj["formatted_amount"])
		if text == "" {
			text = str(priceObj["amount"])
		}
		if cleaned := nonPriceRe.ReplaceAllString(text, ""); cleaned != "" {
			if p, err := decimal.NewFromString(cleaned); err == nil {
				price = &p
			}
		}
	}

	image := ""
	if photo, ok := node["primary_listing_photo"].(map[string]any); ok {
		if img, ok := photo["image"].(map[string]any); ok {
			image = str(img["uri"])
		}
	}
	if image == "" {
		if photo, ok := node["primaryListingPhoto"].(map[string]any); ok {
			if img, ok := photo["listing_image"].(map[string]any); ok {
				image = str(img["uri"])
			}
		}
	}

	if title == "" || (price == nil && image == "") {
		return listing.Listing{}, false
	}

	id := str(node["id"])
	if id == "" {
		id = str(node["listing_id"])
	}
	itemURL := ""
	if id != "" {
		itemURL = "https://www.facebook.com/marketplace/item/" + id
	}

	condition := ""
	if cond, ok := node["condition"].(map[string]any); ok {
		condition = str(cond["condition_text"])
	}

	return listing.Listing{
		Title:     title,
		Price:     price,
		Currency:  "USD",
		Condition: condition,
		ImageURL:  image,
		ItemURL:   itemURL,
		Source:    listing.SourceFacebook,
		Type:      listing.TypeActive,
	}, true
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
