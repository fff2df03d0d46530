package ebay

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dealscout/internal/listing"
)

const (
	defaultScrapeURL = "https://www.ebay.com/sch/i.html"
	defaultHomeURL   = "https://www.ebay.com/"

	browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/124.0.0.0 Safari/537.36"
)

var (
	dollarPriceRe = regexp.MustCompile(`\$\s*([\d.]+)`)
	barePriceRe   = regexp.MustCompile(`([\d.]+)`)
	totalCountRe  = regexp.MustCompile(`([\d,]+)`)
)

// Doer issues an HTTP request. The scraper's preferred transport (for
// example a TLS-fingerprint-evading client) plugs in here; on any error
// the scraper falls back to its plain warmed client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ScraperOptions parameterise the search-page scraper.
type ScraperOptions struct {
	SearchURL string
	HomeURL   string
	Timeout   time.Duration
	UserAgent string
	// Preferred is tried before the plain client when set.
	Preferred Doer
}

// Scraper fetches rendered eBay search-result pages and parses listing
// cards out of them. One warmed client is created lazily and reused
// across calls for connection and cookie reuse.
type Scraper struct {
	opts      ScraperOptions
	logger    zerolog.Logger
	searchURL string
	homeURL   string

	mu     sync.Mutex
	client *http.Client
}

// NewScraper constructs the scrape adapter.
func NewScraper(opts ScraperOptions, logger zerolog.Logger) *Scraper {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = browserUserAgent
	}

	searchURL := opts.SearchURL
	if searchURL == "" {
		searchURL = defaultScrapeURL
	}
	homeURL := opts.HomeURL
	if homeURL == "" {
		homeURL = defaultHomeURL
	}

	return &Scraper{
		opts:      opts,
		logger:    logger.With().Str("component", "ebay_scraper").Logger(),
		searchURL: searchURL,
		homeURL:   homeURL,
	}
}

// SearchActive scrapes Buy-It-Now search results.
func (s *Scraper) SearchActive(ctx context.Context, query string, limit int) listing.Result {
	params := url.Values{
		"_nkw":   {query},
		"_ipg":   {strconv.Itoa(min(limit, 240))},
		"LH_BIN": {"1"},
		"_sop":   {"12"},
	}
	return s.search(ctx, query, params, listing.TypeActive, limit)
}

// SearchSold scrapes completed listings that sold.
func (s *Scraper) SearchSold(ctx context.Context, query string, limit int) listing.Result {
	params := url.Values{
		"_nkw":        {query},
		"_ipg":        {strconv.Itoa(min(limit, 240))},
		"LH_Complete": {"1"},
		"LH_Sold":     {"1"},
		"_sop":        {"13"},
	}
	return s.search(ctx, query, params, listing.TypeSold, limit)
}

// SearchCompleted scrapes all completed listings, sold and unsold.
func (s *Scraper) SearchCompleted(ctx context.Context, query string, limit int) listing.Result {
	params := url.Values{
		"_nkw":        {query},
		"_ipg":        {strconv.Itoa(min(limit, 240))},
		"LH_Complete": {"1"},
		"_sop":        {"13"},
	}
	return s.search(ctx, query, params, listing.TypeSold, limit)
}

func (s *Scraper) search(ctx context.Context, query string, params url.Values, typ listing.Type, limit int) listing.Result {
	doc, err := s.fetchPage(ctx, params)
	if err != nil {
		s.logger.Warn().Err(err).Str("query", query).Msg("scrape failed")
		return listing.Degrade(err)
	}

	total := parseTotal(doc)
	items := parseItems(doc, typ)
	if len(items) > limit {
		items = items[:limit]
	}

	s.logger.Info().Str("query", query).Str("type", string(typ)).
		Int("items", len(items)).Int("total", total).Msg("scraped search page")
	return listing.Result{Listings: items, Total: total}
}

// fetchPage tries the preferred transport first, then the warmed plain
// client with a Referer set to look like in-site navigation.
func (s *Scraper) fetchPage(ctx context.Context, params url.Values) (*goquery.Document, error) {
	fullURL := s.searchURL + "?" + params.Encode()

	if s.opts.Preferred != nil {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err == nil {
			s.setHeaders(req, "")
			resp, err := s.opts.Preferred.Do(req)
			if err == nil {
				defer resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return goquery.NewDocumentFromReader(resp.Body)
				}
				s.logger.Warn().Int("status", resp.StatusCode).Msg("preferred client got non-200, falling back")
			} else {
				s.logger.Warn().Err(err).Msg("preferred client failed, falling back")
			}
		}
	}

	client := s.getClient(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	s.setHeaders(req, s.homeURL)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search page returned %d", resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// getClient lazily builds the shared client, warming its cookie jar with
// a homepage visit so the first search doesn't arrive cold.
func (s *Scraper) getClient(ctx context.Context) *http.Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client
	}

	jar, _ := cookiejar.New(nil)
	s.client = &http.Client{Timeout: s.opts.Timeout, Jar: jar}

	if req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.homeURL, nil); err == nil {
		s.setHeaders(req, "")
		if resp, err := s.client.Do(req); err == nil {
			resp.Body.Close()
		}
	}
	return s.client
}

func (s *Scraper) setHeaders(req *http.Request, referer string) {
	req.Header.Set("User-Agent", s.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Cache-Control", "max-age=0")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
}

// parsePrice extracts the first dollar amount from currency-formatted
// text, trying the strict $NNN.NN pattern before a bare numeric one.
func parsePrice(text string) *decimal.Decimal {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, ",", "")

	for _, re := range []*regexp.Regexp{dollarPriceRe, barePriceRe} {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if price, err := decimal.NewFromString(m[1]); err == nil {
			return &price
		}
	}
	return nil
}

// parseTotal extracts the total result count from the page heading,
// defaulting to 0 when absent.
func parseTotal(doc *goquery.Document) int {
	for _, sel := range []string{
		".srp-controls__count-heading",
		"h1.srp-controls__count-heading, h2.srp-controls__count-heading",
	} {
		text := doc.Find(sel).First().Text()
		if m := totalCountRe.FindStringSubmatch(text); m != nil {
			if total, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
				return total
			}
		}
	}
	return 0
}

func parseItems(doc *goquery.Document, typ listing.Type) []listing.Listing {
	var items []listing.Listing

	doc.Find("li.s-item").Each(func(_ int, li *goquery.Selection) {
		titleEl := li.Find(".s-item__title span[role='heading']").First()
		if titleEl.Length() == 0 {
			titleEl = li.Find(".s-item__title").First()
		}
		title := strings.TrimSpace(titleEl.Text())
		if title == "" {
			return
		}
		// eBay pads result pages with promotional placeholder cards.
		if strings.HasPrefix(strings.ToLower(title), "shop on ebay") {
			return
		}

		itemURL, _ := li.Find("a.s-item__link").First().Attr("href")

		imgEl := li.Find(".s-item__image-img").First()
		image, ok := imgEl.Attr("src")
		if !ok || image == "" {
			image, _ = imgEl.Attr("data-src")
		}

		price := parsePrice(strings.TrimSpace(li.Find(".s-item__price").First().Text()))
		condition := strings.TrimSpace(li.Find(".SECONDARY_INFO").First().Text())

		soldDate := ""
		if typ == listing.TypeSold {
			soldDate = parseSoldDateText(li)
		}

		items = append(items, listing.Listing{
			Title:     title,
			Price:     price,
			Currency:  "USD",
			Condition: condition,
			ImageURL:  image,
			ItemURL:   itemURL,
			Source:    listing.SourceEbayScrape,
			Type:      typ,
			SoldDate:  soldDate,
		})
	})

	return items
}

func parseSoldDateText(li *goquery.Selection) string {
	date := strings.TrimSpace(li.Find(".s-item__title--tag .POSITIVE, .s-item__ended-date, .s-item__endedDate").First().Text())
	if date != "" {
		return date
	}
	li.Find("span.s-item__detail").EachWithBreak(func(_ int, span *goquery.Selection) bool {
		text := strings.TrimSpace(span.Text())
		if strings.Contains(strings.ToLower(text), "sold") {
			date = text
			return false
		}
		return true
	})
	return date
}
