// Package search provides the web search client behind the agent's
// web_search and fetch_webpage tools. Serper.dev is the primary backend;
// the DuckDuckGo instant-answer API serves as a keyless fallback.
package search

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"golang.org/x/net/html"

	"mailagent/internal/domain/agenterrors"
	"mailagent/internal/domain/retry"
)

const (
	defaultSearchEndpoint   = "https://google.serper.dev/search"
	defaultScrapeEndpoint   = "https://scrape.serper.dev"
	defaultFallbackEndpoint = "https://api.duckduckgo.com/"

	defaultMaxResults = 5
	defaultCacheSize  = 128
	defaultCacheTTL   = 10 * time.Minute
	defaultTimeout    = 15 * time.Second
)

// Config captures the knobs exposed to operators for the search client.
// Endpoints are overridable for tests and self-hosted proxies.
type Config struct {
	SerperAPIKey     string
	SearchEndpoint   string
	ScrapeEndpoint   string
	FallbackEndpoint string
	MaxResults       int
	Timeout          time.Duration
	CacheSize        int
	CacheTTL         time.Duration
}

// Result is a single search hit in the shape the agent feeds back to the
// model.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// Client performs web searches and page fetches with a bounded in-memory
// cache over recent queries.
type Client struct {
	cfg            Config
	serperClient   *resty.Client
	fallbackClient *resty.Client
	policy         retry.Policy
	cache          *lru.Cache
	log            zerolog.Logger
}

type cacheEntry struct {
	results   []Result
	expiresAt time.Time
}

// NewClient wires the HTTP clients and query cache.
func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SearchEndpoint) == "" {
		cfg.SearchEndpoint = defaultSearchEndpoint
	}
	if strings.TrimSpace(cfg.ScrapeEndpoint) == "" {
		cfg.ScrapeEndpoint = defaultScrapeEndpoint
	}
	if strings.TrimSpace(cfg.FallbackEndpoint) == "" {
		cfg.FallbackEndpoint = defaultFallbackEndpoint
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}

	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("initialize search cache: %w", err)
	}

	serperClient := resty.New().
		SetHeader("User-Agent", "mail-agent/1.0").
		SetRetryCount(0).
		SetTimeout(cfg.Timeout)

	// Browser-like headers keep the direct fetch path usable on sites with
	// basic bot filtering.
	fallbackClient := resty.New().
		SetHeader("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36").
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "en-US,en;q=0.5").
		SetTimeout(cfg.Timeout)

	// Short delays only: retries run inside the tool execution budget, and
	// the DuckDuckGo fallback is still behind them.
	policy := retry.Policy{
		MaxRetries:      2,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        2 * time.Second,
		BackoffStrategy: retry.BackoffExponential,
		JitterFactor:    0.2,
	}

	return &Client{
		cfg:            cfg,
		serperClient:   serperClient,
		fallbackClient: fallbackClient,
		policy:         policy,
		cache:          cache,
		log:            log.With().Str("component", "search").Logger(),
	}, nil
}

// Search runs a web search, preferring Serper when an API key is configured
// and falling back to DuckDuckGo otherwise. Successful result sets are
// cached per query.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is empty")
	}

	if results, ok := c.cachedResults(query); ok {
		c.log.Debug().Str("query", query).Msg("search cache hit")
		return results, nil
	}

	if c.hasAPIKey() {
		results, err := c.searchViaSerper(ctx, query)
		if err == nil {
			c.storeResults(query, results)
			return results, nil
		}
		c.log.Warn().Err(err).Str("query", query).Msg("serper search failed, falling back to DuckDuckGo")
	}

	results, err := c.searchViaDuckDuckGo(ctx, query)
	if err != nil {
		return nil, err
	}
	c.storeResults(query, results)
	return results, nil
}

func (c *Client) searchViaSerper(ctx context.Context, query string) ([]Result, error) {
	body := map[string]any{
		"q":   query,
		"num": c.cfg.MaxResults,
	}

	res, err := retry.ExecuteWithResult(ctx, c.policy, func(ctx context.Context, attempt int) (serperResponse, error) {
		var res serperResponse
		resp, err := c.serperClient.R().
			SetContext(ctx).
			SetHeader("X-API-KEY", c.cfg.SerperAPIKey).
			SetHeader("Content-Type", "application/json").
			SetBody(body).
			SetResult(&res).
			Post(c.cfg.SearchEndpoint)
		if err != nil {
			return res, fmt.Errorf("query serper search api: %w", err)
		}
		if resp.IsError() {
			return res, classifySerperError("search", resp.StatusCode(), resp.String())
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(res.Organic))
	for _, item := range res.Organic {
		results = append(results, Result{
			Title:   item.Title,
			Link:    item.Link,
			Snippet: item.Snippet,
			Source:  "serper",
		})
		if len(results) >= c.cfg.MaxResults {
			break
		}
	}
	return results, nil
}

func (c *Client) searchViaDuckDuckGo(ctx context.Context, query string) ([]Result, error) {
	var ddg duckDuckGoResponse
	resp, err := c.fallbackClient.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		SetQueryParam("format", "json").
		SetQueryParam("no_html", "1").
		SetQueryParam("skip_disambig", "1").
		SetResult(&ddg).
		Get(c.cfg.FallbackEndpoint)
	if err != nil {
		return nil, fmt.Errorf("fallback search failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fallback search HTTP %d: %s", resp.StatusCode(), resp.Status())
	}

	results := make([]Result, 0, c.cfg.MaxResults)
	if ddg.AbstractURL != "" || ddg.AbstractText != "" {
		results = append(results, Result{
			Title:   fallbackTitle(ddg.Heading, query),
			Link:    ddg.AbstractURL,
			Snippet: ddg.AbstractText,
			Source:  "duckduckgo",
		})
	}
	for _, topic := range flattenTopics(ddg.RelatedTopics) {
		if topic.FirstURL == "" {
			continue
		}
		results = append(results, Result{
			Title:   fallbackTitle(topic.Text, query),
			Link:    topic.FirstURL,
			Snippet: topic.Text,
			Source:  "duckduckgo",
		})
		if len(results) >= c.cfg.MaxResults {
			break
		}
	}
	return results, nil
}

// FetchPage retrieves a webpage's visible text. Serper's scrape API is used
// when configured; otherwise the page is fetched directly and stripped down
// to its text content.
func (c *Client) FetchPage(ctx context.Context, pageURL string) (string, error) {
	pageURL = strings.TrimSpace(pageURL)
	if pageURL == "" {
		return "", fmt.Errorf("page url is empty")
	}

	if c.hasAPIKey() {
		text, err := c.fetchViaSerper(ctx, pageURL)
		if err == nil {
			return text, nil
		}
		c.log.Warn().Err(err).Str("url", pageURL).Msg("serper scrape failed, fetching directly")
	}

	return c.fetchDirect(ctx, pageURL)
}

func (c *Client) fetchViaSerper(ctx context.Context, pageURL string) (string, error) {
	res, err := retry.ExecuteWithResult(ctx, c.policy, func(ctx context.Context, attempt int) (serperScrapeResponse, error) {
		var res serperScrapeResponse
		resp, err := c.serperClient.R().
			SetContext(ctx).
			SetHeader("X-API-KEY", c.cfg.SerperAPIKey).
			SetHeader("Content-Type", "application/json").
			SetBody(map[string]any{"url": pageURL}).
			SetResult(&res).
			Post(c.cfg.ScrapeEndpoint)
		if err != nil {
			return res, fmt.Errorf("query serper scrape api: %w", err)
		}
		if resp.IsError() {
			return res, classifySerperError("scrape", resp.StatusCode(), resp.String())
		}
		return res, nil
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(res.Text) == "" {
		return "", fmt.Errorf("serper scrape returned no text for %s", pageURL)
	}
	return res.Text, nil
}

func (c *Client) fetchDirect(ctx context.Context, pageURL string) (string, error) {
	resp, err := c.fallbackClient.R().
		SetContext(ctx).
		Get(pageURL)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("fetch %s: HTTP %d", pageURL, resp.StatusCode())
	}

	body := resp.Body()
	text := extractVisibleText(body)
	if text == "" {
		text = string(body)
	}
	return text, nil
}

func (c *Client) cachedResults(query string) ([]Result, bool) {
	val, ok := c.cache.Get(cacheKey(query))
	if !ok {
		return nil, false
	}
	entry := val.(cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.cache.Remove(cacheKey(query))
		return nil, false
	}
	return entry.results, true
}

func (c *Client) storeResults(query string, results []Result) {
	if len(results) == 0 {
		return
	}
	c.cache.Add(cacheKey(query), cacheEntry{
		results:   results,
		expiresAt: time.Now().Add(c.cfg.CacheTTL),
	})
}

func (c *Client) hasAPIKey() bool {
	return strings.TrimSpace(c.cfg.SerperAPIKey) != ""
}

func cacheKey(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// classifySerperError marks rate limits and server errors retryable; other
// rejections go straight to the fallback backend.
func classifySerperError(op string, status int, body string) error {
	err := fmt.Errorf("serper %s api error (status %d): %s", op, status, body)
	if status == http.StatusTooManyRequests || status >= 500 {
		return agenterrors.WrapRetryable(err, agenterrors.ErrCodeToolExecution, "serper unavailable")
	}
	return agenterrors.WrapFatal(err, agenterrors.ErrCodeToolExecution, "serper rejected request")
}

type serperResponse struct {
	Organic []serperOrganic `json:"organic"`
}

type serperOrganic struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type serperScrapeResponse struct {
	Text string `json:"text"`
}

type duckDuckGoResponse struct {
	Heading       string     `json:"Heading"`
	AbstractText  string     `json:"AbstractText"`
	AbstractURL   string     `json:"AbstractURL"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"`
}

// flattenTopics unnests DuckDuckGo's grouped related topics into a flat list.
func flattenTopics(topics []ddgTopic) []ddgTopic {
	var out []ddgTopic
	for _, topic := range topics {
		if len(topic.Topics) > 0 {
			out = append(out, flattenTopics(topic.Topics)...)
			continue
		}
		out = append(out, topic)
	}
	return out
}

func fallbackTitle(title, query string) string {
	title = strings.TrimSpace(title)
	if title != "" {
		return title
	}
	return fmt.Sprintf("Result for %q", query)
}

func extractVisibleText(raw []byte) string {
	doc, err := html.Parse(strings.NewReader(string(raw)))
	if err != nil {
		return ""
	}

	var builder strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			val := strings.TrimSpace(n.Data)
			if val != "" {
				if builder.Len() > 0 {
					builder.WriteString(" ")
				}
				builder.WriteString(val)
			}
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return builder.String()
}
