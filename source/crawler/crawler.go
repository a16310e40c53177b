// Package crawler implements bounded breadth-first traversal of a site.
// The traversal is deliberately sequential: the politeness interval and the
// shared visited/frontier state make single-flow processing the simplest
// correct design, and it keeps load on the crawled origin predictable.
package crawler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sitechat/sitechat/metrics"
	"github.com/sitechat/sitechat/source"
	"github.com/sitechat/sitechat/source/extractor"
	"github.com/sitechat/sitechat/source/weburl"
)

// Config bounds one crawl invocation.
type Config struct {
	// MaxPages caps the number of distinct pages visited.
	MaxPages int

	// MaxDepth is the deepest level whose pages are still fetched; links
	// found at MaxDepth are not expanded further.
	MaxDepth int

	// Delay is the politeness interval applied between page fetches.
	Delay time.Duration

	// BaseDomain scopes traversal; empty means "derive from the seed".
	BaseDomain string

	// IgnoredDomains lists hosts never enqueued even when internal
	// (social networks, app stores and the like).
	IgnoredDomains []string
}

// DefaultConfig returns the crawl bounds used when none are configured.
func DefaultConfig() Config {
	return Config{
		MaxPages: 100,
		MaxDepth: 3,
		Delay:    2 * time.Second,
	}
}

// Crawler performs bounded BFS over a site using a Fetcher for page
// retrieval and the extractor for per-page content and links.
type Crawler struct {
	fetcher Fetcher
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		c.logger = logger
	}
}

// New creates a crawler. The fetcher is required; its absence is the fatal
// launch failure that aborts a crawl up front.
func New(fetcher Fetcher, cfg Config, opts ...Option) (*Crawler, error) {
	if fetcher == nil {
		return nil, errors.New("crawler: fetcher is required")
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultConfig().MaxPages
	}
	if cfg.MaxDepth < 0 {
		cfg.MaxDepth = 0
	}

	c := &Crawler{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  slog.Default(),
	}
	if cfg.Delay > 0 {
		c.limiter = rate.NewLimiter(rate.Every(cfg.Delay), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// frontierEntry pairs a canonical URL with its BFS depth.
type frontierEntry struct {
	url   string
	depth int
}

// Crawl walks the site breadth-first from seed and returns the mapping of
// canonical URL to page record. Per-page failures are logged and skipped;
// only context cancellation aborts the traversal.
func (c *Crawler) Crawl(ctx context.Context, seed string) (source.CrawlData, error) {
	baseDomain := c.cfg.BaseDomain
	if baseDomain == "" {
		baseDomain = weburl.ExtractDomain(seed)
	}

	visited := make(map[string]bool)
	frontier := []frontierEntry{{url: weburl.Normalize(seed), depth: 0}}
	pages := make(source.CrawlData)

	for len(frontier) > 0 && len(visited) < c.cfg.MaxPages {
		entry := frontier[0]
		frontier = frontier[1:]

		// Duplicates may transiently occupy the frontier; they collapse
		// here, at dequeue time.
		if visited[entry.url] {
			continue
		}
		visited[entry.url] = true

		if err := c.wait(ctx); err != nil {
			return pages, err
		}

		c.logger.Info("Visiting page", "url", entry.url, "depth", entry.depth)

		markup, err := c.fetcher.Fetch(ctx, entry.url)
		if err != nil {
			if ctx.Err() != nil {
				return pages, ctx.Err()
			}
			// A single page error is not fatal to the crawl.
			metrics.PageErrors.Inc()
			c.logger.Warn("Page fetch failed, skipping", "url", entry.url, "error", err)
			continue
		}

		text, _, allLinks := extractor.Extract(markup, entry.url)

		// Traversal always uses allLinks: pages reachable only via
		// navigation menus would otherwise be under-crawled.
		pages[entry.url] = source.PageRecord{Text: text, Links: allLinks}
		metrics.PagesCrawled.Inc()

		if entry.depth < c.cfg.MaxDepth {
			for _, link := range allLinks {
				if !weburl.IsInternal(link, baseDomain) {
					continue
				}
				if c.ignored(link) {
					continue
				}
				if visited[link] {
					continue
				}
				frontier = append(frontier, frontierEntry{url: link, depth: entry.depth + 1})
			}
		}
	}

	return pages, nil
}

// wait applies the politeness interval between fetches.
func (c *Crawler) wait(ctx context.Context) error {
	if c.limiter == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		return nil
	}
	return c.limiter.Wait(ctx)
}

// ignored reports whether the link's host matches a configured ignored
// domain exactly or as a subdomain.
func (c *Crawler) ignored(link string) bool {
	if len(c.cfg.IgnoredDomains) == 0 {
		return false
	}
	host := weburl.ExtractDomain(link)
	for _, d := range c.cfg.IgnoredDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
