// Package cache keeps the on-disk artifacts that let pipeline stages resume without
// re-fetching: raw recipe pages keyed by slug, the discovered URL set, and canonical
// recipe records. Nothing here is authoritative; the recipe store is.
package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/recipe-scraper/pkg/config"
	"github.com/Sriram-PR/recipe-scraper/pkg/fetch"
	"github.com/Sriram-PR/recipe-scraper/pkg/metrics"
	"github.com/Sriram-PR/recipe-scraper/pkg/models"
	"github.com/Sriram-PR/recipe-scraper/pkg/parse"
	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

const pagesDirName = "pages"

// PageCache serves raw recipe pages from disk, fetching and storing them on a miss
type PageCache struct {
	dir     string
	cfg     *config.AppConfig
	fetcher *fetch.Fetcher
	robots  *fetch.RobotsHandler // nil when robots.txt is not consulted
	metrics *metrics.Metrics
	log     *logrus.Entry
}

// NewPageCache creates a PageCache rooted at <cfg.CacheDir>/pages.
func NewPageCache(cfg *config.AppConfig, fetcher *fetch.Fetcher, robots *fetch.RobotsHandler, m *metrics.Metrics, log *logrus.Entry) *PageCache {
	if !cfg.RespectRobotsTxt {
		robots = nil
	}
	return &PageCache{
		dir:     filepath.Join(cfg.CacheDir, pagesDirName),
		cfg:     cfg,
		fetcher: fetcher,
		robots:  robots,
		metrics: m,
		log:     log.WithField("component", "page_cache"),
	}
}

// PagePath returns the cache file for slug
func (c *PageCache) PagePath(slug string) string {
	return filepath.Join(c.dir, utils.SanitizeSlug(slug)+".html")
}

// Has reports whether a cached page exists for slug
func (c *PageCache) Has(slug string) bool {
	return utils.FileExists(c.PagePath(slug))
}

// Get returns the raw content for a site-relative recipe path.
// A cached page is returned without any network call unless force is set. On a miss the
// page is fetched and written to the cache before it is returned.
func (c *PageCache) Get(ctx context.Context, path string, force bool) ([]byte, models.FetchSource, error) {
	slug := utils.SanitizeSlug(parse.SlugFromPath(path))
	if slug == "" {
		return nil, "", fmt.Errorf("%w: no slug in recipe path '%s'", utils.ErrParsing, path)
	}
	file := c.PagePath(slug)
	log := c.log.WithField("slug", slug)

	if !force {
		content, err := os.ReadFile(file)
		switch {
		case err == nil:
			c.metrics.IncCacheLookup("hit")
			log.Debug("Serving page from cache")
			return content, models.SourceCached, nil
		case !errors.Is(err, os.ErrNotExist):
			log.Warnf("Unreadable cache entry, refetching: %v", err)
		}
	}
	c.metrics.IncCacheLookup("miss")

	target := c.cfg.AbsoluteURL(path)
	if c.robots != nil && !c.robots.Allowed(ctx, target) {
		return nil, "", fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, target)
	}

	content, err := c.fetcher.GetBody(ctx, target, fetch.PhaseRecipe)
	if err != nil {
		return nil, "", err
	}
	if err := utils.WriteFileAtomic(file, content, 0644); err != nil {
		return nil, "", err
	}
	log.WithField("bytes", len(content)).Debug("Fetched and cached page")
	return content, models.SourceLive, nil
}

// Evict removes the cached page for slug. A missing entry is not an error.
func (c *PageCache) Evict(slug string) error {
	err := os.Remove(c.PagePath(slug))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: evict '%s': %w", utils.ErrFilesystem, slug, err)
	}
	return nil
}
