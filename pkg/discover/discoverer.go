// Package discover enumerates recipe URLs by walking the source's paginated listing.
//
// Pagination has no reliable end marker, so three signals stop the walk: a page with no
// items at all, a run of consecutive pages that add nothing new (stagnation), and an
// optional page cap. A page that keeps failing is abandoned after a bounded number of
// attempts and the walk moves on.
package discover

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/recipe-scraper/pkg/cache"
	"github.com/Sriram-PR/recipe-scraper/pkg/config"
	"github.com/Sriram-PR/recipe-scraper/pkg/fetch"
	"github.com/Sriram-PR/recipe-scraper/pkg/metrics"
	"github.com/Sriram-PR/recipe-scraper/pkg/models"
	"github.com/Sriram-PR/recipe-scraper/pkg/parse"
	"github.com/Sriram-PR/recipe-scraper/pkg/storage"
	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

// StopReason says why a discovery walk ended
type StopReason string

const (
	StopEmptyPage  StopReason = "empty_page"
	StopStagnation StopReason = "stagnation"
	StopMaxPages   StopReason = "max_pages"
	StopCancelled  StopReason = "cancelled"
)

// Discoverer walks listing pages and persists the discovered URL set
type Discoverer struct {
	cfg     *config.AppConfig
	fetcher *fetch.Fetcher
	robots  *fetch.RobotsHandler // nil when robots.txt is not consulted
	parser  *ListingParser
	ledger  storage.StateLedger // optional
	runID   string
	metrics *metrics.Metrics
	log     *logrus.Entry

	lastStop  StopReason
	lastPages int
}

// NewDiscoverer creates a Discoverer. cfg must be validated; ledger may be nil.
func NewDiscoverer(
	cfg *config.AppConfig,
	fetcher *fetch.Fetcher,
	robots *fetch.RobotsHandler,
	ledger storage.StateLedger,
	runID string,
	m *metrics.Metrics,
	log *logrus.Entry,
) (*Discoverer, error) {
	src := cfg.Source
	parser, err := NewListingParser(src.BaseURL, src.ListingItemSelector, src.ListingURLAttr, src.RecipePathPattern)
	if err != nil {
		return nil, err
	}
	if !cfg.RespectRobotsTxt {
		robots = nil
	}
	return &Discoverer{
		cfg:     cfg,
		fetcher: fetcher,
		robots:  robots,
		parser:  parser,
		ledger:  ledger,
		runID:   runID,
		metrics: m,
		log:     log.WithField("component", "discover"),
	}, nil
}

// LastStop reports why the most recent Run ended and how many pages it walked
func (d *Discoverer) LastStop() (StopReason, int) {
	return d.lastStop, d.lastPages
}

// Run requests listing pages 1, 2, 3, ... until a stop condition holds, then overwrites the
// URL set artifact. On cancellation the partial set is still written and ctx.Err() is returned.
func (d *Discoverer) Run(ctx context.Context) (*models.DiscoveredURLSet, error) {
	start := time.Now()
	defer func() { d.metrics.ObserveStage("urls", time.Since(start)) }()

	if d.robots != nil {
		listing := d.cfg.ListingURL(1)
		if !d.robots.Allowed(ctx, listing) {
			return nil, fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, listing)
		}
	}

	disc := d.cfg.Discovery
	collected := make(map[string]struct{})
	page := 1
	stagnant := 0
	failures := 0
	pagesWalked := 0
	var stop StopReason

walk:
	for {
		if ctx.Err() != nil {
			stop = StopCancelled
			break
		}
		if disc.MaxPages > 0 && page > disc.MaxPages {
			stop = StopMaxPages
			break
		}

		pageLog := d.log.WithField("page", page)
		lp, err := d.fetchPage(ctx, page, pageLog)
		if err != nil {
			if ctx.Err() != nil {
				stop = StopCancelled
				break
			}
			failures++
			d.metrics.IncError(utils.CategorizeError(err))
			pageLog.WithField("failures", failures).Warnf("Listing page failed: %v", err)
			if failures > disc.PageFailureThreshold {
				pageLog.Warnf("Too many failures for page, skipping it")
				failures = 0
				page++
				continue
			}
			if !sleepCtx(ctx, disc.PageRetryDelay) {
				stop = StopCancelled
				break
			}
			continue
		}
		failures = 0
		pagesWalked++
		d.metrics.IncListingPage()

		switch {
		case lp.RawItems == 0:
			pageLog.Info("Listing page has no items, stopping discovery")
			stop = StopEmptyPage
			break walk
		case len(lp.Candidates) == 0:
			pageLog.Warnf("No recipe URLs among %d listing items", lp.RawItems)
			page++
			continue
		}

		added := 0
		for _, path := range lp.Candidates {
			if _, ok := collected[path]; ok {
				continue
			}
			collected[path] = struct{}{}
			added++
			d.markDiscovered(path, pageLog)
		}

		if added == 0 {
			stagnant++
			pageLog.WithField("stagnant_pages", stagnant).Warn("Listing page added no new URLs")
			if stagnant >= disc.StagnationThreshold {
				pageLog.Infof("No new URLs for %d consecutive pages, stopping discovery", stagnant)
				stop = StopStagnation
				break
			}
		} else {
			stagnant = 0
			pageLog.WithFields(logrus.Fields{"new": added, "total": len(collected)}).Info("Listing page processed")
		}
		page++
	}

	d.lastStop, d.lastPages = stop, pagesWalked

	set := &models.DiscoveredURLSet{URLs: make([]string, 0, len(collected))}
	for path := range collected {
		set.URLs = append(set.URLs, path)
	}
	sort.Strings(set.URLs)

	if err := cache.WriteURLSet(d.cfg.CacheDir, set); err != nil {
		return nil, err
	}
	d.metrics.SetDiscovered(set.Len())
	d.log.WithFields(logrus.Fields{"urls": set.Len(), "pages": pagesWalked, "stop": stop}).Info("Discovery complete")

	if stop == StopCancelled {
		return set, ctx.Err()
	}
	return set, nil
}

func (d *Discoverer) fetchPage(ctx context.Context, page int, log *logrus.Entry) (*listingPage, error) {
	body, err := d.fetcher.GetBody(ctx, d.cfg.ListingURL(page), fetch.PhaseListing)
	if err != nil {
		return nil, err
	}
	return d.parser.Parse(body, log)
}

func (d *Discoverer) markDiscovered(path string, log *logrus.Entry) {
	if d.ledger == nil {
		return
	}
	slug := parse.SlugFromPath(path)
	if slug == "" {
		return
	}
	if _, err := d.ledger.MarkDiscovered(slug, d.runID); err != nil {
		log.WithField("slug", slug).Warnf("Cannot record discovered recipe in ledger: %v", err)
	}
}

// sleepCtx waits for d and reports false if ctx ended first
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
