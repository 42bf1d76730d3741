// Package orchestrate runs the ingestion stages in their fixed order against one store and
// one state ledger.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Sriram-PR/recipe-scraper/pkg/cache"
	"github.com/Sriram-PR/recipe-scraper/pkg/config"
	"github.com/Sriram-PR/recipe-scraper/pkg/discover"
	"github.com/Sriram-PR/recipe-scraper/pkg/extract"
	"github.com/Sriram-PR/recipe-scraper/pkg/fetch"
	"github.com/Sriram-PR/recipe-scraper/pkg/images"
	"github.com/Sriram-PR/recipe-scraper/pkg/ingest"
	"github.com/Sriram-PR/recipe-scraper/pkg/metrics"
	"github.com/Sriram-PR/recipe-scraper/pkg/models"
	"github.com/Sriram-PR/recipe-scraper/pkg/parse"
	"github.com/Sriram-PR/recipe-scraper/pkg/storage"
	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

// Stage names, in execution order
const (
	StageCategories = "categories"
	StageURLs       = "urls"
	StageRecipes    = "recipes"
	StageIngest     = "ingest"
	StageImages     = "images"
	StageIndex      = "index"
)

// StageOrder lists every stage in the order Run executes them
var StageOrder = []string{StageCategories, StageURLs, StageRecipes, StageIngest, StageImages, StageIndex}

// Stages selects what one run does
type Stages struct {
	Categories bool
	URLs       bool
	Recipes    bool
	Ingest     bool
	Images     bool
	Index      bool

	Slug  string // Restrict recipes, ingest, images and index to one recipe
	Force bool   // Refetch cached pages, reprocess stored recipes, replace existing images
}

// Enabled reports whether the named stage is selected
func (s Stages) Enabled(stage string) bool {
	switch stage {
	case StageCategories:
		return s.Categories
	case StageURLs:
		return s.URLs
	case StageRecipes:
		return s.Recipes
	case StageIngest:
		return s.Ingest
	case StageImages:
		return s.Images
	case StageIndex:
		return s.Index
	}
	return false
}

// Any reports whether at least one stage is selected
func (s Stages) Any() bool {
	for _, stage := range StageOrder {
		if s.Enabled(stage) {
			return true
		}
	}
	return false
}

// ValidateStages rejects selections that cannot run
func ValidateStages(s Stages) error {
	if !s.Any() {
		return fmt.Errorf("%w: no stage selected. Available stages: %v", utils.ErrConfigValidation, StageOrder)
	}
	if s.Slug != "" {
		if s.Categories || s.URLs {
			return fmt.Errorf("%w: -slug cannot be combined with the %s or %s stages", utils.ErrConfigValidation, StageCategories, StageURLs)
		}
		if utils.SanitizeSlug(s.Slug) != s.Slug {
			return fmt.Errorf("%w: invalid slug '%s'", utils.ErrConfigValidation, s.Slug)
		}
	}
	return nil
}

// StageResult contains the outcome of one stage
type StageResult struct {
	Stage     string
	Success   bool
	Error     error
	Processed int64
	Skipped   int64
	Failed    int64
	Duration  time.Duration
}

// Invalidator is notified once after a run that changed the recipe store
type Invalidator interface {
	Invalidate()
}

// Pipeline wires the stage components over shared resources
type Pipeline struct {
	cfg    *config.AppConfig
	log    *logrus.Entry
	runID  string
	store  storage.RecipeStore
	ledger storage.StateLedger

	pages      *cache.PageCache
	extractor  *extract.Extractor
	discoverer *discover.Discoverer
	ingestor   *ingest.Ingestor
	acquirer   *images.Acquirer

	invalidator Invalidator // optional
	metrics     *metrics.Metrics
	flights     singleflight.Group

	results   []StageResult
	resultsMu sync.Mutex
	mutated   atomic.Bool
}

// NewPipeline creates a Pipeline. cfg must be validated. client, invalidator and m may be
// nil; a nil client is built from cfg.HTTPClientSettings.
func NewPipeline(
	cfg *config.AppConfig,
	client *http.Client,
	store storage.RecipeStore,
	ledger storage.StateLedger,
	invalidator Invalidator,
	m *metrics.Metrics,
	log *logrus.Entry,
) (*Pipeline, error) {
	runID := uuid.NewString()
	log = log.WithField("run_id", runID)

	if client == nil {
		client = fetch.NewClient(cfg.HTTPClientSettings, log)
	}
	rateLimiter := fetch.NewRateLimiter(cfg.DelayPerRequest, log)
	fetcher := fetch.NewFetcher(client, cfg, rateLimiter, m, log)

	var robots *fetch.RobotsHandler
	if cfg.RespectRobotsTxt {
		robots = fetch.NewRobotsHandler(fetcher, cfg.Source.UserAgent, log)
	}

	extractor, err := extract.NewExtractor(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}
	discoverer, err := discover.NewDiscoverer(cfg, fetcher, robots, ledger, runID, m, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create discoverer: %w", err)
	}
	acquirer, err := images.NewAcquirer(cfg, fetcher, store, ledger, m, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create image acquirer: %w", err)
	}

	return &Pipeline{
		cfg:         cfg,
		log:         log,
		runID:       runID,
		store:       store,
		ledger:      ledger,
		pages:       cache.NewPageCache(cfg, fetcher, robots, m, log),
		extractor:   extractor,
		discoverer:  discoverer,
		ingestor:    ingest.NewIngestor(store, ledger, m, log),
		acquirer:    acquirer,
		invalidator: invalidator,
		metrics:     m,
	}, nil
}

// RunID returns the identifier recorded in the ledger for this pipeline's work
func (p *Pipeline) RunID() string {
	return p.runID
}

// Run executes the selected stages in order. Per-recipe failures are counted and logged;
// a stage error that is fatal stops the run and is returned. The invalidator is called once
// if any stage changed the store, even when the run stops early.
func (p *Pipeline) Run(ctx context.Context, st Stages) ([]StageResult, error) {
	if err := ValidateStages(st); err != nil {
		return nil, err
	}
	startTime := time.Now()
	p.log.Infof("Starting pipeline run (stages: %v, slug: %q, force: %t)", selected(st), st.Slug, st.Force)

	p.resultsMu.Lock()
	p.results = p.results[:0]
	p.resultsMu.Unlock()
	p.mutated.Store(false)

	var runErr error
	for _, stage := range StageOrder {
		if !st.Enabled(stage) {
			continue
		}
		result := p.runStage(ctx, stage, st)
		p.resultsMu.Lock()
		p.results = append(p.results, result)
		p.resultsMu.Unlock()
		if result.Error != nil {
			runErr = fmt.Errorf("stage %s: %w", stage, result.Error)
			break
		}
	}

	if p.mutated.Load() && p.invalidator != nil {
		p.invalidator.Invalidate()
		p.log.Debug("Query response cache invalidated")
	}

	p.logSummary(time.Since(startTime))
	return p.Results(), runErr
}

// Results returns a copy of the stage results of the latest run
func (p *Pipeline) Results() []StageResult {
	p.resultsMu.Lock()
	defer p.resultsMu.Unlock()
	return append([]StageResult(nil), p.results...)
}

func (p *Pipeline) runStage(ctx context.Context, stage string, st Stages) StageResult {
	startTime := time.Now()
	result := StageResult{Stage: stage}
	log := p.log.WithField("stage", stage)
	log.Info("Stage started")

	var err error
	switch stage {
	case StageCategories:
		err = p.seedCategories(ctx, &result)
	case StageURLs:
		err = p.discoverURLs(ctx, &result)
	case StageRecipes:
		err = p.fetchRecipes(ctx, st, &result)
	case StageIngest:
		err = p.ingestRecipes(ctx, st, &result)
	case StageImages:
		err = p.acquireImages(ctx, st, &result)
	case StageIndex:
		err = p.indexRecipes(ctx, st, &result)
	}

	result.Duration = time.Since(startTime)
	p.metrics.ObserveStage(stage, result.Duration)
	if err != nil {
		result.Error = err
		p.metrics.IncError(utils.CategorizeError(err))
		log.Errorf("Stage failed: %v", err)
	} else {
		result.Success = true
		log.WithFields(logrus.Fields{
			"processed": result.Processed,
			"skipped":   result.Skipped,
			"failed":    result.Failed,
		}).Info("Stage completed")
	}
	return result
}

func (p *Pipeline) seedCategories(ctx context.Context, result *StageResult) error {
	n, err := p.discoverer.SeedCategories(ctx, p.store)
	result.Processed = int64(n)
	if n > 0 {
		p.mutated.Store(true)
	}
	return err
}

func (p *Pipeline) discoverURLs(ctx context.Context, result *StageResult) error {
	set, err := p.discoverer.Run(ctx)
	result.Processed = int64(set.Len())
	return err
}

// recipePaths returns the recipe paths the recipes stage works through
func (p *Pipeline) recipePaths(st Stages) ([]string, error) {
	if st.Slug != "" {
		return []string{parse.PathForSlug(p.cfg.Source.RecipePathPrefix, st.Slug)}, nil
	}
	set, err := cache.ReadURLSet(p.cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	return set.URLs, nil
}

func (p *Pipeline) fetchRecipes(ctx context.Context, st Stages, result *StageResult) error {
	paths, err := p.recipePaths(st)
	if err != nil {
		return err
	}
	p.log.Infof("Processing %d recipe URLs with %d workers", len(paths), p.cfg.NumWorkers)

	var processed, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.NumWorkers)
	for _, path := range paths {
		path := path
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			done, err := p.processRecipe(gctx, path, st.Force)
			switch {
			case err != nil && utils.IsFatal(err):
				return err
			case err != nil:
				failed.Add(1)
			case done:
				processed.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()
	result.Processed, result.Skipped, result.Failed = processed.Load(), skipped.Load(), failed.Load()
	if err == nil {
		err = ctx.Err()
	}
	return err
}

// processRecipe fetches, extracts and caches one recipe. It returns false without error when
// the recipe is already stored and force is off. Calls for the same slug are collapsed.
func (p *Pipeline) processRecipe(ctx context.Context, path string, force bool) (bool, error) {
	slug := parse.SlugFromPath(path)
	log := p.log.WithFields(logrus.Fields{"slug": slug, "path": path})
	if slug == "" {
		log.Warn("Skipping recipe URL without a slug")
		return false, fmt.Errorf("%w: no slug in '%s'", utils.ErrParsing, path)
	}

	if !force {
		exists, err := p.store.RecipeExists(ctx, slug)
		if err != nil {
			log.Errorf("Cannot check store: %v", err)
			return false, err
		}
		if exists {
			log.Debug("Recipe already stored, skipping")
			return false, nil
		}
	}

	v, err, _ := p.flights.Do(slug, func() (any, error) {
		return p.extractRecipe(ctx, slug, path, force, log)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (p *Pipeline) extractRecipe(ctx context.Context, slug, path string, force bool, log *logrus.Entry) (bool, error) {
	content, source, err := p.pages.Get(ctx, path, force)
	if err != nil {
		p.metrics.IncRecipe("fetch_failed")
		if !utils.IsFatal(err) {
			log.Errorf("Cannot fetch recipe: %v", err)
		}
		return false, err
	}
	p.record(slug, models.StateEntry{
		State:       models.StateFetched,
		Source:      source,
		ContentHash: utils.ContentSHA256(content),
		RunID:       p.runID,
	}, log)

	rec, err := p.extractor.Extract(slug, path, content)
	if err != nil {
		errorType := utils.CategorizeError(err)
		p.metrics.IncError(errorType)
		entry := models.StateEntry{State: models.StateFetched, ErrorType: errorType, RunID: p.runID}
		if errors.Is(err, utils.ErrValidation) {
			entry.State = models.StateRejected
			p.metrics.IncRecipe("rejected")
			// An older record must not be ingested in place of the rejected page.
			removed, rmErr := cache.RemoveRecipe(p.cfg.CacheDir, slug)
			if rmErr != nil {
				log.Errorf("Cannot remove stale recipe record: %v", rmErr)
				return false, rmErr
			}
			if removed {
				log.Warn("Removed stale recipe record after rejection")
			}
		} else {
			p.metrics.IncRecipe("extract_failed")
		}
		p.record(slug, entry, log)
		log.Warnf("Cannot extract recipe: %v", err)
		return false, err
	}

	if err := cache.WriteRecipe(p.cfg.CacheDir, rec); err != nil {
		log.Errorf("Cannot cache recipe: %v", err)
		return false, err
	}
	p.metrics.IncRecipe("extracted")
	p.record(slug, models.StateEntry{State: models.StateParsed, RunID: p.runID}, log)
	log.WithFields(logrus.Fields{"strategy": rec.Strategy, "source": source}).Debug("Recipe extracted")
	return true, nil
}

// cachedSlugs returns the slugs the ingest and images stages read from the recipe cache
func (p *Pipeline) cachedSlugs(st Stages) ([]string, error) {
	if st.Slug != "" {
		return []string{st.Slug}, nil
	}
	return cache.ListRecipes(p.cfg.CacheDir)
}

func (p *Pipeline) ingestRecipes(ctx context.Context, st Stages, result *StageResult) error {
	slugs, err := p.cachedSlugs(st)
	if err != nil {
		return err
	}
	for _, slug := range slugs {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := cache.ReadRecipe(p.cfg.CacheDir, slug)
		if err != nil {
			if st.Slug != "" && errors.Is(err, utils.ErrMissingArtifact) {
				if p.isRejected(slug) {
					result.Skipped++
					p.log.WithField("slug", slug).Warn("Recipe was rejected at extraction, nothing to ingest")
					continue
				}
				return err
			}
			result.Failed++
			p.log.WithField("slug", slug).Errorf("Cannot read cached recipe: %v", err)
			continue
		}
		if _, err := p.ingestor.Ingest(ctx, rec); err != nil {
			result.Failed++
			p.log.WithField("slug", slug).Warnf("Recipe not ingested: %v", err)
			continue
		}
		result.Processed++
		p.mutated.Store(true)
	}
	return nil
}

func (p *Pipeline) acquireImages(ctx context.Context, st Stages, result *StageResult) error {
	slugs, err := p.cachedSlugs(st)
	if err != nil {
		return err
	}

	var processed, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.NumWorkers)
	for _, slug := range slugs {
		slug := slug
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rec, err := cache.ReadRecipe(p.cfg.CacheDir, slug)
			if err != nil {
				failed.Add(1)
				p.log.WithField("slug", slug).Errorf("Cannot read cached recipe: %v", err)
				return nil
			}
			res, err := p.acquirer.Acquire(gctx, rec, st.Force)
			switch {
			case err != nil && utils.IsFatal(err):
				return err
			case err != nil:
				failed.Add(1)
			case res.Outcome == images.OutcomeDownloaded:
				processed.Add(1)
				p.mutated.Store(true)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()
	result.Processed, result.Skipped, result.Failed = processed.Load(), skipped.Load(), failed.Load()
	if err == nil {
		err = ctx.Err()
	}
	return err
}

func (p *Pipeline) indexRecipes(ctx context.Context, st Stages, result *StageResult) error {
	if st.Slug != "" {
		if err := p.ingestor.IndexSlug(ctx, st.Slug); err != nil {
			return err
		}
		result.Processed = 1
		p.mutated.Store(true)
		return nil
	}
	n, err := p.ingestor.IndexAll(ctx)
	result.Processed = int64(n)
	if n > 0 {
		p.mutated.Store(true)
	}
	return err
}

var rejectedErrorType = utils.CategorizeError(utils.ErrValidation)

// isRejected reports whether the ledger's latest extraction outcome for slug is a rejection
func (p *Pipeline) isRejected(slug string) bool {
	entry, err := p.ledger.GetState(slug)
	if err != nil || entry == nil {
		return false
	}
	return entry.State == models.StateRejected || entry.ErrorType == rejectedErrorType
}

func (p *Pipeline) record(slug string, entry models.StateEntry, log *logrus.Entry) {
	if p.ledger == nil {
		return
	}
	if _, err := p.ledger.RecordState(slug, entry); err != nil {
		log.Warnf("Cannot record ledger state %s: %v", entry.State, err)
	}
}

// logSummary logs a summary of all stage results
func (p *Pipeline) logSummary(totalDuration time.Duration) {
	p.log.Info("============================================")
	p.log.Infof("Pipeline run %s completed in %v", p.runID, totalDuration)
	p.log.Info("Stage Results:")

	var totalProcessed, totalFailed int64
	for _, r := range p.Results() {
		status := "SUCCESS"
		if !r.Success {
			status = "FAILED"
		}
		totalProcessed += r.Processed
		totalFailed += r.Failed

		p.log.Infof("  %s: %s - %d processed, %d skipped, %d failed in %v",
			r.Stage, status, r.Processed, r.Skipped, r.Failed, r.Duration)
		if r.Error != nil {
			p.log.Infof("    Error: %v", r.Error)
		}
	}

	p.log.Info("--------------------------------------------")
	p.log.Infof("Total: %d items processed, %d failed", totalProcessed, totalFailed)
	p.log.Info("============================================")
}

func selected(st Stages) []string {
	out := make([]string, 0, len(StageOrder))
	for _, stage := range StageOrder {
		if st.Enabled(stage) {
			out = append(out, stage)
		}
	}
	return out
}
