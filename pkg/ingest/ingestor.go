// Package ingest persists canonical recipes into the recipe store and maintains their
// search vectors.
package ingest

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/recipe-scraper/pkg/extract"
	"github.com/Sriram-PR/recipe-scraper/pkg/metrics"
	"github.com/Sriram-PR/recipe-scraper/pkg/models"
	"github.com/Sriram-PR/recipe-scraper/pkg/search"
	"github.com/Sriram-PR/recipe-scraper/pkg/storage"
	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

// Ingestor writes canonical recipes to the store
type Ingestor struct {
	store   storage.RecipeStore
	ledger  storage.StateLedger // optional
	metrics *metrics.Metrics
	log     *logrus.Entry
}

// NewIngestor creates an Ingestor. ledger and m may be nil.
func NewIngestor(store storage.RecipeStore, ledger storage.StateLedger, m *metrics.Metrics, log *logrus.Entry) *Ingestor {
	return &Ingestor{
		store:   store,
		ledger:  ledger,
		metrics: m,
		log:     log.WithField("component", "ingest"),
	}
}

// Ingest validates rec and upserts it with its keyword categories in one transaction.
// Records with no title, ingredients, or instructions are rejected with utils.ErrValidation
// and never reach the store.
func (i *Ingestor) Ingest(ctx context.Context, rec *models.CanonicalRecipe) (*models.Recipe, error) {
	log := i.log.WithField("slug", rec.Slug)
	if err := extract.Validate(rec); err != nil {
		i.metrics.IncRecipe("rejected")
		i.record(rec.Slug, models.StateEntry{State: models.StateRejected, ErrorType: utils.CategorizeError(err)}, log)
		return nil, err
	}

	categories := storage.NormalizeCategoryNames(rec.Keywords)
	stored, err := i.store.UpsertRecipe(ctx, ToRecipe(rec), categories)
	if err != nil {
		i.metrics.IncError(utils.CategorizeError(err))
		return nil, err
	}

	i.metrics.IncRecipe("ingested")
	state := models.StatePersisted
	if len(categories) > 0 {
		state = models.StateCategoriesAttached
	}
	i.record(rec.Slug, models.StateEntry{State: state}, log)
	log.WithField("categories", len(categories)).Debug("Recipe ingested")
	return stored, nil
}

// ToRecipe maps a canonical record onto the stored recipe shape
func ToRecipe(rec *models.CanonicalRecipe) *models.Recipe {
	return &models.Recipe{
		Slug:         rec.Slug,
		Name:         rec.Title,
		Description:  rec.Description,
		TotalTime:    rec.TotalTime,
		TotalMinutes: rec.TotalMinutes,
		Servings:     rec.Yield,
		RatingValue:  rec.RatingValue,
		RatingCount:  rec.RatingCount,
		Ingredients:  rec.Ingredients,
		Instructions: rec.Instructions,
		Author:       utils.Truncate(rec.Author, extract.MaxAuthorLength),
	}
}

// IndexSlug rebuilds the search vector of one stored recipe from its name, its attached
// category names and its ingredient lines.
func (i *Ingestor) IndexSlug(ctx context.Context, slug string) error {
	r, err := i.store.GetRecipe(ctx, slug)
	if err != nil {
		return err
	}
	vec := search.BuildVector(r.Name, r.CategoryNames(), ingredientLines(r.Ingredients))
	if err := i.store.UpdateSearchVector(ctx, slug, vec.String()); err != nil {
		return err
	}
	i.record(slug, models.StateEntry{State: models.StateSearchIndexed}, i.log.WithField("slug", slug))
	return nil
}

// IndexAll rebuilds every stored recipe's search vector. Per-recipe failures are logged and
// skipped. Returns the number of recipes indexed.
func (i *Ingestor) IndexAll(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { i.metrics.ObserveStage("index", time.Since(start)) }()

	slugs, err := i.store.ListSlugs(ctx)
	if err != nil {
		return 0, err
	}
	indexed := 0
	for _, slug := range slugs {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		if err := i.IndexSlug(ctx, slug); err != nil {
			i.metrics.IncError(utils.CategorizeError(err))
			i.log.WithField("slug", slug).Errorf("Cannot index recipe: %v", err)
			continue
		}
		indexed++
	}
	i.log.WithFields(logrus.Fields{"indexed": indexed, "total": len(slugs)}).Info("Search vectors rebuilt")
	return indexed, nil
}

// ingredientLines drops @@group@@ headers so section names do not pollute the index
func ingredientLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, g := range extract.Sections(lines) {
		out = append(out, g.Items...)
	}
	return out
}

func (i *Ingestor) record(slug string, entry models.StateEntry, log *logrus.Entry) {
	if i.ledger == nil {
		return
	}
	if _, err := i.ledger.RecordState(slug, entry); err != nil {
		log.Warnf("Cannot record ledger state %s: %v", entry.State, err)
	}
}
