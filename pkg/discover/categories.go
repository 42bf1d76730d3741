package discover

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/recipe-scraper/pkg/fetch"
	"github.com/Sriram-PR/recipe-scraper/pkg/models"
	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

// facetTypes maps the listing page's facet groups to category types, in seeding order
var facetTypes = []struct {
	Facet string
	Type  models.CategoryType
}{
	{"special_diets", models.CategoryDiet},
	{"cuisines", models.CategoryCuisine},
	{"meal_types", models.CategoryMealType},
	{"dish_types", models.CategoryDishType},
}

// CategoryUpserter is the store capability category seeding needs
type CategoryUpserter interface {
	UpsertCategory(ctx context.Context, name string, typ models.CategoryType) (*models.Category, error)
}

// SeedCategories reads the facet labels on the first listing page and upserts each as a
// typed category. Existing categories keep their name and take the facet's type.
// Returns the number of labels processed.
func (d *Discoverer) SeedCategories(ctx context.Context, store CategoryUpserter) (int, error) {
	start := time.Now()
	defer func() { d.metrics.ObserveStage("categories", time.Since(start)) }()

	listing := d.cfg.AbsoluteURL(d.cfg.Source.ListingPath)
	if d.robots != nil && !d.robots.Allowed(ctx, listing) {
		return 0, fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, listing)
	}
	body, err := d.fetcher.GetBody(ctx, listing, fetch.PhaseListing)
	if err != nil {
		return 0, fmt.Errorf("fetch category facets: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: facet HTML: %w", utils.ErrParsing, err)
	}

	processed := 0
	for _, ft := range facetTypes {
		labels := FacetLabels(doc, ft.Facet)
		facetLog := d.log.WithFields(logrus.Fields{"facet": ft.Facet, "labels": len(labels)})
		for _, name := range labels {
			if _, err := store.UpsertCategory(ctx, name, ft.Type); err != nil {
				return processed, fmt.Errorf("upsert category '%s': %w", name, err)
			}
			processed++
		}
		facetLog.Debug("Seeded facet categories")
	}
	d.log.WithField("categories", processed).Info("Collected categories")
	return processed, nil
}

// FacetLabels returns the trimmed, non-empty label texts of one facet group
func FacetLabels(doc *goquery.Document, facet string) []string {
	var labels []string
	selector := fmt.Sprintf(`div[facet-type="%s"] label.general-facet`, facet)
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if name := utils.CollapseSpace(s.Text()); name != "" {
			labels = append(labels, name)
		}
	})
	return labels
}
