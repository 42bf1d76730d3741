package discover

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/recipe-scraper/pkg/fetch"
	"github.com/Sriram-PR/recipe-scraper/pkg/models"
	"github.com/Sriram-PR/recipe-scraper/pkg/storage"
)

const facetPage = `<html><body>
<div facet-type="special_diets">
  <label class="general-facet">Vegetarian</label>
  <label class="general-facet"> Gluten-Free </label>
  <label class="other">Ignored</label>
</div>
<div facet-type="cuisines"><label class="general-facet">Italian</label></div>
<div facet-type="meal_types"><label class="general-facet">Dinner</label><label class="general-facet">  </label></div>
<div facet-type="dish_types"><label class="general-facet">Soups and Stews</label></div>
<div facet-type="collections"><label class="general-facet">Holiday</label></div>
</body></html>`

type recordingUpserter struct {
	calls []models.Category
	err   error
}

func (r *recordingUpserter) UpsertCategory(_ context.Context, name string, typ models.CategoryType) (*models.Category, error) {
	if r.err != nil {
		return nil, r.err
	}
	c := models.Category{ID: int64(len(r.calls) + 1), Name: name, Type: typ}
	r.calls = append(r.calls, c)
	return &c, nil
}

func newFacetDiscoverer(t *testing.T, status int, body string) *Discoverer {
	t.Helper()
	cfg := testConfig(t)
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testBaseURL+"/search", httpmock.NewStringResponder(status, body))

	client := &http.Client{Transport: transport, Timeout: 5 * time.Second}
	fetcher := fetch.NewFetcher(client, cfg, nil, nil, testLogger())
	d, err := NewDiscoverer(cfg, fetcher, nil, nil, "run-1", nil, testLogger())
	require.NoError(t, err)
	return d
}

func TestSeedCategories(t *testing.T) {
	d := newFacetDiscoverer(t, http.StatusOK, facetPage)
	store := &recordingUpserter{}

	n, err := d.SeedCategories(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []models.Category{
		{ID: 1, Name: "Vegetarian", Type: models.CategoryDiet},
		{ID: 2, Name: "Gluten-Free", Type: models.CategoryDiet},
		{ID: 3, Name: "Italian", Type: models.CategoryCuisine},
		{ID: 4, Name: "Dinner", Type: models.CategoryMealType},
		{ID: 5, Name: "Soups and Stews", Type: models.CategoryDishType},
	}, store.calls)
}

func TestSeedCategories_OverwritesTypeInStore(t *testing.T) {
	ctx := context.Background()
	d := newFacetDiscoverer(t, http.StatusOK, facetPage)
	store, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "recipes.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, err = store.GetOrCreateCategory(ctx, "dinner")
	require.NoError(t, err)

	_, err = d.SeedCategories(ctx, store)
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Categories)
	assert.Equal(t, 1, stats.CategoriesPerType[models.CategoryMealType])
}

func TestSeedCategories_Errors(t *testing.T) {
	d := newFacetDiscoverer(t, http.StatusNotFound, "")
	_, err := d.SeedCategories(context.Background(), &recordingUpserter{})
	assert.Error(t, err)

	d = newFacetDiscoverer(t, http.StatusOK, facetPage)
	boom := errors.New("boom")
	n, err := d.SeedCategories(context.Background(), &recordingUpserter{err: boom})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, n)
}
