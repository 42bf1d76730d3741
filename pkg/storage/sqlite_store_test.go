package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/recipe-scraper/pkg/models"
	"github.com/Sriram-PR/recipe-scraper/pkg/search"
	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "recipes.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

func sampleRecipe(slug, name string) *models.Recipe {
	return &models.Recipe{
		Slug:         slug,
		Name:         name,
		Description:  "A description",
		TotalTime:    "45 minutes",
		TotalMinutes: intPtr(45),
		Servings:     "4 servings",
		RatingValue:  floatPtr(4.5),
		RatingCount:  intPtr(120),
		Ingredients:  []string{"@@Sauce@@", "2 tbsp soy", "1 tsp sugar"},
		Instructions: []string{"Mix.", "Serve."},
		Author:       "Jane Cook",
	}
}

func TestOpenSQLite_MigrateIsIdempotent(t *testing.T) {
	store := newTestSQLite(t)
	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, store.Migrate(context.Background()))
}

func TestUpsertRecipe_Idempotent(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	first, err := store.UpsertRecipe(ctx, sampleRecipe("12345-soy-noodles", "Soy Noodles"), []string{"Dinner"})
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.Equal(t, []string{"@@Sauce@@", "2 tbsp soy", "1 tsp sugar"}, first.Ingredients)
	assert.Equal(t, 45, *first.TotalMinutes)

	second, err := store.UpsertRecipe(ctx, sampleRecipe("12345-soy-noodles", "Soy Noodles"), []string{"Dinner"})
	require.NoError(t, err)

	slugs, err := store.ListSlugs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"12345-soy-noodles"}, slugs)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, []string{"Dinner"}, second.CategoryNames())
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestUpsertRecipe_UpdatesMutableFieldsOnly(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	_, err := store.UpsertRecipe(ctx, sampleRecipe("1-stew", "Stew"), nil)
	require.NoError(t, err)
	require.NoError(t, store.SetImagePath(ctx, "1-stew", "/static/recipes/1-stew.jpg"))
	require.NoError(t, store.UpdateSearchVector(ctx, "1-stew", "'stew':1A"))

	updated := sampleRecipe("1-stew", "Beef Stew")
	updated.RatingValue = nil
	got, err := store.UpsertRecipe(ctx, updated, nil)
	require.NoError(t, err)

	assert.Equal(t, "Beef Stew", got.Name)
	assert.Nil(t, got.RatingValue)
	require.NotNil(t, got.ImagePath)
	assert.Equal(t, "/static/recipes/1-stew.jpg", *got.ImagePath)
	require.NotNil(t, got.SearchVector)
	assert.Equal(t, "'stew':1A", *got.SearchVector)
}

func TestUpsertRecipe_RequiresSlug(t *testing.T) {
	store := newTestSQLite(t)
	_, err := store.UpsertRecipe(context.Background(), &models.Recipe{Name: "No slug"}, nil)
	assert.ErrorIs(t, err, utils.ErrValidation)
}

func TestUpsertRecipe_TruncatesAuthor(t *testing.T) {
	store := newTestSQLite(t)
	rec := sampleRecipe("2-long", "Long")
	rec.Author = strings.Repeat("é", 150)

	got, err := store.UpsertRecipe(context.Background(), rec, nil)
	require.NoError(t, err)
	assert.Equal(t, 100, len([]rune(got.Author)))
}

func TestCategories_CaseInsensitiveFirstSeenCasing(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	_, err := store.UpsertRecipe(ctx, sampleRecipe("1-a", "A"), []string{"  Weeknight   Dinner ", "weeknight dinner", ""})
	require.NoError(t, err)
	got, err := store.UpsertRecipe(ctx, sampleRecipe("2-b", "B"), []string{"WEEKNIGHT DINNER"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Weeknight Dinner"}, got.CategoryNames())
	assert.Equal(t, models.CategoryUnknown, got.Categories[0].Type)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Categories)
}

func TestUpsertRecipe_CategoriesAccumulate(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	_, err := store.UpsertRecipe(ctx, sampleRecipe("1-a", "A"), []string{"Dinner"})
	require.NoError(t, err)
	_, err = store.UpsertRecipe(ctx, sampleRecipe("1-a", "A"), []string{"Vegan"})
	require.NoError(t, err)

	names, err := store.CategoryNames(ctx, "1-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"Dinner", "Vegan"}, names)
}

func TestUpsertCategory_OverwritesType(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	created, err := store.GetOrCreateCategory(ctx, "Italian")
	require.NoError(t, err)
	assert.Equal(t, models.CategoryUnknown, created.Type)

	typed, err := store.UpsertCategory(ctx, "italian", models.CategoryCuisine)
	require.NoError(t, err)
	assert.Equal(t, created.ID, typed.ID)
	assert.Equal(t, "Italian", typed.Name)
	assert.Equal(t, models.CategoryCuisine, typed.Type)

	_, err = store.UpsertCategory(ctx, "Bad", models.CategoryType("flavor"))
	assert.ErrorIs(t, err, utils.ErrValidation)
	_, err = store.UpsertCategory(ctx, "   ", models.CategoryDiet)
	assert.ErrorIs(t, err, utils.ErrValidation)
}

func TestGetRecipe_NotFound(t *testing.T) {
	store := newTestSQLite(t)
	_, err := store.GetRecipe(context.Background(), "missing")
	assert.ErrorIs(t, err, utils.ErrNotFound)

	exists, err := store.RecipeExists(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSetImagePath_UnknownSlug(t *testing.T) {
	store := newTestSQLite(t)
	err := store.SetImagePath(context.Background(), "missing", "/x.jpg")
	assert.ErrorIs(t, err, utils.ErrNotFound)
	err = store.UpdateSearchVector(context.Background(), "missing", "'x':1A")
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func seedQueryStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := newTestSQLite(t)
	ctx := context.Background()

	rows := []struct {
		slug, name  string
		rating      *float64
		count       *int
		categories  []string
		ingredients []string
		image       bool
	}{
		{"1-pasta", "Simple Pasta", floatPtr(4.8), intPtr(50), []string{"Dinner", "Vegan"}, []string{"1 lb pasta", "olive oil"}, true},
		{"2-salad", "Green Salad", floatPtr(4.8), intPtr(200), []string{"Vegan", "Lunch"}, []string{"lettuce", "pasta shells"}, false},
		{"3-stew", "Beef Stew", floatPtr(3.9), intPtr(500), []string{"Dinner"}, []string{"beef", "carrots"}, true},
		{"4-toast", "Toast", nil, nil, []string{"Breakfast"}, []string{"bread"}, false},
	}
	for _, r := range rows {
		rec := sampleRecipe(r.slug, r.name)
		rec.RatingValue = r.rating
		rec.RatingCount = r.count
		rec.Ingredients = r.ingredients
		_, err := store.UpsertRecipe(ctx, rec, r.categories)
		require.NoError(t, err)
		if r.image {
			require.NoError(t, store.SetImagePath(ctx, r.slug, "/static/recipes/"+r.slug+".jpg"))
		}
		vec := search.BuildVector(r.name, r.categories, r.ingredients)
		require.NoError(t, store.UpdateSearchVector(ctx, r.slug, vec.String()))
	}
	return store
}

func slugsOf(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Recipe.Slug
	}
	return out
}

func TestQuery_Filters(t *testing.T) {
	store := seedQueryStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"no filter orders by rating then count, nulls last", Filter{}, []string{"2-salad", "1-pasta", "3-stew", "4-toast"}},
		{"exact name", Filter{Name: "Beef Stew"}, []string{"3-stew"}},
		{"exact slug", Filter{Slug: "4-toast"}, []string{"4-toast"}},
		{"min rating value", Filter{MinRatingValue: floatPtr(4.0)}, []string{"2-salad", "1-pasta"}},
		{"min rating count", Filter{MinRatingCount: intPtr(100)}, []string{"2-salad", "3-stew"}},
		{"category intersection", Filter{Categories: []string{"dinner", "VEGAN"}}, []string{"1-pasta"}},
		{"single category", Filter{Categories: []string{"Vegan"}}, []string{"2-salad", "1-pasta"}},
		{"duplicate category names count once", Filter{Categories: []string{"Dinner", "dinner"}}, []string{"1-pasta", "3-stew"}},
		{"unknown category", Filter{Categories: []string{"Dessert"}}, []string{}},
		{"has image", Filter{HasImage: boolPtr(true)}, []string{"1-pasta", "3-stew"}},
		{"no image", Filter{HasImage: boolPtr(false)}, []string{"2-salad", "4-toast"}},
		{"limit and offset", Filter{Limit: 2, Offset: 1}, []string{"1-pasta", "3-stew"}},
		{"offset only", Filter{Offset: 3}, []string{"4-toast"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := store.Query(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, slugsOf(results))
		})
	}
}

func TestQuery_Search(t *testing.T) {
	store := seedQueryStore(t)
	ctx := context.Background()

	t.Run("name match ranks above ingredient match", func(t *testing.T) {
		results, err := store.Query(ctx, Filter{Search: "pasta"})
		require.NoError(t, err)
		assert.Equal(t, []string{"1-pasta", "2-salad"}, slugsOf(results))
		assert.Greater(t, results[0].Rank, results[1].Rank)
		assert.Equal(t, []string{"Dinner", "Vegan"}, results[0].Recipe.CategoryNames())
	})

	t.Run("search combines with other filters", func(t *testing.T) {
		results, err := store.Query(ctx, Filter{Search: "pasta", Categories: []string{"Lunch"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"2-salad"}, slugsOf(results))
	})

	t.Run("search paginates after ranking", func(t *testing.T) {
		results, err := store.Query(ctx, Filter{Search: "pasta", Offset: 1, Limit: 5})
		require.NoError(t, err)
		assert.Equal(t, []string{"2-salad"}, slugsOf(results))
	})

	t.Run("stopword-only search matches nothing", func(t *testing.T) {
		results, err := store.Query(ctx, Filter{Search: "the and"})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("recipes without a vector never match", func(t *testing.T) {
		_, err := store.UpsertRecipe(ctx, sampleRecipe("5-pasta-bake", "Pasta Bake"), nil)
		require.NoError(t, err)
		results, err := store.Query(ctx, Filter{Search: "bake"})
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestStats(t *testing.T) {
	store := seedQueryStore(t)
	_, err := store.UpsertCategory(context.Background(), "Italian", models.CategoryCuisine)
	require.NoError(t, err)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Recipes)
	assert.Equal(t, 2, stats.WithImage)
	assert.Equal(t, 4, stats.Indexed)
	assert.Equal(t, 5, stats.Categories)
	assert.Equal(t, 1, stats.CategoriesPerType[models.CategoryCuisine])
	assert.Equal(t, 4, stats.CategoriesPerType[models.CategoryUnknown])
}

func TestNormalizeCategoryNames(t *testing.T) {
	got := NormalizeCategoryNames([]string{" Quick  Meals", "quick meals", "", "Vegan", "  "})
	assert.Equal(t, []string{"Quick Meals", "Vegan"}, got)
	assert.Empty(t, NormalizeCategoryNames(nil))
}

func TestScanRecipe_NullableColumns(t *testing.T) {
	store := newTestSQLite(t)
	rec := sampleRecipe("9-plain", "Plain")
	rec.TotalMinutes = nil
	rec.RatingValue = nil
	rec.RatingCount = nil

	got, err := store.UpsertRecipe(context.Background(), rec, nil)
	require.NoError(t, err)
	assert.Nil(t, got.TotalMinutes)
	assert.Nil(t, got.RatingValue)
	assert.Nil(t, got.RatingCount)
	assert.Nil(t, got.ImagePath)
	assert.Nil(t, got.SearchVector)
	assert.False(t, got.HasImage())
}
