package storage

import (
	"context"
	"time"

	"github.com/Sriram-PR/recipe-scraper/pkg/models"
)

// RecipeWriter persists recipes and their category associations
type RecipeWriter interface {
	// UpsertRecipe inserts or updates the recipe keyed by slug and attaches the named
	// categories in one transaction. Image path and search vector are left untouched.
	UpsertRecipe(ctx context.Context, rec *models.Recipe, categories []string) (*models.Recipe, error)

	// SetImagePath records the public image reference for slug.
	// Returns utils.ErrNotFound if no such recipe exists.
	SetImagePath(ctx context.Context, slug, imagePath string) error

	// UpdateSearchVector stores the serialized search vector for slug
	UpdateSearchVector(ctx context.Context, slug, vector string) error

	// UpsertCategory creates the category or overwrites its type if it exists
	UpsertCategory(ctx context.Context, name string, typ models.CategoryType) (*models.Category, error)
}

// RecipeReader answers lookups and filtered queries
type RecipeReader interface {
	// RecipeExists reports whether a recipe with slug is stored
	RecipeExists(ctx context.Context, slug string) (bool, error)

	// GetRecipe loads one recipe with its categories. Returns utils.ErrNotFound if absent.
	GetRecipe(ctx context.Context, slug string) (*models.Recipe, error)

	// ListSlugs returns every stored slug in ascending order
	ListSlugs(ctx context.Context) ([]string, error)

	// CategoryNames returns the names of the categories attached to slug
	CategoryNames(ctx context.Context, slug string) ([]string, error)

	// Query returns recipes matching every set field of f, ordered by rank then rating
	Query(ctx context.Context, f Filter) ([]Result, error)
}

// RecipeStore is the full relational recipe store
type RecipeStore interface {
	RecipeWriter
	RecipeReader

	// Stats summarizes store contents for status output
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// StateLedger tracks per-recipe pipeline progress across runs
type StateLedger interface {
	// MarkDiscovered records slug as discovered if the ledger has never seen it.
	// Returns true if the slug was newly added.
	MarkDiscovered(slug, runID string) (bool, error)

	// RecordState merges entry into the slug's ledger record. The stored state only
	// moves as models.RecipeState.Advance allows. Returns the state actually recorded.
	RecordState(slug string, entry models.StateEntry) (models.RecipeState, error)

	// GetState returns the slug's ledger record, or nil if the slug is unknown
	GetState(slug string) (*models.StateEntry, error)

	// RecordImage stores the outcome of the latest image attempt for slug
	RecordImage(slug string, entry *models.ImageEntry) error

	// GetImage returns the latest image attempt for slug, or nil if none was recorded
	GetImage(slug string) (*models.ImageEntry, error)

	// CountByState tallies ledger records per recipe state
	CountByState(ctx context.Context) (map[models.RecipeState]int, error)

	// Count returns the number of keys held by the ledger
	Count() int

	// RunGC periodically reclaims value log space until ctx is done
	RunGC(ctx context.Context, interval time.Duration)

	Close() error
}
