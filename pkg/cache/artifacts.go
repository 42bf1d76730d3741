package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Sriram-PR/recipe-scraper/pkg/models"
	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

const (
	urlSetFileName   = "urls.json"
	recipesDirName   = "recipes"
	recipeFileSuffix = ".json"
)

// URLSetPath returns the location of the discovered URL set artifact
func URLSetPath(cacheDir string) string {
	return filepath.Join(cacheDir, urlSetFileName)
}

// WriteURLSet replaces the URL set artifact. URLs are de-duplicated and sorted so
// repeated discoveries of the same site produce identical files.
func WriteURLSet(cacheDir string, set *models.DiscoveredURLSet) error {
	seen := make(map[string]struct{}, set.Len())
	urls := make([]string, 0, set.Len())
	if set != nil {
		for _, u := range set.URLs {
			if _, dup := seen[u]; dup || u == "" {
				continue
			}
			seen[u] = struct{}{}
			urls = append(urls, u)
		}
	}
	sort.Strings(urls)

	data, err := json.MarshalIndent(models.DiscoveredURLSet{URLs: urls}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode URL set: %w", utils.ErrParsing, err)
	}
	return utils.WriteFileAtomic(URLSetPath(cacheDir), data, 0644)
}

// ReadURLSet loads the URL set artifact.
// Returns utils.ErrMissingArtifact if discovery has never written it.
func ReadURLSet(cacheDir string) (*models.DiscoveredURLSet, error) {
	path := URLSetPath(cacheDir)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s not found, run URL discovery first", utils.ErrMissingArtifact, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", utils.ErrFilesystem, path, err)
	}
	var set models.DiscoveredURLSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", utils.ErrParsing, path, err)
	}
	return &set, nil
}

// RecipePath returns the canonical record file for slug
func RecipePath(cacheDir, slug string) string {
	return filepath.Join(cacheDir, recipesDirName, utils.SanitizeSlug(slug)+recipeFileSuffix)
}

// WriteRecipe stores a canonical record so ingestion can run without re-extracting
func WriteRecipe(cacheDir string, rec *models.CanonicalRecipe) error {
	if rec == nil || rec.Slug == "" {
		return fmt.Errorf("%w: canonical recipe without slug", utils.ErrValidation)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode recipe '%s': %w", utils.ErrParsing, rec.Slug, err)
	}
	return utils.WriteFileAtomic(RecipePath(cacheDir, rec.Slug), data, 0644)
}

// ReadRecipe loads the canonical record for slug.
// Returns utils.ErrMissingArtifact if it was never extracted.
func ReadRecipe(cacheDir, slug string) (*models.CanonicalRecipe, error) {
	path := RecipePath(cacheDir, slug)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s not found, fetch the recipe first", utils.ErrMissingArtifact, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", utils.ErrFilesystem, path, err)
	}
	var rec models.CanonicalRecipe
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", utils.ErrParsing, path, err)
	}
	return &rec, nil
}

// RemoveRecipe deletes the canonical record for slug. Returns true if a record was removed.
func RemoveRecipe(cacheDir, slug string) (bool, error) {
	path := RecipePath(cacheDir, slug)
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: remove %s: %w", utils.ErrFilesystem, path, err)
	}
	return true, nil
}

// ListRecipes returns the slugs of all stored canonical records in sorted order.
// An absent records directory yields an empty list.
func ListRecipes(cacheDir string) ([]string, error) {
	dir := filepath.Join(cacheDir, recipesDirName)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", utils.ErrFilesystem, dir, err)
	}
	slugs := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recipeFileSuffix) {
			continue
		}
		slugs = append(slugs, strings.TrimSuffix(name, recipeFileSuffix))
	}
	sort.Strings(slugs)
	return slugs, nil
}
