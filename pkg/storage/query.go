package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Sriram-PR/recipe-scraper/pkg/models"
	"github.com/Sriram-PR/recipe-scraper/pkg/search"
	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

// Filter selects recipes. Zero-valued fields are ignored; set fields are combined with AND.
type Filter struct {
	Name           string   `json:"name,omitempty"` // Exact match
	Slug           string   `json:"slug,omitempty"` // Exact match
	MinRatingValue *float64 `json:"min_rating_value,omitempty"`
	MinRatingCount *int     `json:"min_rating_count,omitempty"`
	Categories     []string `json:"categories,omitempty"` // Recipe must carry every one (case-insensitive)
	Search         string   `json:"search,omitempty"`     // Free text ranked against the search vector
	HasImage       *bool    `json:"has_image,omitempty"`
	Limit          int      `json:"limit,omitempty"` // 0 = no limit
	Offset         int      `json:"offset,omitempty"`
}

// Result is one matching recipe. Rank is zero unless the filter carried a search.
type Result struct {
	Recipe *models.Recipe `json:"recipe"`
	Rank   float64        `json:"rank,omitempty"`
}

// Query implements RecipeReader.
// Ordering is rank descending when searching, then rating value descending with missing
// ratings last, then rating count descending, then slug.
func (s *SQLiteStore) Query(ctx context.Context, f Filter) ([]Result, error) {
	var where []string
	var args []any

	if f.Name != "" {
		where = append(where, "r.name = ?")
		args = append(args, f.Name)
	}
	if f.Slug != "" {
		where = append(where, "r.slug = ?")
		args = append(args, f.Slug)
	}
	if f.MinRatingValue != nil {
		where = append(where, "r.rating_value >= ?")
		args = append(args, *f.MinRatingValue)
	}
	if f.MinRatingCount != nil {
		where = append(where, "r.rating_count >= ?")
		args = append(args, *f.MinRatingCount)
	}
	if f.HasImage != nil {
		if *f.HasImage {
			where = append(where, "(r.image_path IS NOT NULL AND r.image_path != '')")
		} else {
			where = append(where, "(r.image_path IS NULL OR r.image_path = '')")
		}
	}
	if cats := NormalizeCategoryNames(f.Categories); len(cats) > 0 {
		where = append(where, `r.id IN (
			SELECT rc.recipe_id FROM recipe_categories rc
			JOIN categories c ON c.id = rc.category_id
			WHERE c.name IN (`+placeholders(len(cats))+`)
			GROUP BY rc.recipe_id
			HAVING COUNT(DISTINCT c.id) = ?)`)
		for _, c := range cats {
			args = append(args, c)
		}
		args = append(args, len(cats))
	}

	searching := strings.TrimSpace(f.Search) != ""
	query := search.ParseQuery(f.Search)
	if searching {
		if query.Empty() {
			// Only stopwords: nothing can match.
			return []Result{}, nil
		}
		where = append(where, "(r.search_vector IS NOT NULL AND r.search_vector != '')")
	}

	stmt := `SELECT ` + recipeColumns + ` FROM recipes r`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += ` ORDER BY r.rating_value IS NULL, r.rating_value DESC, r.rating_count IS NULL, r.rating_count DESC, r.slug ASC`
	if !searching {
		switch {
		case f.Limit > 0:
			stmt += " LIMIT ? OFFSET ?"
			args = append(args, f.Limit, max(f.Offset, 0))
		case f.Offset > 0:
			stmt += " LIMIT -1 OFFSET ?"
			args = append(args, f.Offset)
		}
	}

	recipes, err := s.queryRecipes(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(recipes))
	for _, rec := range recipes {
		var rank float64
		if searching {
			vec, err := search.ParseVector(*rec.SearchVector)
			if err != nil {
				s.log.WithField("slug", rec.Slug).Warnf("Unreadable search vector, skipping: %v", err)
				continue
			}
			if rank = search.Rank(vec, query); rank == 0 {
				continue
			}
		}
		results = append(results, Result{Recipe: rec, Rank: rank})
	}

	if searching {
		// Stable sort keeps the rating ordering among equal ranks.
		sort.SliceStable(results, func(i, j int) bool { return results[i].Rank > results[j].Rank })
		results = paginate(results, f.Offset, f.Limit)
	}

	ids := make([]int64, len(results))
	for i, r := range results {
		ids[i] = r.Recipe.ID
	}
	cats, err := s.categoriesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		r.Recipe.Categories = cats[r.Recipe.ID]
	}
	return results, nil
}

// queryRecipes runs stmt and scans every row. Rows are closed before returning so the
// single connection is free for follow-up queries.
func (s *SQLiteStore) queryRecipes(ctx context.Context, stmt string, args ...any) ([]*models.Recipe, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query recipes: %w", utils.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*models.Recipe
	for rows.Next() {
		rec, err := scanRecipe(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan recipe: %w", utils.ErrDatabase, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: query recipes: %w", utils.ErrDatabase, err)
	}
	return out, nil
}

func paginate(results []Result, offset, limit int) []Result {
	if offset > 0 {
		if offset >= len(results) {
			return []Result{}
		}
		results = results[offset:]
	}
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}
