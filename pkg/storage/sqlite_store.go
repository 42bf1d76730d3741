package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/recipe-scraper/pkg/models"
	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

//go:embed schema.sql
var schemaSQL string

const timeLayout = time.RFC3339Nano

// recipeColumns is the column list scanned by scanRecipe, prefixed with the "r" alias
const recipeColumns = `r.id, r.slug, r.name, r.description, r.total_time, r.total_minutes, r.servings,
	r.rating_value, r.rating_count, r.ingredients, r.instructions, r.author, r.image_path,
	r.search_vector, r.created_at, r.updated_at`

// SQLiteStore implements RecipeStore on a single SQLite database file.
// One connection is held open so all writes are serialized by database/sql.
type SQLiteStore struct {
	db  *sql.DB
	log *logrus.Entry
	now func() time.Time
}

// Stats summarizes the store for status output
type Stats struct {
	Recipes           int                         `json:"recipes"`
	WithImage         int                         `json:"with_image"`
	Indexed           int                         `json:"indexed"`
	Categories        int                         `json:"categories"`
	CategoriesPerType map[models.CategoryType]int `json:"categories_per_type"`
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string, logger *logrus.Entry) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: ensure data dir: %w", utils.ErrFilesystem, err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %w", utils.ErrDatabase, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: pragma journal_mode: %w", utils.ErrDatabase, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping sqlite: %w", utils.ErrDatabase, err)
	}

	s := &SQLiteStore{db: db, log: logger.WithField("component", "sqlite"), now: time.Now}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.log.Infof("Recipe store opened at %s", path)
	return s, nil
}

// Migrate applies the embedded schema. It is idempotent.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("%w: apply schema: %w", utils.ErrDatabase, err)
	}
	return nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertRecipe implements RecipeWriter.
// Re-ingesting a slug updates its mutable fields; category associations only accumulate.
func (s *SQLiteStore) UpsertRecipe(ctx context.Context, rec *models.Recipe, categories []string) (*models.Recipe, error) {
	if rec == nil || strings.TrimSpace(rec.Slug) == "" {
		return nil, fmt.Errorf("%w: recipe slug is required", utils.ErrValidation)
	}

	ingredients, err := marshalList(rec.Ingredients)
	if err != nil {
		return nil, fmt.Errorf("%w: encode ingredients for '%s': %w", utils.ErrParsing, rec.Slug, err)
	}
	instructions, err := marshalList(rec.Instructions)
	if err != nil {
		return nil, fmt.Errorf("%w: encode instructions for '%s': %w", utils.ErrParsing, rec.Slug, err)
	}
	now := s.now().UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %w", utils.ErrDatabase, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO recipes (slug, name, description, total_time, total_minutes, servings,
			rating_value, rating_count, ingredients, instructions, author, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name          = excluded.name,
			description   = excluded.description,
			total_time    = excluded.total_time,
			total_minutes = excluded.total_minutes,
			servings      = excluded.servings,
			rating_value  = excluded.rating_value,
			rating_count  = excluded.rating_count,
			ingredients   = excluded.ingredients,
			instructions  = excluded.instructions,
			author        = excluded.author,
			updated_at    = excluded.updated_at
	`,
		rec.Slug, rec.Name, rec.Description, rec.TotalTime, nullInt(rec.TotalMinutes), rec.Servings,
		nullFloat(rec.RatingValue), nullInt(rec.RatingCount), ingredients, instructions,
		utils.Truncate(rec.Author, 100), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: upsert recipe '%s': %w", utils.ErrDatabase, rec.Slug, err)
	}

	var recipeID int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM recipes WHERE slug = ?`, rec.Slug).Scan(&recipeID); err != nil {
		return nil, fmt.Errorf("%w: read back recipe '%s': %w", utils.ErrDatabase, rec.Slug, err)
	}

	for _, name := range NormalizeCategoryNames(categories) {
		cat, err := getOrCreateCategory(ctx, tx, name)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO recipe_categories (recipe_id, category_id) VALUES (?, ?)`,
			recipeID, cat.ID,
		); err != nil {
			return nil, fmt.Errorf("%w: attach category '%s' to '%s': %w", utils.ErrDatabase, name, rec.Slug, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", utils.ErrDatabase, err)
	}

	return s.GetRecipe(ctx, rec.Slug)
}

// GetOrCreateCategory returns the category named name, creating it with type unknown if absent.
func (s *SQLiteStore) GetOrCreateCategory(ctx context.Context, name string) (*models.Category, error) {
	name = utils.CollapseSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: category name is empty", utils.ErrValidation)
	}
	return getOrCreateCategory(ctx, s.db, name)
}

func getOrCreateCategory(ctx context.Context, q querier, name string) (*models.Category, error) {
	if _, err := q.ExecContext(ctx,
		`INSERT INTO categories (name, type) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, string(models.CategoryUnknown),
	); err != nil {
		return nil, fmt.Errorf("%w: create category '%s': %w", utils.ErrDatabase, name, err)
	}
	return findCategory(ctx, q, name)
}

func findCategory(ctx context.Context, q querier, name string) (*models.Category, error) {
	var cat models.Category
	var typ string
	err := q.QueryRowContext(ctx, `SELECT id, name, type FROM categories WHERE name = ?`, name).
		Scan(&cat.ID, &cat.Name, &typ)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: category '%s'", utils.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read category '%s': %w", utils.ErrDatabase, name, err)
	}
	cat.Type = models.CategoryType(typ)
	return &cat, nil
}

// UpsertCategory implements RecipeWriter. The stored name keeps its first-seen casing.
func (s *SQLiteStore) UpsertCategory(ctx context.Context, name string, typ models.CategoryType) (*models.Category, error) {
	name = utils.CollapseSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: category name is empty", utils.ErrValidation)
	}
	if !typ.IsValid() {
		return nil, fmt.Errorf("%w: unknown category type '%s'", utils.ErrValidation, typ)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (name, type) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET type = excluded.type`,
		name, string(typ),
	); err != nil {
		return nil, fmt.Errorf("%w: upsert category '%s': %w", utils.ErrDatabase, name, err)
	}
	return findCategory(ctx, s.db, name)
}

// RecipeExists implements RecipeReader
func (s *SQLiteStore) RecipeExists(ctx context.Context, slug string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM recipes WHERE slug = ?`, slug).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: check recipe '%s': %w", utils.ErrDatabase, slug, err)
	}
	return true, nil
}

// GetRecipe implements RecipeReader
func (s *SQLiteStore) GetRecipe(ctx context.Context, slug string) (*models.Recipe, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recipeColumns+` FROM recipes r WHERE r.slug = ?`, slug)
	rec, err := scanRecipe(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: recipe '%s'", utils.ErrNotFound, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read recipe '%s': %w", utils.ErrDatabase, slug, err)
	}

	cats, err := s.categoriesFor(ctx, []int64{rec.ID})
	if err != nil {
		return nil, err
	}
	rec.Categories = cats[rec.ID]
	return rec, nil
}

// ListSlugs implements RecipeReader
func (s *SQLiteStore) ListSlugs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slug FROM recipes ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("%w: list slugs: %w", utils.ErrDatabase, err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("%w: scan slug: %w", utils.ErrDatabase, err)
		}
		slugs = append(slugs, slug)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list slugs: %w", utils.ErrDatabase, err)
	}
	return slugs, nil
}

// CategoryNames implements RecipeReader
func (s *SQLiteStore) CategoryNames(ctx context.Context, slug string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.name FROM categories c
		JOIN recipe_categories rc ON rc.category_id = c.id
		JOIN recipes r ON r.id = rc.recipe_id
		WHERE r.slug = ?
		ORDER BY c.name COLLATE NOCASE`, slug)
	if err != nil {
		return nil, fmt.Errorf("%w: category names for '%s': %w", utils.ErrDatabase, slug, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: scan category name: %w", utils.ErrDatabase, err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SetImagePath implements RecipeWriter
func (s *SQLiteStore) SetImagePath(ctx context.Context, slug, imagePath string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recipes SET image_path = ?, updated_at = ? WHERE slug = ?`,
		imagePath, s.now().UTC().Format(timeLayout), slug,
	)
	return checkAffected(res, err, "set image path", slug)
}

// UpdateSearchVector implements RecipeWriter
func (s *SQLiteStore) UpdateSearchVector(ctx context.Context, slug, vector string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE recipes SET search_vector = ? WHERE slug = ?`, vector, slug)
	return checkAffected(res, err, "update search vector", slug)
}

// Stats implements RecipeStore
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	st := Stats{CategoriesPerType: make(map[models.CategoryType]int)}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN image_path IS NOT NULL AND image_path != '' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN search_vector IS NOT NULL AND search_vector != '' THEN 1 ELSE 0 END), 0)
		FROM recipes`).Scan(&st.Recipes, &st.WithImage, &st.Indexed)
	if err != nil {
		return st, fmt.Errorf("%w: recipe stats: %w", utils.ErrDatabase, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM categories GROUP BY type`)
	if err != nil {
		return st, fmt.Errorf("%w: category stats: %w", utils.ErrDatabase, err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return st, fmt.Errorf("%w: scan category stats: %w", utils.ErrDatabase, err)
		}
		st.CategoriesPerType[models.CategoryType(typ)] = n
		st.Categories += n
	}
	return st, rows.Err()
}

// categoriesFor loads the categories of every recipe in ids, keyed by recipe id.
func (s *SQLiteStore) categoriesFor(ctx context.Context, ids []int64) (map[int64][]models.Category, error) {
	out := make(map[int64][]models.Category, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT rc.recipe_id, c.id, c.name, c.type FROM recipe_categories rc
		JOIN categories c ON c.id = rc.category_id
		WHERE rc.recipe_id IN (`+placeholders(len(ids))+`)
		ORDER BY c.name COLLATE NOCASE`, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: load categories: %w", utils.ErrDatabase, err)
	}
	defer rows.Close()

	for rows.Next() {
		var recipeID int64
		var cat models.Category
		var typ string
		if err := rows.Scan(&recipeID, &cat.ID, &cat.Name, &typ); err != nil {
			return nil, fmt.Errorf("%w: scan category: %w", utils.ErrDatabase, err)
		}
		cat.Type = models.CategoryType(typ)
		out[recipeID] = append(out[recipeID], cat)
	}
	return out, rows.Err()
}

// NormalizeCategoryNames collapses whitespace, drops blanks and removes case-insensitive duplicates,
// keeping the first-seen spelling.
func NormalizeCategoryNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = utils.CollapseSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecipe(row rowScanner) (*models.Recipe, error) {
	var (
		rec                       models.Recipe
		totalMinutes, ratingCount sql.NullInt64
		ratingValue               sql.NullFloat64
		imagePath, searchVector   sql.NullString
		ingredients, instructions string
		createdAt, updatedAt      string
	)
	if err := row.Scan(
		&rec.ID, &rec.Slug, &rec.Name, &rec.Description, &rec.TotalTime, &totalMinutes, &rec.Servings,
		&ratingValue, &ratingCount, &ingredients, &instructions, &rec.Author, &imagePath,
		&searchVector, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	if totalMinutes.Valid {
		v := int(totalMinutes.Int64)
		rec.TotalMinutes = &v
	}
	if ratingValue.Valid {
		v := ratingValue.Float64
		rec.RatingValue = &v
	}
	if ratingCount.Valid {
		v := int(ratingCount.Int64)
		rec.RatingCount = &v
	}
	if imagePath.Valid {
		v := imagePath.String
		rec.ImagePath = &v
	}
	if searchVector.Valid {
		v := searchVector.String
		rec.SearchVector = &v
	}
	if err := json.Unmarshal([]byte(ingredients), &rec.Ingredients); err != nil {
		return nil, fmt.Errorf("decode ingredients: %w", err)
	}
	if err := json.Unmarshal([]byte(instructions), &rec.Instructions); err != nil {
		return nil, fmt.Errorf("decode instructions: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	rec.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &rec, nil
}

func checkAffected(res sql.Result, err error, op, slug string) error {
	if err != nil {
		return fmt.Errorf("%w: %s for '%s': %w", utils.ErrDatabase, op, slug, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %s for '%s': %w", utils.ErrDatabase, op, slug, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: recipe '%s'", utils.ErrNotFound, slug)
	}
	return nil
}

func marshalList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	return string(b), err
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
