package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/Sriram-PR/recipe-scraper/pkg/cache"
	applog "github.com/Sriram-PR/recipe-scraper/pkg/log"
	"github.com/Sriram-PR/recipe-scraper/pkg/models"
	"github.com/Sriram-PR/recipe-scraper/pkg/respcache"
	"github.com/Sriram-PR/recipe-scraper/pkg/storage"
	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

// stringList collects a repeatable string flag
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// runSearch handles the search subcommand
func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	q := fs.String("q", "", "Free-text search over name, categories and ingredients")
	name := fs.String("name", "", "Exact recipe name")
	slug := fs.String("slug", "", "Exact recipe slug")
	minRating := fs.Float64("min-rating", 0, "Minimum average rating (0 = any)")
	minCount := fs.Int("min-count", 0, "Minimum number of ratings (0 = any)")
	withImage := fs.Bool("with-image", false, "Only recipes with an image")
	limit := fs.Int("limit", 20, "Maximum results (0 = all)")
	offset := fs.Int("offset", 0, "Results to skip")
	asJSON := fs.Bool("json", false, "Print results as JSON")
	var categories stringList
	fs.Var(&categories, "category", "Category the recipe must carry (repeatable)")

	fs.Usage = func() { printSearchUsageTo(os.Stderr, fs) }

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	filter := storage.Filter{
		Name:       *name,
		Slug:       *slug,
		Categories: categories,
		Search:     *q,
		Limit:      *limit,
		Offset:     *offset,
	}
	if *minRating > 0 {
		filter.MinRatingValue = minRating
	}
	if *minCount > 0 {
		filter.MinRatingCount = minCount
	}
	if *withImage {
		filter.HasImage = withImage
	}

	os.Exit(doSearch(context.Background(), *configFile, filter, *asJSON, os.Stdout, os.Stderr))
}

func printSearchUsageTo(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, "Usage: recipe-scraper search [options]\n\nOptions:\n")
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintf(w, "\nEach invocation reads the recipe store directly. The query response cache lives\n")
	fmt.Fprintf(w, "only inside one process and serves repeated queries made through the library.\n")
	fmt.Fprintf(w, "\nExamples:\n")
	fmt.Fprintf(w, "  recipe-scraper search -q pasta -category Italian -category Dinner\n")
	fmt.Fprintf(w, "  recipe-scraper search -min-rating 4 -min-count 100 -limit 10\n")
}

// doSearch runs one filtered query through the response cache.
// Returns exit code (0 = success, 1 = error).
func doSearch(ctx context.Context, configPath string, filter storage.Filter, asJSON bool, stdout, stderr io.Writer) int {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	log := applog.Discard()

	store, err := storage.OpenSQLite(ctx, cfg.DatabasePath, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	responses, err := respcache.New(store, cfg.ResponseCacheSize, nil, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	results, err := responses.Query(ctx, filter)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	if len(results) == 0 {
		fmt.Fprintln(stdout, "No recipes found.")
		return 0
	}
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tNAME\tRATING\tCOUNT\tCATEGORIES")
	for _, r := range results {
		rec := r.Recipe
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			rec.Slug, rec.Name, formatRating(rec.RatingValue), formatCount(rec.RatingCount),
			strings.Join(rec.CategoryNames(), ", "))
	}
	tw.Flush()
	fmt.Fprintf(stdout, "\n%d recipe(s)\n", len(results))
	return 0
}

func formatRating(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}

func formatCount(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

// runStatus handles the status subcommand
func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: recipe-scraper status [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doStatus(context.Background(), *configFile, os.Stdout, os.Stderr))
}

// doStatus prints the discovered URL count, store statistics and ledger state counts.
// Returns exit code (0 = success, 1 = error).
func doStatus(ctx context.Context, configPath string, stdout, stderr io.Writer) int {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	log := applog.Discard()

	fmt.Fprintf(stdout, "Source: %s\n\n", cfg.Source.BaseURL)

	set, err := cache.ReadURLSet(cfg.CacheDir)
	switch {
	case err == nil:
		fmt.Fprintf(stdout, "Discovered URLs: %d\n", set.Len())
	case errors.Is(err, utils.ErrMissingArtifact):
		fmt.Fprintln(stdout, "Discovered URLs: none (run 'recipe-scraper run -urls')")
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	extracted, err := cache.ListRecipes(cfg.CacheDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Extracted recipes: %d\n\n", len(extracted))

	store, err := storage.OpenSQLite(ctx, cfg.DatabasePath, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()
	stats, err := store.Stats(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Store %s:\n", cfg.DatabasePath)
	fmt.Fprintf(stdout, "  Recipes:        %d\n", stats.Recipes)
	fmt.Fprintf(stdout, "  With image:     %d\n", stats.WithImage)
	fmt.Fprintf(stdout, "  Search indexed: %d\n", stats.Indexed)
	fmt.Fprintf(stdout, "  Categories:     %d\n", stats.Categories)
	types := make([]string, 0, len(stats.CategoriesPerType))
	for typ := range stats.CategoriesPerType {
		types = append(types, string(typ))
	}
	sort.Strings(types)
	for _, typ := range types {
		fmt.Fprintf(stdout, "    %-10s %d\n", typ, stats.CategoriesPerType[models.CategoryType(typ)])
	}

	ledger, err := storage.NewBadgerStore(ctx, cfg.StateDir, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer ledger.Close()
	counts, err := ledger.CountByState(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "\nLedger %s:\n", cfg.StateDir)
	for _, state := range models.AllStates {
		if n := counts[state]; n > 0 {
			fmt.Fprintf(stdout, "  %-20s %d\n", state, n)
		}
	}
	return 0
}
