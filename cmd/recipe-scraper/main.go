package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Sriram-PR/recipe-scraper/pkg/config"
)

const version = "0.4.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runPipeline(os.Args[2:])
	case "search":
		runSearch(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "version":
		fmt.Printf("recipe-scraper %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `recipe-scraper - Recipe ingestion pipeline

Usage:
  recipe-scraper <command> [options]

Commands:
  run         Run pipeline stages (categories, urls, recipes, ingest, images, index)
  search      Query stored recipes
  status      Show store and pipeline ledger counts
  validate    Validate configuration file
  version     Show version info

Run 'recipe-scraper <command> -h' for command-specific help.`)
}

// loadConfig loads the config file and applies defaults.
// Returns the validation warnings alongside the config.
func loadConfig(path string) (*config.AppConfig, []string, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	warnings, err := cfg.Validate()
	if err != nil {
		return nil, warnings, err
	}
	return cfg, warnings, nil
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: recipe-scraper validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	exitCode := doValidate(*configFile, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	cfg, warnings, err := loadConfig(configPath)
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "OK: source %s\n", cfg.Source.BaseURL)
	fmt.Fprintf(stdout, "  Listing: %s\n", cfg.ListingURL(1))
	fmt.Fprintf(stdout, "  Recipe paths: %s\n", cfg.Source.RecipePathPattern)
	fmt.Fprintf(stdout, "  Discovery: stagnation=%d page_failures=%d max_pages=%d\n",
		cfg.Discovery.StagnationThreshold, cfg.Discovery.PageFailureThreshold, cfg.Discovery.MaxPages)
	fmt.Fprintf(stdout, "  Store: %s  Ledger: %s  Cache: %s  Images: %s\n",
		cfg.DatabasePath, cfg.StateDir, cfg.CacheDir, cfg.ImageDir)

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}
