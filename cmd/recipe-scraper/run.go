package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/recipe-scraper/pkg/config"
	applog "github.com/Sriram-PR/recipe-scraper/pkg/log"
	"github.com/Sriram-PR/recipe-scraper/pkg/metrics"
	"github.com/Sriram-PR/recipe-scraper/pkg/orchestrate"
	"github.com/Sriram-PR/recipe-scraper/pkg/respcache"
	"github.com/Sriram-PR/recipe-scraper/pkg/storage"
	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

// runOptions are the run subcommand's flags beyond stage selection
type runOptions struct {
	configPath  string
	logLevel    string
	metricsAddr string
}

// runPipeline handles the run subcommand
func runPipeline(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	categories := fs.Bool("categories", false, "Seed categories from the listing facets")
	urls := fs.Bool("urls", false, "Discover recipe URLs from the paginated listing")
	recipes := fs.Bool("recipes", false, "Fetch and extract every discovered recipe")
	ingest := fs.Bool("ingest", false, "Upsert extracted recipes into the store")
	images := fs.Bool("images", false, "Download recipe images")
	index := fs.Bool("index", false, "Rebuild search vectors")
	all := fs.Bool("all", false, "Run every stage")
	slug := fs.String("slug", "", "Restrict recipes/ingest/images/index to one recipe slug")
	force := fs.Bool("force", false, "Refetch cached pages, reprocess stored recipes and replace images")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	metricsAddr := fs.String("metrics-addr", "", "Prometheus metrics address, e.g. :9090 (overrides config)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: recipe-scraper run [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  recipe-scraper run -all\n")
		fmt.Fprintf(os.Stderr, "  recipe-scraper run -urls -recipes\n")
		fmt.Fprintf(os.Stderr, "  recipe-scraper run -recipes -ingest -index -slug 1015819-chocolate-chip-cookies -force\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	stages := orchestrate.Stages{
		Categories: *categories || *all,
		URLs:       *urls || *all,
		Recipes:    *recipes || *all,
		Ingest:     *ingest || *all,
		Images:     *images || *all,
		Index:      *index || *all,
		Slug:       *slug,
		Force:      *force,
	}
	if err := orchestrate.ValidateStages(stages); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		os.Exit(1)
	}

	// ===========================================================
	// == Setup Global Context & Signal Handling ==
	// ===========================================================
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "Received signal: %v. Finishing current work...\n", sig)
		cancel()

		select {
		case sig = <-sigChan:
			fmt.Fprintf(os.Stderr, "Received second signal: %v. Forcing exit.\n", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			fmt.Fprintln(os.Stderr, "Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	opts := runOptions{configPath: *configFile, logLevel: *logLevel, metricsAddr: *metricsAddr}
	os.Exit(doRun(ctx, opts, stages, os.Stderr))
}

// doRun executes the selected stages and returns the process exit code.
// Cancellation by signal is a clean exit; partial work is resumable.
func doRun(ctx context.Context, opts runOptions, stages orchestrate.Stages, stderr io.Writer) int {
	log := applog.New(opts.logLevel, stderr)

	log.Infof("Loading configuration from %s", opts.configPath)
	cfg, warnings, err := loadConfig(opts.configPath)
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		log.Errorf("Config error: %v", err)
		return 1
	}
	if opts.metricsAddr != "" {
		cfg.MetricsAddr = opts.metricsAddr
	}
	logAppConfig(cfg, log)

	// ===========================================================
	// == Initialize Components ==
	// ===========================================================
	entry := logrus.NewEntry(log)

	store, err := storage.OpenSQLite(ctx, cfg.DatabasePath, entry)
	if err != nil {
		log.Errorf("Failed to open recipe store: %v", err)
		return 1
	}
	defer store.Close()

	ledger, err := storage.NewBadgerStore(ctx, cfg.StateDir, entry)
	if err != nil {
		log.Errorf("Failed to open pipeline ledger: %v", err)
		return 1
	}
	defer ledger.Close()
	stopGC := ledger.StartGC(ctx, 10*time.Minute)
	defer stopGC()

	m := metrics.New()
	m.Serve(ctx, cfg.MetricsAddr, entry.WithField("component", "metrics"))

	responses, err := respcache.New(store, cfg.ResponseCacheSize, m, entry)
	if err != nil {
		log.Errorf("Failed to create response cache: %v", err)
		return 1
	}

	pipeline, err := orchestrate.NewPipeline(cfg, nil, store, ledger, responses, m, entry)
	if err != nil {
		log.Errorf("Failed to initialize pipeline: %v", err)
		return 1
	}

	// ===========================================================
	// == Run ==
	// ===========================================================
	_, err = pipeline.Run(ctx, stages)
	switch {
	case err == nil:
		log.Info("Pipeline run completed successfully.")
		return 0
	case errors.Is(err, context.Canceled):
		log.Warn("Pipeline run cancelled; completed work is kept and the next run resumes from it.")
		return 0
	case errors.Is(err, utils.ErrMissingArtifact):
		log.Errorf("%v (run the stage that produces it first, e.g. 'recipe-scraper run -urls')", err)
		return 1
	default:
		log.Errorf("Pipeline run finished with error: %v", err)
		return 1
	}
}

// logAppConfig logs the effective configuration
func logAppConfig(cfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Config Source: BaseURL:%s, Listing:%s, RecipePattern:%s",
		cfg.Source.BaseURL, cfg.ListingURL(1), cfg.Source.RecipePathPattern)
	log.Infof("Config Discovery: Stagnation:%d, PageFailures:%d, MaxPages:%d",
		cfg.Discovery.StagnationThreshold, cfg.Discovery.PageFailureThreshold, cfg.Discovery.MaxPages)
	log.Infof("Config Paths: Cache:%s, State:%s, Store:%s, Images:%s",
		cfg.CacheDir, cfg.StateDir, cfg.DatabasePath, cfg.ImageDir)
	log.Infof("Config Workers:%d, Delay:%v, Robots:%t, Retries: Max:%d, InitialDelay:%v, MaxDelay:%v",
		cfg.NumWorkers, cfg.DelayPerRequest, cfg.RespectRobotsTxt, cfg.Retries(), cfg.InitialRetryDelay, cfg.MaxRetryDelay)
	log.Infof("Config HTTP Client: Timeout:%v, MaxIdle:%d, MaxIdlePerHost:%d",
		cfg.HTTPClientSettings.Timeout, cfg.HTTPClientSettings.MaxIdleConns, cfg.HTTPClientSettings.MaxIdleConnsPerHost)
}
