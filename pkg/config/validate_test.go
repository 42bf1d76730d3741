package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func intPtr(n int) *int {
	return &n
}

func minimalConfig() AppConfig {
	return AppConfig{Source: SourceConfig{BaseURL: "https://cooking.example.com/"}}
}

func TestAppConfig_Validate_Defaults(t *testing.T) {
	cfg := minimalConfig()
	warnings, err := cfg.Validate()

	require.NoError(t, err)

	assert.Equal(t, "https://cooking.example.com", cfg.Source.BaseURL)
	assert.Equal(t, "/search", cfg.Source.ListingPath)
	assert.Equal(t, "page", cfg.Source.PageParam)
	assert.Equal(t, "article", cfg.Source.ListingItemSelector)
	assert.Equal(t, "data-url", cfg.Source.ListingURLAttr)
	assert.Equal(t, "/recipes/", cfg.Source.RecipePathPrefix)
	assert.Equal(t, "^/recipes/", cfg.Source.RecipePathPattern)
	assert.Equal(t, "/#/recipe/", cfg.Source.LinkRewritePrefix)
	assert.Equal(t, "article", cfg.Source.PreferredImageVariant)
	assert.Equal(t, DefaultPlaceholderPattern, cfg.Source.PlaceholderPattern)
	assert.Equal(t, DefaultUserAgent, cfg.Source.UserAgent)

	assert.Equal(t, 20, cfg.Discovery.StagnationThreshold)
	assert.Equal(t, 5, cfg.Discovery.PageFailureThreshold)
	assert.Equal(t, 0, cfg.Discovery.MaxPages)

	assert.Equal(t, "./data/cache", cfg.CacheDir)
	assert.Equal(t, "./data/state", cfg.StateDir)
	assert.Equal(t, "./data/recipes.db", cfg.DatabasePath)
	assert.Equal(t, "./static/recipes", cfg.ImageDir)
	assert.Equal(t, "/static/recipes", cfg.ImageURLPrefix)
	assert.Equal(t, 1, cfg.NumWorkers)
	assert.Equal(t, DefaultMaxRetries, cfg.Retries())
	assert.Equal(t, 1*time.Second, cfg.InitialRetryDelay)
	assert.Equal(t, 30*time.Second, cfg.MaxRetryDelay)
	assert.Equal(t, 256, cfg.ResponseCacheSize)

	assert.Equal(t, 30*time.Second, cfg.HTTPClientSettings.Timeout)
	assert.Equal(t, 15*time.Second, cfg.HTTPClientSettings.DialerTimeout)

	assert.True(t, containsWarning(warnings, "cache_dir is empty"))
	assert.True(t, containsWarning(warnings, "state_dir is empty"))
	assert.True(t, containsWarning(warnings, "database_path is empty"))
	assert.True(t, containsWarning(warnings, "user_agent is empty"))
}

func TestAppConfig_Validate_PreservesValues(t *testing.T) {
	cfg := AppConfig{
		Source: SourceConfig{
			BaseURL:           "https://cooking.example.com",
			ListingPath:       "browse",
			RecipePathPrefix:  "/r",
			UserAgent:         "test-agent",
			LinkRewritePrefix: "/recipe/",
		},
		Discovery:         DiscoveryConfig{StagnationThreshold: 7, PageFailureThreshold: 2, MaxPages: 50},
		CacheDir:          "/cache",
		StateDir:          "/state",
		DatabasePath:      "/db/recipes.db",
		ImageDir:          "/img",
		ImageURLPrefix:    "media/recipes/",
		NumWorkers:        4,
		MaxRetries:        intPtr(5),
		InitialRetryDelay: 2 * time.Second,
		MaxRetryDelay:     10 * time.Second,
	}

	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "/browse", cfg.Source.ListingPath)
	assert.Equal(t, "/r/", cfg.Source.RecipePathPrefix)
	assert.Equal(t, "^/r/", cfg.Source.RecipePathPattern)
	assert.Equal(t, "/recipe/", cfg.Source.LinkRewritePrefix)
	assert.Equal(t, 7, cfg.Discovery.StagnationThreshold)
	assert.Equal(t, 2, cfg.Discovery.PageFailureThreshold)
	assert.Equal(t, 50, cfg.Discovery.MaxPages)
	assert.Equal(t, "/media/recipes", cfg.ImageURLPrefix)
	assert.Equal(t, 4, cfg.NumWorkers)
	assert.Equal(t, 5, cfg.Retries())
}

func TestAppConfig_Validate_Fatal(t *testing.T) {
	tests := []struct {
		name   string
		source SourceConfig
	}{
		{"missing base url", SourceConfig{}},
		{"relative base url", SourceConfig{BaseURL: "/recipes"}},
		{"bad recipe pattern", SourceConfig{BaseURL: "https://x.test", RecipePathPattern: "("}},
		{"bad placeholder pattern", SourceConfig{BaseURL: "https://x.test", PlaceholderPattern: "[a-"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{Source: tt.source}
			_, err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, utils.ErrConfigValidation)
		})
	}
}

func TestAppConfig_Validate_HTTPTimeoutBounds(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		want    time.Duration
		warn    string
	}{
		{"default", 0, 30 * time.Second, ""},
		{"too short", 5 * time.Second, 20 * time.Second, "below 20s"},
		{"too long", 2 * time.Minute, 30 * time.Second, "above 30s"},
		{"in range", 25 * time.Second, 25 * time.Second, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := minimalConfig()
			cfg.HTTPClientSettings.Timeout = tt.timeout
			warnings, err := cfg.Validate()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.HTTPClientSettings.Timeout)
			if tt.warn != "" {
				assert.True(t, containsWarning(warnings, tt.warn))
			}
		})
	}
}

func TestAppConfig_Validate_NegativeValues(t *testing.T) {
	cfg := minimalConfig()
	cfg.MaxRetries = intPtr(-1)
	cfg.DelayPerRequest = -time.Second
	cfg.MaxImageSizeBytes = -5
	cfg.Discovery.MaxPages = -3

	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.DelayPerRequest)
	assert.Equal(t, int64(0), cfg.MaxImageSizeBytes)
	assert.Equal(t, 0, cfg.Discovery.MaxPages)
	assert.Equal(t, 0, cfg.Retries())
	assert.True(t, containsWarning(warnings, "max_retries cannot be negative"))
	assert.True(t, containsWarning(warnings, "delay_per_request cannot be negative"))
	assert.True(t, containsWarning(warnings, "max_image_size_bytes cannot be negative"))
	assert.True(t, containsWarning(warnings, "max_pages cannot be negative"))
}

func TestAppConfig_Validate_RetryDelayOrdering(t *testing.T) {
	cfg := minimalConfig()
	cfg.MaxRetries = intPtr(2)
	cfg.InitialRetryDelay = 10 * time.Second
	cfg.MaxRetryDelay = 3 * time.Second

	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.InitialRetryDelay)
	assert.True(t, containsWarning(warnings, "initial_retry_delay"))
}

func TestAppConfig_Validate_ZeroRetries(t *testing.T) {
	cfg := minimalConfig()
	cfg.MaxRetries = intPtr(0)

	_, err := cfg.Validate()

	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Retries())
}
