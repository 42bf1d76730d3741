package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

const (
	DefaultStagnationThreshold  = 20
	DefaultPageFailureThreshold = 5
	DefaultPlaceholderPattern   = `(?i)/assets/\d+\.(png|jpe?g)`
	DefaultUserAgent            = "recipe-scraper/1.0 (+https://github.com/Sriram-PR/recipe-scraper)"
	DefaultMaxRetries           = 3
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	sourceWarnings, err := c.Source.Validate()
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, sourceWarnings...)

	warnings = append(warnings, c.Discovery.validate()...)

	// Directories
	if c.CacheDir == "" {
		warnings = append(warnings, "cache_dir is empty, defaulting to './data/cache'")
		c.CacheDir = "./data/cache"
	}
	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './data/state'")
		c.StateDir = "./data/state"
	}
	if c.DatabasePath == "" {
		warnings = append(warnings, "database_path is empty, defaulting to './data/recipes.db'")
		c.DatabasePath = "./data/recipes.db"
	}
	if c.ImageDir == "" {
		warnings = append(warnings, "image_dir is empty, defaulting to './static/recipes'")
		c.ImageDir = "./static/recipes"
	}
	if c.ImageURLPrefix == "" {
		c.ImageURLPrefix = "/static/recipes"
	}
	c.ImageURLPrefix = "/" + strings.Trim(c.ImageURLPrefix, "/")

	// NumWorkers: sequential unless asked otherwise
	if c.NumWorkers <= 0 {
		c.NumWorkers = 1
	}

	// MaxRetries
	if c.MaxRetries == nil {
		retries := DefaultMaxRetries
		c.MaxRetries = &retries
	}
	if *c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		*c.MaxRetries = 0
	}
	if *c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 1 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 30 * time.Second
		}
	}
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	if c.DelayPerRequest < 0 {
		warnings = append(warnings, "delay_per_request cannot be negative, disabling delay")
		c.DelayPerRequest = 0
	}

	if c.MaxImageSizeBytes < 0 {
		warnings = append(warnings, "max_image_size_bytes cannot be negative, setting to 0 (unlimited)")
		c.MaxImageSizeBytes = 0
	}

	if c.ResponseCacheSize <= 0 {
		c.ResponseCacheSize = 256
	}

	warnings = append(warnings, c.validateHTTPClientSettings()...)

	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
// The overall timeout is kept inside 20-30s so one stuck upstream request cannot stall a run.
func (c *AppConfig) validateHTTPClientSettings() (warnings []string) {
	h := &c.HTTPClientSettings
	switch {
	case h.Timeout <= 0:
		h.Timeout = 30 * time.Second
	case h.Timeout < 20*time.Second:
		warnings = append(warnings, fmt.Sprintf("http timeout %v below 20s, raising to 20s", h.Timeout))
		h.Timeout = 20 * time.Second
	case h.Timeout > 30*time.Second:
		warnings = append(warnings, fmt.Sprintf("http timeout %v above 30s, capping at 30s", h.Timeout))
		h.Timeout = 30 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 20
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 4
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
	return warnings
}

// Validate checks SourceConfig fields and applies defaults.
// A missing or relative base_url and any uncompilable pattern are fatal.
func (c *SourceConfig) Validate() (warnings []string, err error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("%w: source.base_url is required", utils.ErrConfigValidation)
	}
	u, parseErr := url.Parse(c.BaseURL)
	if parseErr != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: source.base_url '%s' must be an absolute URL", utils.ErrConfigValidation, c.BaseURL)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	if c.ListingPath == "" {
		c.ListingPath = "/search"
	} else if c.ListingPath[0] != '/' {
		c.ListingPath = "/" + c.ListingPath
	}
	if c.PageParam == "" {
		c.PageParam = "page"
	}
	if c.ListingItemSelector == "" {
		c.ListingItemSelector = "article"
	}
	if c.ListingURLAttr == "" {
		c.ListingURLAttr = "data-url"
	}
	if c.RecipePathPrefix == "" {
		c.RecipePathPrefix = "/recipes/"
	}
	if !strings.HasSuffix(c.RecipePathPrefix, "/") {
		c.RecipePathPrefix += "/"
	}
	if c.RecipePathPattern == "" {
		c.RecipePathPattern = "^" + regexp.QuoteMeta(c.RecipePathPrefix)
	}
	if c.LinkRewritePrefix == "" {
		c.LinkRewritePrefix = "/#/recipe/"
	}
	if c.PreferredImageVariant == "" {
		c.PreferredImageVariant = "article"
	}
	if c.PlaceholderPattern == "" {
		c.PlaceholderPattern = DefaultPlaceholderPattern
	}
	if c.UserAgent == "" {
		warnings = append(warnings, "source.user_agent is empty, using default agent")
		c.UserAgent = DefaultUserAgent
	}

	for name, pattern := range map[string]string{
		"recipe_path_pattern":       c.RecipePathPattern,
		"placeholder_image_pattern": c.PlaceholderPattern,
	} {
		if _, reErr := regexp.Compile(pattern); reErr != nil {
			return nil, fmt.Errorf("%w: invalid %s '%s': %w", utils.ErrConfigValidation, name, pattern, reErr)
		}
	}

	return warnings, nil
}

func (d *DiscoveryConfig) validate() (warnings []string) {
	if d.StagnationThreshold <= 0 {
		d.StagnationThreshold = DefaultStagnationThreshold
	}
	if d.PageFailureThreshold <= 0 {
		d.PageFailureThreshold = DefaultPageFailureThreshold
	}
	if d.MaxPages < 0 {
		warnings = append(warnings, "discovery.max_pages cannot be negative, setting to 0 (unlimited)")
		d.MaxPages = 0
	}
	if d.PageRetryDelay < 0 {
		d.PageRetryDelay = 0
	}
	return warnings
}
