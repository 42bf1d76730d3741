package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SourceConfig describes the one upstream recipe site being ingested
type SourceConfig struct {
	BaseURL               string `yaml:"base_url"`
	ListingPath           string `yaml:"listing_path,omitempty"`
	PageParam             string `yaml:"page_param,omitempty"`
	ListingItemSelector   string `yaml:"listing_item_selector,omitempty"`
	ListingURLAttr        string `yaml:"listing_url_attr,omitempty"`
	RecipePathPattern     string `yaml:"recipe_path_pattern,omitempty"` // Regex a discovered path must match
	RecipePathPrefix      string `yaml:"recipe_path_prefix,omitempty"`  // Used to build a path from a bare slug
	LinkRewritePrefix     string `yaml:"link_rewrite_prefix,omitempty"`
	PreferredImageVariant string `yaml:"preferred_image_variant,omitempty"`
	PlaceholderPattern    string `yaml:"placeholder_image_pattern,omitempty"`
	UserAgent             string `yaml:"user_agent,omitempty"`
}

// DiscoveryConfig holds the pagination stop conditions
type DiscoveryConfig struct {
	StagnationThreshold  int           `yaml:"stagnation_threshold,omitempty"`   // Consecutive pages with nothing new before stopping
	PageFailureThreshold int           `yaml:"page_failure_threshold,omitempty"` // Failures tolerated on one page before skipping it
	MaxPages             int           `yaml:"max_pages,omitempty"`              // 0 = unlimited
	PageRetryDelay       time.Duration `yaml:"page_retry_delay,omitempty"`
}

// AppConfig holds the global application configuration
type AppConfig struct {
	Source             SourceConfig     `yaml:"source"`
	Discovery          DiscoveryConfig  `yaml:"discovery,omitempty"`
	CacheDir           string           `yaml:"cache_dir"`
	StateDir           string           `yaml:"state_dir"`
	DatabasePath       string           `yaml:"database_path"`
	ImageDir           string           `yaml:"image_dir"`
	ImageURLPrefix     string           `yaml:"image_url_prefix,omitempty"`
	NumWorkers         int              `yaml:"num_workers,omitempty"`
	MaxRetries         *int             `yaml:"max_retries,omitempty"` // nil = default, 0 = no retries
	InitialRetryDelay  time.Duration    `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay      time.Duration    `yaml:"max_retry_delay,omitempty"`
	DelayPerRequest    time.Duration    `yaml:"delay_per_request,omitempty"`
	RespectRobotsTxt   bool             `yaml:"respect_robots_txt,omitempty"`
	MaxImageSizeBytes  int64            `yaml:"max_image_size_bytes,omitempty"`
	ResponseCacheSize  int              `yaml:"response_cache_size,omitempty"`
	MetricsAddr        string           `yaml:"metrics_addr,omitempty"`
	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"` // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"`
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"`
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"` // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`
}

// Load reads and parses a YAML config file. Defaults are not applied; call Validate.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Retries returns the configured retry count, 0 if unset
func (c *AppConfig) Retries() int {
	if c.MaxRetries == nil {
		return 0
	}
	return *c.MaxRetries
}

// SourceHost returns the host of the configured base URL, or "" if it does not parse.
func (c *AppConfig) SourceHost() string {
	u, err := url.Parse(c.Source.BaseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// ListingURL builds the absolute listing URL for a 1-based page number.
func (c *AppConfig) ListingURL(page int) string {
	u, err := url.Parse(c.Source.BaseURL)
	if err != nil {
		return ""
	}
	u = u.JoinPath(c.Source.ListingPath)
	q := u.Query()
	q.Set(c.Source.PageParam, fmt.Sprintf("%d", page))
	u.RawQuery = q.Encode()
	return u.String()
}

// AbsoluteURL resolves a site-relative path against the base URL.
func (c *AppConfig) AbsoluteURL(path string) string {
	base, err := url.Parse(c.Source.BaseURL)
	if err != nil {
		return path
	}
	ref, err := url.Parse(path)
	if err != nil {
		return path
	}
	return base.ResolveReference(ref).String()
}
