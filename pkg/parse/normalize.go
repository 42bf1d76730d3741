package parse

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

// NormalizeURL standardizes a URL for comparison and storage
// It lowercases the scheme and host, removes default ports (80 for http, 443 for https), removes trailing slashes from paths (unless root "/"), ensures empty path becomes "/", and removes fragments and query strings
// Does not modify the input *url.URL
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	normalized := *u

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	host, port, err := net.SplitHostPort(normalized.Host)
	if err == nil {
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = host
		}
	}

	normalized.Path = cleanPath(normalized.Path)
	normalized.RawPath = ""
	normalized.Fragment = ""
	normalized.RawQuery = ""

	return normalized.String()
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		return strings.TrimRight(p, "/")
	}
	return p
}

// RecipePathMatcher turns raw listing hrefs into site-relative recipe paths
type RecipePathMatcher struct {
	base    *url.URL
	pattern *regexp.Regexp
}

// NewRecipePathMatcher builds a matcher for links on baseURL whose path matches pattern.
func NewRecipePathMatcher(baseURL, pattern string) (*RecipePathMatcher, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: base URL '%s': %w", utils.ErrParsing, baseURL, err)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: recipe path pattern '%s': %w", utils.ErrConfigValidation, pattern, err)
	}
	return &RecipePathMatcher{base: base, pattern: re}, nil
}

// Match resolves raw against the base URL and returns its normalized path when the link
// stays on the source host and the path matches the recipe pattern.
func (m *RecipePathMatcher) Match(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	abs := m.base.ResolveReference(ref)
	if !strings.EqualFold(abs.Hostname(), m.base.Hostname()) {
		return "", false
	}
	p := cleanPath(abs.Path)
	if !m.pattern.MatchString(p) {
		return "", false
	}
	return p, true
}

// SlugFromPath returns the last path segment of a recipe path, which is the recipe's natural key.
func SlugFromPath(p string) string {
	if u, err := url.Parse(p); err == nil && u.Path != "" {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	base := path.Base(p)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// PathForSlug builds the site-relative path of a recipe from its slug.
func PathForSlug(prefix, slug string) string {
	return strings.TrimRight(prefix, "/") + "/" + strings.Trim(slug, "/")
}
