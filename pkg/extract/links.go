package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// LinkRewriter rewrites absolute links to the source's recipe pages into local links
type LinkRewriter struct {
	re          *regexp.Regexp
	replacement string
}

// NewLinkRewriter matches http or https, with or without "www.", on the host of baseURL
// followed by recipePrefix.
func NewLinkRewriter(baseURL, recipePrefix, replacement string) (*LinkRewriter, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("invalid base URL '%s'", baseURL)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	pattern := `(?i)https?://(?:www\.)?` + regexp.QuoteMeta(host) + regexp.QuoteMeta(recipePrefix)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile link pattern: %w", err)
	}
	return &LinkRewriter{re: re, replacement: replacement}, nil
}

// Rewrite applies the rewrite to one string
func (r *LinkRewriter) Rewrite(s string) string {
	if r == nil || s == "" {
		return s
	}
	return r.re.ReplaceAllLiteralString(s, r.replacement)
}

// RewriteAll applies the rewrite to every string, in place, and returns the slice
func (r *LinkRewriter) RewriteAll(items []string) []string {
	for i, s := range items {
		items[i] = r.Rewrite(s)
	}
	return items
}
