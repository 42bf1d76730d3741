package parse

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL_NilInput(t *testing.T) {
	assert.Equal(t, "", NormalizeURL(nil))
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"UppercaseSchemeHost", "HTTPS://Cooking.Example.COM/Recipes/1-Soup", "https://cooking.example.com/Recipes/1-Soup"},
		{"DefaultPortRemoved", "https://cooking.example.com:443/recipes/1", "https://cooking.example.com/recipes/1"},
		{"CustomPortKept", "http://localhost:8080/recipes/1", "http://localhost:8080/recipes/1"},
		{"TrailingSlash", "https://cooking.example.com/recipes/1-soup/", "https://cooking.example.com/recipes/1-soup"},
		{"EmptyPath", "https://cooking.example.com", "https://cooking.example.com/"},
		{"QueryAndFragmentDropped", "https://cooking.example.com/recipes/1?utm=x#top", "https://cooking.example.com/recipes/1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := url.Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, NormalizeURL(parsed))
		})
	}
}

func TestRecipePathMatcher_Match(t *testing.T) {
	m, err := NewRecipePathMatcher("https://cooking.example.com", "^/recipes/")
	require.NoError(t, err)

	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"relative recipe", "/recipes/1015819-chocolate-chip-cookies", "/recipes/1015819-chocolate-chip-cookies", true},
		{"absolute same host", "https://cooking.example.com/recipes/12-soup?action=click", "/recipes/12-soup", true},
		{"trailing slash", "/recipes/12-soup/", "/recipes/12-soup", true},
		{"host case", "https://COOKING.example.com/recipes/3-stew", "/recipes/3-stew", true},
		{"other host", "https://elsewhere.example.com/recipes/12-soup", "", false},
		{"non recipe path", "/guides/knife-skills", "", false},
		{"collection", "/topics/weeknight", "", false},
		{"empty", "  ", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Match(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRecipePathMatcher_BadPattern(t *testing.T) {
	_, err := NewRecipePathMatcher("https://cooking.example.com", "(")
	assert.Error(t, err)
}

func TestSlugFromPath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"/recipes/1015819-chocolate-chip-cookies", "1015819-chocolate-chip-cookies"},
		{"/recipes/12-soup/", "12-soup"},
		{"https://cooking.example.com/recipes/7-pie?x=1", "7-pie"},
		{"12-soup", "12-soup"},
		{"/", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SlugFromPath(tt.input), "SlugFromPath(%q)", tt.input)
	}
}

func TestPathForSlug(t *testing.T) {
	assert.Equal(t, "/recipes/12-soup", PathForSlug("/recipes/", "12-soup"))
	assert.Equal(t, "/recipes/12-soup", PathForSlug("/recipes", "/12-soup/"))
}
