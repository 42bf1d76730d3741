package models

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Recipe is the stored, queryable form of one recipe
type Recipe struct {
	ID           int64      `json:"id"`
	Slug         string     `json:"slug"` // Natural key, unique across the store
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	TotalTime    string     `json:"total_time,omitempty"`    // Human readable, e.g. "1 hour 30 minutes"
	TotalMinutes *int       `json:"total_minutes,omitempty"` // Set only when the source carried an ISO-8601 duration
	Servings     string     `json:"servings,omitempty"`
	RatingValue  *float64   `json:"rating_value,omitempty"`
	RatingCount  *int       `json:"rating_count,omitempty"`
	Ingredients  []string   `json:"ingredients"`  // May embed @@group@@ sentinels
	Instructions []string   `json:"instructions"` // May embed @@group@@ sentinels
	Author       string     `json:"author,omitempty"`
	ImagePath    *string    `json:"image_path,omitempty"`
	SearchVector *string    `json:"search_vector,omitempty"`
	Categories   []Category `json:"categories,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CategoryNames returns the names of the recipe's categories in stored order
func (r *Recipe) CategoryNames() []string {
	names := make([]string, 0, len(r.Categories))
	for _, c := range r.Categories {
		names = append(names, c.Name)
	}
	return names
}

// HasImage reports whether an image reference has been attached
func (r *Recipe) HasImage() bool {
	return r.ImagePath != nil && *r.ImagePath != ""
}

// CategoryType classifies a category label
type CategoryType string

const (
	CategoryUnknown  CategoryType = "unknown"
	CategoryDiet     CategoryType = "diet"
	CategoryCuisine  CategoryType = "cuisine"
	CategoryMealType CategoryType = "meal-type"
	CategoryDishType CategoryType = "dish-type"
)

// IsValid returns true for the closed set of category types
func (t CategoryType) IsValid() bool {
	switch t {
	case CategoryUnknown, CategoryDiet, CategoryCuisine, CategoryMealType, CategoryDishType:
		return true
	}
	return false
}

// Category is a classification label shared by many recipes
type Category struct {
	ID   int64        `json:"id"`
	Name string       `json:"name"`
	Type CategoryType `json:"type"`
}

// ExtractionStrategy names the payload shape a canonical record was read from
type ExtractionStrategy string

const (
	StrategyNone     ExtractionStrategy = "none"
	StrategyNextData ExtractionStrategy = "next-data"
	StrategyJSONLD   ExtractionStrategy = "json-ld"
)

// CanonicalRecipe is the extractor's normalized, shape-independent output.
// It is persisted per slug so later stages run without re-fetching.
type CanonicalRecipe struct {
	Slug         string             `json:"slug"`
	SourcePath   string             `json:"source_path"`
	Title        string             `json:"title"`
	Description  string             `json:"description,omitempty"`
	TotalTime    string             `json:"total_time,omitempty"`
	TotalMinutes *int               `json:"total_minutes,omitempty"`
	Yield        string             `json:"yield,omitempty"`
	RatingValue  *float64           `json:"rating_value,omitempty"`
	RatingCount  *int               `json:"rating_count,omitempty"`
	Ingredients  []string           `json:"ingredients"`
	Instructions []string           `json:"instructions"`
	Author       string             `json:"author,omitempty"`
	Image        *ImageLocator      `json:"image,omitempty"`
	Keywords     []string           `json:"keywords,omitempty"`
	Strategy     ExtractionStrategy `json:"strategy"`
	ExtractedAt  time.Time          `json:"extracted_at"`
}

// ImageLocator is either a bare URL or a set of named size variants
type ImageLocator struct {
	URL      string            `json:"url,omitempty"`
	Variants map[string]string `json:"variants,omitempty"`
}

// UnmarshalJSON accepts a bare string, {"url": ...}, {"src": {variant: url}}, a plain variant
// map, or a list of any of these (first usable entry wins). Other shapes yield an empty locator.
func (l *ImageLocator) UnmarshalJSON(data []byte) error {
	*l = ImageLocator{}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		l.URL = s
		return nil
	}

	var list []json.RawMessage
	if err := json.Unmarshal(data, &list); err == nil {
		for _, item := range list {
			var candidate ImageLocator
			if err := candidate.UnmarshalJSON(item); err == nil && !candidate.IsEmpty() {
				*l = candidate
				return nil
			}
		}
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	out := ImageLocator{}
	if v, ok := raw["url"]; ok {
		_ = json.Unmarshal(v, &out.URL)
	}
	for _, key := range []string{"variants", "src"} {
		if v, ok := raw[key]; ok {
			var variants map[string]string
			if err := json.Unmarshal(v, &variants); err == nil && len(variants) > 0 {
				out.Variants = variants
			}
		}
	}
	if out.URL == "" && out.Variants == nil {
		// Plain variant map: keep string-valued entries only.
		variants := make(map[string]string)
		for k, v := range raw {
			var str string
			if err := json.Unmarshal(v, &str); err == nil && str != "" {
				variants[k] = str
			}
		}
		if len(variants) > 0 {
			out.Variants = variants
		}
	}
	*l = out
	return nil
}

// IsEmpty reports whether the locator carries no URL at all
func (l *ImageLocator) IsEmpty() bool {
	return l == nil || l.Resolve("") == ""
}

// fallbackVariants is the order tried when the preferred variant is missing
var fallbackVariants = []string{"article", "large", "master", "medium", "card", "thumbnail"}

// Resolve picks one source URL: the preferred variant, the bare URL, the fallback order, then any variant.
func (l *ImageLocator) Resolve(preferred string) string {
	if l == nil {
		return ""
	}
	if preferred != "" {
		if u := strings.TrimSpace(l.Variants[preferred]); u != "" {
			return u
		}
	}
	if u := strings.TrimSpace(l.URL); u != "" {
		return u
	}
	for _, name := range fallbackVariants {
		if u := strings.TrimSpace(l.Variants[name]); u != "" {
			return u
		}
	}
	keys := make([]string, 0, len(l.Variants))
	for k := range l.Variants {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if u := strings.TrimSpace(l.Variants[k]); u != "" {
			return u
		}
	}
	return ""
}

// DiscoveredURLSet is the discovery stage's output artifact
type DiscoveredURLSet struct {
	URLs []string `json:"urls"`
}

// Len returns the number of discovered URLs
func (s *DiscoveredURLSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.URLs)
}

// StateEntry stores one recipe's pipeline progress in the state ledger
type StateEntry struct {
	State       RecipeState `json:"state"`
	Source      FetchSource `json:"source,omitempty"`       // Where the raw content came from on the last fetch
	ContentHash string      `json:"content_hash,omitempty"` // SHA-256 of the raw content
	ErrorType   string      `json:"error_type,omitempty"`   // Error category of the last failure
	RunID       string      `json:"run_id,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// FetchSource records whether content came from the disk cache or the network
type FetchSource string

const (
	SourceCached FetchSource = "cached"
	SourceLive   FetchSource = "live"
)

// ImageEntry stores the last image acquisition attempt in the state ledger
type ImageEntry struct {
	Status      ImageStatus `json:"status"`
	SourceURL   string      `json:"source_url,omitempty"`
	LocalPath   string      `json:"local_path,omitempty"` // File path under the image directory (on success)
	ErrorType   string      `json:"error_type,omitempty"`
	LastAttempt time.Time   `json:"last_attempt"`
}
