package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sriram-PR/recipe-scraper/pkg/models"
	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

const jsonLDSelector = `script[type="application/ld+json"]`

// ldRecipe is the subset of schema.org/Recipe that is read
type ldRecipe struct {
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	TotalTime       flexString `json:"totalTime"`
	CookTime        flexString `json:"cookTime"`
	RecipeYield     flexString `json:"recipeYield"`
	AggregateRating *struct {
		RatingValue flexNumber `json:"ratingValue"`
		RatingCount flexNumber `json:"ratingCount"`
		ReviewCount flexNumber `json:"reviewCount"`
	} `json:"aggregateRating"`
	RecipeIngredient   []flexString    `json:"recipeIngredient"`
	Ingredients        []flexString    `json:"ingredients"` // Legacy property name
	RecipeInstructions json.RawMessage `json:"recipeInstructions"`
	Author             json.RawMessage `json:"author"`
	Image              json.RawMessage `json:"image"`
	Keywords           json.RawMessage `json:"keywords"`
	RecipeCategory     json.RawMessage `json:"recipeCategory"`
	RecipeCuisine      json.RawMessage `json:"recipeCuisine"`
}

// findJSONLD returns the first node typed Recipe across all JSON-LD scripts, or nil.
func findJSONLD(doc *goquery.Document) json.RawMessage {
	var found json.RawMessage
	doc.Find(jsonLDSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var v any
		if err := json.Unmarshal([]byte(s.Text()), &v); err != nil {
			return true
		}
		if node := findRecipeNode(v); node != nil {
			if b, err := json.Marshal(node); err == nil {
				found = b
				return false
			}
		}
		return true
	})
	return found
}

// findRecipeNode walks arrays and @graph containers looking for a Recipe-typed object.
func findRecipeNode(v any) map[string]any {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if node := findRecipeNode(item); node != nil {
				return node
			}
		}
	case map[string]any:
		if hasType(t, "Recipe") {
			return t
		}
		if graph, ok := t["@graph"]; ok {
			return findRecipeNode(graph)
		}
	}
	return nil
}

func hasType(node map[string]any, want string) bool {
	switch t := node["@type"].(type) {
	case string:
		return t == want
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func parseJSONLD(raw json.RawMessage) (*draft, error) {
	var r ldRecipe
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: decode JSON-LD recipe JSON: %w", utils.ErrParsing, err)
	}

	ingredients := r.RecipeIngredient
	if len(ingredients) == 0 {
		ingredients = r.Ingredients
	}
	lines := make([]string, 0, len(ingredients))
	for _, ing := range ingredients {
		lines = append(lines, string(ing))
	}

	d := &draft{
		Title:             r.Name,
		Description:       r.Description,
		Time:              firstNonEmpty(string(r.TotalTime), string(r.CookTime)),
		Yield:             string(r.RecipeYield),
		Author:            ldAuthor(r.Author),
		Image:             ldImage(r.Image),
		IngredientGroups:  []Group{{Items: lines}},
		InstructionGroups: ldInstructions(r.RecipeInstructions),
		Keywords: MergeKeywords(
			ParseKeywords(r.Keywords),
			ParseKeywords(r.RecipeCategory),
			ParseKeywords(r.RecipeCuisine),
		),
	}
	if ar := r.AggregateRating; ar != nil {
		d.RatingValue = ar.RatingValue.floatPtr()
		d.RatingCount = ar.RatingCount.intPtr()
		if d.RatingCount == nil {
			d.RatingCount = ar.ReviewCount.intPtr()
		}
	}
	return d, nil
}

// ldInstructions accepts a string, a list of strings, HowToStep objects, or HowToSection
// objects whose itemListElement holds steps.
func ldInstructions(raw json.RawMessage) []Group {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}

	var groups []Group
	var loose []string
	flushLoose := func() {
		if len(loose) > 0 {
			groups = append(groups, Group{Items: loose})
			loose = nil
		}
	}

	switch t := v.(type) {
	case string:
		loose = append(loose, strings.Split(t, "\n")...)
	case []any:
		for _, item := range t {
			node, isObj := item.(map[string]any)
			if isObj && hasType(node, "HowToSection") {
				flushLoose()
				name, _ := node["name"].(string)
				groups = append(groups, Group{Name: name, Items: stepTexts(node["itemListElement"])})
				continue
			}
			loose = append(loose, stepTexts(item)...)
		}
	case map[string]any:
		loose = append(loose, stepTexts(t)...)
	}
	flushLoose()
	return groups
}

// stepTexts flattens a step value (string, HowToStep, or list of either) into lines.
func stepTexts(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, stepTexts(item)...)
		}
		return out
	case map[string]any:
		if text, ok := t["text"].(string); ok && strings.TrimSpace(text) != "" {
			return []string{text}
		}
		if name, ok := t["name"].(string); ok {
			return []string{name}
		}
		if items, ok := t["itemListElement"]; ok {
			return stepTexts(items)
		}
	}
	return nil
}

// ldAuthor accepts a name string, a Person object, or a list of either.
func ldAuthor(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	var names []string
	var collect func(any)
	collect = func(v any) {
		switch t := v.(type) {
		case string:
			names = append(names, t)
		case map[string]any:
			if name, ok := t["name"].(string); ok {
				names = append(names, name)
			}
		case []any:
			for _, item := range t {
				collect(item)
			}
		}
	}
	collect(v)
	return strings.Join(MergeKeywords(names), ", ")
}

// ldImage accepts a URL string, an ImageObject, or a list of either, keeping the first URL.
func ldImage(raw json.RawMessage) *models.ImageLocator {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	var first func(any) string
	first = func(v any) string {
		switch t := v.(type) {
		case string:
			return strings.TrimSpace(t)
		case map[string]any:
			if u, ok := t["url"].(string); ok {
				return strings.TrimSpace(u)
			}
			if u, ok := t["contentUrl"].(string); ok {
				return strings.TrimSpace(u)
			}
		case []any:
			for _, item := range t {
				if u := first(item); u != "" {
					return u
				}
			}
		}
		return ""
	}
	if u := first(v); u != "" {
		return &models.ImageLocator{URL: u}
	}
	return nil
}
