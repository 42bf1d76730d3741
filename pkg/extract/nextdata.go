package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sriram-PR/recipe-scraper/pkg/models"
	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

const nextDataSelector = "script#__NEXT_DATA__"

// nextDataPage is the framework's bootstrap payload; only the recipe is read.
type nextDataPage struct {
	Props struct {
		PageProps struct {
			Recipe json.RawMessage `json:"recipe"`
		} `json:"pageProps"`
	} `json:"props"`
}

type nextRecipe struct {
	Title       string     `json:"title"`
	Topnote     string     `json:"topnote"`
	Time        flexString `json:"time"`
	TotalTime   flexString `json:"totalTime"`
	RecipeYield flexString `json:"recipeYield"`
	Ratings     struct {
		AvgRating  flexNumber `json:"avgRating"`
		NumRatings flexNumber `json:"numRatings"`
	} `json:"ratings"`
	Ingredients        []nextIngredient `json:"ingredients"`
	Steps              []nextStep       `json:"steps"`
	ContentAttribution struct {
		CardByline string `json:"cardByline"`
	} `json:"contentAttribution"`
	Image    *models.ImageLocator `json:"image"`
	Tags     json.RawMessage      `json:"tags"`
	Keywords json.RawMessage      `json:"keywords"`
	URL      string               `json:"url"`
}

// nextIngredient is either a line ({quantity, text}) or a group ({name, ingredients}).
type nextIngredient struct {
	Name        string           `json:"name"`
	Quantity    flexString       `json:"quantity"`
	Text        string           `json:"text"`
	Ingredients []nextIngredient `json:"ingredients"`
}

// nextStep is either a step ({description}) or a group ({name, steps}).
type nextStep struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Steps       []nextStep `json:"steps"`
}

// findNextData returns the raw recipe object, or nil if the page has none.
func findNextData(doc *goquery.Document) json.RawMessage {
	script := doc.Find(nextDataSelector).First()
	if script.Length() == 0 {
		return nil
	}
	var page nextDataPage
	if err := json.Unmarshal([]byte(script.Text()), &page); err != nil {
		return nil
	}
	raw := page.Props.PageProps.Recipe
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

func parseNextData(raw json.RawMessage) (*draft, error) {
	var r nextRecipe
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: decode __NEXT_DATA__ recipe JSON: %w", utils.ErrParsing, err)
	}

	d := &draft{
		Title:             r.Title,
		Description:       r.Topnote,
		Time:              firstNonEmpty(string(r.Time), string(r.TotalTime)),
		Yield:             string(r.RecipeYield),
		RatingValue:       r.Ratings.AvgRating.floatPtr(),
		RatingCount:       r.Ratings.NumRatings.intPtr(),
		Author:            r.ContentAttribution.CardByline,
		Image:             r.Image,
		Keywords:          MergeKeywords(ParseKeywords(r.Tags), ParseKeywords(r.Keywords)),
		IngredientGroups:  nextIngredientGroups(r.Ingredients),
		InstructionGroups: nextStepGroups(r.Steps),
	}
	if d.Image.IsEmpty() {
		d.Image = nil
	}
	return d, nil
}

func nextIngredientGroups(items []nextIngredient) []Group {
	var groups []Group
	var loose []string
	flushLoose := func() {
		if len(loose) > 0 {
			groups = append(groups, Group{Items: loose})
			loose = nil
		}
	}
	for _, it := range items {
		if it.Ingredients != nil {
			flushLoose()
			g := Group{Name: it.Name}
			for _, sub := range it.Ingredients {
				g.Items = append(g.Items, ingredientLine(sub))
			}
			groups = append(groups, g)
			continue
		}
		loose = append(loose, ingredientLine(it))
	}
	flushLoose()
	return groups
}

func ingredientLine(it nextIngredient) string {
	return strings.TrimSpace(strings.TrimSpace(string(it.Quantity)) + " " + strings.TrimSpace(it.Text))
}

func nextStepGroups(steps []nextStep) []Group {
	var groups []Group
	var loose []string
	flushLoose := func() {
		if len(loose) > 0 {
			groups = append(groups, Group{Items: loose})
			loose = nil
		}
	}
	for _, st := range steps {
		if st.Steps != nil || (st.Name != "" && st.Description == "") {
			flushLoose()
			g := Group{Name: st.Name}
			for _, inner := range st.Steps {
				g.Items = append(g.Items, inner.Description)
			}
			groups = append(groups, g)
			continue
		}
		loose = append(loose, st.Description)
	}
	flushLoose()
	return groups
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
