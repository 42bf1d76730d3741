package discover

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/recipe-scraper/pkg/parse"
	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

// listingPage is what one listing page contributed
type listingPage struct {
	RawItems   int      // Elements matching the item selector, valid or not
	Candidates []string // Distinct recipe paths in page order
}

// ListingParser extracts recipe candidates from listing pages
type ListingParser struct {
	itemSelector string
	urlAttr      string
	matcher      *parse.RecipePathMatcher
}

// NewListingParser creates a parser for items matched by itemSelector whose recipe link sits
// in urlAttr or, failing that, in the item's first a[href].
func NewListingParser(baseURL, itemSelector, urlAttr, recipePattern string) (*ListingParser, error) {
	matcher, err := parse.NewRecipePathMatcher(baseURL, recipePattern)
	if err != nil {
		return nil, err
	}
	return &ListingParser{itemSelector: itemSelector, urlAttr: urlAttr, matcher: matcher}, nil
}

// Parse reads one listing page body
func (lp *ListingParser) Parse(body []byte, log *logrus.Entry) (*listingPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: listing HTML: %w", utils.ErrParsing, err)
	}

	items := doc.Find(lp.itemSelector)
	page := &listingPage{RawItems: items.Length()}
	seen := make(map[string]struct{})

	items.Each(func(_ int, item *goquery.Selection) {
		raw := lp.rawLink(item)
		if raw == "" {
			return
		}
		path, ok := lp.matcher.Match(raw)
		if !ok {
			log.Debugf("Skipping non-recipe listing link '%s'", raw)
			return
		}
		if _, dup := seen[path]; dup {
			return
		}
		seen[path] = struct{}{}
		page.Candidates = append(page.Candidates, path)
	})
	return page, nil
}

func (lp *ListingParser) rawLink(item *goquery.Selection) string {
	if lp.urlAttr != "" {
		if v, ok := item.Attr(lp.urlAttr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	if href, ok := item.Find("a[href]").First().Attr("href"); ok {
		return strings.TrimSpace(href)
	}
	return ""
}
