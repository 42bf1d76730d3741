// Package extract turns raw recipe pages into canonical, shape-independent recipe records.
//
// Pages carry the recipe in one of a closed set of payload shapes. Probe picks the shape
// from the raw content alone; the matching parser fills a draft which Extract then
// normalizes (grouped lists flattened with @@name@@ markers, ISO-8601 durations converted,
// source links rewritten) and validates.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/recipe-scraper/pkg/config"
	"github.com/Sriram-PR/recipe-scraper/pkg/models"
	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

// MaxAuthorLength is the stored author width in runes
const MaxAuthorLength = 100

// draft is a parser's output before normalization
type draft struct {
	Title             string
	Description       string
	Time              string
	Yield             string
	RatingValue       *float64
	RatingCount       *int
	Author            string
	Image             *models.ImageLocator
	Keywords          []string
	IngredientGroups  []Group
	InstructionGroups []Group
}

var htmlTagRe = regexp.MustCompile(`<[a-zA-Z/][^>]*>`)

// Extractor converts raw page content into canonical recipes
type Extractor struct {
	rewriter  *LinkRewriter
	converter *md.Converter
	log       *logrus.Entry
	now       func() time.Time
}

// NewExtractor builds an extractor for the configured source. cfg must be validated.
func NewExtractor(cfg *config.AppConfig, log *logrus.Entry) (*Extractor, error) {
	rewriter, err := NewLinkRewriter(cfg.Source.BaseURL, cfg.Source.RecipePathPrefix, cfg.Source.LinkRewritePrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrConfigValidation, err)
	}
	return &Extractor{
		rewriter:  rewriter,
		converter: md.NewConverter("", true, nil),
		log:       log.WithField("component", "extract"),
		now:       time.Now,
	}, nil
}

// Probe reports which payload shape content carries. It has no side effects.
func Probe(content []byte) models.ExtractionStrategy {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return models.StrategyNone
	}
	strategy, _ := probeDocument(doc)
	return strategy
}

// probeDocument prefers the framework payload over JSON-LD when both are present.
func probeDocument(doc *goquery.Document) (models.ExtractionStrategy, json.RawMessage) {
	if raw := findNextData(doc); raw != nil {
		return models.StrategyNextData, raw
	}
	if raw := findJSONLD(doc); raw != nil {
		return models.StrategyJSONLD, raw
	}
	return models.StrategyNone, nil
}

// Extract parses content fetched from path into a canonical recipe for slug.
// Returns utils.ErrExtraction when no payload is recognised and utils.ErrValidation when
// the payload lacks a title, ingredients or instructions.
func (e *Extractor) Extract(slug, path string, content []byte) (*models.CanonicalRecipe, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: parse HTML for '%s': %w", utils.ErrParsing, slug, err)
	}

	strategy, raw := probeDocument(doc)
	var d *draft
	switch strategy {
	case models.StrategyNextData:
		d, err = parseNextData(raw)
	case models.StrategyJSONLD:
		d, err = parseJSONLD(raw)
	default:
		return nil, fmt.Errorf("%w: '%s'", utils.ErrExtraction, slug)
	}
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{"slug": slug, "strategy": strategy}).Debug("Recipe payload found")

	rec := e.normalize(d)
	rec.Slug = slug
	rec.SourcePath = path
	rec.Strategy = strategy
	rec.ExtractedAt = e.now().UTC()

	if err := Validate(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (e *Extractor) normalize(d *draft) *models.CanonicalRecipe {
	totalTime, minutes := NormalizeTime(d.Time)
	rec := &models.CanonicalRecipe{
		Title:        utils.CollapseSpace(d.Title),
		Description:  e.rewriter.Rewrite(e.toMarkdown(d.Description)),
		TotalTime:    totalTime,
		TotalMinutes: minutes,
		Yield:        strings.TrimSpace(d.Yield),
		RatingValue:  d.RatingValue,
		RatingCount:  d.RatingCount,
		Ingredients:  e.rewriter.RewriteAll(Flatten(d.IngredientGroups)),
		Instructions: e.rewriter.RewriteAll(Flatten(d.InstructionGroups)),
		Author:       utils.Truncate(utils.CollapseSpace(d.Author), MaxAuthorLength),
		Image:        d.Image,
		Keywords:     d.Keywords,
	}
	return rec
}

// toMarkdown converts HTML fragments to Markdown; plain text is only trimmed.
func (e *Extractor) toMarkdown(s string) string {
	s = strings.TrimSpace(s)
	if !htmlTagRe.MatchString(s) {
		return s
	}
	out, err := e.converter.ConvertString(s)
	if err != nil {
		e.log.Warnf("Markdown conversion failed, keeping raw description: %v", err)
		return s
	}
	return strings.TrimSpace(out)
}

// Validate rejects records that must never be persisted
func Validate(rec *models.CanonicalRecipe) error {
	switch {
	case strings.TrimSpace(rec.Title) == "":
		return fmt.Errorf("%w: '%s' has no title", utils.ErrValidation, rec.Slug)
	case CountItems(rec.Ingredients) == 0:
		return fmt.Errorf("%w: '%s' has no ingredients", utils.ErrValidation, rec.Slug)
	case CountItems(rec.Instructions) == 0:
		return fmt.Errorf("%w: '%s' has no instructions", utils.ErrValidation, rec.Slug)
	}
	return nil
}
