// Package images downloads one hero image per stored recipe into the public image directory.
package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/Sriram-PR/recipe-scraper/pkg/config"
	"github.com/Sriram-PR/recipe-scraper/pkg/fetch"
	"github.com/Sriram-PR/recipe-scraper/pkg/metrics"
	"github.com/Sriram-PR/recipe-scraper/pkg/models"
	"github.com/Sriram-PR/recipe-scraper/pkg/storage"
	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

// DefaultExtension is used when the source URL carries no recognised image extension
const DefaultExtension = ".jpg"

var allowedExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}

// Outcome classifies one acquisition attempt
type Outcome string

const (
	OutcomeDownloaded      Outcome = "downloaded"
	OutcomePlaceholder     Outcome = "placeholder"
	OutcomeSkippedExisting Outcome = "skipped_existing"
	OutcomeNotInStore      Outcome = "not_in_store"
	OutcomeNoImage         Outcome = "no_image"
	OutcomeFailed          Outcome = "failed"
)

// Result describes what Acquire did for one recipe
type Result struct {
	Slug       string
	Outcome    Outcome
	SourceURL  string
	LocalPath  string // File written under the image directory
	PublicPath string // Reference stored on the recipe
	Bytes      int64
}

// RecipeImageStore is the store capability image acquisition needs
type RecipeImageStore interface {
	GetRecipe(ctx context.Context, slug string) (*models.Recipe, error)
	SetImagePath(ctx context.Context, slug, imagePath string) error
}

// Acquirer resolves, filters, downloads and attaches recipe images
type Acquirer struct {
	cfg         *config.AppConfig
	fetcher     *fetch.Fetcher
	store       RecipeImageStore
	ledger      storage.StateLedger // optional
	placeholder *regexp.Regexp
	sem         *semaphore.Weighted // Bounds concurrent downloads
	metrics     *metrics.Metrics
	log         *logrus.Entry
	now         func() time.Time
}

// NewAcquirer creates an Acquirer. cfg must be validated; ledger may be nil.
func NewAcquirer(cfg *config.AppConfig, fetcher *fetch.Fetcher, store RecipeImageStore, ledger storage.StateLedger, m *metrics.Metrics, log *logrus.Entry) (*Acquirer, error) {
	placeholder, err := regexp.Compile(cfg.Source.PlaceholderPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: placeholder pattern '%s': %w", utils.ErrConfigValidation, cfg.Source.PlaceholderPattern, err)
	}
	workers := cfg.NumWorkers
	if workers <= 0 {
		workers = 1
	}
	return &Acquirer{
		cfg:         cfg,
		fetcher:     fetcher,
		store:       store,
		ledger:      ledger,
		placeholder: placeholder,
		sem:         semaphore.NewWeighted(int64(workers)),
		metrics:     m,
		log:         log.WithField("component", "images"),
		now:         time.Now,
	}, nil
}

// IsPlaceholder reports whether src points at a generic placeholder asset
func (a *Acquirer) IsPlaceholder(src string) bool {
	return a.placeholder.MatchString(src)
}

// Acquire downloads rec's image and attaches it to the stored recipe.
// Recipes missing from the store, recipes without an image, placeholders, and recipes that
// already have an image (unless force) are skipped without any network call. A failed
// download returns OutcomeFailed with an error wrapping utils.ErrImage; no partial file remains.
func (a *Acquirer) Acquire(ctx context.Context, rec *models.CanonicalRecipe, force bool) (Result, error) {
	res := Result{Slug: rec.Slug}
	log := a.log.WithField("slug", rec.Slug)

	res.SourceURL = rec.Image.Resolve(a.cfg.Source.PreferredImageVariant)
	if res.SourceURL == "" {
		res.Outcome = OutcomeNoImage
		return a.finish(res, nil, log)
	}
	if a.IsPlaceholder(res.SourceURL) {
		res.Outcome = OutcomePlaceholder
		return a.finish(res, nil, log)
	}

	stored, err := a.store.GetRecipe(ctx, rec.Slug)
	if errors.Is(err, utils.ErrNotFound) {
		res.Outcome = OutcomeNotInStore
		return a.finish(res, nil, log)
	}
	if err != nil {
		return res, err
	}
	if stored.HasImage() && !force {
		res.Outcome = OutcomeSkippedExisting
		res.PublicPath = *stored.ImagePath
		return a.finish(res, nil, log)
	}

	ext := ImageExtension(res.SourceURL)
	fileName := utils.SanitizeSlug(rec.Slug) + ext
	res.LocalPath = filepath.Join(a.cfg.ImageDir, fileName)
	res.PublicPath = strings.TrimRight(a.cfg.ImageURLPrefix, "/") + "/" + fileName

	if err := a.sem.Acquire(ctx, 1); err != nil {
		return res, err
	}
	res.Bytes, err = a.download(ctx, res.SourceURL, res.LocalPath)
	a.sem.Release(1)
	if err != nil {
		res.Outcome = OutcomeFailed
		return a.finish(res, fmt.Errorf("%w: '%s': %w", utils.ErrImage, rec.Slug, err), log)
	}

	if err := a.store.SetImagePath(ctx, rec.Slug, res.PublicPath); err != nil {
		return res, err
	}
	res.Outcome = OutcomeDownloaded
	return a.finish(res, nil, log)
}

// finish records the attempt in metrics and the ledger
func (a *Acquirer) finish(res Result, err error, log *logrus.Entry) (Result, error) {
	a.metrics.IncImage(string(res.Outcome))
	log = log.WithFields(logrus.Fields{"outcome": res.Outcome, "src": res.SourceURL})

	var status models.ImageStatus
	switch res.Outcome {
	case OutcomeDownloaded:
		status = models.ImageStatusSuccess
		log.WithField("bytes", res.Bytes).Info("Image downloaded")
	case OutcomeFailed:
		status = models.ImageStatusFailure
		log.Warnf("Image download failed: %v", err)
	case OutcomePlaceholder:
		status = models.ImageStatusPlaceholder
		log.Debug("Skipping placeholder image")
	default:
		status = models.ImageStatusSkipped
		log.Debug("Skipping image")
	}

	if a.ledger != nil && res.Outcome != OutcomeNotInStore {
		entry := &models.ImageEntry{
			Status:      status,
			SourceURL:   res.SourceURL,
			LocalPath:   res.PublicPath,
			LastAttempt: a.now().UTC(),
		}
		if err != nil {
			entry.ErrorType = utils.CategorizeError(err)
		}
		if ledgerErr := a.ledger.RecordImage(res.Slug, entry); ledgerErr != nil {
			log.Warnf("Cannot record image attempt in ledger: %v", ledgerErr)
		}
		if status == models.ImageStatusSuccess || res.Outcome == OutcomeSkippedExisting {
			if _, ledgerErr := a.ledger.RecordState(res.Slug, models.StateEntry{State: models.StateImageResolved}); ledgerErr != nil {
				log.Warnf("Cannot advance ledger state: %v", ledgerErr)
			}
		}
	}
	return res, err
}

// download streams src into dest through a temp file in the same directory.
// Returns the number of bytes written.
func (a *Acquirer) download(ctx context.Context, src, dest string) (int64, error) {
	resp, err := a.fetcher.Get(ctx, src, fetch.PhaseImage)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	limit := a.cfg.MaxImageSizeBytes
	if limit > 0 {
		if header := resp.Header.Get("Content-Length"); header != "" {
			if size, parseErr := strconv.ParseInt(header, 10, 64); parseErr == nil && size > limit {
				return 0, fmt.Errorf("%w: %d > %d bytes by header", utils.ErrImageTooLarge, size, limit)
			}
		}
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("%w: ensuring image directory '%s': %w", utils.ErrFilesystem, dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("%w: creating temp image file: %w", utils.ErrFilesystem, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	var reader io.Reader = resp.Body
	if limit > 0 {
		// One byte past the limit tells an exact-size image from a truncated one.
		reader = io.LimitReader(resp.Body, limit+1)
	}
	written, err := io.Copy(tmp, reader)
	if err != nil {
		cleanup()
		return 0, fmt.Errorf("%w: copying image data (%d bytes): %w", utils.ErrFilesystem, written, err)
	}
	if limit > 0 && written > limit {
		cleanup()
		return 0, fmt.Errorf("%w: more than %d bytes", utils.ErrImageTooLarge, limit)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: closing '%s': %w", utils.ErrFilesystem, tmpPath, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: renaming into '%s': %w", utils.ErrFilesystem, dest, err)
	}
	return written, nil
}

// ImageExtension returns the lower-cased extension of src's path when it is a known image
// type, else DefaultExtension.
func ImageExtension(src string) string {
	p := src
	if u, err := url.Parse(src); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if allowedExtensions[ext] {
		return ext
	}
	return DefaultExtension
}
