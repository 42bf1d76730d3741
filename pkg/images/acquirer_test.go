package images

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/recipe-scraper/pkg/config"
	"github.com/Sriram-PR/recipe-scraper/pkg/fetch"
	"github.com/Sriram-PR/recipe-scraper/pkg/models"
	"github.com/Sriram-PR/recipe-scraper/pkg/storage"
	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

type fixture struct {
	acq    *Acquirer
	cfg    *config.AppConfig
	store  *storage.SQLiteStore
	ledger *storage.BadgerStore
	hits   *atomic.Int32
	server *httptest.Server
}

// newFixture serves "/img/*" with body, "/missing/*" with 404, and counts every request.
func newFixture(t *testing.T, body string) *fixture {
	t.Helper()
	ctx := context.Background()
	hits := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if strings.HasPrefix(r.URL.Path, "/missing/") {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)

	cfg := &config.AppConfig{
		Source:            config.SourceConfig{BaseURL: "https://cooking.example.com"},
		CacheDir:          t.TempDir(),
		StateDir:          t.TempDir(),
		DatabasePath:      filepath.Join(t.TempDir(), "recipes.db"),
		ImageDir:          t.TempDir(),
		InitialRetryDelay: time.Millisecond,
		MaxRetryDelay:     time.Millisecond,
	}
	_, err := cfg.Validate()
	require.NoError(t, err)
	cfg.MaxRetries = new(int)

	store, err := storage.OpenSQLite(ctx, cfg.DatabasePath, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ledger, err := storage.NewBadgerStore(ctx, cfg.StateDir, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	fetcher := fetch.NewFetcher(server.Client(), cfg, nil, nil, testLogger())
	acq, err := NewAcquirer(cfg, fetcher, store, ledger, nil, testLogger())
	require.NoError(t, err)
	return &fixture{acq: acq, cfg: cfg, store: store, ledger: ledger, hits: hits, server: server}
}

func (f *fixture) seed(t *testing.T, slug string) {
	t.Helper()
	_, err := f.store.UpsertRecipe(context.Background(), &models.Recipe{
		Slug:         slug,
		Name:         slug,
		Ingredients:  []string{"x"},
		Instructions: []string{"y"},
	}, nil)
	require.NoError(t, err)
}

func canonical(slug, imageURL string) *models.CanonicalRecipe {
	rec := &models.CanonicalRecipe{Slug: slug, Title: slug}
	if imageURL != "" {
		rec.Image = &models.ImageLocator{Variants: map[string]string{"article": imageURL, "card": imageURL + "?card"}}
	}
	return rec
}

func TestAcquire_Downloads(t *testing.T) {
	f := newFixture(t, "PNGDATA")
	f.seed(t, "1-pasta")

	res, err := f.acq.Acquire(context.Background(), canonical("1-pasta", f.server.URL+"/img/pasta.PNG"), false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDownloaded, res.Outcome)
	assert.Equal(t, "/static/recipes/1-pasta.png", res.PublicPath)
	assert.Equal(t, int64(7), res.Bytes)

	data, err := os.ReadFile(filepath.Join(f.cfg.ImageDir, "1-pasta.png"))
	require.NoError(t, err)
	assert.Equal(t, "PNGDATA", string(data))

	stored, err := f.store.GetRecipe(context.Background(), "1-pasta")
	require.NoError(t, err)
	require.NotNil(t, stored.ImagePath)
	assert.Equal(t, "/static/recipes/1-pasta.png", *stored.ImagePath)

	entry, err := f.ledger.GetImage("1-pasta")
	require.NoError(t, err)
	assert.Equal(t, models.ImageStatusSuccess, entry.Status)
	state, err := f.ledger.GetState("1-pasta")
	require.NoError(t, err)
	assert.Equal(t, models.StateImageResolved, state.State)
}

func TestAcquire_PlaceholderNeverDownloads(t *testing.T) {
	f := newFixture(t, "data")
	f.seed(t, "2-salad")

	for _, src := range []string{
		f.server.URL + "/applications/cooking/5b227f9/assets/15.png",
		f.server.URL + "/x/ASSETS/3.JPEG",
	} {
		res, err := f.acq.Acquire(context.Background(), canonical("2-salad", src), true)
		require.NoError(t, err)
		assert.Equal(t, OutcomePlaceholder, res.Outcome)
	}
	assert.Equal(t, int32(0), f.hits.Load())

	entry, err := f.ledger.GetImage("2-salad")
	require.NoError(t, err)
	assert.Equal(t, models.ImageStatusPlaceholder, entry.Status)
	stored, err := f.store.GetRecipe(context.Background(), "2-salad")
	require.NoError(t, err)
	assert.False(t, stored.HasImage())
}

func TestAcquire_SkipsWithoutNetwork(t *testing.T) {
	f := newFixture(t, "data")
	f.seed(t, "3-stew")
	require.NoError(t, f.store.SetImagePath(context.Background(), "3-stew", "/static/recipes/3-stew.jpg"))

	res, err := f.acq.Acquire(context.Background(), canonical("3-stew", f.server.URL+"/img/stew.jpg"), false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedExisting, res.Outcome)

	res, err = f.acq.Acquire(context.Background(), canonical("9-absent", f.server.URL+"/img/x.jpg"), false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotInStore, res.Outcome)

	res, err = f.acq.Acquire(context.Background(), canonical("3-stew", ""), true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoImage, res.Outcome)

	assert.Equal(t, int32(0), f.hits.Load())
}

func TestAcquire_ForceReplacesExisting(t *testing.T) {
	f := newFixture(t, "new")
	f.seed(t, "3-stew")
	require.NoError(t, f.store.SetImagePath(context.Background(), "3-stew", "/static/recipes/3-stew.png"))

	res, err := f.acq.Acquire(context.Background(), canonical("3-stew", f.server.URL+"/img/stew"), true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDownloaded, res.Outcome)
	assert.Equal(t, "/static/recipes/3-stew.jpg", res.PublicPath)
	assert.Equal(t, int32(1), f.hits.Load())
}

func TestAcquire_FailureLeavesNoFile(t *testing.T) {
	f := newFixture(t, "data")
	f.seed(t, "4-toast")

	res, err := f.acq.Acquire(context.Background(), canonical("4-toast", f.server.URL+"/missing/toast.jpg"), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrImage)
	assert.Equal(t, OutcomeFailed, res.Outcome)

	entries, readErr := os.ReadDir(f.cfg.ImageDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)

	entry, ledgerErr := f.ledger.GetImage("4-toast")
	require.NoError(t, ledgerErr)
	assert.Equal(t, models.ImageStatusFailure, entry.Status)
	assert.NotEmpty(t, entry.ErrorType)

	stored, getErr := f.store.GetRecipe(context.Background(), "4-toast")
	require.NoError(t, getErr)
	assert.False(t, stored.HasImage())
}

func TestAcquire_SizeLimit(t *testing.T) {
	f := newFixture(t, strings.Repeat("x", 64))
	f.cfg.MaxImageSizeBytes = 16
	f.seed(t, "5-cake")

	res, err := f.acq.Acquire(context.Background(), canonical("5-cake", f.server.URL+"/img/cake.webp"), false)
	assert.ErrorIs(t, err, utils.ErrImageTooLarge)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.NoFileExists(t, filepath.Join(f.cfg.ImageDir, "5-cake.webp"))

	f.cfg.MaxImageSizeBytes = 64
	res, err = f.acq.Acquire(context.Background(), canonical("5-cake", f.server.URL+"/img/cake.webp"), false)
	require.NoError(t, err, "an image of exactly the limit is accepted")
	assert.Equal(t, OutcomeDownloaded, res.Outcome)
}

func TestImageExtension(t *testing.T) {
	tests := []struct{ in, want string }{
		{"https://img.example.com/a/b.png", ".png"},
		{"https://img.example.com/a/b.JPEG?w=300", ".jpeg"},
		{"https://img.example.com/a/b.webp#x", ".webp"},
		{"https://img.example.com/a/b.gif", ".gif"},
		{"https://img.example.com/a/b.svg", ".jpg"},
		{"https://img.example.com/a/b", ".jpg"},
		{"https://img.example.com/a.png/b", ".jpg"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ImageExtension(tt.in), tt.in)
	}
}

func TestNewAcquirer_BadPlaceholderPattern(t *testing.T) {
	cfg := &config.AppConfig{Source: config.SourceConfig{PlaceholderPattern: "("}}
	_, err := NewAcquirer(cfg, nil, nil, nil, nil, testLogger())
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}
