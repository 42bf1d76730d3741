package respcache

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/recipe-scraper/pkg/metrics"
	"github.com/Sriram-PR/recipe-scraper/pkg/models"
	"github.com/Sriram-PR/recipe-scraper/pkg/storage"
	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

type countingQuerier struct {
	calls int
	err   error
}

func (q *countingQuerier) Query(_ context.Context, f storage.Filter) ([]storage.Result, error) {
	q.calls++
	if q.err != nil {
		return nil, q.err
	}
	return []storage.Result{{Recipe: &models.Recipe{Slug: "1-pasta", Name: f.Search}}}, nil
}

func TestCache_HitMissInvalidate(t *testing.T) {
	next := &countingQuerier{}
	m := metrics.New()
	c, err := New(next, 8, m, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	first, err := c.Query(ctx, storage.Filter{Search: "pasta", Categories: []string{"Dinner", "Italian"}})
	require.NoError(t, err)
	second, err := c.Query(ctx, storage.Filter{Search: " PASTA ", Categories: []string{"italian", "dinner"}})
	require.NoError(t, err)

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueryCacheLookup.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueryCacheLookup.WithLabelValues("miss")))

	c.Invalidate()
	assert.Equal(t, 0, c.Len())
	_, err = c.Query(ctx, storage.Filter{Search: "pasta"})
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCache_DistinctFiltersDoNotCollide(t *testing.T) {
	next := &countingQuerier{}
	c, err := New(next, 8, nil, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	four := 4.0
	filters := []storage.Filter{
		{},
		{Name: "Pasta"},
		{Name: "pasta"},
		{MinRatingValue: &four},
		{Limit: 10},
		{Limit: 10, Offset: 10},
	}
	for _, f := range filters {
		_, err := c.Query(ctx, f)
		require.NoError(t, err)
	}
	assert.Equal(t, len(filters), next.calls)
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	boom := errors.New("boom")
	next := &countingQuerier{err: boom}
	c, err := New(next, 8, nil, testLogger())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := c.Query(context.Background(), storage.Filter{Search: "x"})
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, 2, next.calls)
	assert.Equal(t, 0, c.Len())
}

func TestCache_Evicts(t *testing.T) {
	next := &countingQuerier{}
	c, err := New(next, 2, nil, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	for _, q := range []string{"a", "b", "c"} {
		_, err := c.Query(ctx, storage.Filter{Search: q})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())
	_, err = c.Query(ctx, storage.Filter{Search: "a"})
	require.NoError(t, err)
	assert.Equal(t, 4, next.calls, "least recently used entry was evicted")
}

func TestNew_InvalidSize(t *testing.T) {
	_, err := New(&countingQuerier{}, 0, nil, testLogger())
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}
