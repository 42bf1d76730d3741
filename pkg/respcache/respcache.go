// Package respcache memoizes recipe query responses in a bounded LRU that the ingestion
// pipeline purges after it mutates the store.
package respcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/recipe-scraper/pkg/metrics"
	"github.com/Sriram-PR/recipe-scraper/pkg/storage"
	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

// Querier answers filtered recipe queries
type Querier interface {
	Query(ctx context.Context, f storage.Filter) ([]storage.Result, error)
}

// Cache is a Querier that serves repeated filters from memory.
// Returned slices are shared between callers and must not be modified.
type Cache struct {
	next    Querier
	entries *lru.Cache[string, []storage.Result]
	metrics *metrics.Metrics
	log     *logrus.Entry
}

// New wraps next with an LRU of at most size responses
func New(next Querier, size int, m *metrics.Metrics, log *logrus.Entry) (*Cache, error) {
	entries, err := lru.New[string, []storage.Result](size)
	if err != nil {
		return nil, fmt.Errorf("%w: response cache size %d: %w", utils.ErrConfigValidation, size, err)
	}
	return &Cache{next: next, entries: entries, metrics: m, log: log.WithField("component", "respcache")}, nil
}

// Query implements Querier
func (c *Cache) Query(ctx context.Context, f storage.Filter) ([]storage.Result, error) {
	key, err := Key(f)
	if err != nil {
		return nil, err
	}
	if results, ok := c.entries.Get(key); ok {
		c.metrics.IncQueryCache("hit")
		return results, nil
	}
	c.metrics.IncQueryCache("miss")

	results, err := c.next.Query(ctx, f)
	if err != nil {
		return nil, err
	}
	c.entries.Add(key, results)
	return results, nil
}

// Invalidate drops every cached response
func (c *Cache) Invalidate() {
	n := c.entries.Len()
	c.entries.Purge()
	c.log.WithField("entries", n).Debug("Response cache invalidated")
}

// Len returns the number of cached responses
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Key returns the cache key for f. Filters that differ only in category order or case, or
// in the case and spacing of the search text, share a key.
func Key(f storage.Filter) (string, error) {
	norm := f
	norm.Search = utils.CollapseSpace(strings.ToLower(f.Search))
	norm.Categories = make([]string, 0, len(f.Categories))
	for _, c := range storage.NormalizeCategoryNames(f.Categories) {
		norm.Categories = append(norm.Categories, strings.ToLower(c))
	}
	sort.Strings(norm.Categories)

	data, err := json.Marshal(norm)
	if err != nil {
		return "", fmt.Errorf("%w: encode filter: %w", utils.ErrParsing, err)
	}
	return string(data), nil
}
