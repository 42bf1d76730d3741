package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Metrics bundles Prometheus collectors for a pipeline run.
// All methods are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	Registry         *prometheus.Registry
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RetriesTotal     prometheus.Counter
	ErrorsTotal      *prometheus.CounterVec
	ListingPages     prometheus.Counter
	DiscoveredURLs   prometheus.Gauge
	CacheLookups     *prometheus.CounterVec
	RecipesTotal     *prometheus.CounterVec
	ImagesTotal      *prometheus.CounterVec
	QueryCacheLookup *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recipes_http_requests_total",
			Help: "HTTP requests issued to the source site by phase.",
		}, []string{"phase"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recipes_http_request_duration_seconds",
			Help:    "Latency of source site requests by phase.",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase"}),
		RetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recipes_http_retries_total",
			Help: "Retry attempts scheduled after transient failures.",
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recipes_errors_total",
			Help: "Per-item failures by error category.",
		}, []string{"error_type"}),
		ListingPages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recipes_listing_pages_total",
			Help: "Listing pages processed during discovery.",
		}),
		DiscoveredURLs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recipes_discovered_urls",
			Help: "Size of the discovered URL set after the last discovery run.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recipes_page_cache_lookups_total",
			Help: "Page cache lookups by result (hit, miss, forced).",
		}, []string{"result"}),
		RecipesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recipes_processed_total",
			Help: "Recipes processed by outcome.",
		}, []string{"outcome"}),
		ImagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recipes_images_total",
			Help: "Image acquisition attempts by outcome.",
		}, []string{"outcome"}),
		QueryCacheLookup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recipes_query_cache_lookups_total",
			Help: "Query response cache lookups by result.",
		}, []string{"result"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recipes_stage_duration_seconds",
			Help:    "Wall time of each pipeline stage.",
			Buckets: []float64{0.1, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"stage"}),
	}

	registry.MustRegister(
		m.RequestsTotal, m.RequestDuration, m.RetriesTotal, m.ErrorsTotal,
		m.ListingPages, m.DiscoveredURLs, m.CacheLookups, m.RecipesTotal,
		m.ImagesTotal, m.QueryCacheLookup, m.StageDuration,
	)
	return m
}

// ObserveRequest counts one request and records its latency.
func (m *Metrics) ObserveRequest(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
	m.RequestDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a category label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncListingPage counts one processed listing page.
func (m *Metrics) IncListingPage() {
	if m == nil {
		return
	}
	m.ListingPages.Inc()
}

// SetDiscovered records the size of the discovered URL set.
func (m *Metrics) SetDiscovered(n int) {
	if m == nil {
		return
	}
	m.DiscoveredURLs.Set(float64(n))
}

// IncCacheLookup counts one page cache lookup.
func (m *Metrics) IncCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// IncRecipe counts one recipe outcome.
func (m *Metrics) IncRecipe(outcome string) {
	if m == nil {
		return
	}
	m.RecipesTotal.WithLabelValues(outcome).Inc()
}

// IncImage counts one image outcome.
func (m *Metrics) IncImage(outcome string) {
	if m == nil {
		return
	}
	m.ImagesTotal.WithLabelValues(outcome).Inc()
}

// IncQueryCache counts one query cache lookup.
func (m *Metrics) IncQueryCache(result string) {
	if m == nil {
		return
	}
	m.QueryCacheLookup.WithLabelValues(result).Inc()
}

// ObserveStage records the wall time of a pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Serve exposes the registry on addr until ctx is cancelled. A blank addr is a no-op.
func (m *Metrics) Serve(ctx context.Context, addr string, log *logrus.Entry) {
	if m == nil || addr == "" {
		return
	}
	server := &http.Server{
		Addr:    addr,
		Handler: promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server failed on %s: %v", addr, err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	log.Infof("Metrics server enabled at http://%s/metrics", addr)
}
