package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/recipe-scraper/pkg/config"
	"github.com/Sriram-PR/recipe-scraper/pkg/metrics"
	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

// Request phases, used as metric labels
const (
	PhaseListing = "listing"
	PhaseRecipe  = "recipe"
	PhaseImage   = "image"
	PhaseRobots  = "robots"
)

// Fetcher makes HTTP requests with retry, politeness delay and a shared user agent
type Fetcher struct {
	client      *http.Client
	cfg         *config.AppConfig
	rateLimiter *RateLimiter
	metrics     *metrics.Metrics
	log         *logrus.Entry
}

// NewFetcher creates a new Fetcher instance. rateLimiter and m may be nil.
func NewFetcher(client *http.Client, cfg *config.AppConfig, rateLimiter *RateLimiter, m *metrics.Metrics, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client:      client,
		cfg:         cfg,
		rateLimiter: rateLimiter,
		metrics:     m,
		log:         log,
	}
}

// Client exposes the underlying HTTP client
func (f *Fetcher) Client() *http.Client {
	return f.client
}

// FetchWithRetry performs req under ctx.
// Network errors, 5xx and 429 are retried with exponential backoff and jitter.
// Other 4xx and non-2xx statuses return immediately with the response, which the caller must close.
func (f *Fetcher) FetchWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	var currentResp *http.Response

	reqLog := f.log.WithField("url", req.URL.String())

	maxRetries := f.cfg.Retries()
	initialRetryDelay := f.cfg.InitialRetryDelay
	maxRetryDelay := f.cfg.MaxRetryDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return nil, fmt.Errorf("context cancelled (%v) during retry backoff after error: %w", ctx.Err(), lastErr)
			}
			return nil, fmt.Errorf("context cancelled before first attempt: %w", ctx.Err())
		default:
		}

		if attempt > 0 {
			f.metrics.IncRetries()
			finalDelay := backoffDelay(attempt, initialRetryDelay, maxRetryDelay)
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_retries": maxRetries, "delay": finalDelay}).Warn("Retrying request...")

			timer := time.NewTimer(finalDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				if lastErr != nil {
					return nil, fmt.Errorf("context cancelled (%v) during retry delay after error: %w", ctx.Err(), lastErr)
				}
				return nil, fmt.Errorf("context cancelled during retry delay: %w", ctx.Err())
			}
		}

		currentResp, lastErr = f.client.Do(req.WithContext(ctx))

		if lastErr != nil {
			if currentResp != nil {
				drainAndClose(currentResp)
			}
			// A client timeout is retried; caller cancellation is not.
			if ctx.Err() != nil {
				return nil, lastErr
			}
			var urlErr *url.Error
			if errors.As(lastErr, &urlErr) && urlErr.Timeout() {
				reqLog.WithField("attempt", attempt).Warnf("Request timed out: %v", lastErr)
			} else {
				reqLog.WithField("attempt", attempt).Errorf("Network error: %v", lastErr)
			}
			continue
		}

		statusCode := currentResp.StatusCode
		resLog := reqLog.WithFields(logrus.Fields{"status_code": statusCode, "attempt": attempt})

		switch {
		case statusCode >= 200 && statusCode < 300:
			resLog.Debug("Successfully fetched")
			return currentResp, nil

		case statusCode >= 500:
			resLog.Warn("Server error, retrying...")
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, statusCode, http.StatusText(statusCode))
			drainAndClose(currentResp)
			continue

		case statusCode == http.StatusTooManyRequests:
			resLog.Warn("Received 429 Too Many Requests, retrying...")
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, http.StatusText(statusCode))
			drainAndClose(currentResp)
			continue

		case statusCode >= 400 && statusCode < 500:
			resLog.Warn("Client error (4xx), not retrying")
			return currentResp, fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, http.StatusText(statusCode))

		default:
			resLog.Warnf("Non-retryable/unexpected status: %d", statusCode)
			return currentResp, fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, statusCode, http.StatusText(statusCode))
		}
	}

	reqLog.Errorf("All %d fetch attempts failed. Last error: %v", maxRetries+1, lastErr)

	if lastErr != nil {
		if ctx.Err() != nil && (errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded)) {
			return nil, lastErr
		}
		return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
	}
	return nil, utils.ErrRetryFailed
}

// Get issues a polite GET for rawURL and returns the response.
// Non-2xx responses are returned as errors with the body already closed.
func (f *Fetcher) Get(ctx context.Context, rawURL, phase string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", utils.ErrRequestCreation, rawURL, err)
	}
	req.Header.Set("User-Agent", f.cfg.Source.UserAgent)

	host := req.URL.Hostname()
	if f.rateLimiter != nil {
		f.rateLimiter.ApplyDelay(ctx, host, f.cfg.DelayPerRequest)
	}

	start := time.Now()
	resp, err := f.FetchWithRetry(ctx, req)
	f.metrics.ObserveRequest(phase, time.Since(start))
	if f.rateLimiter != nil {
		f.rateLimiter.UpdateLastRequestTime(host)
	}
	if err != nil {
		if resp != nil {
			drainAndClose(resp)
		}
		return nil, err
	}
	return resp, nil
}

// GetBody fetches rawURL and reads the whole body.
func (f *Fetcher) GetBody(ctx context.Context, rawURL, phase string) ([]byte, error) {
	resp, err := f.Get(ctx, rawURL, phase)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", utils.ErrResponseBodyRead, rawURL, err)
	}
	return body, nil
}

// backoffDelay computes initial * 2^(attempt-1), capped at max, with +/- 10% jitter.
func backoffDelay(attempt int, initial, max time.Duration) time.Duration {
	backoff := float64(initial) * math.Pow(2, float64(attempt-1))
	delay := time.Duration(backoff)
	if delay <= 0 || delay > max {
		delay = max
	}
	var jitter time.Duration
	if window := int64(delay) / 5; window > 0 {
		jitter = time.Duration(rand.Int63n(window)) - (delay / 10)
	}
	if final := delay + jitter; final > 0 {
		return final
	}
	return 0
}

func drainAndClose(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
