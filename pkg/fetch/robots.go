package fetch

import (
	"context"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// RobotsHandler fetches, caches and evaluates robots.txt for the source host
type RobotsHandler struct {
	fetcher     *Fetcher
	userAgent   string
	robotsCache map[string]*robotstxt.RobotsData // host -> parsed data (nil when unavailable)
	mu          sync.Mutex
	log         *logrus.Entry
}

// NewRobotsHandler creates a RobotsHandler
func NewRobotsHandler(fetcher *Fetcher, userAgent string, log *logrus.Entry) *RobotsHandler {
	return &RobotsHandler{
		fetcher:     fetcher,
		userAgent:   userAgent,
		robotsCache: make(map[string]*robotstxt.RobotsData),
		log:         log,
	}
}

// robotsData returns cached data for the target's host, fetching on first use.
// Any fetch or parse failure is cached as nil.
func (rh *RobotsHandler) robotsData(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	host := target.Host

	rh.mu.Lock()
	defer rh.mu.Unlock()
	if data, found := rh.robotsCache[host]; found {
		return data
	}

	scheme := target.Scheme
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}
	robotsURL := (&url.URL{Scheme: scheme, Host: host, Path: "/robots.txt"}).String()
	robotsLog := rh.log.WithField("robots_url", robotsURL)
	robotsLog.Info("Fetching robots.txt...")

	body, err := rh.fetcher.GetBody(ctx, robotsURL, PhaseRobots)
	if err != nil {
		robotsLog.Warnf("Fetching robots.txt failed, treating all paths as allowed: %v", err)
		rh.robotsCache[host] = nil
		return nil
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		robotsLog.Warnf("Parsing robots.txt failed, treating all paths as allowed: %v", err)
		rh.robotsCache[host] = nil
		return nil
	}
	rh.robotsCache[host] = data
	robotsLog.Debug("Parsed robots.txt")
	return data
}

// Allowed reports whether the configured agent may fetch rawURL.
// Unparsable URLs and unavailable robots.txt count as allowed.
func (rh *RobotsHandler) Allowed(ctx context.Context, rawURL string) bool {
	target, err := url.Parse(rawURL)
	if err != nil || target.Host == "" {
		return true
	}
	data := rh.robotsData(ctx, target)
	if data == nil {
		return true
	}
	return data.TestAgent(target.RequestURI(), rh.userAgent)
}
