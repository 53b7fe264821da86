// Package geo resolves a caller's country from their IP address.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/okian/flaggy/pkg/logger"
	"github.com/okian/flaggy/pkg/metrics"
)

const (
	// DefaultBaseURL is the ip-api.com JSON endpoint root.
	DefaultBaseURL = "http://ip-api.com"
	// DefaultCountry is returned when nothing better is known.
	DefaultCountry = "NG"

	// unresolvedCountry is what a successful lookup without a code means.
	unresolvedCountry = "US"

	defaultTTL       = 24 * time.Hour
	defaultCacheSize = 10_000
)

var errLookupFailed = errors.New("lookup reported failure")

type cached struct {
	code string
	at   time.Time
}

// Option configures a Detector.
type Option func(*Detector)

// WithBaseURL points the detector at another lookup service.
func WithBaseURL(u string) Option {
	return func(d *Detector) {
		if u != "" {
			d.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithDefault sets the fallback ISO-2 country code.
func WithDefault(code string) Option {
	return func(d *Detector) {
		if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
			d.fallback = code
		}
	}
}

// WithTTL sets how long a looked up code is reused.
func WithTTL(ttl time.Duration) Option {
	return func(d *Detector) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithCacheSize caps how many addresses are remembered; the least
// recently used one is dropped first.
func WithCacheSize(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.cacheSize = n
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Detector) {
		if c != nil {
			d.http = c
		}
	}
}

// WithNow replaces the clock.
func WithNow(now func() time.Time) Option {
	return func(d *Detector) {
		if now != nil {
			d.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// Detector looks up ISO-2 country codes and caches them per IP.
// It never fails: on lookup errors it answers with the last known code
// for the IP, or the configured default.
type Detector struct {
	baseURL   string
	fallback  string
	ttl       time.Duration
	cacheSize int
	http      *http.Client
	now       func() time.Time
	logger    logger.Logger

	cache *lru.Cache[string, cached]
}

// NewDetector builds a Detector.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		baseURL:   DefaultBaseURL,
		fallback:  DefaultCountry,
		ttl:       defaultTTL,
		cacheSize: defaultCacheSize,
		http:      &http.Client{Timeout: 5 * time.Second},
		now:       time.Now,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	// only fails for a non-positive size, which the options rule out
	d.cache, _ = lru.New[string, cached](d.cacheSize)
	return d
}

// Default returns the fallback code.
func (d *Detector) Default() string { return d.fallback }

// Country returns the ISO-2 code for ip. An empty ip asks the service
// about the caller's own address.
func (d *Detector) Country(ctx context.Context, ip string) string {
	hit, ok := d.cache.Get(ip)
	if ok && d.now().Sub(hit.at) < d.ttl {
		metrics.RecordGeoLookup("cached")
		return hit.code
	}

	code, err := d.lookup(ctx, ip)
	if err != nil {
		d.logger.Warn(ctx, "country lookup failed", logger.String("ip", ip), logger.Error(err))
		if ok {
			metrics.RecordGeoLookup("stale")
			return hit.code
		}
		metrics.RecordGeoLookup("default")
		return d.fallback
	}

	metrics.RecordGeoLookup("ok")
	d.cache.Add(ip, cached{code: code, at: d.now()})
	return code
}

// Cached reports how many addresses are remembered.
func (d *Detector) Cached() int {
	return d.cache.Len()
}

func (d *Detector) lookup(ctx context.Context, ip string) (string, error) {
	endpoint := d.baseURL + "/json/" + url.PathEscape(ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lookup status %d", resp.StatusCode)
	}
	var body struct {
		Status      string `json:"status"`
		CountryCode string `json:"countryCode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode lookup: %w", err)
	}
	if body.Status == "fail" {
		return "", errLookupFailed
	}
	if body.CountryCode == "" {
		return unresolvedCountry, nil
	}
	return strings.ToUpper(body.CountryCode), nil
}
