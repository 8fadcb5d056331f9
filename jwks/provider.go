package jwks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/pkjwt/pkjwt/core"
)

// Cache stores fetched key sets by JWKS URI.
type Cache interface {
	// Get returns the cached set, fetching it if absent or expired.
	Get(ctx context.Context, jwksURI string) (jwk.Set, error)
	// Refresh refetches the set unless it was fetched within the minimum
	// refresh interval, in which case the cached set is returned.
	Refresh(ctx context.Context, jwksURI string) (jwk.Set, error)
}

// URIDiscoverer resolves the provider's jwks_uri. *oidc.Discoverer
// satisfies it.
type URIDiscoverer interface {
	JWKSURI(ctx context.Context) (string, error)
}

// memoryCache keeps one entry per URI. Entries are refreshed in the
// background once 80% of their TTL has elapsed.
type memoryCache struct {
	httpClient         *http.Client
	refreshTTL         time.Duration
	minRefreshInterval time.Duration
	logger             core.Logger

	cacheMu sync.RWMutex
	cache   map[string]*cachedJWKS
}

type cachedJWKS struct {
	set        jwk.Set
	fetchedAt  time.Time
	expiresAt  time.Time
	refreshAt  time.Time
	refreshing atomic.Bool
	fetchMu    sync.Mutex
}

func newMemoryCache(client *http.Client, ttl, minRefresh time.Duration, logger core.Logger) *memoryCache {
	return &memoryCache{
		httpClient:         client,
		refreshTTL:         ttl,
		minRefreshInterval: minRefresh,
		logger:             logger,
		cache:              make(map[string]*cachedJWKS),
	}
}

func (c *memoryCache) entry(jwksURI string) (*cachedJWKS, bool) {
	c.cacheMu.RLock()
	cached, exists := c.cache[jwksURI]
	c.cacheMu.RUnlock()
	if exists {
		return cached, true
	}

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	cached, exists = c.cache[jwksURI]
	if !exists {
		cached = &cachedJWKS{}
		c.cache[jwksURI] = cached
	}
	return cached, false
}

func (c *memoryCache) Get(ctx context.Context, jwksURI string) (jwk.Set, error) {
	now := time.Now()

	c.cacheMu.RLock()
	cached, exists := c.cache[jwksURI]
	if exists && now.Before(cached.expiresAt) {
		result := cached.set
		shouldRefresh := now.After(cached.refreshAt)
		c.cacheMu.RUnlock()

		if shouldRefresh && cached.refreshing.CompareAndSwap(false, true) {
			go c.backgroundRefresh(jwksURI, cached)
		}
		return result, nil
	}
	c.cacheMu.RUnlock()

	cached, _ = c.entry(jwksURI)

	cached.fetchMu.Lock()
	defer cached.fetchMu.Unlock()

	// Another goroutine may have fetched while we waited.
	c.cacheMu.RLock()
	isValid := now.Before(cached.expiresAt)
	result := cached.set
	c.cacheMu.RUnlock()
	if isValid {
		return result, nil
	}

	return c.fetchInto(ctx, jwksURI, cached)
}

func (c *memoryCache) Refresh(ctx context.Context, jwksURI string) (jwk.Set, error) {
	cached, _ := c.entry(jwksURI)

	cached.fetchMu.Lock()
	defer cached.fetchMu.Unlock()

	c.cacheMu.RLock()
	recent := cached.set != nil && time.Since(cached.fetchedAt) < c.minRefreshInterval
	result := cached.set
	c.cacheMu.RUnlock()
	if recent {
		c.logger.Debug("Skipping JWKS refresh, fetched recently", "jwks_uri", jwksURI)
		return result, nil
	}

	return c.fetchInto(ctx, jwksURI, cached)
}

// fetchInto fetches the set and stores it in cached. The caller holds
// cached.fetchMu.
func (c *memoryCache) fetchInto(ctx context.Context, jwksURI string, cached *cachedJWKS) (jwk.Set, error) {
	set, cacheTTL, err := c.fetchWithCacheControl(ctx, jwksURI)
	if err != nil {
		return nil, fmt.Errorf("could not fetch JWKS: %w", err)
	}
	c.store(cached, set, cacheTTL)
	c.logger.Debug("Fetched JWKS", "jwks_uri", jwksURI, "keys", set.Len())
	return set, nil
}

func (c *memoryCache) store(cached *cachedJWKS, set jwk.Set, cacheTTL time.Duration) {
	// Cache-Control max-age may only extend the configured TTL.
	effectiveTTL := c.refreshTTL
	if cacheTTL > 0 && c.refreshTTL < cacheTTL {
		effectiveTTL = cacheTTL
	}

	now := time.Now()
	c.cacheMu.Lock()
	cached.set = set
	cached.fetchedAt = now
	cached.expiresAt = now.Add(effectiveTTL)
	cached.refreshAt = now.Add(effectiveTTL * 4 / 5)
	c.cacheMu.Unlock()
}

// fetchWithCacheControl fetches the JWKS and the max-age of the response, or
// 0 when the response carries none.
func (c *memoryCache) fetchWithCacheControl(ctx context.Context, jwksURI string) (jwk.Set, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURI, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("request returned status %d, expected 200", resp.StatusCode)
	}

	var cacheTTL time.Duration
	if cacheControl := resp.Header.Get("Cache-Control"); cacheControl != "" {
		cacheTTL = parseCacheControl(cacheControl)
	}

	// JWKS documents are small; cap the body at 1MB.
	set, err := jwk.ParseReader(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse JWKS: %w", err)
	}

	return set, cacheTTL, nil
}

// parseCacheControl returns the max-age directive of a Cache-Control header.
// Values outside [1s, 7d] and malformed values yield 0.
func parseCacheControl(cacheControl string) time.Duration {
	const (
		maxAgePrefix = "max-age="
		minTTL       = time.Second
		maxTTL       = 7 * 24 * time.Hour
	)

	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		if !strings.HasPrefix(directive, maxAgePrefix) {
			continue
		}

		seconds, err := strconv.ParseInt(strings.TrimPrefix(directive, maxAgePrefix), 10, 64)
		if err != nil || seconds <= 0 {
			continue
		}

		ttl := time.Duration(seconds) * time.Second
		if ttl < minTTL || ttl > maxTTL {
			return 0
		}
		return ttl
	}

	return 0
}

func (c *memoryCache) backgroundRefresh(jwksURI string, cached *cachedJWKS) {
	defer cached.refreshing.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	set, cacheTTL, err := c.fetchWithCacheControl(ctx, jwksURI)
	if err != nil {
		c.logger.Warn("Background JWKS refresh failed", "jwks_uri", jwksURI, "error", err)
		return
	}
	c.store(cached, set, cacheTTL)
}

// CachingProvider serves the identity provider's key set from a TTL cache.
// The JWKS URI is either configured or discovered lazily.
type CachingProvider struct {
	cache      Cache
	discoverer URIDiscoverer
	jwksURI    string
	logger     core.Logger
}

// NewCachingProvider builds a CachingProvider. Either WithCustomJWKSURI or
// one of WithIssuerURL / WithDiscoverer is required.
//
//	provider, err := jwks.NewCachingProvider(
//	    jwks.WithDiscoverer(discoverer),
//	    jwks.WithCacheTTL(5*time.Minute),
//	)
func NewCachingProvider(opts ...CachingProviderOption) (*CachingProvider, error) {
	config := &cachingProviderConfig{
		httpClient:         &http.Client{Timeout: 30 * time.Second},
		cacheTTL:           15 * time.Minute,
		minRefreshInterval: 30 * time.Second,
		logger:             core.NoopLogger{},
	}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	cp := &CachingProvider{
		discoverer: config.discoverer,
		logger:     config.logger,
	}

	switch {
	case config.customJWKSURI != nil:
		cp.jwksURI = config.customJWKSURI.String()
	case config.discoverer != nil:
	case config.issuerURL != nil:
		d, err := newIssuerDiscoverer(config.issuerURL, config.httpClient, config.logger)
		if err != nil {
			return nil, err
		}
		cp.discoverer = d
	default:
		return nil, errors.New("issuer URL, discoverer or custom JWKS URI is required")
	}

	if config.cache != nil {
		cp.cache = config.cache
	} else {
		cp.cache = newMemoryCache(config.httpClient, config.cacheTTL, config.minRefreshInterval, config.logger)
	}

	return cp, nil
}

func (c *CachingProvider) getJWKSURI(ctx context.Context) (string, error) {
	if c.jwksURI != "" {
		return c.jwksURI, nil
	}
	uri, err := c.discoverer.JWKSURI(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to discover JWKS URI: %w", err)
	}
	return uri, nil
}

// KeySet returns the cached provider key set.
func (c *CachingProvider) KeySet(ctx context.Context) (jwk.Set, error) {
	jwksURI, err := c.getJWKSURI(ctx)
	if err != nil {
		return nil, err
	}
	return c.cache.Get(ctx, jwksURI)
}

// Refresh forces a refetch of the provider key set, used when a token names
// a key id the cached set does not contain.
func (c *CachingProvider) Refresh(ctx context.Context) (jwk.Set, error) {
	jwksURI, err := c.getJWKSURI(ctx)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Refreshing JWKS", "jwks_uri", jwksURI)
	return c.cache.Refresh(ctx, jwksURI)
}
