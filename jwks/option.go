package jwks

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkjwt/pkjwt/core"
	"github.com/pkjwt/pkjwt/internal/oidc"
)

// CachingProviderOption is how options for the CachingProvider are set up.
type CachingProviderOption func(*cachingProviderConfig) error

type cachingProviderConfig struct {
	issuerURL          *url.URL
	customJWKSURI      *url.URL
	discoverer         URIDiscoverer
	httpClient         *http.Client
	cacheTTL           time.Duration
	minRefreshInterval time.Duration
	cache              Cache
	logger             core.Logger
}

// WithIssuerURL sets the issuer whose discovery document names the JWKS URI.
func WithIssuerURL(issuerURL *url.URL) CachingProviderOption {
	return func(c *cachingProviderConfig) error {
		if issuerURL == nil {
			return fmt.Errorf("issuer URL cannot be nil")
		}
		c.issuerURL = issuerURL
		return nil
	}
}

// WithDiscoverer resolves the JWKS URI through d, so that discovery metadata
// can be shared with other components.
func WithDiscoverer(d URIDiscoverer) CachingProviderOption {
	return func(c *cachingProviderConfig) error {
		if d == nil {
			return errors.New("discoverer cannot be nil")
		}
		c.discoverer = d
		return nil
	}
}

// WithCustomJWKSURI fetches keys from jwksURI and skips discovery.
func WithCustomJWKSURI(jwksURI *url.URL) CachingProviderOption {
	return func(c *cachingProviderConfig) error {
		if jwksURI == nil {
			return fmt.Errorf("custom JWKS URI cannot be nil")
		}
		c.customJWKSURI = jwksURI
		return nil
	}
}

// WithCustomClient sets the HTTP client. Defaults to a client with a 30s timeout.
func WithCustomClient(client *http.Client) CachingProviderOption {
	return func(c *cachingProviderConfig) error {
		if client == nil {
			return fmt.Errorf("HTTP client cannot be nil")
		}
		c.httpClient = client
		return nil
	}
}

// WithCacheTTL sets how long a fetched key set is served. Zero selects the
// default of 15 minutes.
func WithCacheTTL(ttl time.Duration) CachingProviderOption {
	return func(c *cachingProviderConfig) error {
		if ttl < 0 {
			return fmt.Errorf("cache TTL cannot be negative")
		}
		if ttl == 0 {
			ttl = 15 * time.Minute
		}
		c.cacheTTL = ttl
		return nil
	}
}

// WithMinRefreshInterval bounds how often Refresh hits the network.
// Defaults to 30 seconds; zero disables the limit.
func WithMinRefreshInterval(interval time.Duration) CachingProviderOption {
	return func(c *cachingProviderConfig) error {
		if interval < 0 {
			return fmt.Errorf("minimum refresh interval cannot be negative")
		}
		c.minRefreshInterval = interval
		return nil
	}
}

// WithCache replaces the in-memory cache.
func WithCache(cache Cache) CachingProviderOption {
	return func(c *cachingProviderConfig) error {
		if cache == nil {
			return fmt.Errorf("cache cannot be nil")
		}
		c.cache = cache
		return nil
	}
}

// WithLogger sets the logger of the provider and its cache.
func WithLogger(logger core.Logger) CachingProviderOption {
	return func(c *cachingProviderConfig) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

func newIssuerDiscoverer(issuerURL *url.URL, client *http.Client, logger core.Logger) (*oidc.Discoverer, error) {
	return oidc.NewDiscoverer(issuerURL, oidc.WithHTTPClient(client), oidc.WithLogger(logger))
}
