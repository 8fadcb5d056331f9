package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/pkjwt/pkjwt/core"
)

// Metadata holds the discovery document fields pkjwt consumes.
type Metadata struct {
	Issuer        string `json:"issuer"`
	JWKSURI       string `json:"jwks_uri"`
	TokenEndpoint string `json:"token_endpoint"`
}

// ErrIssuerMismatch is returned when the discovery document names a
// different issuer than the one it was fetched for.
var ErrIssuerMismatch = errors.New("discovery issuer mismatch")

// FetchMetadata fetches <issuerURL>/.well-known/openid-configuration and
// checks that the document's issuer equals expectedIssuer. A trailing slash
// difference is tolerated.
func FetchMetadata(ctx context.Context, client *http.Client, issuerURL url.URL, expectedIssuer string) (*Metadata, error) {
	issuerURL.Path = path.Join(issuerURL.Path, ".well-known/openid-configuration")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuerURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("could not build request to get well known endpoints: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not get well known endpoints from url %s: %w", issuerURL.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("well known endpoints request to %s returned status %d", issuerURL.String(), resp.StatusCode)
	}

	var md Metadata
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&md); err != nil {
		return nil, fmt.Errorf("could not decode json body when getting well known endpoints: %w", err)
	}

	if md.JWKSURI == "" {
		return nil, errors.New("discovery document has no jwks_uri")
	}
	if trimSlash(md.Issuer) != trimSlash(expectedIssuer) {
		return nil, fmt.Errorf("%w: expected %q, got %q", ErrIssuerMismatch, expectedIssuer, md.Issuer)
	}

	return &md, nil
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// Discoverer fetches provider metadata lazily and keeps it for a TTL.
// Concurrent misses share a single request.
type Discoverer struct {
	issuerURL *url.URL
	client    *http.Client
	ttl       time.Duration
	logger    core.Logger

	cache *gocache.Cache
	group singleflight.Group
}

// Option configures a Discoverer.
type Option func(*Discoverer) error

// WithHTTPClient sets the client used for discovery requests.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Discoverer) error {
		if client == nil {
			return errors.New("http client cannot be nil")
		}
		d.client = client
		return nil
	}
}

// WithTTL sets how long fetched metadata is reused. Defaults to one hour.
func WithTTL(ttl time.Duration) Option {
	return func(d *Discoverer) error {
		if ttl <= 0 {
			return errors.New("ttl must be positive")
		}
		d.ttl = ttl
		return nil
	}
}

// WithLogger sets the logger of the Discoverer.
func WithLogger(logger core.Logger) Option {
	return func(d *Discoverer) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		d.logger = logger
		return nil
	}
}

// NewDiscoverer returns a Discoverer for issuerURL.
func NewDiscoverer(issuerURL *url.URL, opts ...Option) (*Discoverer, error) {
	if issuerURL == nil {
		return nil, errors.New("issuer URL is required")
	}

	d := &Discoverer{
		issuerURL: issuerURL,
		client:    &http.Client{Timeout: 30 * time.Second},
		ttl:       time.Hour,
		logger:    core.NoopLogger{},
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, fmt.Errorf("invalid discoverer option: %w", err)
		}
	}

	d.cache = gocache.New(d.ttl, d.ttl)
	return d, nil
}

// Issuer returns the configured issuer URL.
func (d *Discoverer) Issuer() string {
	return d.issuerURL.String()
}

// Metadata returns the cached metadata, fetching it when absent or expired.
func (d *Discoverer) Metadata(ctx context.Context) (*Metadata, error) {
	key := d.issuerURL.String()
	if cached, ok := d.cache.Get(key); ok {
		return cached.(*Metadata), nil
	}

	v, err, _ := d.group.Do(key, func() (any, error) {
		if cached, ok := d.cache.Get(key); ok {
			return cached, nil
		}

		md, err := FetchMetadata(ctx, d.client, *d.issuerURL, key)
		if err != nil {
			return nil, err
		}

		d.logger.Debug("Fetched provider metadata",
			"issuer", md.Issuer,
			"jwks_uri", md.JWKSURI,
			"token_endpoint", md.TokenEndpoint)
		d.cache.Set(key, md, gocache.DefaultExpiration)
		return md, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover provider metadata: %w", err)
	}

	return v.(*Metadata), nil
}

// ProviderIssuer returns the issuer named by the discovery document. It can
// differ from Issuer by a trailing slash.
func (d *Discoverer) ProviderIssuer(ctx context.Context) (string, error) {
	md, err := d.Metadata(ctx)
	if err != nil {
		return "", err
	}
	return md.Issuer, nil
}

// JWKSURI returns the provider's jwks_uri.
func (d *Discoverer) JWKSURI(ctx context.Context) (string, error) {
	md, err := d.Metadata(ctx)
	if err != nil {
		return "", err
	}
	return md.JWKSURI, nil
}

// TokenEndpoint returns the provider's token_endpoint.
func (d *Discoverer) TokenEndpoint(ctx context.Context) (string, error) {
	md, err := d.Metadata(ctx)
	if err != nil {
		return "", err
	}
	if md.TokenEndpoint == "" {
		return "", errors.New("discovery document has no token_endpoint")
	}
	return md.TokenEndpoint, nil
}

// Invalidate drops the cached metadata so the next call refetches it.
func (d *Discoverer) Invalidate() {
	d.cache.Delete(d.issuerURL.String())
}
