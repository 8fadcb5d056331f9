// Package assertion signs the short-lived JWTs a client presents to the token
// endpoint in place of a client secret (private_key_jwt).
package assertion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jws"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/pkjwt/pkjwt/core"
	"github.com/pkjwt/pkjwt/keystore"
)

// DefaultLifetime is the validity window of an assertion.
const DefaultLifetime = 300 * time.Second

// Issuer signs client assertions with the key currently held by a store.
type Issuer struct {
	store    keystore.Store
	lifetime time.Duration
	now      func() time.Time
	logger   core.Logger
	metrics  core.Metrics
	tracer   core.Tracer
}

// Option configures an Issuer.
type Option func(*Issuer) error

// WithClock sets the time source used for iat and exp.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		i.now = now
		return nil
	}
}

// WithLifetime sets exp - iat. Defaults to DefaultLifetime.
func WithLifetime(lifetime time.Duration) Option {
	return func(i *Issuer) error {
		if lifetime < time.Second {
			return fmt.Errorf("lifetime must be at least one second, got %s", lifetime)
		}
		i.lifetime = lifetime
		return nil
	}
}

// WithLogger sets the logger of the Issuer.
func WithLogger(logger core.Logger) Option {
	return func(i *Issuer) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		i.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics sink of the Issuer.
func WithMetrics(metrics core.Metrics) Option {
	return func(i *Issuer) error {
		if metrics == nil {
			return errors.New("metrics cannot be nil")
		}
		i.metrics = metrics
		return nil
	}
}

// WithTracer sets the tracer of the Issuer.
func WithTracer(tracer core.Tracer) Option {
	return func(i *Issuer) error {
		if tracer == nil {
			return errors.New("tracer cannot be nil")
		}
		i.tracer = tracer
		return nil
	}
}

// New returns an Issuer signing with keys from store.
func New(store keystore.Store, opts ...Option) (*Issuer, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}

	i := &Issuer{
		store:    store,
		lifetime: DefaultLifetime,
		now:      time.Now,
		logger:   core.NoopLogger{},
		metrics:  core.NoopMetrics{},
		tracer:   core.NoopTracer{},
	}
	for _, opt := range opts {
		if err := opt(i); err != nil {
			return nil, fmt.Errorf("invalid issuer option: %w", err)
		}
	}
	return i, nil
}

// Issue returns a compact RS256 JWS with iss = sub = clientID,
// aud = [tokenEndpointURL], a fresh jti and exp = iat + lifetime. The header
// carries the kid of the signing key.
func (i *Issuer) Issue(ctx context.Context, clientID, tokenEndpointURL string) (string, error) {
	ctx, span := i.tracer.Start(ctx, "assertion.Issue")
	defer span.End()

	signed, kid, err := i.issue(ctx, clientID, tokenEndpointURL)
	if err != nil {
		span.RecordError(err)
		i.logger.Error("Failed to issue client assertion", "client_id", clientID, "error", err)
		i.metrics.IncCounter("assertions_issued_total", map[string]string{"result": "error"})
		return "", err
	}

	span.SetTag("kid", kid)
	i.logger.Debug("Issued client assertion", "client_id", clientID, "kid", kid)
	i.metrics.IncCounter("assertions_issued_total", map[string]string{"result": "ok"})
	return signed, nil
}

func (i *Issuer) issue(ctx context.Context, clientID, tokenEndpointURL string) (string, string, error) {
	if clientID == "" {
		return "", "", errors.New("client id is required")
	}
	if tokenEndpointURL == "" {
		return "", "", errors.New("token endpoint URL is required")
	}

	km, err := i.store.Load(ctx)
	if err != nil {
		return "", "", keystore.Unavailable(err)
	}

	iat := i.now().Truncate(time.Second)
	token, err := jwt.NewBuilder().
		Issuer(clientID).
		Subject(clientID).
		Audience([]string{tokenEndpointURL}).
		IssuedAt(iat).
		Expiration(iat.Add(i.lifetime)).
		JwtID(uuid.NewString()).
		Build()
	if err != nil {
		return "", "", fmt.Errorf("failed to build assertion claims: %w", err)
	}

	headers := jws.NewHeaders()
	if err := headers.Set(jws.KeyIDKey, km.KeyID); err != nil {
		return "", "", fmt.Errorf("failed to set kid header: %w", err)
	}
	if err := headers.Set(jws.TypeKey, "JWT"); err != nil {
		return "", "", fmt.Errorf("failed to set typ header: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256(), km.PrivateKey, jws.WithProtectedHeaders(headers)))
	if err != nil {
		return "", "", fmt.Errorf("failed to sign assertion: %w", err)
	}

	return string(signed), km.KeyID, nil
}
