package jwks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/pkjwt/pkjwt/core"
	"github.com/pkjwt/pkjwt/keystore"
)

// Publisher exposes the public half of the current signing key as a JWKS,
// so the identity provider can verify our client assertions.
type Publisher struct {
	store  keystore.Store
	logger core.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher) error

// WithPublisherLogger sets the logger of the Publisher.
func WithPublisherLogger(logger core.Logger) PublisherOption {
	return func(p *Publisher) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}

// NewPublisher returns a Publisher reading keys from store.
func NewPublisher(store keystore.Store, opts ...PublisherOption) (*Publisher, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}

	p := &Publisher{store: store, logger: core.NoopLogger{}}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, fmt.Errorf("invalid publisher option: %w", err)
		}
	}
	return p, nil
}

// Publish returns a set holding exactly the current public key with its
// kid, use=sig and alg=RS256. If no key has been generated the error
// matches both keystore.ErrKeyUnavailable and keystore.ErrNotFound.
func (p *Publisher) Publish(ctx context.Context) (jwk.Set, error) {
	km, err := p.store.Load(ctx)
	if err != nil {
		return nil, keystore.Unavailable(err)
	}

	key, err := jwk.Import(km.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWK: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, km.KeyID); err != nil {
		return nil, fmt.Errorf("failed to set key ID: %w", err)
	}
	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, fmt.Errorf("failed to set key usage: %w", err)
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256()); err != nil {
		return nil, fmt.Errorf("failed to set key algorithm: %w", err)
	}

	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, fmt.Errorf("failed to add key to set: %w", err)
	}

	p.logger.Debug("Published JWKS", "kid", km.KeyID)
	return set, nil
}

// PublishJSON returns Publish serialized as a JWKS document.
func (p *Publisher) PublishJSON(ctx context.Context) ([]byte, error) {
	set, err := p.Publish(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JWKS: %w", err)
	}
	return data, nil
}
