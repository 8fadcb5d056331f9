package validator

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/pkjwt/pkjwt/core"
)

// DefaultAudience is the audience Keycloak puts in client_credentials
// access tokens.
const DefaultAudience = "account"

// Option is how options for the Validator are set up.
// Options return errors to enable validation during construction.
type Option func(*Validator) error

// WithKeySource sets where provider keys come from. This is a required
// option; *jwks.CachingProvider satisfies KeySource.
func WithKeySource(keys KeySource) Option {
	return func(v *Validator) error {
		if keys == nil {
			return errors.New("key source cannot be nil")
		}
		v.keys = keys
		return nil
	}
}

// WithIssuer sets the expected iss claim. This is a required option.
func WithIssuer(issuerURL string) Option {
	return func(v *Validator) error {
		if issuerURL == "" {
			return errors.New("issuer cannot be empty")
		}
		if _, err := url.Parse(issuerURL); err != nil {
			return fmt.Errorf("invalid issuer URL: %w", err)
		}
		v.issuer = issuerURL
		return nil
	}
}

// WithIssuerResolver takes the expected iss claim from the provider's
// discovery document instead of a fixed string. It wins over WithIssuer.
func WithIssuerResolver(resolver IssuerResolver) Option {
	return func(v *Validator) error {
		if resolver == nil {
			return errors.New("issuer resolver cannot be nil")
		}
		v.issuerResolver = resolver
		return nil
	}
}

// WithAudience sets the audience the aud claim must contain.
// Defaults to DefaultAudience.
func WithAudience(audience string) Option {
	return func(v *Validator) error {
		if audience == "" {
			return errors.New("audience cannot be empty")
		}
		v.audiences = []string{audience}
		return nil
	}
}

// WithAudiences accepts a token whose aud contains any of audiences.
func WithAudiences(audiences []string) Option {
	return func(v *Validator) error {
		if len(audiences) == 0 {
			return errors.New("audiences cannot be empty")
		}
		for i, aud := range audiences {
			if aud == "" {
				return fmt.Errorf("audience at index %d cannot be empty", i)
			}
		}
		v.audiences = audiences
		return nil
	}
}

// WithAllowedClockSkew sets the tolerance applied to exp and nbf.
// Defaults to 0.
func WithAllowedClockSkew(skew time.Duration) Option {
	return func(v *Validator) error {
		if skew < 0 {
			return errors.New("clock skew cannot be negative")
		}
		v.allowedClockSkew = skew
		return nil
	}
}

// WithClock sets the time source for exp and nbf checks.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		v.now = now
		return nil
	}
}

// WithCustomClaims sets a constructor for claims decoded from the payload
// and validated after the registered claims.
func WithCustomClaims(f func() CustomClaims) Option {
	return func(v *Validator) error {
		if f == nil {
			return errors.New("custom claims function cannot be nil")
		}
		v.customClaims = f
		return nil
	}
}

// WithLogger sets the logger of the Validator.
func WithLogger(logger core.Logger) Option {
	return func(v *Validator) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		v.logger = logger
		return nil
	}
}
