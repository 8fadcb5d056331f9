package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// AssertionIssuer signs a client assertion. *assertion.Issuer satisfies it.
type AssertionIssuer interface {
	Issue(ctx context.Context, clientID, tokenEndpointURL string) (string, error)
}

// TokenEndpointResolver discovers the token endpoint. *oidc.Discoverer
// satisfies it.
type TokenEndpointResolver interface {
	TokenEndpoint(ctx context.Context) (string, error)
}

// FlowConfig names the client and the endpoints a Flow talks to.
type FlowConfig struct {
	ClientID string
	// TokenEndpoint is used as is when set, otherwise it is resolved
	// through the Flow's TokenEndpointResolver.
	TokenEndpoint string
	ResourceURL   string
}

// Flow runs the whole client side: issue an assertion, exchange it for an
// access token and call the protected resource with that token.
type Flow struct {
	config    FlowConfig
	issuer    AssertionIssuer
	exchanger *Exchanger
	resource  *ResourceClient
	resolver  TokenEndpointResolver
}

// NewFlow returns a Flow. resolver may be nil when config.TokenEndpoint is set.
func NewFlow(config FlowConfig, issuer AssertionIssuer, exchanger *Exchanger, resource *ResourceClient, resolver TokenEndpointResolver) (*Flow, error) {
	switch {
	case config.ClientID == "":
		return nil, errors.New("client id is required")
	case config.ResourceURL == "":
		return nil, errors.New("protected resource URL is required")
	case config.TokenEndpoint == "" && resolver == nil:
		return nil, errors.New("token endpoint or a resolver is required")
	case issuer == nil || exchanger == nil || resource == nil:
		return nil, errors.New("issuer, exchanger and resource client are required")
	}

	return &Flow{
		config:    config,
		issuer:    issuer,
		exchanger: exchanger,
		resource:  resource,
		resolver:  resolver,
	}, nil
}

// Run returns the protected resource's JSON answer.
func (f *Flow) Run(ctx context.Context) (json.RawMessage, error) {
	tokenEndpoint := f.config.TokenEndpoint
	if tokenEndpoint == "" {
		var err error
		tokenEndpoint, err = f.resolver.TokenEndpoint(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve token endpoint: %w", err)
		}
	}

	assertion, err := f.issuer.Issue(ctx, f.config.ClientID, tokenEndpoint)
	if err != nil {
		return nil, fmt.Errorf("issue client assertion: %w", err)
	}

	token, err := f.exchanger.Exchange(ctx, assertion, tokenEndpoint)
	if err != nil {
		return nil, fmt.Errorf("exchange client assertion: %w", err)
	}

	body, err := f.resource.Get(ctx, f.config.ResourceURL, token)
	if err != nil {
		return nil, fmt.Errorf("call protected resource: %w", err)
	}
	return body, nil
}
