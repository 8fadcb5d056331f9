package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pkjwt/pkjwt"
	"github.com/pkjwt/pkjwt/assertion"
	"github.com/pkjwt/pkjwt/core"
	"github.com/pkjwt/pkjwt/exchange"
	jwtgin "github.com/pkjwt/pkjwt/framework/gin"
	"github.com/pkjwt/pkjwt/internal/config"
	"github.com/pkjwt/pkjwt/internal/oidc"
	"github.com/pkjwt/pkjwt/internal/server"
	"github.com/pkjwt/pkjwt/jwks"
	"github.com/pkjwt/pkjwt/keystore"
	"github.com/pkjwt/pkjwt/validator"
)

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	logger  pkjwt.Logger
	metrics core.Metrics
	prom    *pkjwt.PrometheusMetrics
	tracer  core.Tracer
	store   keystore.Store
	client  *http.Client

	shutdownTracing func(context.Context) error
}

func newApp(cfg *config.Config, logOutput io.Writer) (*app, error) {
	logger, err := pkjwt.NewLogger(cfg.Logging.Backend, cfg.Logging.GetLevel(), cfg.Logging.Format, logOutput)
	if err != nil {
		return nil, err
	}

	tp, shutdownTracing, err := newTracerProvider(cfg.Tracing, logOutput)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:             cfg,
		logger:          logger,
		metrics:         core.NoopMetrics{},
		tracer:          pkjwt.NewOpenTelemetryTracer(tp.Tracer(instrumentationName)),
		client:          &http.Client{Timeout: cfg.Provider.GetHTTPTimeout()},
		shutdownTracing: shutdownTracing,
	}
	if cfg.Metrics.IsEnabled() {
		a.prom = pkjwt.NewPrometheusMetrics(cfg.Metrics.GetNamespace())
		a.metrics = a.prom
	}

	switch cfg.Keys.GetStorage() {
	case config.StorageMemory:
		logger.Warn("Using in-memory key storage, keys are lost on restart")
		a.store = keystore.NewMemoryStore()
	default:
		store, err := keystore.NewFileStore(cfg.Keys.GetCertsDir(),
			keystore.WithEnvFile(cfg.Keys.GetEnvFile()),
			keystore.WithStoreLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		a.store = store
	}

	return a, nil
}

// close flushes buffered telemetry.
func (a *app) close(ctx context.Context) error {
	return a.shutdownTracing(ctx)
}

func (a *app) rotator() (*keystore.Rotator, error) {
	return keystore.NewRotator(a.store,
		keystore.WithKeyBits(a.cfg.Keys.GetBits()),
		keystore.WithRotatorLogger(a.logger),
		keystore.WithRotatorMetrics(a.metrics),
		keystore.WithRotatorTracer(a.tracer),
	)
}

func (a *app) publisher() (*jwks.Publisher, error) {
	return jwks.NewPublisher(a.store, jwks.WithPublisherLogger(a.logger))
}

func (a *app) discoverer() (*oidc.Discoverer, error) {
	issuerURL, err := url.Parse(a.cfg.Provider.Issuer)
	if err != nil {
		return nil, fmt.Errorf("invalid provider.issuer: %w", err)
	}
	return oidc.NewDiscoverer(issuerURL,
		oidc.WithHTTPClient(a.client),
		oidc.WithTTL(a.cfg.Provider.GetDiscoveryTTL()),
		oidc.WithLogger(a.logger),
	)
}

func (a *app) validator(d *oidc.Discoverer) (*validator.Validator, error) {
	providerOpts := []jwks.CachingProviderOption{
		jwks.WithCustomClient(a.client),
		jwks.WithCacheTTL(a.cfg.Provider.GetJWKSCacheTTL()),
		jwks.WithLogger(a.logger),
	}
	validatorOpts := []validator.Option{
		validator.WithIssuer(a.cfg.Provider.Issuer),
		validator.WithAudience(a.cfg.Provider.GetAudience()),
		validator.WithAllowedClockSkew(a.cfg.Provider.ClockSkew),
		validator.WithLogger(a.logger),
	}

	if a.cfg.Provider.JWKSURI != "" {
		jwksURI, err := url.Parse(a.cfg.Provider.JWKSURI)
		if err != nil {
			return nil, fmt.Errorf("invalid provider.jwks_uri: %w", err)
		}
		providerOpts = append(providerOpts, jwks.WithCustomJWKSURI(jwksURI))
	} else {
		// Tokens carry the issuer exactly as discovery announces it.
		providerOpts = append(providerOpts, jwks.WithDiscoverer(d))
		validatorOpts = append(validatorOpts, validator.WithIssuerResolver(d))
	}

	provider, err := jwks.NewCachingProvider(providerOpts...)
	if err != nil {
		return nil, err
	}

	return validator.New(append(validatorOpts, validator.WithKeySource(provider))...)
}

func (a *app) flow(d *oidc.Discoverer) (*exchange.Flow, error) {
	issuer, err := assertion.New(a.store,
		assertion.WithLifetime(a.cfg.Client.GetAssertionLifetime()),
		assertion.WithLogger(a.logger),
		assertion.WithMetrics(a.metrics),
		assertion.WithTracer(a.tracer),
	)
	if err != nil {
		return nil, err
	}

	exchanger, err := exchange.NewExchanger(
		exchange.WithHTTPClient(a.client),
		exchange.WithScopes(a.cfg.Client.Scopes...),
		exchange.WithLogger(a.logger),
		exchange.WithMetrics(a.metrics),
		exchange.WithTracer(a.tracer),
	)
	if err != nil {
		return nil, err
	}

	resource, err := exchange.NewResourceClient(
		exchange.WithResourceHTTPClient(a.client),
		exchange.WithResourceLogger(a.logger),
		exchange.WithResourceTracer(a.tracer),
	)
	if err != nil {
		return nil, err
	}

	return exchange.NewFlow(exchange.FlowConfig{
		ClientID:      a.cfg.Client.ID,
		TokenEndpoint: a.cfg.Provider.TokenEndpoint,
		ResourceURL:   a.cfg.Resource.GetURL(),
	}, issuer, exchanger, resource, d)
}

func (a *app) server() (*server.Server, error) {
	d, err := a.discoverer()
	if err != nil {
		return nil, err
	}

	rotator, err := a.rotator()
	if err != nil {
		return nil, err
	}
	publisher, err := a.publisher()
	if err != nil {
		return nil, err
	}
	flow, err := a.flow(d)
	if err != nil {
		return nil, err
	}
	v, err := a.validator(d)
	if err != nil {
		return nil, err
	}
	auth, err := jwtgin.New(v, jwtgin.WithMiddlewareOptions(
		pkjwt.WithLogger(a.logger),
		pkjwt.WithMetrics(a.metrics),
		pkjwt.WithTracer(a.tracer),
	))
	if err != nil {
		return nil, err
	}

	opts := []server.Option{
		server.WithRotator(rotator),
		server.WithPublisher(publisher),
		server.WithClientFlow(flow),
		server.WithAuth(auth),
		server.WithLogger(a.logger),
	}
	if a.prom != nil {
		opts = append(opts, server.WithMetricsHandler(a.prom.Handler()))
	}

	return server.New(a.cfg.Server, opts...)
}
