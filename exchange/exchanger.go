// Package exchange trades a client assertion for an access token and uses
// that token against a protected resource.
package exchange

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/pkjwt/pkjwt/core"
)

// ClientAssertionType is the client_assertion_type of a JWT bearer assertion.
const ClientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// Exchanger performs the client_credentials grant authenticated by a signed
// client assertion.
type Exchanger struct {
	client  *http.Client
	scopes  []string
	logger  core.Logger
	metrics core.Metrics
	tracer  core.Tracer
}

// Option configures an Exchanger.
type Option func(*Exchanger) error

// WithHTTPClient sets the client used for token requests. Defaults to a
// client with a 30s timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Exchanger) error {
		if client == nil {
			return errors.New("http client cannot be nil")
		}
		e.client = client
		return nil
	}
}

// WithScopes adds a scope parameter to token requests.
func WithScopes(scopes ...string) Option {
	return func(e *Exchanger) error {
		e.scopes = append(e.scopes, scopes...)
		return nil
	}
}

// WithLogger sets the logger of the Exchanger.
func WithLogger(logger core.Logger) Option {
	return func(e *Exchanger) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		e.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics sink of the Exchanger.
func WithMetrics(metrics core.Metrics) Option {
	return func(e *Exchanger) error {
		if metrics == nil {
			return errors.New("metrics cannot be nil")
		}
		e.metrics = metrics
		return nil
	}
}

// WithTracer sets the tracer of the Exchanger.
func WithTracer(tracer core.Tracer) Option {
	return func(e *Exchanger) error {
		if tracer == nil {
			return errors.New("tracer cannot be nil")
		}
		e.tracer = tracer
		return nil
	}
}

// NewExchanger returns an Exchanger.
func NewExchanger(opts ...Option) (*Exchanger, error) {
	e := &Exchanger{
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  core.NoopLogger{},
		metrics: core.NoopMetrics{},
		tracer:  core.NoopTracer{},
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("invalid exchanger option: %w", err)
		}
	}
	return e, nil
}

// Exchange posts the assertion to tokenEndpointURL and returns the issued
// token. Every rejection, including a 2xx answer without an access_token,
// is a *TokenEndpointError. Nothing is retried.
func (e *Exchanger) Exchange(ctx context.Context, assertion, tokenEndpointURL string) (*oauth2.Token, error) {
	ctx, span := e.tracer.Start(ctx, "exchange.Exchange")
	defer span.End()

	start := time.Now()
	token, err := e.exchange(ctx, assertion, tokenEndpointURL)
	e.metrics.ObserveHistogram("token_exchange_seconds", time.Since(start).Seconds(), nil)
	if err != nil {
		span.RecordError(err)
		e.logger.Error("Token exchange failed", "token_endpoint", tokenEndpointURL, "error", err)
		e.metrics.IncCounter("token_exchanges_total", map[string]string{"result": "error"})
		return nil, err
	}

	e.logger.Debug("Exchanged client assertion for access token",
		"token_endpoint", tokenEndpointURL,
		"token_type", token.Type(),
		"expiry", token.Expiry)
	e.metrics.IncCounter("token_exchanges_total", map[string]string{"result": "ok"})
	return token, nil
}

func (e *Exchanger) exchange(ctx context.Context, assertion, tokenEndpointURL string) (*oauth2.Token, error) {
	if assertion == "" {
		return nil, errors.New("client assertion is required")
	}
	if tokenEndpointURL == "" {
		return nil, errors.New("token endpoint URL is required")
	}

	config := clientcredentials.Config{
		TokenURL: tokenEndpointURL,
		Scopes:   e.scopes,
		EndpointParams: url.Values{
			"client_assertion_type": {ClientAssertionType},
			"client_assertion":      {assertion},
		},
		AuthStyle: oauth2.AuthStyleInParams,
	}

	recorder := &responseRecorder{base: e.client.Transport}
	client := &http.Client{
		Transport:     recorder,
		Timeout:       e.client.Timeout,
		CheckRedirect: e.client.CheckRedirect,
		Jar:           e.client.Jar,
	}

	token, err := config.Token(context.WithValue(ctx, oauth2.HTTPClient, client))
	if err == nil {
		return token, nil
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		tokenErr := &TokenEndpointError{
			Body:        string(retrieveErr.Body),
			ErrorCode:   retrieveErr.ErrorCode,
			Description: retrieveErr.ErrorDescription,
		}
		if retrieveErr.Response != nil {
			tokenErr.StatusCode = retrieveErr.Response.StatusCode
		}
		return nil, tokenErr
	}

	// The endpoint answered 2xx but the body held no usable token.
	if status, body, ok := recorder.last(); ok && status >= 200 && status < 300 {
		return nil, &TokenEndpointError{
			StatusCode:  status,
			Body:        body,
			Description: err.Error(),
		}
	}

	return nil, fmt.Errorf("token request to %s failed: %w", tokenEndpointURL, err)
}

// responseRecorder keeps the status and body of the last response so that
// failures x/oauth2 reports without a RetrieveError can still be described.
type responseRecorder struct {
	base http.RoundTripper

	mu     sync.Mutex
	status int
	body   []byte
	seen   bool
}

func (r *responseRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	base := r.base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	r.mu.Lock()
	r.status, r.body, r.seen = resp.StatusCode, body, true
	r.mu.Unlock()

	return resp, nil
}

func (r *responseRecorder) last() (int, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, string(r.body), r.seen
}
