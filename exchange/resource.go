package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/pkjwt/pkjwt/core"
)

// ResourceClient calls a protected resource with a bearer token.
type ResourceClient struct {
	client *http.Client
	logger core.Logger
	tracer core.Tracer
}

// ResourceOption configures a ResourceClient.
type ResourceOption func(*ResourceClient) error

// WithResourceHTTPClient sets the base client. Defaults to a client with a
// 30s timeout.
func WithResourceHTTPClient(client *http.Client) ResourceOption {
	return func(r *ResourceClient) error {
		if client == nil {
			return errors.New("http client cannot be nil")
		}
		r.client = client
		return nil
	}
}

// WithResourceLogger sets the logger of the ResourceClient.
func WithResourceLogger(logger core.Logger) ResourceOption {
	return func(r *ResourceClient) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		r.logger = logger
		return nil
	}
}

// WithResourceTracer sets the tracer of the ResourceClient.
func WithResourceTracer(tracer core.Tracer) ResourceOption {
	return func(r *ResourceClient) error {
		if tracer == nil {
			return errors.New("tracer cannot be nil")
		}
		r.tracer = tracer
		return nil
	}
}

// NewResourceClient returns a ResourceClient.
func NewResourceClient(opts ...ResourceOption) (*ResourceClient, error) {
	r := &ResourceClient{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: core.NoopLogger{},
		tracer: core.NoopTracer{},
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("invalid resource client option: %w", err)
		}
	}
	return r, nil
}

// Get sends GET resourceURL with "Authorization: Bearer <token>" and returns
// the JSON body. A non-2xx status is a *ProtectedResourceError.
func (r *ResourceClient) Get(ctx context.Context, resourceURL string, token *oauth2.Token) (json.RawMessage, error) {
	ctx, span := r.tracer.Start(ctx, "exchange.ResourceGet")
	defer span.End()

	body, err := r.get(ctx, resourceURL, token)
	if err != nil {
		span.RecordError(err)
		r.logger.Error("Protected resource call failed", "url", resourceURL, "error", err)
		return nil, err
	}
	return body, nil
}

func (r *ResourceClient) get(ctx context.Context, resourceURL string, token *oauth2.Token) (json.RawMessage, error) {
	if token == nil || token.AccessToken == "" {
		return nil, errors.New("access token is required")
	}

	// The token is forwarded as a bearer credential whatever token_type the
	// endpoint reported.
	bearer := &oauth2.Token{AccessToken: token.AccessToken, TokenType: "Bearer"}
	client := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, r.client), oauth2.StaticTokenSource(bearer))
	client.Timeout = r.client.Timeout

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", resourceURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", resourceURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProtectedResourceError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("response from %s is not valid JSON", resourceURL)
	}

	r.logger.Debug("Called protected resource", "url", resourceURL, "status", resp.StatusCode)
	return json.RawMessage(body), nil
}
