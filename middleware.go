package pkjwt

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkjwt/pkjwt/core"
)

// JWTMiddleware guards net/http handlers with bearer token validation.
type JWTMiddleware struct {
	core                *core.Core
	errorHandler        ErrorHandler
	tokenExtractor      TokenExtractor
	validateOnOptions   bool
	exclusionURLHandler ExclusionURLHandler
	logger              Logger

	// Used during construction only.
	validator           core.Validator
	credentialsOptional bool
	metrics             core.Metrics
	tracer              core.Tracer
}

// Logger is the structured logger accepted by every pkjwt component. It is
// compatible with log/slog.Logger and with the adapters in logger.go.
type Logger = core.Logger

// ExclusionURLHandler reports whether r skips JWT validation.
type ExclusionURLHandler func(r *http.Request) bool

// New constructs a JWTMiddleware. WithValidator is required.
//
//	middleware, err := pkjwt.New(
//	    pkjwt.WithValidator(v),
//	    pkjwt.WithLogger(pkjwt.NewLogrusLogger(logrus.StandardLogger())),
//	)
//	if err != nil {
//	    log.Fatalf("failed to create middleware: %v", err)
//	}
func New(opts ...Option) (*JWTMiddleware, error) {
	m := &JWTMiddleware{
		validateOnOptions: true,
		logger:            core.NoopLogger{},
		metrics:           core.NoopMetrics{},
		tracer:            core.NoopTracer{},
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	if m.validator == nil {
		return nil, fmt.Errorf("invalid middleware configuration: %w", ErrValidatorNil)
	}

	if m.errorHandler == nil {
		m.errorHandler = DefaultErrorHandler
	}
	if m.tokenExtractor == nil {
		m.tokenExtractor = AuthHeaderTokenExtractor
	}

	c, err := core.New(
		core.WithValidator(m.validator),
		core.WithCredentialsOptional(m.credentialsOptional),
		core.WithLogger(m.logger),
		core.WithMetrics(m.metrics),
		core.WithTracer(m.tracer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create core: %w", err)
	}
	m.core = c

	return m, nil
}

// GetClaims retrieves claims stored by CheckJWT.
//
//	claims, err := pkjwt.GetClaims[*validator.ValidatedClaims](r.Context())
func GetClaims[T any](ctx context.Context) (T, error) {
	return core.GetClaims[T](ctx)
}

// MustGetClaims is GetClaims that panics. Use it only behind CheckJWT.
func MustGetClaims[T any](ctx context.Context) T {
	claims, err := core.GetClaims[T](ctx)
	if err != nil {
		panic(err)
	}
	return claims
}

// HasClaims reports whether CheckJWT stored claims in ctx.
func HasClaims(ctx context.Context) bool {
	return core.HasClaims(ctx)
}

// CheckJWT calls next only when the request carries a valid token, storing
// its claims and raw token in the request context.
func (m *JWTMiddleware) CheckJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.exclusionURLHandler != nil && m.exclusionURLHandler(r) {
			m.logger.Debug("skipping JWT validation for excluded URL",
				"method", r.Method,
				"path", r.URL.Path)
			next.ServeHTTP(w, r)
			return
		}
		if !m.validateOnOptions && r.Method == http.MethodOptions {
			m.logger.Debug("skipping JWT validation for OPTIONS request")
			next.ServeHTTP(w, r)
			return
		}

		token, err := m.tokenExtractor(r)
		if err != nil {
			// An extractor error means a credential was sent but is unusable,
			// which is distinct from no credential at all.
			m.logger.Warn("failed to extract token from request",
				"error", err,
				"method", r.Method,
				"path", r.URL.Path)
			m.errorHandler(w, r, fmt.Errorf("error extracting token: %w", err))
			return
		}

		claims, err := m.core.CheckToken(r.Context(), token)
		if err != nil {
			m.logger.Warn("JWT validation failed",
				"error", err,
				"code", core.ErrorCode(err),
				"method", r.Method,
				"path", r.URL.Path)
			m.errorHandler(w, r, err)
			return
		}

		if claims == nil {
			m.logger.Debug("no credentials provided, continuing without claims")
			next.ServeHTTP(w, r)
			return
		}

		ctx := core.SetClaims(r.Context(), claims)
		ctx = core.SetToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
