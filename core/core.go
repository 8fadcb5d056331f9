// Package core provides the transport-agnostic pieces shared by every pkjwt
// component: the bearer-token check used by the HTTP adapters, the structured
// validation error, and the logging, metrics and tracing interfaces.
package core

import (
	"context"
	"time"
)

// Validator validates a raw bearer token and returns its claims.
type Validator interface {
	ValidateToken(ctx context.Context, token string) (any, error)
}

// Logger defines the logging interface used across pkjwt. It is compatible
// with log/slog.Logger and with the adapters in the root package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Metrics records counters and durations. NoopMetrics and the Prometheus
// implementation in the root package both satisfy it.
type Metrics interface {
	IncCounter(name string, tags map[string]string)
	ObserveHistogram(name string, value float64, tags map[string]string)
}

// Tracer starts spans around token lifecycle operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, Span)
}

// Span is a started unit of work.
type Span interface {
	SetTag(key string, value any)
	RecordError(err error)
	End()
}

// Core checks bearer tokens independently of the transport carrying them.
type Core struct {
	validator           Validator
	credentialsOptional bool
	logger              Logger
	metrics             Metrics
	tracer              Tracer
}

// CheckToken validates a JWT token string and returns the validated claims.
//
//   - If token is empty and credentialsOptional is true, returns (nil, nil)
//   - If token is empty and credentialsOptional is false, returns ErrJWTMissing
//   - Otherwise, validates the token using the configured validator
func (c *Core) CheckToken(ctx context.Context, token string) (any, error) {
	if token == "" {
		if c.credentialsOptional {
			c.logger.Debug("No token provided, but credentials are optional")
			return nil, nil
		}

		c.logger.Warn("No token provided and credentials are required")
		c.metrics.IncCounter("token_validations_total", map[string]string{"result": ErrorCodeTokenMissing})
		return nil, ErrJWTMissing
	}

	ctx, span := c.tracer.Start(ctx, "core.CheckToken")
	defer span.End()

	start := time.Now()
	claims, err := c.validator.ValidateToken(ctx, token)
	duration := time.Since(start)
	c.metrics.ObserveHistogram("token_validation_seconds", duration.Seconds(), nil)

	if err != nil {
		span.RecordError(err)
		c.logger.Error("Token validation failed", "error", err, "duration", duration)
		c.metrics.IncCounter("token_validations_total", map[string]string{"result": ErrorCode(err)})
		return nil, err
	}

	c.logger.Debug("Token validated successfully", "duration", duration)
	c.metrics.IncCounter("token_validations_total", map[string]string{"result": "ok"})

	return claims, nil
}
