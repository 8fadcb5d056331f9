package jwtgin

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/pkjwt/pkjwt"
)

type middlewareConfig struct {
	errorHandler      func(*gin.Context, error)
	contextKey        string
	middlewareOptions []pkjwt.Option
}

// Option configures the gin middleware.
type Option func(*middlewareConfig) error

// WithErrorHandler replaces DefaultErrorHandler. The handler must abort.
func WithErrorHandler(handler func(*gin.Context, error)) Option {
	return func(config *middlewareConfig) error {
		if handler == nil {
			return errors.New("error handler cannot be nil")
		}
		config.errorHandler = handler
		return nil
	}
}

// WithClaimsKey stores claims under key instead of DefaultClaimsKey.
func WithClaimsKey(key string) Option {
	return func(config *middlewareConfig) error {
		if key == "" {
			return errors.New("claims key cannot be empty")
		}
		config.contextKey = key
		return nil
	}
}

// WithMiddlewareOptions passes options through to pkjwt.New. Validator and
// error handler are set by the adapter.
func WithMiddlewareOptions(opts ...pkjwt.Option) Option {
	return func(config *middlewareConfig) error {
		config.middlewareOptions = append(config.middlewareOptions, opts...)
		return nil
	}
}
