// Package jwtgin adapts the pkjwt middleware to gin.
package jwtgin

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pkjwt/pkjwt"
	"github.com/pkjwt/pkjwt/core"
	"github.com/pkjwt/pkjwt/validator"
)

// DefaultClaimsKey is the gin context key claims are stored under.
const DefaultClaimsKey = "jwt"

var (
	ErrMissingClaims = errors.New("no JWT claims found in context")
	ErrInvalidClaims = errors.New("invalid JWT claims type")
)

type ginContextKey struct{}

// New returns a gin middleware that aborts requests without a valid bearer
// token and stores the validated claims under the configured key.
//
//	r := gin.New()
//	auth, err := jwtgin.New(v, jwtgin.WithMiddlewareOptions(pkjwt.WithLogger(logger)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	r.GET("/protected_api", auth, handler)
func New(v core.Validator, opts ...Option) (gin.HandlerFunc, error) {
	config := &middlewareConfig{
		errorHandler: DefaultErrorHandler,
		contextKey:   DefaultClaimsKey,
	}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	middlewareOpts := append([]pkjwt.Option{
		pkjwt.WithValidator(v),
		pkjwt.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			c, ok := r.Context().Value(ginContextKey{}).(*gin.Context)
			if !ok {
				pkjwt.DefaultErrorHandler(w, r, err)
				return
			}
			config.errorHandler(c, err)
		}),
	}, config.middlewareOptions...)

	middleware, err := pkjwt.New(middlewareOpts...)
	if err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		passed := false
		next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
			if claims, err := core.GetClaims[any](r.Context()); err == nil {
				c.Set(config.contextKey, claims)
			}
			c.Next()
		})

		req := c.Request.WithContext(context.WithValue(c.Request.Context(), ginContextKey{}, c))
		middleware.CheckJWT(next).ServeHTTP(c.Writer, req)

		if !passed {
			c.Abort()
		}
	}, nil
}

// DefaultErrorHandler responds like pkjwt.DefaultErrorHandler.
func DefaultErrorHandler(c *gin.Context, err error) {
	status, body := pkjwt.ErrorResponseFor(err)
	c.AbortWithStatusJSON(status, body)
}

// GetClaims returns the claims stored by the middleware under contextKey,
// or DefaultClaimsKey when contextKey is empty.
func GetClaims(c *gin.Context, contextKey string) (*validator.ValidatedClaims, error) {
	if contextKey == "" {
		contextKey = DefaultClaimsKey
	}
	claims, exists := c.Get(contextKey)
	if !exists {
		return nil, ErrMissingClaims
	}

	validatedClaims, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return nil, ErrInvalidClaims
	}

	return validatedClaims, nil
}
