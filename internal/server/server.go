// Package server exposes the pkjwt routes over gin.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pkjwt/pkjwt/core"
	"github.com/pkjwt/pkjwt/internal/config"
	"github.com/pkjwt/pkjwt/keystore"
)

// KeyRotator replaces the signing key. *keystore.Rotator satisfies it.
type KeyRotator interface {
	Rotate(ctx context.Context) (*keystore.KeyMaterial, error)
}

// JWKSPublisher renders the current public key. *jwks.Publisher satisfies it.
type JWKSPublisher interface {
	PublishJSON(ctx context.Context) ([]byte, error)
}

// ClientFlow runs the client credentials exchange end to end.
// *exchange.Flow satisfies it.
type ClientFlow interface {
	Run(ctx context.Context) (json.RawMessage, error)
}

type Server struct {
	config    config.ServerConfig
	rotator   KeyRotator
	publisher JWKSPublisher
	flow      ClientFlow
	auth      gin.HandlerFunc
	metrics   http.Handler
	logger    core.Logger

	engine *gin.Engine
	server *http.Server
}

// Option configures a Server.
type Option func(*Server) error

func WithRotator(r KeyRotator) Option {
	return func(s *Server) error {
		if r == nil {
			return errors.New("rotator cannot be nil")
		}
		s.rotator = r
		return nil
	}
}

func WithPublisher(p JWKSPublisher) Option {
	return func(s *Server) error {
		if p == nil {
			return errors.New("publisher cannot be nil")
		}
		s.publisher = p
		return nil
	}
}

func WithClientFlow(f ClientFlow) Option {
	return func(s *Server) error {
		if f == nil {
			return errors.New("client flow cannot be nil")
		}
		s.flow = f
		return nil
	}
}

// WithAuth sets the middleware guarding /protected_api, normally from
// jwtgin.New.
func WithAuth(auth gin.HandlerFunc) Option {
	return func(s *Server) error {
		if auth == nil {
			return errors.New("auth middleware cannot be nil")
		}
		s.auth = auth
		return nil
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) error {
		if h == nil {
			return errors.New("metrics handler cannot be nil")
		}
		s.metrics = h
		return nil
	}
}

func WithLogger(logger core.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// New builds the router. Rotator, publisher, client flow and auth are
// required.
func New(cfg config.ServerConfig, opts ...Option) (*Server, error) {
	s := &Server{
		config: cfg,
		logger: core.NoopLogger{},
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	switch {
	case s.rotator == nil:
		return nil, errors.New("rotator is required (use WithRotator)")
	case s.publisher == nil:
		return nil, errors.New("publisher is required (use WithPublisher)")
	case s.flow == nil:
		return nil, errors.New("client flow is required (use WithClientFlow)")
	case s.auth == nil:
		return nil, errors.New("auth middleware is required (use WithAuth)")
	}

	s.engine = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/", s.handleRoot)
	r.GET("/rotate", s.handleRotate)
	r.GET("/client", s.handleClient)
	r.GET("/jwks", s.handleJWKS)
	r.GET("/protected_api", s.auth, s.handleProtected)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	return r
}

// Handler returns the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.GetAddr(),
		Handler:      s.engine,
		ReadTimeout:  s.config.GetReadTimeout(),
		WriteTimeout: s.config.GetWriteTimeout(),
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.GetShutdownTimeout())
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
