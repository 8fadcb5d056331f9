package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pkjwt/pkjwt/exchange"
	jwtgin "github.com/pkjwt/pkjwt/framework/gin"
	"github.com/pkjwt/pkjwt/keystore"
)

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Welcome...."})
}

func (s *Server) handleRotate(c *gin.Context) {
	km, err := s.rotator.Rotate(c.Request.Context())
	if err != nil {
		s.fail(c, "rotate signing key", err)
		return
	}
	s.logger.Info("Signing key rotated", "kid", km.KeyID)
	c.String(http.StatusOK, "New Certificates created...")
}

func (s *Server) handleClient(c *gin.Context) {
	body, err := s.flow.Run(c.Request.Context())
	if err != nil {
		s.fail(c, "client credentials flow", err)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func (s *Server) handleJWKS(c *gin.Context) {
	body, err := s.publisher.PublishJSON(c.Request.Context())
	if err != nil {
		s.fail(c, "publish JWKS", err)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func (s *Server) handleProtected(c *gin.Context) {
	claims, err := jwtgin.GetClaims(c, "")
	if err != nil {
		s.fail(c, "read claims", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Token is valid.  Here is your response.",
		"claims":  claims.Map(),
	})
}

// fail maps err to a status: 503 while no key exists, 502 for upstream
// rejections, 500 otherwise.
func (s *Server) fail(c *gin.Context, action string, err error) {
	status := http.StatusInternalServerError
	var (
		tokenErr    *exchange.TokenEndpointError
		resourceErr *exchange.ProtectedResourceError
	)
	switch {
	case errors.Is(err, keystore.ErrKeyUnavailable):
		status = http.StatusServiceUnavailable
	case errors.As(err, &tokenErr), errors.As(err, &resourceErr):
		status = http.StatusBadGateway
	}

	s.logger.Error("Request failed", "action", action, "error", err, "status", status)
	c.AbortWithStatusJSON(status, gin.H{"message": action + " failed: " + err.Error()})
}
