package validator

import (
	"context"
	"maps"
)

// ValidatedClaims is what a successful validation yields and what the
// middleware stores in the request context.
type ValidatedClaims struct {
	RegisteredClaims RegisteredClaims

	// Extra holds every claim that is not a registered claim, as decoded
	// from the token payload.
	Extra map[string]any

	// CustomClaims is nil unless WithCustomClaims was used.
	CustomClaims CustomClaims

	all map[string]any
}

// RegisteredClaims are the RFC 7519 claims the validator checks. Times are
// Unix seconds, 0 when absent.
type RegisteredClaims struct {
	Issuer    string   `json:"iss,omitempty"`
	Subject   string   `json:"sub,omitempty"`
	Audience  []string `json:"aud,omitempty"`
	Expiry    int64    `json:"exp,omitempty"`
	NotBefore int64    `json:"nbf,omitempty"`
	IssuedAt  int64    `json:"iat,omitempty"`
	ID        string   `json:"jti,omitempty"`
}

// Map returns every claim of the token, registered and extra, keyed by claim
// name and holding the value exactly as decoded from the payload.
func (c *ValidatedClaims) Map() map[string]any {
	return maps.Clone(c.all)
}

// CustomClaims is decoded from the payload and validated after the
// registered claims passed.
type CustomClaims interface {
	Validate(context.Context) error
}

var registeredClaimNames = map[string]bool{
	"iss": true,
	"sub": true,
	"aud": true,
	"exp": true,
	"nbf": true,
	"iat": true,
	"jti": true,
}
