package validator

import (
	"errors"
	"strings"
)

// maxTokenSize bounds the input accepted before any decoding happens.
const maxTokenSize = 1024 * 1024

// validateTokenFormat rejects inputs that cannot be a compact JWS before
// they reach base64 and JSON decoding.
func validateTokenFormat(tokenString string) error {
	if tokenString == "" {
		return errors.New("token is empty")
	}
	if len(tokenString) > maxTokenSize {
		return errors.New("token exceeds maximum size (1MB)")
	}
	if strings.Count(tokenString, ".") != 2 {
		return errors.New("token is not a compact JWS (expected header.payload.signature)")
	}
	return nil
}
