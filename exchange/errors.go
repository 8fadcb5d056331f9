package exchange

import (
	"fmt"
	"strings"
)

// TokenEndpointError reports a rejected token request. ErrorCode and
// Description are taken from an RFC 6749 error response when present.
type TokenEndpointError struct {
	StatusCode  int
	Body        string
	ErrorCode   string
	Description string
}

func (e *TokenEndpointError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "token endpoint returned status %d", e.StatusCode)
	if e.ErrorCode != "" {
		fmt.Fprintf(&b, ": %s", e.ErrorCode)
	}
	if e.Description != "" {
		fmt.Fprintf(&b, ": %s", e.Description)
	}
	return b.String()
}

// ProtectedResourceError reports a non-2xx answer from the protected resource.
type ProtectedResourceError struct {
	StatusCode int
	Body       string
}

func (e *ProtectedResourceError) Error() string {
	return fmt.Sprintf("protected resource returned status %d: %s", e.StatusCode, e.Body)
}
