package validator

import (
	"errors"
	"fmt"

	"github.com/pkjwt/pkjwt/core"
)

// ErrUnknownKey matches every *UnknownKeyError.
var ErrUnknownKey = errors.New("unknown signing key")

// UnknownKeyError is returned when neither the cached nor a freshly fetched
// provider key set holds the kid named by the token header.
type UnknownKeyError struct {
	KeyID string
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("no key with kid %q in provider JWKS", e.KeyID)
}

// Is allows errors.Is(err, ErrUnknownKey).
func (e *UnknownKeyError) Is(target error) bool {
	return target == ErrUnknownKey
}

// ErrorCode reports the code used in logs and metrics.
func (e *UnknownKeyError) ErrorCode() string {
	return core.ErrorCodeJWKSKeyNotFound
}

// KeySetError wraps a failure to obtain the provider key set.
type KeySetError struct {
	Err error
}

func (e *KeySetError) Error() string {
	return "failed to get provider keys: " + e.Err.Error()
}

func (e *KeySetError) Unwrap() error {
	return e.Err
}

// ErrorCode reports the code used in logs and metrics.
func (e *KeySetError) ErrorCode() string {
	return core.ErrorCodeJWKSFetchFailed
}
