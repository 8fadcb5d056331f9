package keystore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Load when no key material has been generated yet.
	ErrNotFound = errors.New("key material not found")

	// ErrKeyUnavailable is returned by consumers of a Store (publisher, issuer)
	// when the store holds no key. It is always joined with the store error, so
	// errors.Is(err, ErrNotFound) holds as well.
	ErrKeyUnavailable = errors.New("signing key unavailable")

	// ErrDecryption matches every *DecryptionError.
	ErrDecryption = errors.New("private key decryption failed")

	// ErrKeyMismatch is returned when the private key does not derive the
	// stored public key.
	ErrKeyMismatch = errors.New("private key does not match public key")
)

// DecryptionError reports that the stored private key could not be decrypted
// with the recorded password.
type DecryptionError struct {
	KeyID string
	Err   error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decrypt private key %q: %v", e.KeyID, e.Err)
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, ErrDecryption).
func (e *DecryptionError) Is(target error) bool {
	return target == ErrDecryption
}

// Unavailable joins ErrKeyUnavailable with the store error when it is an
// ErrNotFound, and returns err unchanged otherwise.
func Unavailable(err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrKeyUnavailable, err)
	}
	return err
}
