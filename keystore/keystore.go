// Package keystore holds the single RSA signing key of the client: how it is
// generated, persisted encrypted at rest, and loaded as a consistent snapshot.
package keystore

import (
	"context"
	"crypto/rsa"
	"errors"
	"time"
)

// KeyMaterial is one generation of the signing key.
//
// A *KeyMaterial returned by Load is an immutable snapshot shared between
// callers. Never modify it; Rotate produces a new value instead.
type KeyMaterial struct {
	KeyID      string
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
	// Password encrypts PrivateKey at rest.
	Password  string
	CreatedAt time.Time
}

// Store persists exactly one KeyMaterial. Save replaces whatever was stored
// before; there is no history.
type Store interface {
	Load(ctx context.Context) (*KeyMaterial, error)
	Save(ctx context.Context, km *KeyMaterial) error
}

// Validate checks that km is complete and that its private key derives its
// public key.
func (km *KeyMaterial) Validate() error {
	if km == nil {
		return errors.New("key material is nil")
	}
	if km.KeyID == "" {
		return errors.New("key id is required")
	}
	if km.Password == "" {
		return errors.New("key password is required")
	}
	if km.PrivateKey == nil || km.PublicKey == nil {
		return errors.New("private and public key are required")
	}
	if !km.PrivateKey.PublicKey.Equal(km.PublicKey) {
		return ErrKeyMismatch
	}
	return nil
}
