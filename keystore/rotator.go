package keystore

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/pkjwt/pkjwt/core"
)

const (
	// DefaultKeyBits is the modulus size of generated signing keys.
	DefaultKeyBits = 4096
	// MinKeyBits is the smallest modulus WithKeyBits accepts.
	MinKeyBits = 2048
)

// Rotator replaces the stored key material with a freshly generated keypair.
type Rotator struct {
	store   Store
	bits    int
	random  io.Reader
	now     func() time.Time
	logger  core.Logger
	metrics core.Metrics
	tracer  core.Tracer
}

// RotatorOption configures a Rotator.
type RotatorOption func(*Rotator) error

// WithKeyBits sets the RSA modulus size. Defaults to DefaultKeyBits.
func WithKeyBits(bits int) RotatorOption {
	return func(r *Rotator) error {
		if bits < MinKeyBits {
			return fmt.Errorf("key size %d is below the minimum of %d bits", bits, MinKeyBits)
		}
		r.bits = bits
		return nil
	}
}

// WithRandom sets the entropy source used for key generation.
func WithRandom(random io.Reader) RotatorOption {
	return func(r *Rotator) error {
		if random == nil {
			return errors.New("random source cannot be nil")
		}
		r.random = random
		return nil
	}
}

// WithRotatorLogger sets the logger of the Rotator.
func WithRotatorLogger(logger core.Logger) RotatorOption {
	return func(r *Rotator) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		r.logger = logger
		return nil
	}
}

// WithRotatorMetrics sets the metrics sink of the Rotator.
func WithRotatorMetrics(metrics core.Metrics) RotatorOption {
	return func(r *Rotator) error {
		if metrics == nil {
			return errors.New("metrics cannot be nil")
		}
		r.metrics = metrics
		return nil
	}
}

// WithRotatorTracer sets the tracer of the Rotator.
func WithRotatorTracer(tracer core.Tracer) RotatorOption {
	return func(r *Rotator) error {
		if tracer == nil {
			return errors.New("tracer cannot be nil")
		}
		r.tracer = tracer
		return nil
	}
}

// NewRotator returns a Rotator persisting into store.
func NewRotator(store Store, opts ...RotatorOption) (*Rotator, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}

	r := &Rotator{
		store:   store,
		bits:    DefaultKeyBits,
		random:  rand.Reader,
		now:     time.Now,
		logger:  core.NoopLogger{},
		metrics: core.NoopMetrics{},
		tracer:  core.NoopTracer{},
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("invalid rotator option: %w", err)
		}
	}

	return r, nil
}

// Rotate generates a new keypair with a new key id and password and saves
// it, replacing the previous one. Failures are returned as is, nothing is
// retried.
func (r *Rotator) Rotate(ctx context.Context) (*KeyMaterial, error) {
	ctx, span := r.tracer.Start(ctx, "keystore.Rotate")
	defer span.End()

	km, err := r.rotate(ctx)
	if err != nil {
		span.RecordError(err)
		r.logger.Error("Key rotation failed", "error", err)
		r.metrics.IncCounter("rotations_total", map[string]string{"result": "error"})
		return nil, err
	}

	span.SetTag("kid", km.KeyID)
	r.logger.Info("Rotated signing key", "kid", km.KeyID, "bits", r.bits)
	r.metrics.IncCounter("rotations_total", map[string]string{"result": "ok"})
	return km, nil
}

func (r *Rotator) rotate(ctx context.Context) (*KeyMaterial, error) {
	// The current key is read only to never hand out its kid again. Whatever
	// is wrong with it is what rotation replaces.
	var previousKID string
	previous, err := r.store.Load(ctx)
	switch {
	case err == nil:
		previousKID = previous.KeyID
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case !errors.Is(err, ErrNotFound):
		r.logger.Warn("Replacing unreadable key material", "error", err)
	}

	km, err := NewKeyMaterial(r.random, r.bits)
	if err != nil {
		return nil, err
	}
	for km.KeyID == previousKID {
		km.KeyID = uuid.NewString()
	}
	km.CreatedAt = r.now()

	if err := r.store.Save(ctx, km); err != nil {
		return nil, fmt.Errorf("save key %s: %w", km.KeyID, err)
	}
	return km, nil
}

// NewKeyMaterial generates an RSA keypair with public exponent 65537 and
// assigns it a random key id and password.
func NewKeyMaterial(random io.Reader, bits int) (*KeyMaterial, error) {
	privateKey, err := rsa.GenerateKey(random, bits)
	if err != nil {
		return nil, fmt.Errorf("generate %d-bit RSA key: %w", bits, err)
	}

	return &KeyMaterial{
		KeyID:      uuid.NewString(),
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		Password:   uuid.NewString(),
		CreatedAt:  time.Now(),
	}, nil
}
