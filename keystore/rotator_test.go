package keystore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	loadErr error
	saveErr error
}

func (s *failingStore) Load(context.Context) (*KeyMaterial, error) {
	return nil, s.loadErr
}

func (s *failingStore) Save(context.Context, *KeyMaterial) error {
	return s.saveErr
}

type countingMetrics struct {
	counts map[string]int
}

func (m *countingMetrics) IncCounter(name string, tags map[string]string) {
	m.counts[name+"/"+tags["result"]]++
}

func (m *countingMetrics) ObserveHistogram(string, float64, map[string]string) {}

func TestNewRotator(t *testing.T) {
	testCases := []struct {
		name    string
		store   Store
		opts    []RotatorOption
		wantErr string
	}{
		{name: "nil store", store: nil, wantErr: "store is required"},
		{name: "key too small", store: NewMemoryStore(), opts: []RotatorOption{WithKeyBits(1024)}, wantErr: "below the minimum"},
		{name: "nil random", store: NewMemoryStore(), opts: []RotatorOption{WithRandom(nil)}, wantErr: "random source cannot be nil"},
		{name: "nil logger", store: NewMemoryStore(), opts: []RotatorOption{WithRotatorLogger(nil)}, wantErr: "logger cannot be nil"},
		{name: "nil metrics", store: NewMemoryStore(), opts: []RotatorOption{WithRotatorMetrics(nil)}, wantErr: "metrics cannot be nil"},
		{name: "nil tracer", store: NewMemoryStore(), opts: []RotatorOption{WithRotatorTracer(nil)}, wantErr: "tracer cannot be nil"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			r, err := NewRotator(testCase.store, testCase.opts...)
			assert.Nil(t, r)
			require.Error(t, err)
			assert.Contains(t, err.Error(), testCase.wantErr)
		})
	}

	t.Run("default key size", func(t *testing.T) {
		r, err := NewRotator(NewMemoryStore())
		require.NoError(t, err)
		assert.Equal(t, DefaultKeyBits, r.bits)
	})
}

func TestRotator_Rotate(t *testing.T) {
	ctx := context.Background()

	t.Run("two rotations yield distinct keys", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewFileStore(filepath.Join(dir, "certs"), WithEnvFile(filepath.Join(dir, "dev.env")))
		require.NoError(t, err)
		metrics := &countingMetrics{counts: map[string]int{}}

		r, err := NewRotator(store, WithKeyBits(MinKeyBits), WithRotatorMetrics(metrics))
		require.NoError(t, err)

		first, err := r.Rotate(ctx)
		require.NoError(t, err)
		second, err := r.Rotate(ctx)
		require.NoError(t, err)

		assert.NotEqual(t, first.KeyID, second.KeyID)
		assert.NotEqual(t, first.Password, second.Password)
		assert.False(t, first.PublicKey.Equal(second.PublicKey))
		assert.Equal(t, 65537, second.PublicKey.E)
		assert.Equal(t, MinKeyBits, second.PublicKey.N.BitLen())

		current, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, second.KeyID, current.KeyID)
		assert.Equal(t, 2, metrics.counts["rotations_total/ok"])
	})

	t.Run("replaces undecryptable key material", func(t *testing.T) {
		store := &failingStore{loadErr: &DecryptionError{KeyID: "old", Err: errors.New("bad padding")}}
		r, err := NewRotator(store, WithKeyBits(MinKeyBits))
		require.NoError(t, err)

		km, err := r.Rotate(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, km.KeyID)
	})

	t.Run("save failure is returned", func(t *testing.T) {
		metrics := &countingMetrics{counts: map[string]int{}}
		store := &failingStore{loadErr: ErrNotFound, saveErr: errors.New("disk full")}
		r, err := NewRotator(store, WithKeyBits(MinKeyBits), WithRotatorMetrics(metrics))
		require.NoError(t, err)

		_, err = r.Rotate(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		assert.Equal(t, 1, metrics.counts["rotations_total/error"])
	})

	t.Run("corrupt key files are replaced", func(t *testing.T) {
		dir := t.TempDir()
		certsDir := filepath.Join(dir, "certs")
		envFile := filepath.Join(dir, "dev.env")

		store, err := NewFileStore(certsDir, WithEnvFile(envFile))
		require.NoError(t, err)
		r, err := NewRotator(store, WithKeyBits(MinKeyBits))
		require.NoError(t, err)
		first, err := r.Rotate(ctx)
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(filepath.Join(certsDir, "public.pem"), []byte("garbage"), 0o644))

		reopened, err := NewFileStore(certsDir, WithEnvFile(envFile))
		require.NoError(t, err)
		_, err = reopened.Load(ctx)
		require.Error(t, err)

		r, err = NewRotator(reopened, WithKeyBits(MinKeyBits))
		require.NoError(t, err)
		second, err := r.Rotate(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, first.KeyID, second.KeyID)

		current, err := reopened.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, second.KeyID, current.KeyID)
	})

	t.Run("any load failure is replaced", func(t *testing.T) {
		store := &failingStore{loadErr: errors.New("permission denied")}
		r, err := NewRotator(store, WithKeyBits(MinKeyBits))
		require.NoError(t, err)

		_, err = r.Rotate(ctx)
		require.NoError(t, err)
	})

	t.Run("canceled context stops rotation", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		store := &failingStore{loadErr: context.Canceled}
		r, err := NewRotator(store, WithKeyBits(MinKeyBits))
		require.NoError(t, err)

		_, err = r.Rotate(canceled)
		require.ErrorIs(t, err, context.Canceled)
	})
}
