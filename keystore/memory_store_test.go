package keystore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("load before save returns ErrNotFound", func(t *testing.T) {
		_, err := NewMemoryStore().Load(ctx)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("save then load returns a copy", func(t *testing.T) {
		store := NewMemoryStore()
		km := newTestKeyMaterial(t)

		require.NoError(t, store.Save(ctx, km))

		loaded, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, km.KeyID, loaded.KeyID)
		assert.True(t, loaded.PublicKey.Equal(km.PublicKey))

		km.KeyID = "mutated-after-save"
		again, err := store.Load(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, "mutated-after-save", again.KeyID)
	})

	t.Run("rejects mismatched keypair", func(t *testing.T) {
		km := newTestKeyMaterial(t)
		other := newTestKeyMaterial(t)
		km.PublicKey = other.PublicKey

		err := NewMemoryStore().Save(ctx, km)
		assert.ErrorIs(t, err, ErrKeyMismatch)
	})

	t.Run("rejects incomplete key material", func(t *testing.T) {
		km := newTestKeyMaterial(t)
		km.Password = ""

		err := NewMemoryStore().Save(ctx, km)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "password")
	})

	t.Run("canceled context", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := NewMemoryStore().Load(canceled)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
