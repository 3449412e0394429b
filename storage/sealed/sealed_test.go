package sealed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/storefront/storage"
	"github.com/jmcleod/storefront/storage/memory"
)

func TestSealedStore(t *testing.T) {
	inner := memory.NewStore()
	s, err := New(inner, []byte("device-secret"), []byte("salt"))
	require.NoError(t, err)

	t.Run("RoundTrip", func(t *testing.T) {
		require.NoError(t, s.Set(storage.AccessTokenKey, "A1"))
		v, ok, err := s.Get(storage.AccessTokenKey)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "A1", v)
	})

	t.Run("InnerNeverSeesPlaintext", func(t *testing.T) {
		raw, ok, err := inner.Get(storage.AccessTokenKey)
		require.NoError(t, err)
		require.True(t, ok)
		assert.NotContains(t, raw, "A1")
	})

	t.Run("MissingPassesThrough", func(t *testing.T) {
		_, ok, err := s.Get("missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("NameIsBound", func(t *testing.T) {
		raw, _, _ := inner.Get(storage.AccessTokenKey)
		require.NoError(t, inner.Set(storage.RefreshTokenKey, raw))
		_, _, err := s.Get(storage.RefreshTokenKey)
		assert.ErrorIs(t, err, ErrUnreadable)
		assert.ErrorIs(t, err, storage.ErrStore)
	})

	t.Run("BatchSeals", func(t *testing.T) {
		require.NoError(t, storage.SaveCredentials(s, storage.Credentials{AccessToken: "A2", RefreshToken: "R2"}))
		creds, ok, _, err := storage.LoadCredentials(s)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, storage.Credentials{AccessToken: "A2", RefreshToken: "R2"}, creds)

		raw, _, _ := inner.Get(storage.RefreshTokenKey)
		assert.NotEqual(t, "R2", raw)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		other, err := New(inner, []byte("other-secret"), []byte("salt"))
		require.NoError(t, err)
		_, _, err = other.Get(storage.AccessTokenKey)
		assert.ErrorIs(t, err, ErrUnreadable)
	})

	t.Run("Closed", func(t *testing.T) {
		backing := memory.NewStore()
		closed, err := New(backing, []byte("k"), nil)
		require.NoError(t, err)
		require.NoError(t, closed.Set(storage.AccessTokenKey, "A1"))

		closed.Close()
		closed.Close()

		assert.ErrorIs(t, closed.Set("a", "b"), storage.ErrClosed)
		_, _, err = closed.Get(storage.AccessTokenKey)
		assert.ErrorIs(t, err, storage.ErrClosed)
		assert.NotErrorIs(t, err, ErrUnreadable)
		assert.ErrorIs(t, storage.SaveCredentials(closed, storage.Credentials{AccessToken: "A2", RefreshToken: "R2"}), storage.ErrClosed)

		require.NoError(t, storage.PurgeCredentials(closed))
		assert.Zero(t, backing.Len())
	})

	t.Run("EmptySecret", func(t *testing.T) {
		_, err := New(inner, nil, nil)
		assert.Error(t, err)
	})
}
