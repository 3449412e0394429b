package memory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/storefront/storage"
)

func TestMemoryStore(t *testing.T) {
	s := NewStore()

	t.Run("SetAndGet", func(t *testing.T) {
		require.NoError(t, s.Set(storage.AccessTokenKey, "A1"))
		v, ok, err := s.Get(storage.AccessTokenKey)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "A1", v)
	})

	t.Run("GetMissing", func(t *testing.T) {
		v, ok, err := s.Get("nonexistent")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, v)
	})

	t.Run("ClearIsIdempotent", func(t *testing.T) {
		require.NoError(t, s.Set("tmp", "x"))
		require.NoError(t, s.Clear("tmp"))
		require.NoError(t, s.Clear("tmp"))
		_, ok, _ := s.Get("tmp")
		assert.False(t, ok)
	})

	t.Run("BatchRollback", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.Set(storage.AccessTokenKey, "old"))
		boom := errors.New("boom")
		err := s.Batch(func(tx storage.Tx) error {
			require.NoError(t, tx.Set(storage.AccessTokenKey, "new"))
			require.NoError(t, tx.Set(storage.RefreshTokenKey, "R"))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		v, _, _ := s.Get(storage.AccessTokenKey)
		assert.Equal(t, "old", v)
		_, ok, _ := s.Get(storage.RefreshTokenKey)
		assert.False(t, ok, "rolled back batch must not leave partial writes")
	})
}

func TestCredentialHelpers(t *testing.T) {
	s := NewStore()

	_, ok, partial, err := storage.LoadCredentials(s)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, partial)

	require.NoError(t, storage.SaveCredentials(s, storage.Credentials{AccessToken: "A1", RefreshToken: "R1"}))
	creds, ok, _, err := storage.LoadCredentials(s)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, storage.Credentials{AccessToken: "A1", RefreshToken: "R1"}, creds)

	// No rotation keeps the refresh token.
	require.NoError(t, storage.SaveCredentials(s, storage.Credentials{AccessToken: "A2"}))
	creds, _, _, _ = storage.LoadCredentials(s)
	assert.Equal(t, "A2", creds.AccessToken)
	assert.Equal(t, "R1", creds.RefreshToken)

	err = storage.SaveCredentials(s, storage.Credentials{})
	assert.ErrorIs(t, err, storage.ErrStore)

	require.NoError(t, s.Clear(storage.RefreshTokenKey))
	_, ok, partial, err = storage.LoadCredentials(s)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, partial)

	require.NoError(t, storage.PurgeCredentials(s))
	require.NoError(t, storage.PurgeCredentials(s))
	assert.Equal(t, 0, s.Len())
}
