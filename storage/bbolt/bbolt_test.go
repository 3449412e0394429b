package bbolt

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/jmcleod/storefront/storage"
)

func newTestDB(t *testing.T) *bbolt.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials-test.db")
	db, err := bbolt.Open(path, 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBBoltStore(t *testing.T) {
	s, err := NewStore(newTestDB(t), "")
	require.NoError(t, err)

	t.Run("SetGet", func(t *testing.T) {
		require.NoError(t, s.Set(storage.AccessTokenKey, "A1"))
		v, ok, err := s.Get(storage.AccessTokenKey)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "A1", v)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, ok, err := s.Get("missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ClearIdempotent", func(t *testing.T) {
		require.NoError(t, s.Clear(storage.AccessTokenKey))
		require.NoError(t, s.Clear(storage.AccessTokenKey))
		_, ok, err := s.Get(storage.AccessTokenKey)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("BatchRollback", func(t *testing.T) {
		require.NoError(t, s.Set(storage.RefreshTokenKey, "R1"))
		boom := errors.New("boom")
		err := s.Batch(func(tx storage.Tx) error {
			if err := tx.Set(storage.RefreshTokenKey, "R2"); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, err, storage.ErrStore)

		v, _, _ := s.Get(storage.RefreshTokenKey)
		assert.Equal(t, "R1", v)
	})

	t.Run("Namespaces", func(t *testing.T) {
		db := newTestDB(t)
		a, err := NewStore(db, "a")
		require.NoError(t, err)
		b, err := NewStore(db, "b")
		require.NoError(t, err)
		require.NoError(t, a.Set("k", "from-a"))
		_, ok, err := b.Get("k")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestBBoltStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	s, err := NewStoreFromFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, storage.SaveCredentials(s, storage.Credentials{AccessToken: "A1", RefreshToken: "R1"}))
	require.NoError(t, s.Close())

	s, err = NewStoreFromFile(path, nil)
	require.NoError(t, err)
	defer s.Close()
	creds, ok, _, err := storage.LoadCredentials(s)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A1", creds.AccessToken)
	assert.Equal(t, "R1", creds.RefreshToken)
}
