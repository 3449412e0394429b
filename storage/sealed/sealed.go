// Package sealed wraps a storage.Store so that every value is encrypted with
// AES-256-GCM before it reaches the underlying backend.
//
// The data key is derived from a device secret with HKDF-SHA256 and held in
// a memguard Enclave; it is only unsealed for the duration of a single
// encrypt or decrypt. The value name is bound as additional authenticated
// data, so a sealed access token cannot be replayed as a refresh token.
package sealed

import (
	"errors"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/storefront/internal/util"
	"github.com/jmcleod/storefront/storage"
)

const (
	keyInfo   = "storefront:credential-store:v1"
	aadPrefix = "storefront:credential:"
)

// ErrUnreadable is returned when a stored value cannot be opened with the
// current key, typically because the device secret changed.
var ErrUnreadable = errors.New("sealed value unreadable")

// Store encrypts values on their way into inner and decrypts them on the way out.
type Store struct {
	inner storage.Store

	mu  sync.RWMutex
	key *memguard.Enclave
}

var _ storage.Store = (*Store)(nil)

// New derives the data key from secret and salt and returns a sealed view of
// inner. secret is not retained.
func New(inner storage.Store, secret, salt []byte) (*Store, error) {
	key, err := util.HKDF(secret, salt, []byte(keyInfo))
	if err != nil {
		return nil, fmt.Errorf("deriving credential store key: %w", err)
	}
	// NewEnclave wipes key.
	return &Store{inner: inner, key: memguard.NewEnclave(key)}, nil
}

// Close drops the Enclave. The key only ever leaves it for the duration of
// one seal or open, in a LockedBuffer destroyed right after, so nothing
// unsealed outlives Close. Reads and writes then fail with storage.ErrClosed;
// Clear still reaches the inner store so credentials can be purged.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = nil
}

func aad(name string) []byte {
	return []byte(aadPrefix + name)
}

func (s *Store) withKey(fn func(key []byte) error) error {
	s.mu.RLock()
	enclave := s.key
	s.mu.RUnlock()
	if enclave == nil {
		return storage.ErrClosed
	}
	buf, err := enclave.Open()
	if err != nil {
		return fmt.Errorf("opening key enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// Get decrypts the stored value. A value that fails authentication is
// reported as an error wrapping ErrUnreadable rather than as absent.
func (s *Store) Get(name string) (string, bool, error) {
	raw, ok, err := s.inner.Get(name)
	if err != nil || !ok {
		return "", ok, err
	}
	var plain []byte
	err = s.withKey(func(key []byte) error {
		var err error
		plain, err = openValue(key, raw, aad(name))
		return err
	})
	switch {
	case errors.Is(err, storage.ErrClosed):
		return "", false, &storage.StoreError{Op: "get", Name: name, Err: err}
	case err != nil:
		return "", false, &storage.StoreError{Op: "get", Name: name, Err: errors.Join(ErrUnreadable, err)}
	}
	defer util.WipeBytes(plain)
	return string(plain), true, nil
}

func (s *Store) Set(name, value string) error {
	sealed, err := s.seal(name, value)
	if err != nil {
		return &storage.StoreError{Op: "set", Name: name, Err: err}
	}
	return s.inner.Set(name, sealed)
}

func (s *Store) Clear(name string) error {
	return s.inner.Clear(name)
}

// Batch seals values inside fn and forwards them to the inner batch.
func (s *Store) Batch(fn func(tx storage.Tx) error) error {
	return s.inner.Batch(func(tx storage.Tx) error {
		return fn(&sealedTx{store: s, inner: tx})
	})
}

func (s *Store) seal(name, value string) (string, error) {
	var out string
	err := s.withKey(func(key []byte) error {
		var err error
		out, err = sealValue(key, []byte(value), aad(name))
		return err
	})
	return out, err
}

type sealedTx struct {
	store *Store
	inner storage.Tx
}

func (tx *sealedTx) Set(name, value string) error {
	sealed, err := tx.store.seal(name, value)
	if err != nil {
		return err
	}
	return tx.inner.Set(name, sealed)
}

func (tx *sealedTx) Clear(name string) error {
	return tx.inner.Clear(name)
}
