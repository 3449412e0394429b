// Package bbolt provides a BBolt-backed credential store.
package bbolt

import (
	"fmt"

	"github.com/jmcleod/storefront/storage"
	"go.etcd.io/bbolt"
)

// DefaultBucket is the bucket used when no namespace is given.
const DefaultBucket = "credentials"

// Store implements storage.Store backed by a BBolt database. Every Set,
// Clear and Batch commits its own fsynced transaction.
type Store struct {
	db     *bbolt.DB
	bucket []byte
	owned  bool
}

var _ storage.Store = (*Store)(nil)

// NewStore returns a Store that keeps its values in the given bucket of db.
// An empty bucket name selects DefaultBucket.
func NewStore(db *bbolt.DB, bucket string) (*Store, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	s := &Store{db: db, bucket: []byte(bucket)}
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating bucket %q: %w", bucket, err)
	}
	return s, nil
}

// NewStoreFromFile opens a BBolt database at the given path and returns a new Store.
func NewStoreFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := NewStore(db, DefaultBucket)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// Close closes the underlying BBolt database if it was opened by NewStoreFromFile.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(name string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		data := b.Get([]byte(name))
		if data == nil {
			return nil
		}
		value, found = string(data), true
		return nil
	})
	if err != nil {
		return "", false, &storage.StoreError{Op: "get", Name: name, Err: err}
	}
	return value, found, nil
}

func (s *Store) Set(name, value string) error {
	return s.Batch(func(tx storage.Tx) error {
		return tx.Set(name, value)
	})
}

func (s *Store) Clear(name string) error {
	return s.Batch(func(tx storage.Tx) error {
		return tx.Clear(name)
	})
}

// Batch runs fn inside a single read-write transaction.
func (s *Store) Batch(fn func(tx storage.Tx) error) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		return fn(&boltTx{bucket: b})
	})
	if err != nil {
		return &storage.StoreError{Op: "batch", Err: err}
	}
	return nil
}

type boltTx struct {
	bucket *bbolt.Bucket
}

func (tx *boltTx) Set(name, value string) error {
	return tx.bucket.Put([]byte(name), []byte(value))
}

// Clear deletes name; bbolt treats a missing key as a no-op.
func (tx *boltTx) Clear(name string) error {
	return tx.bucket.Delete([]byte(name))
}
