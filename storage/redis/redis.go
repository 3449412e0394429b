// Package redis provides a Redis-backed credential store.
//
// Values are kept under "<prefix>:<name>" with no expiry; Batch writes are
// applied through MULTI/EXEC so a credential pair is never half written.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jmcleod/storefront/storage"
)

// DefaultPrefix namespaces keys when none is given.
const DefaultPrefix = "storefront:session"

const defaultOpTimeout = 3 * time.Second

// Store implements storage.Store on top of a go-redis client.
type Store struct {
	rdb       redis.UniversalClient
	prefix    string
	opTimeout time.Duration
}

var _ storage.Store = (*Store)(nil)

// NewStore returns a Store using rdb. An empty prefix selects DefaultPrefix.
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix, opTimeout: defaultOpTimeout}
}

func (s *Store) key(name string) string {
	return s.prefix + ":" + name
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.opTimeout)
}

func (s *Store) Get(name string) (string, bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	v, err := s.rdb.Get(ctx, s.key(name)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &storage.StoreError{Op: "get", Name: name, Err: err}
	}
	return v, true, nil
}

func (s *Store) Set(name, value string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	if err := s.rdb.Set(ctx, s.key(name), value, 0).Err(); err != nil {
		return &storage.StoreError{Op: "set", Name: name, Err: err}
	}
	return nil
}

// Clear deletes name; DEL on a missing key succeeds.
func (s *Store) Clear(name string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	if err := s.rdb.Del(ctx, s.key(name)).Err(); err != nil {
		return &storage.StoreError{Op: "clear", Name: name, Err: err}
	}
	return nil
}

// Batch queues the writes made by fn and executes them in one MULTI/EXEC.
// If fn fails nothing is sent.
func (s *Store) Batch(fn func(tx storage.Tx) error) error {
	tx := &redisTx{store: s}
	if err := fn(tx); err != nil {
		return &storage.StoreError{Op: "batch", Err: err}
	}
	if len(tx.ops) == 0 {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, op := range tx.ops {
			op(ctx, p)
		}
		return nil
	})
	if err != nil {
		return &storage.StoreError{Op: "batch", Err: err}
	}
	return nil
}

type redisTx struct {
	store *Store
	ops   []func(context.Context, redis.Pipeliner)
}

func (tx *redisTx) Set(name, value string) error {
	key := tx.store.key(name)
	tx.ops = append(tx.ops, func(ctx context.Context, p redis.Pipeliner) {
		p.Set(ctx, key, value, 0)
	})
	return nil
}

func (tx *redisTx) Clear(name string) error {
	key := tx.store.key(name)
	tx.ops = append(tx.ops, func(ctx context.Context, p redis.Pipeliner) {
		p.Del(ctx, key)
	})
	return nil
}
