// Package postgres implements storage.Store backed by PostgreSQL.
//
// The credentials table is keyed by (namespace, name) so several devices or
// test runs can share one database. Batch maps to a single transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/storefront/storage"
)

// DefaultNamespace is used when no namespace is given.
const DefaultNamespace = "default"

const defaultOpTimeout = 5 * time.Second

// Store implements storage.Store backed by PostgreSQL.
type Store struct {
	pool      *pgxpool.Pool
	namespace string
	opTimeout time.Duration
}

var _ storage.Store = (*Store)(nil)

// NewStore returns a Store backed by the given pgx connection pool.
func NewStore(pool *pgxpool.Pool, namespace string) *Store {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Store{pool: pool, namespace: namespace, opTimeout: defaultOpTimeout}
}

// NewStoreFromDSN creates a connection pool from a DSN string, ensures
// the schema exists, and returns a new Store.
func NewStoreFromDSN(ctx context.Context, dsn, namespace string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewStore(pool, namespace), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.opTimeout)
}

func (s *Store) Get(name string) (string, bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM credentials WHERE namespace = $1 AND name = $2`,
		s.namespace, name).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &storage.StoreError{Op: "get", Name: name, Err: err}
	}
	return value, true, nil
}

func (s *Store) Set(name, value string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	if err := upsert(ctx, s.pool, s.namespace, name, value); err != nil {
		return &storage.StoreError{Op: "set", Name: name, Err: err}
	}
	return nil
}

func (s *Store) Clear(name string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	if err := remove(ctx, s.pool, s.namespace, name); err != nil {
		return &storage.StoreError{Op: "clear", Name: name, Err: err}
	}
	return nil
}

func (s *Store) Batch(fn func(tx storage.Tx) error) error {
	ctx, cancel := s.ctx()
	defer cancel()

	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return &storage.StoreError{Op: "batch", Err: err}
	}
	defer pgTx.Rollback(ctx) //nolint:errcheck

	if err := fn(&pgBatchTx{ctx: ctx, tx: pgTx, namespace: s.namespace}); err != nil {
		return &storage.StoreError{Op: "batch", Err: err}
	}
	if err := pgTx.Commit(ctx); err != nil {
		return &storage.StoreError{Op: "batch", Err: err}
	}
	return nil
}

type pgBatchTx struct {
	ctx       context.Context
	tx        pgx.Tx
	namespace string
}

var _ storage.Tx = (*pgBatchTx)(nil)

func (btx *pgBatchTx) Set(name, value string) error {
	return upsert(btx.ctx, btx.tx, btx.namespace, name, value)
}

func (btx *pgBatchTx) Clear(name string) error {
	return remove(btx.ctx, btx.tx, btx.namespace, name)
}

// execer abstracts both *pgxpool.Pool and pgx.Tx for shared statements.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func upsert(ctx context.Context, e execer, namespace, name, value string) error {
	_, err := e.Exec(ctx,
		`INSERT INTO credentials (namespace, name, value, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (namespace, name)
		 DO UPDATE SET value = $3, updated_at = now()`,
		namespace, name, value)
	return err
}

// remove deletes name; zero affected rows is not an error.
func remove(ctx context.Context, e execer, namespace, name string) error {
	_, err := e.Exec(ctx,
		`DELETE FROM credentials WHERE namespace = $1 AND name = $2`,
		namespace, name)
	return err
}
