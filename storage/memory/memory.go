// Package memory provides a thread-safe in-memory implementation of storage.Store.
package memory

import (
	"maps"
	"sync"

	"github.com/jmcleod/storefront/storage"
)

// Store is a thread-safe in-memory storage.Store.
// Suitable for testing, demos, and sessions that must not outlive the process.
type Store struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a new empty in-memory Store.
func NewStore() *Store {
	return &Store{data: make(map[string]string)}
}

func (s *Store) Get(name string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[name]
	return v, ok, nil
}

func (s *Store) Set(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = value
	return nil
}

func (s *Store) Clear(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, name)
	return nil
}

// Batch executes fn within a batch transaction. On error, all writes are rolled back.
func (s *Store) Batch(fn func(tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := maps.Clone(s.data)
	if err := fn(&memoryTx{data: s.data}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// Len returns the number of stored names.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

type memoryTx struct {
	data map[string]string
}

func (tx *memoryTx) Set(name, value string) error {
	tx.data[name] = value
	return nil
}

func (tx *memoryTx) Clear(name string) error {
	delete(tx.data, name)
	return nil
}
