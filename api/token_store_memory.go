package api

import (
	"sync"
	"time"
)

// MemoryTokenStore is a thread-safe in-memory TokenStore.
// Tokens are lost on server restart.
type MemoryTokenStore struct {
	mu   sync.RWMutex
	data map[string]TokenRecord
}

var _ TokenStore = (*MemoryTokenStore)(nil)

// NewMemoryTokenStore creates an in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		data: make(map[string]TokenRecord),
	}
}

func (s *MemoryTokenStore) Get(id string) (TokenRecord, bool) {
	s.mu.RLock()
	rec, ok := s.data[id]
	s.mu.RUnlock()
	if !ok {
		return TokenRecord{}, false
	}
	if time.Now().After(rec.ExpiresAt) {
		s.Delete(id)
		return TokenRecord{}, false
	}
	return rec, true
}

func (s *MemoryTokenStore) Put(id string, rec TokenRecord) {
	s.mu.Lock()
	s.data[id] = rec
	s.mu.Unlock()
}

func (s *MemoryTokenStore) Delete(id string) {
	s.mu.Lock()
	delete(s.data, id)
	s.mu.Unlock()
}

func (s *MemoryTokenStore) Take(id string) (TokenRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[id]
	if !ok {
		return TokenRecord{}, false
	}
	delete(s.data, id)
	if time.Now().After(rec.ExpiresAt) {
		return TokenRecord{}, false
	}
	return rec, true
}

func (s *MemoryTokenStore) DeleteFamily(family string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.data {
		if rec.Family == family {
			delete(s.data, id)
		}
	}
}

// Sweep removes expired tokens. Call periodically from a background goroutine.
func (s *MemoryTokenStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, rec := range s.data {
		if now.After(rec.ExpiresAt) {
			delete(s.data, id)
		}
	}
}

// Len returns the number of stored tokens, including expired ones not yet swept.
func (s *MemoryTokenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
