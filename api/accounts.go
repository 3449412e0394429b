package api

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmcleod/storefront/internal/util"
)

const (
	minUsernameLen = 3
	minPasswordLen = 8
)

type accountRecord struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// accountStore keeps accounts keyed by normalised username.
type accountStore struct {
	mu     sync.RWMutex
	byID   map[string]*accountRecord
	byName map[string]*accountRecord
}

func newAccountStore() *accountStore {
	return &accountStore{
		byID:   make(map[string]*accountRecord),
		byName: make(map[string]*accountRecord),
	}
}

func (s *accountStore) create(username, passwordHash string) (*accountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[username]; ok {
		return nil, errAccountExists
	}
	rec := &accountRecord{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	s.byID[rec.ID] = rec
	s.byName[username] = rec
	return rec, nil
}

func (s *accountStore) byUsername(username string) (*accountRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byName[username]
	return rec, ok
}

func (s *accountStore) get(id string) (*accountRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	return rec, ok
}

func validateRegistration(username, password string) error {
	if len(username) < minUsernameLen {
		return fmt.Errorf("username must be at least %d characters", minUsernameLen)
	}
	if len(password) < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}
	return nil
}

// registerAccount hashes password and creates the account. username must
// already be normalised.
func (a *API) registerAccount(username, password string) (*accountRecord, error) {
	hash, err := util.HashPassword(password, a.passwordParams)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	return a.accounts.create(username, hash)
}

// authenticate checks password for username and returns the account.
func (a *API) authenticate(username, password string) (*accountRecord, error) {
	rec, ok := a.accounts.byUsername(username)
	if !ok {
		return nil, errUnknownAccount
	}
	match, err := util.VerifyPassword(password, rec.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !match {
		return nil, errInvalidPassword
	}
	return rec, nil
}
