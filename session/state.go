package session

import (
	"context"
	"sync"
)

// State is the session-level authentication state.
type State int

const (
	// StateAnonymous means no credential pair is held.
	StateAnonymous State = iota
	// StateAuthenticated means a credential pair is held and believed valid.
	StateAuthenticated
	// StateRefreshing means a refresh is in flight; requests wait for it
	// instead of attaching the stale access token.
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// sessionState is the single mutable session record shared by Client and
// its coordinator. mu is the gate: every field below it, and every store
// mutation, is accessed only while holding it.
type sessionState struct {
	mu         sync.Mutex
	state      State
	access     string
	refreshing *refreshCall
	// detached is a cancelled refresh whose exchange has not returned yet.
	// No new refresh starts until it resolves.
	detached *refreshCall
}

// detachLocked cancels the in-flight refresh and drops it so that its
// outcome is discarded. Must hold mu.
func (s *sessionState) detachLocked() {
	if s.refreshing == nil {
		return
	}
	s.refreshing.cancel()
	s.detached = s.refreshing
	s.refreshing = nil
}

// refreshCall is the shared outcome of one refresh attempt. done is closed
// exactly once, after token/err are set and while holding the gate.
type refreshCall struct {
	done   chan struct{}
	cancel context.CancelFunc
	token  string
	err    error
}

func newRefreshCall(cancel context.CancelFunc) *refreshCall {
	return &refreshCall{done: make(chan struct{}), cancel: cancel}
}

// wait blocks until the call resolves or ctx ends. Abandoning a wait does
// not affect the call or other waiters.
func (c *refreshCall) wait(ctx context.Context) (string, error) {
	select {
	case <-c.done:
		return c.token, c.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
