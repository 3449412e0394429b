package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmcleod/storefront/storage"
	"github.com/jmcleod/storefront/storage/memory"
	"github.com/jmcleod/storefront/transport"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-process transport that accepts a fixed set of access
// tokens and answers the refresh endpoint from a programmable function.
type fakeBackend struct {
	mu          sync.Mutex
	valid       map[string]bool
	attached    []string
	logoutReqs  []*transport.Request
	refreshReqs []string

	unauthorized atomic.Int64
	// refreshInflight counts refresh calls currently inside Send;
	// refreshPeak is its high-water mark.
	refreshInflight atomic.Int64
	refreshPeak     atomic.Int64

	// refresh answers POST /auth/refresh. Defaults to 200 {"accessToken":"A2"}.
	refresh func(refreshToken string) (*transport.Response, error)
	// refreshGate, when set, holds the refresh call until closed.
	refreshGate    chan struct{}
	refreshStarted chan struct{}
	logoutErr      error
}

func newFakeBackend(valid ...string) *fakeBackend {
	b := &fakeBackend{
		valid:          make(map[string]bool),
		refreshStarted: make(chan struct{}, 16),
	}
	for _, v := range valid {
		b.valid[v] = true
	}
	return b
}

func (b *fakeBackend) accept(tokens ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.valid = make(map[string]bool)
	for _, v := range tokens {
		b.valid[v] = true
	}
}

func (b *fakeBackend) Send(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	switch req.Path {
	case DefaultRefreshPath:
		return b.sendRefresh(ctx, req)
	case DefaultLogoutPath:
		b.mu.Lock()
		b.logoutReqs = append(b.logoutReqs, req.Clone())
		err := b.logoutErr
		b.mu.Unlock()
		if err != nil {
			return nil, &transport.NetworkError{Method: req.Method, Path: req.Path, Err: err}
		}
		return &transport.Response{Status: http.StatusNoContent}, nil
	}

	auth := req.Headers["Authorization"]
	b.mu.Lock()
	b.attached = append(b.attached, auth)
	ok := b.valid[strings.TrimPrefix(auth, "Bearer ")]
	b.mu.Unlock()
	if !ok {
		b.unauthorized.Add(1)
		return &transport.Response{Status: http.StatusUnauthorized, Body: []byte(`{"error":"unauthorized"}`)}, nil
	}
	return &transport.Response{Status: http.StatusOK, Body: []byte(`{"ok":true}`)}, nil
}

func (b *fakeBackend) sendRefresh(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	var body refreshRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return &transport.Response{Status: http.StatusBadRequest}, nil
	}
	b.mu.Lock()
	b.refreshReqs = append(b.refreshReqs, body.RefreshToken)
	fn, gate := b.refresh, b.refreshGate
	b.mu.Unlock()

	n := b.refreshInflight.Add(1)
	defer b.refreshInflight.Add(-1)
	for {
		peak := b.refreshPeak.Load()
		if n <= peak || b.refreshPeak.CompareAndSwap(peak, n) {
			break
		}
	}

	b.refreshStarted <- struct{}{}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &transport.NetworkError{Method: req.Method, Path: req.Path, Err: ctx.Err()}
		}
	}
	if fn == nil {
		return jsonResponse(http.StatusOK, `{"accessToken":"A2"}`), nil
	}
	return fn(body.RefreshToken)
}

func (b *fakeBackend) refreshCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.refreshReqs)
}

func (b *fakeBackend) attachedHeaders() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.attached...)
}

func jsonResponse(status int, body string) *transport.Response {
	return &transport.Response{Status: status, Body: []byte(body)}
}

// flakyStore fails every batch while failing is set.
type flakyStore struct {
	*memory.Store
	failing atomic.Bool
}

var errDiskFull = errors.New("disk full")

func (s *flakyStore) Batch(fn func(tx storage.Tx) error) error {
	if s.failing.Load() {
		return errDiskFull
	}
	return s.Store.Batch(fn)
}

// unreadableStore fails refresh token reads while failing is set.
type unreadableStore struct {
	*memory.Store
	failing atomic.Bool
}

var errIOTimeout = errors.New("io timeout")

func (s *unreadableStore) Get(name string) (string, bool, error) {
	if s.failing.Load() && name == storage.RefreshTokenKey {
		return "", false, errIOTimeout
	}
	return s.Store.Get(name)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, store storage.Store, backend *fakeBackend, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	c, err := New(store, backend, opts...)
	require.NoError(t, err)
	return c
}

func waitStarted(t *testing.T, b *fakeBackend) {
	t.Helper()
	select {
	case <-b.refreshStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh never started")
	}
}
