package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmcleod/storefront/storage"
	"github.com/jmcleod/storefront/transport"
)

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// coordinator owns the single-flight refresh. The first caller to find no
// refresh in flight becomes the owner and starts the one refresh call; every
// other caller waits on the same refreshCall.
type coordinator struct {
	st        *sessionState
	store     storage.Store
	transport transport.Transport
	path      string
	timeout   time.Duration
	audit     *auditLogger
	metrics   *metricsCollector
}

// refresh returns an access token to retry with after rejected was refused
// by the backend. rejected may be empty when the caller holds no token.
func (c *coordinator) refresh(ctx context.Context, rejected string) (string, error) {
	for {
		c.st.mu.Lock()
		switch {
		case c.st.state == StateAnonymous:
			c.st.mu.Unlock()
			return "", ErrRefreshRejected
		case c.st.state == StateAuthenticated && rejected != "" && c.st.access != rejected:
			// A refresh completed after this caller attached its token.
			token := c.st.access
			c.st.mu.Unlock()
			return token, nil
		case c.st.refreshing != nil:
			call := c.st.refreshing
			c.st.mu.Unlock()
			c.metrics.waiters.Add(1)
			return call.wait(ctx)
		case c.st.detached != nil:
			// A login or logout cancelled the previous refresh; its request
			// may still be on the wire.
			prev := c.st.detached
			c.st.mu.Unlock()
			select {
			case <-prev.done:
				continue
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		return c.start(ctx)
	}
}

// start makes the caller the owner of a new refresh. Must hold the gate; it
// is released before waiting.
func (c *coordinator) start(ctx context.Context) (string, error) {
	refreshToken, ok, err := c.store.Get(storage.RefreshTokenKey)
	if err != nil {
		c.st.mu.Unlock()
		return "", fmt.Errorf("reading refresh token: %w", err)
	}
	if !ok || refreshToken == "" {
		purgeErr := c.purgeLocked()
		c.st.mu.Unlock()
		c.audit.failure(AuditRefreshRejected, errors.New("no refresh token stored"))
		if purgeErr != nil {
			c.audit.failure(AuditRefreshRejected, purgeErr)
		}
		return "", ErrRefreshRejected
	}
	// The exchange must outlive the owner's context: waiters depend on it.
	// Only a login or logout cancels it, through detachLocked.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	call := newRefreshCall(cancel)
	c.st.refreshing = call
	c.st.state = StateRefreshing
	c.st.mu.Unlock()

	c.audit.info(AuditRefreshStarted)
	go c.run(runCtx, call, refreshToken)
	return call.wait(ctx)
}

func (c *coordinator) run(ctx context.Context, call *refreshCall, refreshToken string) {
	defer call.cancel()
	creds, err := c.exchange(ctx, refreshToken)
	c.resolve(call, creds, err)
}

// exchange performs the single refresh call and classifies its outcome.
func (c *coordinator) exchange(ctx context.Context, refreshToken string) (storage.Credentials, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return storage.Credentials{}, err
	}
	c.metrics.refreshCalls.Add(1)
	resp, err := c.transport.Send(ctx, &transport.Request{
		Method: http.MethodPost,
		Path:   c.path,
		Body:   body,
	})
	if err != nil {
		return storage.Credentials{}, err
	}
	switch {
	case resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden:
		return storage.Credentials{}, fmt.Errorf("%w: status %d", ErrRefreshRejected, resp.Status)
	case !resp.OK():
		return storage.Credentials{}, fmt.Errorf("%w: status %d", ErrRefreshFailed, resp.Status)
	}
	var out refreshResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return storage.Credentials{}, fmt.Errorf("%w: decoding response: %v", ErrRefreshFailed, err)
	}
	if out.AccessToken == "" {
		return storage.Credentials{}, fmt.Errorf("%w: response has no access token", ErrRefreshFailed)
	}
	return storage.Credentials{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}, nil
}

// resolve applies the refresh outcome under the gate and wakes all waiters.
func (c *coordinator) resolve(call *refreshCall, creds storage.Credentials, err error) {
	var (
		event    AuditEvent
		cause    error
		rotated  bool
		purgeErr error
	)

	c.st.mu.Lock()
	switch {
	case c.st.refreshing != call:
		// Login or logout replaced the session; never write this result.
		if c.st.detached == call {
			c.st.detached = nil
		}
		event, cause = AuditRefreshDiscarded, ErrSessionReset
		call.err = ErrSessionReset
	case err == nil:
		c.st.refreshing = nil
		if werr := storage.SaveCredentials(c.store, creds); werr != nil {
			// Keep the previous pair; a refresh that cannot persist is not a success.
			c.st.state = StateAuthenticated
			event, cause = AuditRefreshFailed, werr
			call.err = fmt.Errorf("persisting refreshed credentials: %w", werr)
			break
		}
		c.st.access = creds.AccessToken
		c.st.state = StateAuthenticated
		call.token = creds.AccessToken
		event, rotated = AuditRefreshSucceeded, creds.RefreshToken != ""
	case errors.Is(err, ErrRefreshRejected):
		c.st.refreshing = nil
		purgeErr = c.purgeLocked()
		event, cause = AuditRefreshRejected, err
		call.err = err
	default:
		// Network and other transient failures leave credentials untouched.
		c.st.refreshing = nil
		c.st.state = StateAuthenticated
		event, cause = AuditRefreshFailed, err
		call.err = err
	}
	close(call.done)
	c.st.mu.Unlock()

	if cause == nil {
		c.audit.info(event, slog.Bool("rotated", rotated))
	} else {
		c.audit.failure(event, cause)
	}
	if purgeErr != nil {
		c.audit.failure(AuditRefreshRejected, fmt.Errorf("purging credentials: %w", purgeErr))
	}
}

// purgeLocked clears the stored pair and drops to anonymous. The in-memory
// session is anonymous even if the store write fails. Must hold the gate.
func (c *coordinator) purgeLocked() error {
	c.st.access = ""
	c.st.state = StateAnonymous
	return storage.PurgeCredentials(c.store)
}
