package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jmcleod/storefront/storage"
	"github.com/jmcleod/storefront/transport"
)

// Client is the authenticated request facade shared by the whole app.
// It is safe for concurrent use.
type Client struct {
	st            *sessionState
	refresher     *coordinator
	store         storage.Store
	transport     transport.Transport
	logoutPath    string
	logoutTimeout time.Duration
	audit         *auditLogger
	metrics       *metricsCollector
}

// New creates a Client over store and tr and restores any credential pair
// already in the store. A half-written pair is purged and the session starts
// anonymous.
func New(store storage.Store, tr transport.Transport, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	metrics := newMetricsCollector(cfg.alertFn)
	audit := newAuditLogger(cfg.logger, metrics)

	st := &sessionState{state: StateAnonymous}
	c := &Client{
		st:            st,
		store:         store,
		transport:     tr,
		logoutPath:    cfg.logoutPath,
		logoutTimeout: cfg.logoutTimeout,
		audit:         audit,
		metrics:       metrics,
		refresher: &coordinator{
			st:        st,
			store:     store,
			transport: tr,
			path:      cfg.refreshPath,
			timeout:   cfg.refreshTimeout,
			audit:     audit,
			metrics:   metrics,
		},
	}
	if err := c.restore(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) restore() error {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	creds, ok, partial, err := storage.LoadCredentials(c.store)
	if err != nil {
		return fmt.Errorf("restoring session: %w", err)
	}
	switch {
	case ok:
		c.st.state = StateAuthenticated
		c.st.access = creds.AccessToken
		c.audit.info(AuditRestored)
	case partial:
		if err := storage.PurgeCredentials(c.store); err != nil {
			return fmt.Errorf("purging partial credentials: %w", err)
		}
		c.audit.info(AuditPartialPurged)
	}
	return nil
}

// Do sends an authenticated request. A 401 on a credentialed request
// triggers one refresh and one resend; a second 401, or a failed refresh,
// is returned as *AuthExpiredError. Transport failures are returned as
// *transport.NetworkError. Every other response is returned as-is.
func (c *Client) Do(ctx context.Context, method, path string, headers map[string]string, body []byte) (*transport.Response, error) {
	req := &transport.Request{Method: method, Path: path, Headers: headers, Body: body}

	token, err := c.credential(ctx)
	if err != nil {
		return nil, err
	}
	retried := false
	for {
		resp, err := c.send(ctx, req, token)
		if err != nil {
			return nil, err
		}
		if resp.Status != http.StatusUnauthorized {
			return resp, nil
		}
		if retried || token == "" {
			return nil, &AuthExpiredError{Reason: ErrAuthRejected, Response: resp}
		}
		retried = true
		c.metrics.retries.Add(1)
		token, err = c.refresher.refresh(ctx, token)
		if errors.Is(err, ErrSessionReset) {
			// A login or logout replaced the session mid-refresh. The retry
			// goes out with whatever credential it left behind.
			if token, err = c.credential(ctx); err != nil {
				return nil, err
			}
			if token == "" {
				return nil, &AuthExpiredError{Reason: ErrSessionReset, Response: resp}
			}
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, expired(err, resp)
		}
	}
}

// credential returns the token to attach: none when anonymous, the cached
// token when authenticated, or the outcome of the in-flight refresh.
func (c *Client) credential(ctx context.Context) (string, error) {
	// A login or logout can supersede the refresh being waited on; the
	// second pass then sees the state it left behind.
	for pass := 0; ; pass++ {
		c.st.mu.Lock()
		switch c.st.state {
		case StateAnonymous:
			c.st.mu.Unlock()
			return "", nil
		case StateAuthenticated:
			token := c.st.access
			c.st.mu.Unlock()
			return token, nil
		}
		call := c.st.refreshing
		c.st.mu.Unlock()

		c.metrics.waiters.Add(1)
		token, err := call.wait(ctx)
		switch {
		case err == nil:
			return token, nil
		case ctx.Err() != nil:
			return "", ctx.Err()
		case errors.Is(err, ErrSessionReset) && pass == 0:
			continue
		default:
			return "", expired(err, nil)
		}
	}
}

func (c *Client) send(ctx context.Context, req *transport.Request, token string) (*transport.Response, error) {
	out := req
	if token != "" {
		out = req.Clone()
		out.Headers["Authorization"] = "Bearer " + token
	}
	return c.transport.Send(ctx, out)
}

// Get is Do with GET and no body.
func (c *Client) Get(ctx context.Context, path string) (*transport.Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil, nil)
}

// Post is Do with POST.
func (c *Client) Post(ctx context.Context, path string, body []byte) (*transport.Response, error) {
	return c.Do(ctx, http.MethodPost, path, nil, body)
}

// Put is Do with PUT.
func (c *Client) Put(ctx context.Context, path string, body []byte) (*transport.Response, error) {
	return c.Do(ctx, http.MethodPut, path, nil, body)
}

// Delete is Do with DELETE and no body.
func (c *Client) Delete(ctx context.Context, path string) (*transport.Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// DoJSON marshals in (when non-nil), sends the request and decodes a 2xx
// body into out (when non-nil). Other statuses return *StatusError.
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}
	resp, err := c.Do(ctx, method, path, nil, body)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &StatusError{Status: resp.Status, Body: resp.Body}
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Login stores a credential pair obtained by the sign-in flow and marks the
// session authenticated. If the pair cannot be persisted nothing changes and
// the error is returned.
func (c *Client) Login(accessToken, refreshToken string) error {
	if accessToken == "" || refreshToken == "" {
		return ErrInvalidCredentials
	}
	c.st.mu.Lock()
	err := storage.SaveCredentials(c.store, storage.Credentials{AccessToken: accessToken, RefreshToken: refreshToken})
	if err != nil {
		c.st.mu.Unlock()
		return fmt.Errorf("persisting credentials: %w", err)
	}
	c.st.detachLocked()
	c.st.access = accessToken
	c.st.state = StateAuthenticated
	c.st.mu.Unlock()

	c.audit.info(AuditLogin)
	return nil
}

// Logout asks the backend to invalidate the session, ignoring any failure,
// then purges local credentials unconditionally. The session is anonymous
// when Logout returns; the only error reported is a store failure.
func (c *Client) Logout(ctx context.Context) error {
	c.st.mu.Lock()
	access := c.st.access
	refresh, _, err := c.store.Get(storage.RefreshTokenKey)
	c.st.mu.Unlock()
	if err != nil {
		// Revoke with the access token alone; the purge below still runs.
		c.audit.failure(AuditLogoutRemoteFailed, fmt.Errorf("reading refresh token: %w", err))
	}

	if c.logoutPath != "" && (access != "" || refresh != "") {
		c.revokeRemote(ctx, access, refresh)
	}

	c.st.mu.Lock()
	c.st.detachLocked()
	c.st.access = ""
	c.st.state = StateAnonymous
	err = storage.PurgeCredentials(c.store)
	c.st.mu.Unlock()

	if err != nil {
		c.audit.failure(AuditLogout, err)
		return fmt.Errorf("purging credentials: %w", err)
	}
	c.audit.info(AuditLogout)
	return nil
}

func (c *Client) revokeRemote(ctx context.Context, access, refresh string) {
	ctx, cancel := context.WithTimeout(ctx, c.logoutTimeout)
	defer cancel()

	req := &transport.Request{Method: http.MethodPost, Path: c.logoutPath, Headers: map[string]string{}}
	if refresh != "" {
		req.Body, _ = json.Marshal(refreshRequest{RefreshToken: refresh})
	}
	if access != "" {
		req.Headers["Authorization"] = "Bearer " + access
	}
	resp, err := c.transport.Send(ctx, req)
	switch {
	case err != nil:
		c.audit.failure(AuditLogoutRemoteFailed, err)
	case !resp.OK():
		c.audit.failure(AuditLogoutRemoteFailed, fmt.Errorf("status %d", resp.Status))
	}
}

// CurrentAccessToken returns the access token held by the session, if any.
func (c *Client) CurrentAccessToken() (string, bool) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	if c.st.state == StateAnonymous || c.st.access == "" {
		return "", false
	}
	return c.st.access, true
}

// State returns the current session state.
func (c *Client) State() State {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	return c.st.state
}

// Stats returns a snapshot of refresh and retry counters.
func (c *Client) Stats() Stats {
	return c.metrics.snapshot()
}
