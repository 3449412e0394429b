package session

import (
	"log/slog"
	"time"
)

const (
	DefaultRefreshPath    = "/auth/refresh"
	DefaultLogoutPath     = "/auth/logout"
	defaultRefreshTimeout = 30 * time.Second
	defaultLogoutTimeout  = 5 * time.Second
)

type config struct {
	logger         *slog.Logger
	refreshPath    string
	logoutPath     string
	refreshTimeout time.Duration
	logoutTimeout  time.Duration
	alertFn        AlertFunc
}

// Option configures a Client.
type Option func(*config)

// WithLogger sets the structured logger for session audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithRefreshPath overrides the refresh endpoint path.
func WithRefreshPath(path string) Option {
	return func(c *config) {
		c.refreshPath = path
	}
}

// WithLogoutPath overrides the remote logout endpoint path. An empty path
// disables the remote call.
func WithLogoutPath(path string) Option {
	return func(c *config) {
		c.logoutPath = path
	}
}

// WithRefreshTimeout bounds one refresh attempt. The transport's own
// per-call timeout still applies.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *config) {
		c.refreshTimeout = d
	}
}

// WithLogoutTimeout bounds the best-effort remote logout call.
func WithLogoutTimeout(d time.Duration) Option {
	return func(c *config) {
		c.logoutTimeout = d
	}
}

// WithAlertFunc registers a callback for refresh failure spikes.
func WithAlertFunc(fn AlertFunc) Option {
	return func(c *config) {
		c.alertFn = fn
	}
}

func defaultConfig() config {
	return config{
		refreshPath:    DefaultRefreshPath,
		logoutPath:     DefaultLogoutPath,
		refreshTimeout: defaultRefreshTimeout,
		logoutTimeout:  defaultLogoutTimeout,
	}
}
