// Package api is a small storefront backend used for local development and
// integration tests. It issues bearer access/refresh token pairs, enforces
// access-token expiry and serves a demo product catalogue.
package api

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/storefront/internal/util"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	accounts       *accountStore
	tokens         TokenStore
	catalogue      []Product
	rateLimiter    *loginRateLimiter
	ipLimiter      *ipRateLimiter
	globalLimiter  *globalRateLimiter
	audit          *auditLogger
	logger         *slog.Logger
	alertFn        AlertFunc
	accessTTL      time.Duration
	refreshTTL     time.Duration
	rotateRefresh  bool
	passwordParams util.Argon2idParams
	docsPrefix     string
	trustedProxies []netip.Prefix
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithAlertFunc registers a callback for login failure spikes.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// WithAccessTokenTTL sets how long an issued access token is accepted.
// Short values make the refresh path easy to exercise.
func WithAccessTokenTTL(d time.Duration) Option {
	return func(a *API) {
		a.accessTTL = d
	}
}

// WithRefreshTokenTTL sets how long an issued refresh token is accepted.
func WithRefreshTokenTTL(d time.Duration) Option {
	return func(a *API) {
		a.refreshTTL = d
	}
}

// WithRefreshRotation makes /auth/refresh issue a new refresh token and
// revoke the presented one.
func WithRefreshRotation(enabled bool) Option {
	return func(a *API) {
		a.rotateRefresh = enabled
	}
}

// WithTokenStore replaces the default in-memory token store.
func WithTokenStore(ts TokenStore) Option {
	return func(a *API) {
		a.tokens = ts
	}
}

// WithPasswordParams overrides the argon2id cost parameters.
func WithPasswordParams(p util.Argon2idParams) Option {
	return func(a *API) {
		a.passwordParams = p
	}
}

// WithDocsPrefix sets the path the router is mounted under so the docs UIs
// can locate openapi.yaml. Defaults to "".
func WithDocsPrefix(prefix string) Option {
	return func(a *API) {
		a.docsPrefix = prefix
	}
}

// WithTrustedProxies lists the CIDR ranges whose forwarding headers are
// trusted when deriving the client IP for rate limiting.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) {
		a.trustedProxies = prefixes
	}
}

// New creates a new API instance.
func New(opts ...Option) *API {
	a := &API{
		accounts:       newAccountStore(),
		catalogue:      defaultCatalogue(),
		rateLimiter:    newLoginRateLimiter(),
		ipLimiter:      newIPRateLimiter(),
		globalLimiter:  newGlobalRateLimiter(),
		accessTTL:      defaultAccessTokenTTL,
		refreshTTL:     defaultRefreshTokenTTL,
		passwordParams: util.DefaultArgon2idParams(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	if a.tokens == nil {
		a.tokens = NewMemoryTokenStore()
	}
	a.audit = newAuditLogger(a.logger, newMetricsCollector(a.alertFn))
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: a.docsPrefix + "/openapi.yaml",
		Path:    strings.TrimLeft(a.docsPrefix+"/docs", "/"),
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: a.docsPrefix + "/openapi.yaml",
		Path:    strings.TrimLeft(a.docsPrefix+"/redoc", "/"),
	}, nil))

	r.Post("/auth/register", a.Register)
	r.Post("/auth/login", a.Login)
	r.Post("/auth/refresh", a.Refresh)
	r.Post("/auth/logout", a.Logout)

	r.Group(func(r chi.Router) {
		r.Use(a.AuthMiddleware)
		r.Get("/me", a.Me)
		r.Get("/products", a.ListProducts)
		r.Get("/products/{productID}", a.GetProduct)
	})

	return r
}

// RunJanitor sweeps expired tokens and stale rate-limit records every
// interval until ctx is done.
func (a *API) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.rateLimiter.sweep()
			a.ipLimiter.sweep()
			if s, ok := a.tokens.(interface{ Sweep() }); ok {
				s.Sweep()
			}
		}
	}
}
