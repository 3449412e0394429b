package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jmcleod/storefront/internal/util"
)

// Register handles POST /auth/register.
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[RegisterRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	username := util.NormalizeIdentifier(req.Username)
	if err := validateRegistration(username, req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := a.registerAccount(username, req.Password)
	if err != nil {
		mapError(w, err)
		return
	}

	a.audit.logEvent(AuditRegister, r, rec.ID)
	writeJSON(w, http.StatusCreated, RegisterResponse{AccountID: rec.ID, Username: rec.Username})
}

// Login handles POST /auth/login.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[LoginRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	username := util.NormalizeIdentifier(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	clientIP := extractClientIP(r, a.trustedProxies)

	// Check rate limits before any expensive work: global, then IP, then account.
	if blocked, retryAfter := a.globalLimiter.check(); blocked {
		a.audit.logFailure(AuditLoginRateLimited, r, "global rate limited")
		writeRateLimited(w, retryAfter)
		return
	}
	if blocked, retryAfter := a.ipLimiter.check(clientIP); blocked {
		a.audit.logFailure(AuditLoginRateLimited, r, "ip rate limited",
			slog.String("client_ip", clientIP))
		writeRateLimited(w, retryAfter)
		return
	}
	if blocked, retryAfter := a.rateLimiter.check(username); blocked {
		a.audit.logFailure(AuditLoginRateLimited, r, "account rate limited")
		writeRateLimited(w, retryAfter)
		return
	}

	rec, err := a.authenticate(username, req.Password)
	if err != nil {
		if !errors.Is(err, errUnknownAccount) && !errors.Is(err, errInvalidPassword) {
			writeInternalError(w, "failed to verify credentials", err)
			return
		}
		a.globalLimiter.recordFailure()
		a.ipLimiter.recordFailure(clientIP)
		a.rateLimiter.recordFailure(username)
		a.audit.logFailure(AuditLoginFailure, r, err.Error())
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	pair, err := a.issuePair(rec.ID)
	if err != nil {
		writeInternalError(w, "failed to issue tokens", err)
		return
	}
	a.rateLimiter.recordSuccess(username)
	a.ipLimiter.recordSuccess(clientIP)

	a.audit.logEvent(AuditLoginSuccess, r, rec.ID)
	writeJSON(w, http.StatusOK, pair)
}

// Refresh handles POST /auth/refresh. An unknown, expired or revoked refresh
// token is answered with 401.
func (a *API) Refresh(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[RefreshRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	out, rec, err := a.refreshAccess(req.RefreshToken)
	if err != nil {
		if errors.Is(err, errTokenNotFound) || errors.Is(err, errTokenExpired) {
			a.audit.logFailure(AuditRefreshRejected, r, err.Error())
		}
		mapError(w, err)
		return
	}
	a.audit.logToken(AuditTokenRefreshed, r, rec, slog.Bool("rotated", out.RefreshToken != ""))
	writeJSON(w, http.StatusOK, out)
}

// Logout handles POST /auth/logout. It revokes the token family of the
// presented refresh token or, failing that, of the bearer access token.
// Logging out an unknown session still succeeds.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	var rawRefresh string
	if r.ContentLength != 0 {
		req, ok := decodeJSON[RefreshRequest](w, r, maxAuthBodySize)
		if !ok {
			return
		}
		rawRefresh = req.RefreshToken
	}

	rec, err := a.lookup(rawRefresh, TokenRefresh)
	if err != nil {
		if raw, ok := bearerToken(r); ok {
			rec, err = a.lookup(raw, TokenAccess)
		}
	}
	if err == nil {
		a.tokens.DeleteFamily(rec.Family)
		a.audit.logToken(AuditLogout, r, rec)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /me.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	tok, _ := tokenFromContext(r.Context())
	acct, ok := a.accounts.get(tok.AccountID)
	if !ok {
		writeError(w, http.StatusUnauthorized, "account no longer exists")
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{
		AccountID: acct.ID,
		Username:  acct.Username,
		CreatedAt: acct.CreatedAt,
	})
}
