package api

import (
	"context"
	"net/http"
	"strings"
)

type contextKey int

const tokenKey contextKey = iota

// AuthMiddleware requires a live bearer access token and stores its record
// on the request context.
func (a *API) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="storefront"`)
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		rec, err := a.lookup(raw, TokenAccess)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="storefront", error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), tokenKey, rec)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func tokenFromContext(ctx context.Context) (TokenRecord, bool) {
	rec, ok := ctx.Value(tokenKey).(TokenRecord)
	return rec, ok
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
