package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jmcleod/storefront/internal/util"
)

const tokenBytes = 32

func (a *API) mint(kind TokenKind, accountID, family string, ttl time.Duration) (string, TokenRecord, error) {
	raw, err := util.RandomToken(tokenBytes)
	if err != nil {
		return "", TokenRecord{}, fmt.Errorf("generating %s token: %w", kind, err)
	}
	now := time.Now()
	rec := TokenRecord{
		ID:        uuid.NewString(),
		Kind:      kind,
		AccountID: accountID,
		Family:    family,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	a.tokens.Put(tokenLookupID(raw), rec)
	return raw, rec, nil
}

// issuePair starts a new token family for accountID.
func (a *API) issuePair(accountID string) (TokenPair, error) {
	family := uuid.NewString()
	access, _, err := a.mint(TokenAccess, accountID, family, a.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := a.mint(TokenRefresh, accountID, family, a.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(a.accessTTL.Seconds()),
	}, nil
}

// lookup returns the live record for a raw token of the given kind.
func (a *API) lookup(raw string, kind TokenKind) (TokenRecord, error) {
	if raw == "" {
		return TokenRecord{}, errTokenNotFound
	}
	rec, ok := a.tokens.Get(tokenLookupID(raw))
	if !ok {
		return TokenRecord{}, errTokenNotFound
	}
	if rec.Kind != kind {
		return TokenRecord{}, errTokenNotFound
	}
	if time.Now().After(rec.ExpiresAt) {
		return TokenRecord{}, errTokenExpired
	}
	return rec, nil
}

// refreshAccess issues a new access token in the refresh token's family.
// With rotation enabled the presented refresh token is consumed first, so a
// token replayed concurrently is honoured once.
func (a *API) refreshAccess(rawRefresh string) (RefreshResponse, TokenRecord, error) {
	rec, err := a.lookup(rawRefresh, TokenRefresh)
	if err != nil {
		return RefreshResponse{}, TokenRecord{}, err
	}
	if a.rotateRefresh {
		if _, ok := a.tokens.Take(tokenLookupID(rawRefresh)); !ok {
			return RefreshResponse{}, TokenRecord{}, errTokenNotFound
		}
	}
	access, _, err := a.mint(TokenAccess, rec.AccountID, rec.Family, a.accessTTL)
	if err != nil {
		return RefreshResponse{}, TokenRecord{}, err
	}
	out := RefreshResponse{AccessToken: access, ExpiresIn: int(a.accessTTL.Seconds())}
	if a.rotateRefresh {
		refresh, _, err := a.mint(TokenRefresh, rec.AccountID, rec.Family, a.refreshTTL)
		if err != nil {
			return RefreshResponse{}, TokenRecord{}, err
		}
		out.RefreshToken = refresh
	}
	return out, rec, nil
}
